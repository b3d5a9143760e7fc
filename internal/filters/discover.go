package filters

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"pastiche/internal/services"
)

// ManifestName is the optional per-filter manifest inside a style sub-directory.
const ManifestName = "filter.toml"

var imageExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".gif":  {},
	".bmp":  {},
	".tif":  {},
	".tiff": {},
	".webp": {},
}

type manifest struct {
	Kind        string  `toml:"kind"`
	Strength    float64 `toml:"strength"`
	Description string  `toml:"description"`
}

// IsImagePath reports whether path has a supported image extension.
func IsImagePath(path string) bool {
	_, ok := imageExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Discover scans a style directory. Every image file <name>.<ext> becomes a
// filter with one reference; every sub-directory <name>/ becomes a filter
// whose references are the images inside it, configured by an optional
// filter.toml. Hidden entries are ignored.
func Discover(dir string) ([]Descriptor, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, services.Wrap(services.ErrRegistryLoad, "filters", "discover", "style directory not configured", nil)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, services.Wrap(services.ErrRegistryLoad, "filters", "discover", "style directory "+dir+" does not exist", nil)
		}
		return nil, services.Wrap(services.ErrRegistryLoad, "filters", "discover", "read "+dir, err)
	}

	var descs []Descriptor
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(dir, name)
		switch {
		case entry.IsDir():
			desc, ok, err := discoverSubdir(path)
			if err != nil {
				return nil, err
			}
			if ok {
				descs = append(descs, desc)
			}
		case IsImagePath(name):
			descs = append(descs, Descriptor{
				Name:            NormalizeName(strings.TrimSuffix(name, filepath.Ext(name))),
				Kind:            KindTransfer,
				Strength:        1,
				ReferenceAssets: []string{path},
			})
		}
	}
	if len(descs) == 0 {
		return nil, services.Wrap(services.ErrRegistryLoad, "filters", "discover", "no usable filter definitions in "+dir, nil)
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].Name < descs[j].Name })
	return descs, nil
}

func discoverSubdir(dir string) (Descriptor, bool, error) {
	desc := Descriptor{
		Name:     NormalizeName(filepath.Base(dir)),
		Kind:     KindTransfer,
		Strength: 1,
	}

	manifestPath := filepath.Join(dir, ManifestName)
	hasManifest := false
	if data, err := os.ReadFile(manifestPath); err == nil {
		var m manifest
		if err := toml.Unmarshal(data, &m); err != nil {
			return Descriptor{}, false, services.Wrap(services.ErrRegistryLoad, "filters", "discover",
				fmt.Sprintf("parse %s", manifestPath), err)
		}
		kind, err := parseKind(m.Kind)
		if err != nil {
			return Descriptor{}, false, services.Wrap(services.ErrRegistryLoad, "filters", "discover", manifestPath, err)
		}
		desc.Kind = kind
		if m.Strength != 0 {
			desc.Strength = m.Strength
		}
		desc.Description = strings.TrimSpace(m.Description)
		hasManifest = true
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Descriptor{}, false, services.Wrap(services.ErrRegistryLoad, "filters", "discover", "read "+manifestPath, err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return Descriptor{}, false, services.Wrap(services.ErrRegistryLoad, "filters", "discover", "read "+dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !IsImagePath(entry.Name()) {
			continue
		}
		desc.ReferenceAssets = append(desc.ReferenceAssets, filepath.Join(dir, entry.Name()))
	}

	if len(desc.ReferenceAssets) == 0 && !(hasManifest && desc.Kind == KindSketch) {
		return Descriptor{}, false, nil
	}
	return desc, true, nil
}
