package filters

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sort"
	"strings"

	"pastiche/internal/imaging"
	"pastiche/internal/services"
)

// Registry maps filter names to loaded descriptors. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byName map[string]Descriptor
	names  []string
}

// NewRegistry validates descs, loads their reference images and computes
// their profiles. Any invalid descriptor fails the whole load.
func NewRegistry(descs []Descriptor) (*Registry, error) {
	if len(descs) == 0 {
		return nil, services.Wrap(services.ErrRegistryLoad, "filters", "load", "no filters defined", nil)
	}
	reg := &Registry{byName: make(map[string]Descriptor, len(descs))}
	for i, desc := range descs {
		loaded, err := loadDescriptor(desc)
		if err != nil {
			return nil, services.Wrap(services.ErrRegistryLoad, "filters", "load", fmt.Sprintf("filter %d (%q)", i, desc.Name), err)
		}
		if _, dup := reg.byName[loaded.Name]; dup {
			return nil, services.Wrap(services.ErrRegistryLoad, "filters", "load", fmt.Sprintf("filter %q defined more than once", loaded.Name), nil)
		}
		reg.byName[loaded.Name] = loaded
		reg.names = append(reg.names, loaded.Name)
	}
	sort.Strings(reg.names)
	return reg, nil
}

// Load discovers filters in dir and merges declared descriptors over them;
// a declared filter replaces a discovered one with the same name. When
// filters are declared, a missing style directory is not an error.
func Load(dir string, declared []Descriptor) (*Registry, error) {
	merged := make(map[string]Descriptor)
	discovered, err := Discover(dir)
	switch {
	case err == nil:
		for _, d := range discovered {
			merged[d.Name] = d
		}
	case len(declared) == 0 || !isMissingDir(dir):
		return nil, err
	}
	for _, d := range declared {
		merged[NormalizeName(d.Name)] = d
	}

	descs := make([]Descriptor, 0, len(merged))
	for _, d := range merged {
		descs = append(descs, d)
	}
	sort.Slice(descs, func(i, j int) bool { return NormalizeName(descs[i].Name) < NormalizeName(descs[j].Name) })
	return NewRegistry(descs)
}

func isMissingDir(dir string) bool {
	if strings.TrimSpace(dir) == "" {
		return true
	}
	_, err := os.Stat(dir)
	return errors.Is(err, os.ErrNotExist)
}

func loadDescriptor(desc Descriptor) (Descriptor, error) {
	desc.Name = NormalizeName(desc.Name)
	if desc.Name == "" {
		return Descriptor{}, errors.New("name must be set")
	}
	kind, err := parseKind(string(desc.Kind))
	if err != nil {
		return Descriptor{}, err
	}
	desc.Kind = kind
	if desc.Strength == 0 {
		desc.Strength = 1
	}
	if desc.Strength < 0 || desc.Strength > 1 {
		return Descriptor{}, fmt.Errorf("strength %v outside (0, 1]", desc.Strength)
	}
	if len(desc.ReferenceAssets) == 0 && desc.Kind != KindSketch {
		return Descriptor{}, errors.New("at least one reference asset is required")
	}

	refs := make([]*image.NRGBA, 0, len(desc.ReferenceAssets))
	for _, path := range desc.ReferenceAssets {
		data, err := os.ReadFile(path)
		if err != nil {
			return Descriptor{}, fmt.Errorf("read reference: %w", err)
		}
		img, _, err := imaging.Decode(data, 0)
		if err != nil {
			return Descriptor{}, fmt.Errorf("reference %s: %w", path, err)
		}
		refs = append(refs, downsample(img, profileMaxSide))
	}
	desc.ReferenceAssets = append([]string(nil), desc.ReferenceAssets...)
	desc.Profile = buildProfile(refs)
	return desc, nil
}

// Resolve returns the descriptor registered under name. Names match
// case-insensitively after trimming.
func (r *Registry) Resolve(name string) (Descriptor, error) {
	key := NormalizeName(name)
	desc, ok := r.byName[key]
	if !ok {
		return Descriptor{}, services.Wrap(services.ErrUnknownFilter, "filters", "resolve", fmt.Sprintf("%q", name), nil)
	}
	return desc, nil
}

// Has reports whether name resolves.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[NormalizeName(name)]
	return ok
}

// Names returns the sorted filter names.
func (r *Registry) Names() []string {
	return append([]string(nil), r.names...)
}

// Descriptors returns the loaded descriptors sorted by name.
func (r *Registry) Descriptors() []Descriptor {
	out := make([]Descriptor, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.byName[name])
	}
	return out
}

// Len returns the number of registered filters.
func (r *Registry) Len() int {
	return len(r.names)
}

// Apply resolves name and applies it to input.
func (r *Registry) Apply(name string, input []byte) ([]byte, error) {
	desc, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}
	return Apply(desc, input)
}

// DecodeConfig reads the dimensions and format of an encoded image. Bytes
// that are not a supported image fail with services.ErrValidation.
func DecodeConfig(input []byte) (imaging.Config, error) {
	cfg, err := imaging.DecodeConfig(input)
	if err != nil {
		return imaging.Config{}, services.Wrap(services.ErrValidation, "filters", "decode", "unsupported or corrupt image", err)
	}
	return cfg, nil
}
