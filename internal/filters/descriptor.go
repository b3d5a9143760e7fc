package filters

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"pastiche/internal/config"
)

// Kind selects the transform family a filter uses.
type Kind string

const (
	// KindTransfer shifts the input's colour statistics towards the references.
	KindTransfer Kind = "transfer"
	// KindPalette maps every pixel to the nearest reference palette colour.
	KindPalette Kind = "palette"
	// KindSketch renders edges as pencil strokes on the reference paper tone.
	KindSketch Kind = "sketch"
)

func parseKind(value string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(value))) {
	case "", KindTransfer:
		return KindTransfer, nil
	case KindPalette:
		return KindPalette, nil
	case KindSketch:
		return KindSketch, nil
	default:
		return "", fmt.Errorf("unsupported filter kind %q", value)
	}
}

// Descriptor is one loadable style filter. It is immutable once the
// registry that returned it has been built.
type Descriptor struct {
	Name            string   `json:"name"`
	Kind            Kind     `json:"kind"`
	Strength        float64  `json:"strength"`
	Description     string   `json:"description,omitempty"`
	ReferenceAssets []string `json:"reference_assets"`
	Profile         *Profile `json:"-"`
}

// DisplayName renders the filter name for people, e.g. "oil_paint" as "Oil Paint".
func (d Descriptor) DisplayName() string {
	// A Caser is stateful and must not be shared between goroutines.
	return cases.Title(language.English).String(strings.ReplaceAll(d.Name, "_", " "))
}

// NormalizeName is the lookup key form of a filter name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// FromConfig converts declared config filters into descriptors.
func FromConfig(declared []config.Filter) []Descriptor {
	out := make([]Descriptor, 0, len(declared))
	for _, f := range declared {
		out = append(out, Descriptor{
			Name:            f.Name,
			Kind:            Kind(f.Kind),
			Strength:        f.Strength,
			Description:     f.Description,
			ReferenceAssets: append([]string(nil), f.References...),
		})
	}
	return out
}
