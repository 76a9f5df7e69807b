// Package taxonomy loads custom attribute kinds from a YAML file into a
// person.Taxonomy.
//
// Example file:
//
//	kinds:
//	  - kind: shoe_size
//	    value_kinds: [measurement]
//	    dimension: length
//	    description: Foot length used for fitting
//	  - kind: preferred_pronoun
//	    value_kinds: [text, categorical]
package taxonomy

import (
	"errors"
	"fmt"
	"os"

	"github.com/persona/backend/internal/domain/person"
	"github.com/persona/backend/internal/domain/shared/valueobject"
	"gopkg.in/yaml.v3"
)

// ErrInvalidFile is returned when a taxonomy file is malformed
var ErrInvalidFile = errors.New("invalid taxonomy file")

// File is the on-disk taxonomy format
type File struct {
	Kinds []KindEntry `yaml:"kinds"`
}

// KindEntry declares one custom attribute kind
type KindEntry struct {
	Kind        string   `yaml:"kind"`
	ValueKinds  []string `yaml:"value_kinds"`
	Dimension   string   `yaml:"dimension,omitempty"`
	Scheme      string   `yaml:"scheme,omitempty"`
	Description string   `yaml:"description,omitempty"`
}

// LoadFile reads path and registers its kinds on a taxonomy holding the
// built-in kinds. An empty path yields the built-in taxonomy.
func LoadFile(path string) (*person.Taxonomy, error) {
	if path == "" {
		return person.NewTaxonomy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses YAML data and registers its kinds
func LoadBytes(data []byte) (*person.Taxonomy, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}

	t := person.NewTaxonomy()
	if err := f.Register(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Register adds every entry of f to t as a custom kind
func (f File) Register(t *person.Taxonomy) error {
	for i, entry := range f.Kinds {
		spec, err := entry.spec()
		if err != nil {
			return fmt.Errorf("%w: kinds[%d]: %v", ErrInvalidFile, i, err)
		}
		if err := t.RegisterCustom(spec); err != nil {
			return fmt.Errorf("%w: kinds[%d]: %v", ErrInvalidFile, i, err)
		}
	}
	return nil
}

func (e KindEntry) spec() (person.KindSpec, error) {
	spec := person.KindSpec{
		Type:        person.AttributeType{Category: person.CategoryCustom, Kind: person.Kind(e.Kind)},
		Scheme:      e.Scheme,
		Description: e.Description,
	}
	for _, vk := range e.ValueKinds {
		spec.ValueKinds = append(spec.ValueKinds, person.ValueKind(vk))
	}

	if e.Dimension != "" {
		if !spec.Accepts(person.ValueKindMeasurement) {
			return spec, fmt.Errorf("dimension %q set on a kind that takes no measurements", e.Dimension)
		}
		switch d := valueobject.Dimension(e.Dimension); d {
		case valueobject.DimensionLength, valueobject.DimensionMass, valueobject.DimensionVolume:
			spec.Dimension = d
		default:
			return spec, fmt.Errorf("unknown dimension %q", e.Dimension)
		}
	}
	return spec, nil
}
