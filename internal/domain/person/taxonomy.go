package person

import (
	"fmt"
	"sort"
	"strings"

	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/domain/shared/valueobject"
)

// KindSpec describes which values an attribute kind accepts
type KindSpec struct {
	Type        AttributeType
	ValueKinds  []ValueKind
	Dimension   valueobject.Dimension // measurement kinds only
	Scheme      string                // categorical kinds with a fixed coding scheme
	Description string
}

// Accepts reports whether values of kind k are allowed
func (s KindSpec) Accepts(k ValueKind) bool {
	for _, vk := range s.ValueKinds {
		if vk == k {
			return true
		}
	}
	return false
}

// Taxonomy is the set of attribute kinds a deployment understands.
// It is built once and passed to the command handler; nothing registers
// into it implicitly.
type Taxonomy struct {
	kinds map[AttributeType]KindSpec
	units *valueobject.UnitCatalog
}

// NewTaxonomy returns a taxonomy holding the built-in kinds
func NewTaxonomy() *Taxonomy {
	t := &Taxonomy{
		kinds: make(map[AttributeType]KindSpec),
		units: valueobject.StandardUnits(),
	}

	coded := []ValueKind{ValueKindText, ValueKindCategorical}
	clinical := []ValueKind{ValueKindText, ValueKindCategorical, ValueKindStructured}

	for _, s := range []KindSpec{
		{Type: BirthDateTime, ValueKinds: []ValueKind{ValueKindDateTime}, Description: "Instant of birth"},
		{Type: BirthDate, ValueKinds: []ValueKind{ValueKindDate}, Description: "Calendar date of birth"},
		{Type: BirthPlace, ValueKinds: coded, Description: "Place of birth"},
		{Type: NationalID, ValueKinds: coded, Description: "National identification number"},
		{Type: Height, ValueKinds: []ValueKind{ValueKindMeasurement}, Dimension: valueobject.DimensionLength},
		{Type: Weight, ValueKinds: []ValueKind{ValueKindMeasurement}, Dimension: valueobject.DimensionMass},
		{Type: EyeColor, ValueKinds: coded},
		{Type: HairColor, ValueKinds: coded},
		{Type: BloodType, ValueKinds: []ValueKind{ValueKindBloodType}},
		{Type: Allergy, ValueKinds: clinical},
		{Type: Condition, ValueKinds: clinical},
		{Type: Medication, ValueKinds: clinical},
		{Type: BiologicalSex, ValueKinds: []ValueKind{ValueKindBiologicalSex}},
		{Type: Nationality, ValueKinds: coded, Scheme: "ISO-3166-1"},
		{Type: PrimaryLanguage, ValueKinds: coded, Scheme: "ISO-639-1"},
		{Type: MaritalStatus, ValueKinds: coded},
	} {
		t.kinds[s.Type] = s
	}
	return t
}

// RegisterCustom adds a custom kind. Only the custom category is open.
func (t *Taxonomy) RegisterCustom(spec KindSpec) error {
	if spec.Type.Category != CategoryCustom {
		return shared.NewValidationError("category", "only custom kinds can be registered")
	}
	kind := strings.TrimSpace(string(spec.Type.Kind))
	if kind == "" {
		return shared.NewValidationError("kind", "must not be empty")
	}
	spec.Type.Kind = Kind(kind)
	if _, exists := t.kinds[spec.Type]; exists {
		return shared.NewValidationError("kind", fmt.Sprintf("%s is already registered", spec.Type))
	}
	if len(spec.ValueKinds) == 0 {
		return shared.NewValidationError("value_kinds", "at least one value kind is required")
	}
	for _, vk := range spec.ValueKinds {
		if !vk.IsValid() {
			return shared.NewValidationError("value_kinds", fmt.Sprintf("unknown value kind %q", vk))
		}
	}
	t.kinds[spec.Type] = spec
	return nil
}

// Lookup returns the spec registered for at
func (t *Taxonomy) Lookup(at AttributeType) (KindSpec, bool) {
	s, ok := t.kinds[at]
	return s, ok
}

// Units returns the unit catalog used for measurement values
func (t *Taxonomy) Units() *valueobject.UnitCatalog {
	return t.units
}

// Types returns all registered attribute types ordered by category then kind
func (t *Taxonomy) Types() []AttributeType {
	types := make([]AttributeType, 0, len(t.kinds))
	for at := range t.kinds {
		types = append(types, at)
	}
	order := make(map[Category]int)
	for i, c := range Categories() {
		order[c] = i
	}
	sort.Slice(types, func(i, j int) bool {
		if types[i].Category != types[j].Category {
			return order[types[i].Category] < order[types[j].Category]
		}
		return types[i].Kind < types[j].Kind
	})
	return types
}

// Validate checks that v is acceptable for attribute type at
func (t *Taxonomy) Validate(at AttributeType, v Value) error {
	spec, ok := t.kinds[at]
	if !ok {
		return shared.NewValidationError("attribute_type", fmt.Sprintf("unknown attribute type %s", at))
	}
	if v == nil {
		return shared.NewValidationError("value", "must not be empty")
	}
	if !spec.Accepts(v.Kind()) {
		return shared.NewValidationError("value", fmt.Sprintf("%s does not accept %s values", at, v.Kind()))
	}
	if err := v.Validate(); err != nil {
		return err
	}

	switch val := v.(type) {
	case MeasurementValue:
		if spec.Dimension != "" && val.Unit.Dimension() != spec.Dimension {
			return shared.NewValidationError("value.unit", fmt.Sprintf("%s must be measured in %s units", at, spec.Dimension))
		}
		if !val.Amount.IsPositive() {
			return shared.NewValidationError("value.amount", "must be positive")
		}
	case CategoricalValue:
		if spec.Scheme != "" && val.Scheme != "" && !strings.EqualFold(val.Scheme, spec.Scheme) {
			return shared.NewValidationError("value.scheme", fmt.Sprintf("%s expects scheme %s", at, spec.Scheme))
		}
	}
	return nil
}
