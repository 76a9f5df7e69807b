package person

import (
	"fmt"
	"strings"

	"github.com/persona/backend/internal/domain/shared"
)

// Category groups attribute kinds
type Category string

const (
	CategoryIdentifying Category = "identifying"
	CategoryPhysical    Category = "physical"
	CategoryHealthcare  Category = "healthcare"
	CategoryDemographic Category = "demographic"
	CategoryCustom      Category = "custom"
)

// Categories returns all categories in display order
func Categories() []Category {
	return []Category{
		CategoryIdentifying,
		CategoryPhysical,
		CategoryHealthcare,
		CategoryDemographic,
		CategoryCustom,
	}
}

// IsValid returns true if c is a known category
func (c Category) IsValid() bool {
	switch c {
	case CategoryIdentifying, CategoryPhysical, CategoryHealthcare, CategoryDemographic, CategoryCustom:
		return true
	}
	return false
}

// Kind is a concrete attribute kind within a category
type Kind string

const (
	KindBirthDateTime Kind = "birth_date_time"
	KindBirthDate     Kind = "birth_date"
	KindBirthPlace    Kind = "birth_place"
	KindNationalID    Kind = "national_id"

	KindHeight    Kind = "height"
	KindWeight    Kind = "weight"
	KindEyeColor  Kind = "eye_color"
	KindHairColor Kind = "hair_color"

	KindBloodType  Kind = "blood_type"
	KindAllergy    Kind = "allergy"
	KindCondition  Kind = "condition"
	KindMedication Kind = "medication"

	KindBiologicalSex   Kind = "biological_sex"
	KindNationality     Kind = "nationality"
	KindPrimaryLanguage Kind = "primary_language"
	KindMaritalStatus   Kind = "marital_status"
)

// AttributeType identifies an attribute by (category, kind)
type AttributeType struct {
	Category Category `json:"category"`
	Kind     Kind     `json:"kind"`
}

// Built-in attribute types
var (
	BirthDateTime = AttributeType{CategoryIdentifying, KindBirthDateTime}
	BirthDate     = AttributeType{CategoryIdentifying, KindBirthDate}
	BirthPlace    = AttributeType{CategoryIdentifying, KindBirthPlace}
	NationalID    = AttributeType{CategoryIdentifying, KindNationalID}

	Height    = AttributeType{CategoryPhysical, KindHeight}
	Weight    = AttributeType{CategoryPhysical, KindWeight}
	EyeColor  = AttributeType{CategoryPhysical, KindEyeColor}
	HairColor = AttributeType{CategoryPhysical, KindHairColor}

	BloodType  = AttributeType{CategoryHealthcare, KindBloodType}
	Allergy    = AttributeType{CategoryHealthcare, KindAllergy}
	Condition  = AttributeType{CategoryHealthcare, KindCondition}
	Medication = AttributeType{CategoryHealthcare, KindMedication}

	BiologicalSex   = AttributeType{CategoryDemographic, KindBiologicalSex}
	Nationality     = AttributeType{CategoryDemographic, KindNationality}
	PrimaryLanguage = AttributeType{CategoryDemographic, KindPrimaryLanguage}
	MaritalStatus   = AttributeType{CategoryDemographic, KindMaritalStatus}
)

// CustomType returns the attribute type for a custom kind
func CustomType(kind Kind) AttributeType {
	return AttributeType{Category: CategoryCustom, Kind: kind}
}

// String returns "category.kind"
func (t AttributeType) String() string {
	return string(t.Category) + "." + string(t.Kind)
}

// IsZero returns true for the zero value
func (t AttributeType) IsZero() bool {
	return t.Category == "" && t.Kind == ""
}

// ParseAttributeType parses "category.kind"
func ParseAttributeType(s string) (AttributeType, error) {
	category, kind, ok := strings.Cut(strings.TrimSpace(strings.ToLower(s)), ".")
	if !ok || kind == "" {
		return AttributeType{}, shared.NewValidationError("attribute_type", fmt.Sprintf("%q is not of the form category.kind", s))
	}
	t := AttributeType{Category: Category(category), Kind: Kind(kind)}
	if !t.Category.IsValid() {
		return AttributeType{}, shared.NewValidationError("attribute_type", fmt.Sprintf("unknown category %q", category))
	}
	return t, nil
}
