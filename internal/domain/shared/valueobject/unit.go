package valueobject

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Dimension groups units that can be converted into one another.
type Dimension string

const (
	DimensionLength Dimension = "length"
	DimensionMass   Dimension = "mass"
	DimensionVolume Dimension = "volume"
)

// Unit is a value object representing a unit of measurement.
// It is immutable. A Unit has a code, a dimension and the number of base
// units of that dimension that equal one of it.
type Unit struct {
	code           string
	name           string
	dimension      Dimension
	conversionRate decimal.Decimal
}

// Common unit codes. The base unit of each dimension has rate 1.
const (
	UnitCodeM  = "M"
	UnitCodeCM = "CM"
	UnitCodeMM = "MM"
	UnitCodeIN = "IN"
	UnitCodeFT = "FT"
	UnitCodeKG = "KG"
	UnitCodeG  = "G"
	UnitCodeLB = "LB"
	UnitCodeOZ = "OZ"
	UnitCodeL  = "L"
	UnitCodeML = "ML"
)

var (
	ErrUnknownUnit           = errors.New("unknown unit")
	ErrIncompatibleUnits     = errors.New("units measure different dimensions")
	ErrInvalidUnitDefinition = errors.New("invalid unit definition")
)

// NewUnit creates a new Unit. Returns error if the code or name is empty or
// the conversion rate is not positive.
func NewUnit(code, name string, dimension Dimension, conversionRate decimal.Decimal) (Unit, error) {
	code = strings.TrimSpace(strings.ToUpper(code))
	name = strings.TrimSpace(name)

	if code == "" || len(code) > 20 {
		return Unit{}, fmt.Errorf("%w: unit code must be 1-20 characters", ErrInvalidUnitDefinition)
	}
	if name == "" {
		return Unit{}, fmt.Errorf("%w: unit name cannot be empty", ErrInvalidUnitDefinition)
	}
	if dimension == "" {
		return Unit{}, fmt.Errorf("%w: unit dimension cannot be empty", ErrInvalidUnitDefinition)
	}
	if !conversionRate.IsPositive() {
		return Unit{}, fmt.Errorf("%w: conversion rate must be positive", ErrInvalidUnitDefinition)
	}

	return Unit{code: code, name: name, dimension: dimension, conversionRate: conversionRate}, nil
}

// MustNewUnit creates a Unit and panics on error.
func MustNewUnit(code, name string, dimension Dimension, rate string) Unit {
	u, err := NewUnit(code, name, dimension, decimal.RequireFromString(rate))
	if err != nil {
		panic(err)
	}
	return u
}

// Code returns the unit code (normalized to uppercase).
func (u Unit) Code() string { return u.code }

// Name returns the unit name.
func (u Unit) Name() string { return u.name }

// Dimension returns what the unit measures.
func (u Unit) Dimension() Dimension { return u.dimension }

// ConversionRate returns how many base units equal one of this unit.
func (u Unit) ConversionRate() decimal.Decimal { return u.conversionRate }

// IsZero returns true if this is a zero-value Unit.
func (u Unit) IsZero() bool { return u.code == "" }

// ConvertToBase converts a quantity from this unit to the base unit of its dimension.
func (u Unit) ConvertToBase(quantity decimal.Decimal) decimal.Decimal {
	return quantity.Mul(u.conversionRate)
}

// ConvertTo converts a quantity from this unit to target.
func (u Unit) ConvertTo(quantity decimal.Decimal, target Unit) (decimal.Decimal, error) {
	if u.dimension != target.dimension {
		return decimal.Zero, fmt.Errorf("%w: %s and %s", ErrIncompatibleUnits, u.code, target.code)
	}
	return u.ConvertToBase(quantity).Div(target.conversionRate), nil
}

// Equals returns true if both Units have the same code.
func (u Unit) Equals(other Unit) bool { return u.code == other.code }

// String returns the unit code.
func (u Unit) String() string { return u.code }

// UnitCatalog resolves unit codes. The zero value is empty; use
// StandardUnits for the built-in set.
type UnitCatalog struct {
	units map[string]Unit
}

// NewUnitCatalog creates a catalog holding units
func NewUnitCatalog(units ...Unit) *UnitCatalog {
	c := &UnitCatalog{units: make(map[string]Unit, len(units))}
	for _, u := range units {
		c.units[u.code] = u
	}
	return c
}

// StandardUnits returns the catalog of metric and imperial body-measurement units.
func StandardUnits() *UnitCatalog {
	return NewUnitCatalog(
		MustNewUnit(UnitCodeM, "Meter", DimensionLength, "1"),
		MustNewUnit(UnitCodeCM, "Centimeter", DimensionLength, "0.01"),
		MustNewUnit(UnitCodeMM, "Millimeter", DimensionLength, "0.001"),
		MustNewUnit(UnitCodeIN, "Inch", DimensionLength, "0.0254"),
		MustNewUnit(UnitCodeFT, "Foot", DimensionLength, "0.3048"),
		MustNewUnit(UnitCodeKG, "Kilogram", DimensionMass, "1"),
		MustNewUnit(UnitCodeG, "Gram", DimensionMass, "0.001"),
		MustNewUnit(UnitCodeLB, "Pound", DimensionMass, "0.45359237"),
		MustNewUnit(UnitCodeOZ, "Ounce", DimensionMass, "0.028349523125"),
		MustNewUnit(UnitCodeL, "Liter", DimensionVolume, "1"),
		MustNewUnit(UnitCodeML, "Milliliter", DimensionVolume, "0.001"),
	)
}

// Lookup returns the unit registered under code (case-insensitive).
func (c *UnitCatalog) Lookup(code string) (Unit, error) {
	u, ok := c.units[strings.TrimSpace(strings.ToUpper(code))]
	if !ok {
		return Unit{}, fmt.Errorf("%w: %q", ErrUnknownUnit, code)
	}
	return u, nil
}

// Codes returns the registered unit codes in sorted order.
func (c *UnitCatalog) Codes() []string {
	codes := make([]string, 0, len(c.units))
	for code := range c.units {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}
