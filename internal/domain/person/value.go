package person

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/persona/backend/internal/domain/shared"
	"github.com/persona/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// ValueKind names an attribute value variant
type ValueKind string

const (
	ValueKindText          ValueKind = "text"
	ValueKindNumeric       ValueKind = "numeric"
	ValueKindBoolean       ValueKind = "boolean"
	ValueKindDate          ValueKind = "date"
	ValueKindDateTime      ValueKind = "date_time"
	ValueKindMeasurement   ValueKind = "measurement"
	ValueKindBiologicalSex ValueKind = "biological_sex"
	ValueKindBloodType     ValueKind = "blood_type"
	ValueKindCategorical   ValueKind = "categorical"
	ValueKindStructured    ValueKind = "structured"
)

// IsValid returns true if k is a known value kind
func (k ValueKind) IsValid() bool {
	switch k {
	case ValueKindText, ValueKindNumeric, ValueKindBoolean, ValueKindDate, ValueKindDateTime,
		ValueKindMeasurement, ValueKindBiologicalSex, ValueKindBloodType, ValueKindCategorical, ValueKindStructured:
		return true
	}
	return false
}

// Value is an attribute value. The set of implementations is closed.
type Value interface {
	Kind() ValueKind
	// Equal reports variant-specific equality
	Equal(other Value) bool
	// Validate checks the value is well formed on its own terms
	Validate() error
	String() string
	isValue()
}

// TextValue is free text
type TextValue struct {
	Text string `json:"text"`
}

func (TextValue) Kind() ValueKind { return ValueKindText }
func (TextValue) isValue()        {}
func (v TextValue) String() string { return v.Text }

func (v TextValue) Equal(other Value) bool {
	o, ok := other.(TextValue)
	return ok && o.Text == v.Text
}

func (v TextValue) Validate() error {
	if strings.TrimSpace(v.Text) == "" {
		return shared.NewValidationError("value.text", "must not be empty")
	}
	return nil
}

// NumericValue is an exact decimal number
type NumericValue struct {
	Number decimal.Decimal `json:"number"`
}

func (NumericValue) Kind() ValueKind  { return ValueKindNumeric }
func (NumericValue) isValue()         {}
func (NumericValue) Validate() error  { return nil }
func (v NumericValue) String() string { return v.Number.String() }

func (v NumericValue) Equal(other Value) bool {
	o, ok := other.(NumericValue)
	return ok && o.Number.Equal(v.Number)
}

// BooleanValue is a yes/no fact
type BooleanValue struct {
	Bool bool `json:"bool"`
}

func (BooleanValue) Kind() ValueKind  { return ValueKindBoolean }
func (BooleanValue) isValue()         {}
func (BooleanValue) Validate() error  { return nil }
func (v BooleanValue) String() string { return fmt.Sprintf("%t", v.Bool) }

func (v BooleanValue) Equal(other Value) bool {
	o, ok := other.(BooleanValue)
	return ok && o.Bool == v.Bool
}

// DatePrecision is how much of a calendar date is known
type DatePrecision string

const (
	PrecisionYear  DatePrecision = "year"
	PrecisionMonth DatePrecision = "month"
	PrecisionDay   DatePrecision = "day"
)

// DateValue is a calendar date known to year, month or day precision
type DateValue struct {
	Year      int           `json:"year"`
	Month     time.Month    `json:"month,omitempty"`
	Day       int           `json:"day,omitempty"`
	Precision DatePrecision `json:"precision"`
}

// NewDate returns a day-precision date
func NewDate(year int, month time.Month, day int) DateValue {
	return DateValue{Year: year, Month: month, Day: day, Precision: PrecisionDay}
}

// DateOf returns the day-precision UTC date of t
func DateOf(t time.Time) DateValue {
	y, m, d := t.UTC().Date()
	return NewDate(y, m, d)
}

func (DateValue) Kind() ValueKind { return ValueKindDate }
func (DateValue) isValue()        {}

func (v DateValue) Equal(other Value) bool {
	o, ok := other.(DateValue)
	return ok && o == v
}

func (v DateValue) Validate() error {
	switch v.Precision {
	case PrecisionYear:
		if v.Month != 0 || v.Day != 0 {
			return shared.NewValidationError("value.precision", "year precision carries no month or day")
		}
	case PrecisionMonth:
		if v.Month < time.January || v.Month > time.December || v.Day != 0 {
			return shared.NewValidationError("value.month", "month precision needs a month and no day")
		}
	case PrecisionDay:
		t := v.Time()
		if t.Year() != v.Year || t.Month() != v.Month || t.Day() != v.Day {
			return shared.NewValidationError("value.day", "not a calendar date")
		}
	default:
		return shared.NewValidationError("value.precision", fmt.Sprintf("unknown precision %q", v.Precision))
	}
	if v.Year < 1 || v.Year > 9999 {
		return shared.NewValidationError("value.year", "out of range")
	}
	return nil
}

// Time returns midnight UTC on the first instant the date covers
func (v DateValue) Time() time.Time {
	month, day := v.Month, v.Day
	if month == 0 {
		month = time.January
	}
	if day == 0 {
		day = 1
	}
	return time.Date(v.Year, month, day, 0, 0, 0, 0, time.UTC)
}

func (v DateValue) String() string {
	switch v.Precision {
	case PrecisionYear:
		return fmt.Sprintf("%04d", v.Year)
	case PrecisionMonth:
		return fmt.Sprintf("%04d-%02d", v.Year, int(v.Month))
	}
	return fmt.Sprintf("%04d-%02d-%02d", v.Year, int(v.Month), v.Day)
}

// DateTimeValue is an instant
type DateTimeValue struct {
	At time.Time `json:"at"`
}

func (DateTimeValue) Kind() ValueKind  { return ValueKindDateTime }
func (DateTimeValue) isValue()         {}
func (v DateTimeValue) String() string { return v.At.UTC().Format(time.RFC3339) }

func (v DateTimeValue) Equal(other Value) bool {
	o, ok := other.(DateTimeValue)
	return ok && o.At.Equal(v.At)
}

func (v DateTimeValue) Validate() error {
	if v.At.IsZero() {
		return shared.NewValidationError("value.at", "must be set")
	}
	return nil
}

// MeasurementValue is an amount with a unit. Two measurements are equal when
// they describe the same quantity, whatever units they were written in.
type MeasurementValue struct {
	Amount decimal.Decimal
	Unit   valueobject.Unit
}

// NewMeasurement resolves unitCode against the standard unit catalog
func NewMeasurement(amount decimal.Decimal, unitCode string) (MeasurementValue, error) {
	u, err := valueobject.StandardUnits().Lookup(unitCode)
	if err != nil {
		return MeasurementValue{}, shared.NewValidationError("value.unit", err.Error())
	}
	return MeasurementValue{Amount: amount, Unit: u}, nil
}

func (MeasurementValue) Kind() ValueKind { return ValueKindMeasurement }
func (MeasurementValue) isValue()        {}

func (v MeasurementValue) String() string {
	return v.Amount.String() + " " + v.Unit.Code()
}

// Normalized returns the amount expressed in the base unit of its dimension
func (v MeasurementValue) Normalized() decimal.Decimal {
	return v.Unit.ConvertToBase(v.Amount)
}

func (v MeasurementValue) Equal(other Value) bool {
	o, ok := other.(MeasurementValue)
	return ok && o.Unit.Dimension() == v.Unit.Dimension() && o.Normalized().Equal(v.Normalized())
}

func (v MeasurementValue) Validate() error {
	if v.Unit.IsZero() {
		return shared.NewValidationError("value.unit", "must be set")
	}
	return nil
}

type measurementJSON struct {
	Amount decimal.Decimal `json:"amount"`
	Unit   string          `json:"unit"`
}

// MarshalJSON encodes the unit by code
func (v MeasurementValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(measurementJSON{Amount: v.Amount, Unit: v.Unit.Code()})
}

// UnmarshalJSON resolves the unit code against the standard catalog
func (v *MeasurementValue) UnmarshalJSON(data []byte) error {
	var raw measurementJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m, err := NewMeasurement(raw.Amount, raw.Unit)
	if err != nil {
		return err
	}
	*v = m
	return nil
}

// Sex is a biological sex category
type Sex string

const (
	SexFemale   Sex = "female"
	SexMale     Sex = "male"
	SexIntersex Sex = "intersex"
)

// BiologicalSexValue records biological sex
type BiologicalSexValue struct {
	Sex Sex `json:"sex"`
}

func (BiologicalSexValue) Kind() ValueKind  { return ValueKindBiologicalSex }
func (BiologicalSexValue) isValue()         {}
func (v BiologicalSexValue) String() string { return string(v.Sex) }

func (v BiologicalSexValue) Equal(other Value) bool {
	o, ok := other.(BiologicalSexValue)
	return ok && o.Sex == v.Sex
}

func (v BiologicalSexValue) Validate() error {
	switch v.Sex {
	case SexFemale, SexMale, SexIntersex:
		return nil
	}
	return shared.NewValidationError("value.sex", fmt.Sprintf("unknown biological sex %q", v.Sex))
}

// BloodTypeValue is an ABO group with Rh factor
type BloodTypeValue struct {
	Group string `json:"group"`
	Rh    string `json:"rh"`
}

// ParseBloodType parses notation such as "AB-" or "O+"
func ParseBloodType(s string) (BloodTypeValue, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if len(s) < 2 {
		return BloodTypeValue{}, shared.NewValidationError("value", fmt.Sprintf("invalid blood type %q", s))
	}
	v := BloodTypeValue{Group: s[:len(s)-1], Rh: s[len(s)-1:]}
	if err := v.Validate(); err != nil {
		return BloodTypeValue{}, err
	}
	return v, nil
}

func (BloodTypeValue) Kind() ValueKind  { return ValueKindBloodType }
func (BloodTypeValue) isValue()         {}
func (v BloodTypeValue) String() string { return v.Group + v.Rh }

func (v BloodTypeValue) Equal(other Value) bool {
	o, ok := other.(BloodTypeValue)
	return ok && o == v
}

func (v BloodTypeValue) Validate() error {
	switch v.Group {
	case "A", "B", "AB", "O":
	default:
		return shared.NewValidationError("value.group", fmt.Sprintf("unknown ABO group %q", v.Group))
	}
	if v.Rh != "+" && v.Rh != "-" {
		return shared.NewValidationError("value.rh", fmt.Sprintf("unknown Rh factor %q", v.Rh))
	}
	return nil
}

// CategoricalValue is a code drawn from a named coding scheme
type CategoricalValue struct {
	Scheme string `json:"scheme,omitempty"`
	Code   string `json:"code"`
	Label  string `json:"label,omitempty"`
}

func (CategoricalValue) Kind() ValueKind { return ValueKindCategorical }
func (CategoricalValue) isValue()        {}

func (v CategoricalValue) String() string {
	if v.Label != "" {
		return v.Label
	}
	return v.Code
}

// Equal compares scheme and code; the label is presentation only
func (v CategoricalValue) Equal(other Value) bool {
	o, ok := other.(CategoricalValue)
	return ok && strings.EqualFold(o.Scheme, v.Scheme) && strings.EqualFold(o.Code, v.Code)
}

func (v CategoricalValue) Validate() error {
	if strings.TrimSpace(v.Code) == "" {
		return shared.NewValidationError("value.code", "must not be empty")
	}
	return nil
}

// StructuredValue is an opaque JSON payload
type StructuredValue struct {
	Payload json.RawMessage `json:"payload"`
}

func (StructuredValue) Kind() ValueKind  { return ValueKindStructured }
func (StructuredValue) isValue()         {}
func (v StructuredValue) String() string { return string(v.Payload) }

// Equal compares payloads semantically, ignoring formatting and key order
func (v StructuredValue) Equal(other Value) bool {
	o, ok := other.(StructuredValue)
	if !ok {
		return false
	}
	if bytes.Equal(o.Payload, v.Payload) {
		return true
	}
	var a, b any
	if json.Unmarshal(v.Payload, &a) != nil || json.Unmarshal(o.Payload, &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func (v StructuredValue) Validate() error {
	if len(v.Payload) == 0 || !json.Valid(v.Payload) {
		return shared.NewValidationError("value.payload", "must be valid JSON")
	}
	return nil
}

// Compare orders two values of the same variant. ok is false when the values
// have no natural order (different variants, different dimensions, or
// unordered variants such as text codes).
func Compare(a, b Value) (result int, ok bool) {
	switch x := a.(type) {
	case NumericValue:
		if y, ok := b.(NumericValue); ok {
			return x.Number.Cmp(y.Number), true
		}
	case DateValue:
		if y, ok := b.(DateValue); ok {
			return x.Time().Compare(y.Time()), true
		}
	case DateTimeValue:
		if y, ok := b.(DateTimeValue); ok {
			return x.At.Compare(y.At), true
		}
	case MeasurementValue:
		if y, ok := b.(MeasurementValue); ok && x.Unit.Dimension() == y.Unit.Dimension() {
			return x.Normalized().Cmp(y.Normalized()), true
		}
	case TextValue:
		if y, ok := b.(TextValue); ok {
			return strings.Compare(x.Text, y.Text), true
		}
	}
	return 0, false
}

type valueEnvelope struct {
	Kind ValueKind       `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// MarshalValue encodes v with its variant tag
func MarshalValue(v Value) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %s value: %w", v.Kind(), err)
	}
	return json.Marshal(valueEnvelope{Kind: v.Kind(), Data: data})
}

// UnmarshalValue decodes a value produced by MarshalValue
func UnmarshalValue(data []byte) (Value, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode value envelope: %w", err)
	}

	var (
		v   Value
		err error
	)
	switch env.Kind {
	case ValueKindText:
		v, err = decodeAs[TextValue](env.Data)
	case ValueKindNumeric:
		v, err = decodeAs[NumericValue](env.Data)
	case ValueKindBoolean:
		v, err = decodeAs[BooleanValue](env.Data)
	case ValueKindDate:
		v, err = decodeAs[DateValue](env.Data)
	case ValueKindDateTime:
		v, err = decodeAs[DateTimeValue](env.Data)
	case ValueKindMeasurement:
		v, err = decodeAs[MeasurementValue](env.Data)
	case ValueKindBiologicalSex:
		v, err = decodeAs[BiologicalSexValue](env.Data)
	case ValueKindBloodType:
		v, err = decodeAs[BloodTypeValue](env.Data)
	case ValueKindCategorical:
		v, err = decodeAs[CategoricalValue](env.Data)
	case ValueKindStructured:
		v, err = decodeAs[StructuredValue](env.Data)
	default:
		return nil, fmt.Errorf("unknown value kind %q", env.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("decode %s value: %w", env.Kind, err)
	}
	return v, nil
}

func decodeAs[T Value](data json.RawMessage) (Value, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}
