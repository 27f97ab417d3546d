package db

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"unicode/utf8"
)

// FieldType is the storage type of a model field. The numeric values are
// part of the module ABI and must not be reordered.
type FieldType uint8

const (
	FieldUnknown FieldType = iota
	FieldU8
	FieldI8
	FieldU16
	FieldI16
	FieldF32
	FieldU32
	FieldI32
	FieldF64
	FieldU64
	FieldI64
	FieldBool
	FieldString
	FieldArray
	FieldEnum
)

var fieldTypeNames = [...]string{
	FieldUnknown: "unknown",
	FieldU8:      "u8",
	FieldI8:      "i8",
	FieldU16:     "u16",
	FieldI16:     "i16",
	FieldF32:     "f32",
	FieldU32:     "u32",
	FieldI32:     "i32",
	FieldF64:     "f64",
	FieldU64:     "u64",
	FieldI64:     "i64",
	FieldBool:    "bool",
	FieldString:  "string",
	FieldArray:   "array",
	FieldEnum:    "enum",
}

func (t FieldType) String() string {
	if int(t) < len(fieldTypeNames) {
		return fieldTypeNames[t]
	}
	return fmt.Sprintf("FieldType(%d)", uint8(t))
}

// FieldMeta describes one model field. Length bounds strings (in runes) and
// arrays when non-zero.
type FieldMeta struct {
	Type       FieldType `json:"type"`
	Length     int       `json:"length,omitempty"`
	Optional   bool      `json:"optional,omitempty"`
	EnumValues []string  `json:"enum_values,omitempty"`
}

// Field is a named FieldMeta.
type Field struct {
	Name string    `json:"name"`
	Meta FieldMeta `json:"meta"`
}

type intRange struct {
	min, max float64
}

var integerRanges = map[FieldType]intRange{
	FieldU8:  {0, math.MaxUint8},
	FieldI8:  {math.MinInt8, math.MaxInt8},
	FieldU16: {0, math.MaxUint16},
	FieldI16: {math.MinInt16, math.MaxInt16},
	FieldU32: {0, math.MaxUint32},
	FieldI32: {math.MinInt32, math.MaxInt32},
	FieldU64: {0, math.MaxUint64},
	FieldI64: {math.MinInt64, math.MaxInt64},
}

// check returns a reason when value does not fit the field.
func (m FieldMeta) check(value any) string {
	switch m.Type {
	case FieldUnknown:
		return ""

	case FieldBool:
		if _, ok := value.(bool); !ok {
			return "expected bool"
		}

	case FieldString:
		s, ok := value.(string)
		if !ok {
			return "expected string"
		}
		if m.Length > 0 && utf8.RuneCountInString(s) > m.Length {
			return fmt.Sprintf("longer than %d characters", m.Length)
		}

	case FieldArray:
		items, ok := value.([]any)
		if !ok {
			return "expected array"
		}
		if m.Length > 0 && len(items) > m.Length {
			return fmt.Sprintf("more than %d items", m.Length)
		}

	case FieldEnum:
		s, ok := value.(string)
		if !ok {
			return "expected string"
		}
		if !slices.Contains(m.EnumValues, s) {
			return fmt.Sprintf("value must be one of: %v", m.EnumValues)
		}

	case FieldF32, FieldF64:
		n, ok := toFloat(value)
		if !ok {
			return "expected " + m.Type.String()
		}
		if m.Type == FieldF32 && math.Abs(n) > math.MaxFloat32 {
			return "out of f32 range"
		}

	default:
		n, ok := toFloat(value)
		if !ok || n != math.Trunc(n) {
			return "expected " + m.Type.String()
		}
		bounds := integerRanges[m.Type]
		if n < bounds.min || n > bounds.max {
			return "out of " + m.Type.String() + " range"
		}
	}
	return ""
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
