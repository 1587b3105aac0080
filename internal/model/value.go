// Package model defines the tables and values shared by the loaders, the join stage and the renderers.
package model

import (
	"math"
	"strconv"
	"strings"
)

// ValueKind identifies what a Value holds.
type ValueKind string

const (
	KindNull   ValueKind = "null"
	KindString ValueKind = "string"
	KindNumber ValueKind = "number"
)

// Value is a nullable table cell.
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

// Null returns the null value.
func Null() Value { return Value{kind: KindNull} }

// String returns a text value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric value. NaN is treated as null.
func Number(f float64) Value {
	if math.IsNaN(f) {
		return Null()
	}
	return Value{kind: KindNumber, num: f}
}

// ParseValue types a raw cell: blank is null, anything strconv accepts as a float is a
// number, everything else is text.
func ParseValue(raw string) Value {
	s := strings.TrimSpace(strings.TrimRight(raw, "\x00"))
	if s == "" {
		return Null()
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return String(s)
}

// Kind reports what the value holds. The zero Value is null.
func (v Value) Kind() ValueKind {
	if v.kind == "" {
		return KindNull
	}
	return v.kind
}

// IsNull reports whether the value is missing.
func (v Value) IsNull() bool { return v.Kind() == KindNull }

// Float returns the numeric value, if any.
func (v Value) Float() (float64, bool) {
	if v.Kind() != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Text renders the value for display and for equality predicates. Null renders as "".
func (v Value) Text() string {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Any returns the value as a plain Go value (nil, string or float64) for encoders and drivers.
func (v Value) Any() any {
	switch v.Kind() {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	default:
		return nil
	}
}

// Row is one table record, aligned with the owning table's columns.
type Row []Value
