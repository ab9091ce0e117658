// Package quantity has the decimal helpers shared by the receipt and
// purchase flows.
package quantity

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Epsilon is how far a quantity may sit from the net weight and still count
// as the untouched default.
var Epsilon = decimal.RequireFromString("0.005")

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Near reports whether a and b differ by at most Epsilon.
func Near(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Epsilon)
}

type state uint8

const (
	absent state = iota
	cleared
	present
)

// Optional is a numeric form field that tells apart "not sent", "explicitly
// cleared" and "set to a value". The zero value is absent. In JSON, a missing
// key is absent, null or "" is cleared, and a number or numeric string is a value.
type Optional struct {
	state state
	value decimal.Decimal
}

func Absent() Optional              { return Optional{} }
func Cleared() Optional             { return Optional{state: cleared} }
func Of(d decimal.Decimal) Optional { return Optional{state: present, value: d} }
func (o Optional) IsAbsent() bool   { return o.state == absent }
func (o Optional) IsCleared() bool  { return o.state == cleared }

// Value returns the value and whether one was given.
func (o Optional) Value() (decimal.Decimal, bool) {
	return o.value, o.state == present
}

func (o *Optional) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) || bytes.Equal(b, []byte(`""`)) {
		*o = Cleared()
		return nil
	}
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return err
	}
	*o = Of(d)
	return nil
}

func (o Optional) MarshalJSON() ([]byte, error) {
	if v, ok := o.Value(); ok {
		return json.Marshal(v)
	}
	return []byte("null"), nil
}
