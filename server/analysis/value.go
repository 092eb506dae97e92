package analysis

import (
	"encoding/json"
	"strconv"
)

// Value is a measurement that may be undefined. The zero Value is undefined.
type Value struct {
	v  float64
	ok bool
}

// Some returns a defined Value. Non-finite inputs yield an undefined Value.
func Some(v float64) Value {
	if !finite(v) {
		return Value{}
	}
	return Value{v: v, ok: true}
}

// None returns an undefined Value.
func None() Value {
	return Value{}
}

// Get returns the value and whether it is defined.
func (v Value) Get() (float64, bool) {
	return v.v, v.ok
}

// Defined reports whether the value is present.
func (v Value) Defined() bool {
	return v.ok
}

// Or returns the value, or def when undefined.
func (v Value) Or(def float64) float64 {
	if !v.ok {
		return def
	}
	return v.v
}

// Sub returns v - o, undefined if either operand is undefined.
func (v Value) Sub(o Value) Value {
	if !v.ok || !o.ok {
		return None()
	}
	return Some(v.v - o.v)
}

// String formats the value with two decimals, or "n/a" when undefined.
func (v Value) String() string {
	if !v.ok {
		return "n/a"
	}
	return strconv.FormatFloat(v.v, 'f', 2, 64)
}

// MarshalJSON encodes undefined values as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts a number or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = None()
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// FrameRef refers to a frame index that may be unresolved.
type FrameRef struct {
	Index int
	OK    bool
}

func frameAt(i int) FrameRef {
	return FrameRef{Index: i, OK: true}
}

// MarshalJSON encodes unresolved references as null.
func (r FrameRef) MarshalJSON() ([]byte, error) {
	if !r.OK {
		return []byte("null"), nil
	}
	return json.Marshal(r.Index)
}

// UnmarshalJSON accepts an integer or null.
func (r *FrameRef) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = FrameRef{}
		return nil
	}
	var i int
	if err := json.Unmarshal(data, &i); err != nil {
		return err
	}
	*r = frameAt(i)
	return nil
}

// String formats the index, or "n/a" when unresolved.
func (r FrameRef) String() string {
	if !r.OK {
		return "n/a"
	}
	return strconv.Itoa(r.Index)
}
