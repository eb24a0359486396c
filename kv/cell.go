package kv

import (
	"fmt"

	"github.com/eau2/eau2/codec"
)

// CellType is the tag discriminating a Cell's variant.
type CellType byte

const (
	// TypeMissing is the tag of a cell that has never been assigned.
	TypeMissing CellType = 'U'
	TypeInt     CellType = 'I'
	TypeBool    CellType = 'B'
	TypeFloat   CellType = 'F'
	TypeString  CellType = 'S'
)

func (t CellType) String() string { return string(rune(t)) }

// Cell is a tagged value with variants Int|Bool|Float|Str|Missing. A cell's
// tag is fixed the first time one of the SetX methods succeeds; subsequent
// SetX calls of a different type are rejected with ErrAssertion rather than
// silently overwriting the tag (SPEC_FULL.md §9, fixing the source's
// assignment-instead-of-comparison bug in the type guard).
//
// Reading a Missing cell via any GetX method returns the zero value for
// that type and does NOT mutate the cell: there is no latch-on-read here,
// unlike the original C++ (SPEC_FULL.md §9, second open question).
type Cell struct {
	tag CellType
	i   int32
	b   bool
	f   float32
	s   string
}

// MissingCell returns a freshly unassigned cell.
func MissingCell() Cell { return Cell{tag: TypeMissing} }

// IntCell returns a cell already holding an int.
func IntCell(v int32) Cell { return Cell{tag: TypeInt, i: v} }

// BoolCell returns a cell already holding a bool.
func BoolCell(v bool) Cell { return Cell{tag: TypeBool, b: v} }

// FloatCell returns a cell already holding a float.
func FloatCell(v float32) Cell { return Cell{tag: TypeFloat, f: v} }

// StringCell returns a cell already holding a string.
func StringCell(v string) Cell { return Cell{tag: TypeString, s: v} }

// Type returns the cell's current tag.
func (c Cell) Type() CellType { return c.tag }

// IsMissing reports whether the cell has never been assigned.
func (c Cell) IsMissing() bool { return c.tag == TypeMissing }

// SetInt latches the cell to Int. It is an error to call this on a cell
// whose tag is already something other than Missing or Int.
func (c *Cell) SetInt(v int32) error {
	if c.tag != TypeMissing && c.tag != TypeInt {
		return fmt.Errorf("kv: %w: cell tag is %s, not int", ErrAssertion, c.tag)
	}
	c.tag, c.i = TypeInt, v
	return nil
}

// SetBool latches the cell to Bool.
func (c *Cell) SetBool(v bool) error {
	if c.tag != TypeMissing && c.tag != TypeBool {
		return fmt.Errorf("kv: %w: cell tag is %s, not bool", ErrAssertion, c.tag)
	}
	c.tag, c.b = TypeBool, v
	return nil
}

// SetFloat latches the cell to Float.
func (c *Cell) SetFloat(v float32) error {
	if c.tag != TypeMissing && c.tag != TypeFloat {
		return fmt.Errorf("kv: %w: cell tag is %s, not float", ErrAssertion, c.tag)
	}
	c.tag, c.f = TypeFloat, v
	return nil
}

// SetString latches the cell to Str.
func (c *Cell) SetString(v string) error {
	if c.tag != TypeMissing && c.tag != TypeString {
		return fmt.Errorf("kv: %w: cell tag is %s, not string", ErrAssertion, c.tag)
	}
	c.tag, c.s = TypeString, v
	return nil
}

// Int returns the cell's value, or 0 if the cell is Missing. It is an
// error to call this on a cell of any other non-Int type.
func (c Cell) Int() (int32, error) {
	if c.tag == TypeMissing {
		return 0, nil
	}
	if c.tag != TypeInt {
		return 0, fmt.Errorf("kv: %w: cell tag is %s, not int", ErrTypeMismatch, c.tag)
	}
	return c.i, nil
}

// Bool returns the cell's value, or false if the cell is Missing.
func (c Cell) Bool() (bool, error) {
	if c.tag == TypeMissing {
		return false, nil
	}
	if c.tag != TypeBool {
		return false, fmt.Errorf("kv: %w: cell tag is %s, not bool", ErrTypeMismatch, c.tag)
	}
	return c.b, nil
}

// Float returns the cell's value, or 0 if the cell is Missing.
func (c Cell) Float() (float32, error) {
	if c.tag == TypeMissing {
		return 0, nil
	}
	if c.tag != TypeFloat {
		return 0, fmt.Errorf("kv: %w: cell tag is %s, not float", ErrTypeMismatch, c.tag)
	}
	return c.f, nil
}

// Str returns the cell's value, or "" if the cell is Missing.
func (c Cell) Str() (string, error) {
	if c.tag == TypeMissing {
		return "", nil
	}
	if c.tag != TypeString {
		return "", fmt.Errorf("kv: %w: cell tag is %s, not string", ErrTypeMismatch, c.tag)
	}
	return c.s, nil
}

// Clone returns a deep copy. Cell has no reference fields, so this is
// equivalent to a plain copy, but it documents the contract explicitly
// (SPEC_FULL.md §3: "cells are owned by their containing chunk").
func (c Cell) Clone() Cell { return c }

// Equals reports structural equality.
func (c Cell) Equals(o Cell) bool {
	if c.tag != o.tag {
		return false
	}
	switch c.tag {
	case TypeInt:
		return c.i == o.i
	case TypeBool:
		return c.b == o.b
	case TypeFloat:
		return c.f == o.f
	case TypeString:
		return c.s == o.s
	default:
		return true // both Missing
	}
}

// Encode writes the type byte followed by the encoded primitive (absent
// for Missing).
func (c Cell) Encode(w *codec.Writer) {
	w.PutRaw([]byte{byte(c.tag)})
	switch c.tag {
	case TypeInt:
		w.PutInt(c.i)
	case TypeBool:
		w.PutBool(c.b)
	case TypeFloat:
		w.PutFloat(c.f)
	case TypeString:
		w.PutString(c.s)
	}
}

// DecodeCell reads a Cell encoded by Cell.Encode.
func DecodeCell(r *codec.Reader) (Cell, error) {
	tb, err := r.ReadByte()
	if err != nil {
		return Cell{}, fmt.Errorf("kv: decoding cell type byte: %w", err)
	}
	switch CellType(tb) {
	case TypeInt:
		v, err := r.Int()
		if err != nil {
			return Cell{}, fmt.Errorf("kv: decoding int cell: %w", err)
		}
		return IntCell(v), nil
	case TypeBool:
		v, err := r.Bool()
		if err != nil {
			return Cell{}, fmt.Errorf("kv: decoding bool cell: %w", err)
		}
		return BoolCell(v), nil
	case TypeFloat:
		v, err := r.Float()
		if err != nil {
			return Cell{}, fmt.Errorf("kv: decoding float cell: %w", err)
		}
		return FloatCell(v), nil
	case TypeString:
		v, err := r.String()
		if err != nil {
			return Cell{}, fmt.Errorf("kv: decoding string cell: %w", err)
		}
		return StringCell(v), nil
	case TypeMissing:
		return MissingCell(), nil
	default:
		return Cell{}, fmt.Errorf("kv: %w: unknown cell type byte %q", ErrMalformedMessage, tb)
	}
}
