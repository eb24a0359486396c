package dataframe

import (
	"fmt"

	"github.com/eau2/eau2/kv"
)

// Fielder is a field visitor invoked by Row.Visit: Start before the first
// field, one AcceptX call per field matching its column type, Done after
// the last (SPEC_FULL.md §6, grounded on the original's Fielder in
// p2p_kvstore/src/visitors.h).
type Fielder interface {
	Start(row int)
	AcceptBool(b bool)
	AcceptInt(i int32)
	AcceptFloat(f float32)
	AcceptString(s string)
	Done()
}

// Rower iterates the rows of a dataframe. Accept's return value is the
// filter predicate: true keeps the row.
type Rower interface {
	Accept(row *Row) bool
}

// Writer pulls rows into a dataframe under construction (FromVisitor).
// Visit mutates row in place; Done reports whether the producer is
// exhausted.
type Writer interface {
	Visit(row *Row) error
	Done() bool
}

// Row is one row of a dataframe, bound to a schema. Setters and getters
// enforce the column's declared type; Row has no identity beyond its
// fields, so it is reused across iterations the way the original's single
// stack-allocated Row is reused in map/local_map/filter
// (p2p_kvstore/src/row.h).
type Row struct {
	schema *Schema
	cells  []kv.Cell
	idx    int
}

// NewRow returns a row bound to schema, every field initially Missing.
func NewRow(schema *Schema) *Row {
	cells := make([]kv.Cell, schema.Width())
	for i := range cells {
		cells[i] = kv.MissingCell()
	}
	return &Row{schema: schema, cells: cells, idx: -1}
}

// Width is the number of fields in the row.
func (r *Row) Width() int { return len(r.cells) }

// Idx returns the row's position in its dataframe, or -1 if unset.
func (r *Row) Idx() int { return r.idx }

// SetIdx records the row's position in its dataframe. Informational only.
func (r *Row) SetIdx(idx int) { r.idx = idx }

// Schema returns the schema this row is bound to.
func (r *Row) Schema() *Schema { return r.schema }

func (r *Row) checkCol(col int, want kv.CellType) error {
	if col < 0 || col >= len(r.cells) {
		return fmt.Errorf("dataframe: %w: row column index %d out of range [0,%d)", ErrAssertion, col, len(r.cells))
	}
	t, err := r.schema.Type(col)
	if err != nil {
		return err
	}
	if t != want {
		return fmt.Errorf("dataframe: %w: column %d is %s, not %s", ErrTypeMismatch, col, t, want)
	}
	return nil
}

// SetInt sets column col, which must be typed Int.
func (r *Row) SetInt(col int, v int32) error {
	if err := r.checkCol(col, kv.TypeInt); err != nil {
		return err
	}
	r.cells[col] = kv.IntCell(v)
	return nil
}

// SetBool sets column col, which must be typed Bool.
func (r *Row) SetBool(col int, v bool) error {
	if err := r.checkCol(col, kv.TypeBool); err != nil {
		return err
	}
	r.cells[col] = kv.BoolCell(v)
	return nil
}

// SetFloat sets column col, which must be typed Float.
func (r *Row) SetFloat(col int, v float32) error {
	if err := r.checkCol(col, kv.TypeFloat); err != nil {
		return err
	}
	r.cells[col] = kv.FloatCell(v)
	return nil
}

// SetString sets column col, which must be typed Str.
func (r *Row) SetString(col int, v string) error {
	if err := r.checkCol(col, kv.TypeString); err != nil {
		return err
	}
	r.cells[col] = kv.StringCell(v)
	return nil
}

// SetMissing clears column col to Missing, regardless of its declared type.
func (r *Row) SetMissing(col int) error {
	if col < 0 || col >= len(r.cells) {
		return fmt.Errorf("dataframe: %w: row column index %d out of range [0,%d)", ErrAssertion, col, len(r.cells))
	}
	r.cells[col] = kv.MissingCell()
	return nil
}

// GetInt returns column col's value, which must be typed Int.
func (r *Row) GetInt(col int) (int32, error) {
	if err := r.checkCol(col, kv.TypeInt); err != nil {
		return 0, err
	}
	return r.cells[col].Int()
}

// GetBool returns column col's value, which must be typed Bool.
func (r *Row) GetBool(col int) (bool, error) {
	if err := r.checkCol(col, kv.TypeBool); err != nil {
		return false, err
	}
	return r.cells[col].Bool()
}

// GetFloat returns column col's value, which must be typed Float.
func (r *Row) GetFloat(col int) (float32, error) {
	if err := r.checkCol(col, kv.TypeFloat); err != nil {
		return 0, err
	}
	return r.cells[col].Float()
}

// GetString returns column col's value, which must be typed Str.
func (r *Row) GetString(col int) (string, error) {
	if err := r.checkCol(col, kv.TypeString); err != nil {
		return "", err
	}
	return r.cells[col].Str()
}

// Visit invokes f.Start(idx), then for each column f.AcceptX(value) with
// the overload matching its type, then f.Done().
func (r *Row) Visit(idx int, f Fielder) error {
	f.Start(idx)
	for i := 0; i < r.schema.Width(); i++ {
		t, err := r.schema.Type(i)
		if err != nil {
			return err
		}
		switch t {
		case kv.TypeInt:
			v, err := r.GetInt(i)
			if err != nil {
				return err
			}
			f.AcceptInt(v)
		case kv.TypeBool:
			v, err := r.GetBool(i)
			if err != nil {
				return err
			}
			f.AcceptBool(v)
		case kv.TypeFloat:
			v, err := r.GetFloat(i)
			if err != nil {
				return err
			}
			f.AcceptFloat(v)
		case kv.TypeString:
			v, err := r.GetString(i)
			if err != nil {
				return err
			}
			f.AcceptString(v)
		default:
			return fmt.Errorf("dataframe: %w: invalid column type %q in visit", ErrAssertion, t)
		}
	}
	f.Done()
	return nil
}
