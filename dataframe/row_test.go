package dataframe

import (
	"errors"
	"testing"
)

func TestRow_SetGetRoundTrip(t *testing.T) {
	schema, _ := NewSchemaFromString("IBFS")
	row := NewRow(schema)

	if err := row.SetInt(0, 42); err != nil {
		t.Fatalf("SetInt: %v", err)
	}
	if err := row.SetBool(1, true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if err := row.SetFloat(2, 3.5); err != nil {
		t.Fatalf("SetFloat: %v", err)
	}
	if err := row.SetString(3, "hi"); err != nil {
		t.Fatalf("SetString: %v", err)
	}

	if v, _ := row.GetInt(0); v != 42 {
		t.Fatalf("GetInt = %d, want 42", v)
	}
	if v, _ := row.GetBool(1); v != true {
		t.Fatalf("GetBool = %v, want true", v)
	}
	if v, _ := row.GetFloat(2); v != 3.5 {
		t.Fatalf("GetFloat = %v, want 3.5", v)
	}
	if v, _ := row.GetString(3); v != "hi" {
		t.Fatalf("GetString = %q, want %q", v, "hi")
	}
}

func TestRow_TypeMismatchRejected(t *testing.T) {
	schema, _ := NewSchemaFromString("I")
	row := NewRow(schema)
	if err := row.SetBool(0, true); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("SetBool on Int column: want ErrTypeMismatch, got %v", err)
	}
	if _, err := row.GetString(0); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("GetString on Int column: want ErrTypeMismatch, got %v", err)
	}
}

func TestRow_MissingCellReadsAsZero(t *testing.T) {
	schema, _ := NewSchemaFromString("I")
	row := NewRow(schema)
	v, err := row.GetInt(0)
	if err != nil {
		t.Fatalf("GetInt on never-set cell: %v", err)
	}
	if v != 0 {
		t.Fatalf("GetInt on never-set cell = %d, want 0", v)
	}
	// Reading twice must not latch or otherwise change behavior.
	v2, err := row.GetInt(0)
	if err != nil || v2 != 0 {
		t.Fatalf("second GetInt = (%d, %v), want (0, nil)", v2, err)
	}
}

type recordingFielder struct {
	startIdx int
	ints     []int32
	bools    []bool
	floats   []float32
	strings  []string
	doneN    int
}

func (f *recordingFielder) Start(r int)             { f.startIdx = r }
func (f *recordingFielder) AcceptInt(i int32)       { f.ints = append(f.ints, i) }
func (f *recordingFielder) AcceptBool(b bool)       { f.bools = append(f.bools, b) }
func (f *recordingFielder) AcceptFloat(v float32)   { f.floats = append(f.floats, v) }
func (f *recordingFielder) AcceptString(s string)   { f.strings = append(f.strings, s) }
func (f *recordingFielder) Done()                   { f.doneN++ }

func TestRow_Visit(t *testing.T) {
	schema, _ := NewSchemaFromString("IS")
	row := NewRow(schema)
	row.SetInt(0, 7)
	row.SetString(1, "seven")

	f := &recordingFielder{}
	if err := row.Visit(3, f); err != nil {
		t.Fatalf("Visit: %v", err)
	}
	if f.startIdx != 3 {
		t.Fatalf("Start called with %d, want 3", f.startIdx)
	}
	if len(f.ints) != 1 || f.ints[0] != 7 {
		t.Fatalf("ints = %v, want [7]", f.ints)
	}
	if len(f.strings) != 1 || f.strings[0] != "seven" {
		t.Fatalf("strings = %v, want [seven]", f.strings)
	}
	if f.doneN != 1 {
		t.Fatalf("Done called %d times, want 1", f.doneN)
	}
}
