package dataframe

import (
	"context"
	"testing"

	"github.com/eau2/eau2/kv"
)

func TestFactory_ScalarConstructors(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()

	if df, err := FromIntScalar(ctx, kv.NewKey("i", 0), c.store(0), 10, 42); err != nil {
		t.Fatalf("FromIntScalar: %v", err)
	} else if v, _ := df.GetInt(ctx, 0, 0); v != 42 {
		t.Fatalf("int scalar = %d, want 42", v)
	}
	if df, err := FromBoolScalar(ctx, kv.NewKey("b", 0), c.store(0), 10, true); err != nil {
		t.Fatalf("FromBoolScalar: %v", err)
	} else if v, _ := df.GetBool(ctx, 0, 0); v != true {
		t.Fatalf("bool scalar = %v, want true", v)
	}
	if df, err := FromFloatScalar(ctx, kv.NewKey("f", 0), c.store(0), 10, 1.5); err != nil {
		t.Fatalf("FromFloatScalar: %v", err)
	} else if v, _ := df.GetFloat(ctx, 0, 0); v != 1.5 {
		t.Fatalf("float scalar = %v, want 1.5", v)
	}
	if df, err := FromStringScalar(ctx, kv.NewKey("s", 0), c.store(0), 10, "hi"); err != nil {
		t.Fatalf("FromStringScalar: %v", err)
	} else if v, _ := df.GetString(ctx, 0, 0); v != "hi" {
		t.Fatalf("string scalar = %q, want %q", v, "hi")
	}
}

// sequentialWriter implements Writer, handing out rows (i, i*2) for
// i in [0,n) then reporting Done.
type sequentialWriter struct {
	n, i int
}

func (w *sequentialWriter) Visit(row *Row) error {
	row.SetInt(0, int32(w.i))
	row.SetInt(1, int32(w.i*2))
	w.i++
	return nil
}

func (w *sequentialWriter) Done() bool { return w.i >= w.n }

func TestFactory_FromVisitor(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()

	df, err := FromVisitor(ctx, kv.NewKey("visited", 0), c.store(0), 10, "II", &sequentialWriter{n: 7})
	if err != nil {
		t.Fatalf("FromVisitor: %v", err)
	}
	if df.NRows() != 7 {
		t.Fatalf("NRows = %d, want 7", df.NRows())
	}
	for i := uint64(0); i < 7; i++ {
		a, err := df.GetInt(ctx, 0, i)
		if err != nil {
			t.Fatalf("GetInt(0,%d): %v", i, err)
		}
		if a != int32(i) {
			t.Fatalf("GetInt(0,%d) = %d, want %d", i, a, i)
		}
		b, err := df.GetInt(ctx, 1, i)
		if err != nil {
			t.Fatalf("GetInt(1,%d): %v", i, err)
		}
		if b != int32(i)*2 {
			t.Fatalf("GetInt(1,%d) = %d, want %d", i, b, int32(i)*2)
		}
	}
}
