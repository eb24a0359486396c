package dataframe

import (
	"context"
	"errors"
	"testing"

	"github.com/eau2/eau2/codec"
	"github.com/eau2/eau2/kv"
)

func TestColumn_TypeGuardRejectsMismatchedPush(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()
	col, err := NewColumn(kv.TypeInt, c.store(0), kv.NewKey("ic", 0), 5)
	if err != nil {
		t.Fatalf("NewColumn: %v", err)
	}
	if err := col.PushBool(ctx, true); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("PushBool on Int column: want ErrTypeMismatch, got %v", err)
	}
	if err := col.PushInt(ctx, 5); err != nil {
		t.Fatalf("PushInt: %v", err)
	}
	if _, err := col.GetString(ctx, 0); !errors.Is(err, ErrTypeMismatch) {
		t.Fatalf("GetString on Int column: want ErrTypeMismatch, got %v", err)
	}
}

func TestColumn_PushGetRoundTripPerType(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()

	ic, _ := NewColumn(kv.TypeInt, c.store(0), kv.NewKey("i", 0), 5)
	ic.PushInt(ctx, 7)
	ic.Lock(ctx)
	if v, err := ic.GetInt(ctx, 0); err != nil || v != 7 {
		t.Fatalf("int round trip: got (%d, %v), want (7, nil)", v, err)
	}

	bc, _ := NewColumn(kv.TypeBool, c.store(0), kv.NewKey("b", 0), 5)
	bc.PushBool(ctx, true)
	bc.Lock(ctx)
	if v, err := bc.GetBool(ctx, 0); err != nil || v != true {
		t.Fatalf("bool round trip: got (%v, %v), want (true, nil)", v, err)
	}

	fc, _ := NewColumn(kv.TypeFloat, c.store(0), kv.NewKey("f", 0), 5)
	fc.PushFloat(ctx, 2.5)
	fc.Lock(ctx)
	if v, err := fc.GetFloat(ctx, 0); err != nil || v != 2.5 {
		t.Fatalf("float round trip: got (%v, %v), want (2.5, nil)", v, err)
	}

	sc, _ := NewColumn(kv.TypeString, c.store(0), kv.NewKey("s", 0), 5)
	sc.PushString(ctx, "hi")
	sc.Lock(ctx)
	if v, err := sc.GetString(ctx, 0); err != nil || v != "hi" {
		t.Fatalf("string round trip: got (%q, %v), want (\"hi\", nil)", v, err)
	}
}

func TestColumn_AppendMissingIgnoresType(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()
	col, _ := NewColumn(kv.TypeFloat, c.store(0), kv.NewKey("m", 0), 5)
	if err := col.AppendMissing(ctx); err != nil {
		t.Fatalf("AppendMissing: %v", err)
	}
	col.Lock(ctx)
	v, err := col.GetFloat(ctx, 0)
	if err != nil {
		t.Fatalf("GetFloat on missing cell: %v", err)
	}
	if v != 0 {
		t.Fatalf("GetFloat on missing cell = %v, want 0", v)
	}
}

func TestColumn_EncodeDecodeRoundTrip(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()
	col, _ := NewColumn(kv.TypeString, c.store(0), kv.NewKey("rt", 0), 3)
	for _, s := range []string{"a", "b", "c", "d"} {
		col.PushString(ctx, s)
	}
	col.Lock(ctx)

	w := codec.NewWriter()
	if err := col.Encode(w); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r := codec.NewReader(w.Bytes())
	got, err := DecodeColumn(r, c.store(0), 3)
	if err != nil {
		t.Fatalf("DecodeColumn: %v", err)
	}
	if got.Type() != kv.TypeString {
		t.Fatalf("decoded type = %s, want %s", got.Type(), kv.TypeString)
	}
	for i, want := range []string{"a", "b", "c", "d"} {
		v, err := got.GetString(ctx, uint64(i))
		if err != nil || v != want {
			t.Fatalf("decoded GetString(%d) = (%q, %v), want (%q, nil)", i, v, err, want)
		}
	}
}
