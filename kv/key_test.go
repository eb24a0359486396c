package kv

import (
	"testing"

	"github.com/eau2/eau2/codec"
)

func TestKeyRoundTrip(t *testing.T) {
	k := NewKey("triv", 3)
	w := codec.NewWriter()
	k.Encode(w)

	r := codec.NewReader(w.Bytes())
	got, err := DecodeKey(r)
	if err != nil {
		t.Fatalf("DecodeKey: %v", err)
	}
	if !got.Equals(k) {
		t.Fatalf("round-trip: want %v, got %v", k, got)
	}
}

func TestKeyEquals(t *testing.T) {
	a := NewKey("x", 1)
	b := NewKey("x", 1)
	c := NewKey("x", 2)
	d := NewKey("y", 1)

	if !a.Equals(b) {
		t.Error("identical keys should be equal")
	}
	if a.Equals(c) {
		t.Error("different home should not be equal")
	}
	if a.Equals(d) {
		t.Error("different id should not be equal")
	}
}

func TestKeyBuilder(t *testing.T) {
	anchor := NewKey("main", 0)
	kb := NewKeyBuilder(anchor)

	k0 := kb.AppendString("-").AppendInt(0).Build(0 % 3)
	if k0.ID != "main-0" || k0.Home != 0 {
		t.Fatalf("k0 = %+v, want {main-0 0}", k0)
	}

	// Build must reset the accumulated id back to the anchor.
	k1 := kb.AppendString("-").AppendInt(1).Build(1 % 3)
	if k1.ID != "main-1" || k1.Home != 1 {
		t.Fatalf("k1 = %+v, want {main-1 1}", k1)
	}

	k2 := kb.AppendString("-").AppendInt(2).Build(2 % 3)
	if k2.ID != "main-2" || k2.Home != 2 {
		t.Fatalf("k2 = %+v, want {main-2 2}", k2)
	}
}
