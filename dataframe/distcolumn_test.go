package dataframe

import (
	"context"
	"errors"
	"testing"

	"github.com/eau2/eau2/codec"
	"github.com/eau2/eau2/kv"
)

func TestDistributedColumn_AppendAndSealedGet(t *testing.T) {
	c := newMemCluster(3)
	ctx := context.Background()
	const chunkSize = 5

	dc := NewDistributedColumn(c.store(0), kv.NewKey("col", 0), chunkSize)
	for i := int32(0); i < 17; i++ {
		if err := dc.Append(ctx, kv.IntCell(i)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if _, err := dc.Get(ctx, 0); !errors.Is(err, ErrAssertion) {
		t.Fatalf("Get before Lock: want ErrAssertion, got %v", err)
	}
	if err := dc.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	for i := uint64(0); i < 17; i++ {
		cell, err := dc.Get(ctx, i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		v, _ := cell.Int()
		if v != int32(i) {
			t.Fatalf("Get(%d) = %d, want %d", i, v, i)
		}
	}
	if _, err := dc.Get(ctx, 17); !errors.Is(err, ErrAssertion) {
		t.Fatalf("Get out of range: want ErrAssertion, got %v", err)
	}
}

func TestDistributedColumn_ChunkPlacementRoundRobin(t *testing.T) {
	c := newMemCluster(3)
	ctx := context.Background()
	const chunkSize = 2

	dc := NewDistributedColumn(c.store(0), kv.NewKey("placed", 0), chunkSize)
	for i := int32(0); i < 9; i++ { // 5 chunks: 0,1,2,3,4
		if err := dc.Append(ctx, kv.IntCell(i)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := dc.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	for chunkIdx, key := range dc.Keys() {
		want := chunkIdx % 3
		if key.Home != want {
			t.Fatalf("chunk %d home = %d, want %d", chunkIdx, key.Home, want)
		}
	}
}

func TestDistributedColumn_UnlockAppendLock(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()
	const chunkSize = 5

	dc := NewDistributedColumn(c.store(0), kv.NewKey("pad", 0), chunkSize)
	for i := int32(0); i < 3; i++ {
		dc.Append(ctx, kv.IntCell(i))
	}
	if err := dc.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := dc.Unlock(ctx); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	for i := int32(3); i < 6; i++ {
		if err := dc.Append(ctx, kv.IntCell(i)); err != nil {
			t.Fatalf("Append after unlock: %v", err)
		}
	}
	if err := dc.Lock(ctx); err != nil {
		t.Fatalf("re-Lock: %v", err)
	}
	if dc.Size() != 6 {
		t.Fatalf("Size = %d, want 6", dc.Size())
	}
	if len(dc.Keys()) != 2 {
		t.Fatalf("Keys = %d entries, want 2 (one chunk filled to 5, one with 1 more)", len(dc.Keys()))
	}
	for i := uint64(0); i < 6; i++ {
		cell, err := dc.Get(ctx, i)
		if err != nil {
			t.Fatalf("Get(%d): %v", i, err)
		}
		v, _ := cell.Int()
		if v != int32(i) {
			t.Fatalf("Get(%d) = %d, want %d", i, v, i)
		}
	}
}

func TestDistributedColumn_EncodeDecodeRoundTrip(t *testing.T) {
	c := newMemCluster(2)
	ctx := context.Background()
	const chunkSize = 3

	dc := NewDistributedColumn(c.store(0), kv.NewKey("rt", 0), chunkSize)
	for i := int32(0); i < 8; i++ {
		dc.Append(ctx, kv.IntCell(i))
	}
	if err := dc.Lock(ctx); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	w := codec.NewWriter()
	if err := dc.Encode(w); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	r := codec.NewReader(w.Bytes())
	got, err := DecodeDistributedColumn(r, c.store(0), chunkSize)
	if err != nil {
		t.Fatalf("DecodeDistributedColumn: %v", err)
	}
	if got.Size() != dc.Size() {
		t.Fatalf("decoded size = %d, want %d", got.Size(), dc.Size())
	}
	if len(got.Keys()) != len(dc.Keys()) {
		t.Fatalf("decoded key count = %d, want %d", len(got.Keys()), len(dc.Keys()))
	}
	for i := uint64(0); i < dc.Size(); i++ {
		cell, err := got.Get(ctx, i)
		if err != nil {
			t.Fatalf("decoded Get(%d): %v", i, err)
		}
		v, _ := cell.Int()
		if v != int32(i) {
			t.Fatalf("decoded Get(%d) = %d, want %d", i, v, i)
		}
	}
}

func TestDistributedColumn_AppendAfterLockIsRejected(t *testing.T) {
	c := newMemCluster(1)
	ctx := context.Background()
	dc := NewDistributedColumn(c.store(0), kv.NewKey("sealed", 0), 5)
	dc.Append(ctx, kv.IntCell(1))
	dc.Lock(ctx)
	if err := dc.Append(ctx, kv.IntCell(2)); !errors.Is(err, ErrAssertion) {
		t.Fatalf("append on sealed column: want ErrAssertion, got %v", err)
	}
}
