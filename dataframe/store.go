package dataframe

import (
	"context"

	"github.com/eau2/eau2/kv"
)

// Store is everything a DistributedColumn or Dataframe needs from the KV
// plane. kv.Store satisfies it structurally; this package never imports a
// concrete *kv.Store pointer so a column holds a plain, non-owning
// interface value (SPEC_FULL.md §9's resolution for the cyclic
// column-KV-dataframe reference).
type Store interface {
	Index() int
	N() int
	Put(ctx context.Context, key kv.Key, blob []byte) error
	Get(ctx context.Context, key kv.Key) ([]byte, error)
	WaitAndGet(ctx context.Context, key kv.Key) ([]byte, error)
}
