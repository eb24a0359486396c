package dataframe

import (
	"context"
	"sync"

	"github.com/eau2/eau2/kv"
)

// memCluster wires N in-process kv.Stores together without any real
// socket, the way kv's own tests do: each SendTo hands the message to the
// destination Store's HandleMessage on a fresh goroutine.
type memCluster struct {
	mu     sync.Mutex
	stores []*kv.Store
}

func newMemCluster(n int) *memCluster {
	c := &memCluster{stores: make([]*kv.Store, n)}
	for i := 0; i < n; i++ {
		c.stores[i] = kv.NewStore(kv.Config{Index: i, N: n}, &memLink{cluster: c, from: i})
	}
	return c
}

func (c *memCluster) store(i int) *kv.Store { return c.stores[i] }

type memLink struct {
	cluster *memCluster
	from    int
}

func (l *memLink) SendTo(ctx context.Context, idx int, m kv.Message) error {
	dst := l.cluster.store(idx)
	from := l.from
	go func() {
		_ = dst.HandleMessage(context.Background(), from, m)
	}()
	return nil
}
