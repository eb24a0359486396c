package kv

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	"github.com/eau2/eau2/internal/log"
	"github.com/eau2/eau2/metrics"
)

// PeerLink is the Store's only dependency on the network. It is
// implemented by transport.Server; Store never touches a net.Conn
// directly, matching the spec's separation of C7 (KV node) from C8
// (transport).
type PeerLink interface {
	// SendTo delivers m to node idx, blocking until the connection to
	// idx is known (SPEC_FULL.md §5: "put ... when node_fd[home] is
	// still unknown (pre-handshake)" is a documented suspension point).
	SendTo(ctx context.Context, idx int, m Message) error
}

// Store is a single cluster node's share of the distributed map, plus the
// blocking put/get/wait_and_get primitives described in SPEC_FULL.md §4.7.
// Exactly one in-flight remote put, one in-flight remote get, and one
// in-flight remote wait_and_get are supported per node at a time, matching
// the spec's single-producer/single-consumer reply-slot contract (§5).
type Store struct {
	idx   int
	n     int
	peers PeerLink
	log   *log.Logger

	mu   sync.Mutex
	data map[string][]byte
	cond *sync.Cond // signaled whenever data changes, for local WaitAndGet

	// Capacity-1 channels are the Go translation of the spec's
	// ack_pending/reply_get/reply_wag slots (§9: replace sleep-polling
	// with a notification primitive). Only one remote put/get/wait_and_get
	// may be in flight at a time, so a single slot per kind suffices.
	ackCh      chan struct{}
	replyGetCh chan []byte
	replyWagCh chan []byte

	quit chan struct{}
}

// NewStore returns a Store for the given configuration, communicating with
// peers through link.
func NewStore(cfg Config, link PeerLink) *Store {
	s := &Store{
		idx:        cfg.Index,
		n:          cfg.N,
		peers:      link,
		log:        log.Default().Module("kv"),
		data:       make(map[string][]byte),
		ackCh:      make(chan struct{}, 1),
		replyGetCh: make(chan []byte, 1),
		replyWagCh: make(chan []byte, 1),
		quit:       make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Index returns this node's cluster index.
func (s *Store) Index() int { return s.idx }

// N returns the cluster size.
func (s *Store) N() int { return s.n }

// Shutdown closes the quit channel, which every blocked caller selects on;
// a failure-handling read of 0 bytes or a send/recv error at the transport
// layer should call this (SPEC_FULL.md §5 "Failure handling").
func (s *Store) Shutdown() {
	select {
	case <-s.quit:
		// already shut down
	default:
		close(s.quit)
	}
	s.mu.Lock()
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Put stores blob under key. If key's home is this node, the map is
// updated directly and the call returns immediately (the "ack" is
// implicit). Otherwise Put forwards a PutMsg to the home node and blocks
// until that node's Ack arrives.
func (s *Store) Put(ctx context.Context, key Key, blob []byte) error {
	metrics.KVPuts.Inc()
	if key.Home == s.idx {
		s.putLocal(key.ID, blob)
		return nil
	}
	timer := metrics.NewTimer(metrics.KVRemoteLatency)
	defer timer.Stop()
	if err := s.peers.SendTo(ctx, key.Home, PutMsg{Key: key, Blob: bytes.Clone(blob)}); err != nil {
		return fmt.Errorf("kv: put: sending to node %d: %w", key.Home, err)
	}
	select {
	case <-s.ackCh:
		return nil
	case <-s.quit:
		return ErrShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) putLocal(id string, blob []byte) {
	s.mu.Lock()
	s.data[id] = bytes.Clone(blob)
	metrics.KVMapSize.Set(int64(len(s.data)))
	s.cond.Broadcast()
	s.mu.Unlock()
}

// Get returns the current blob at key. It is an error (ErrKeyAbsent) if
// the key is local and absent: blocking-until-present is WaitAndGet's
// contract, not Get's (SPEC_FULL.md §7 kind 4).
func (s *Store) Get(ctx context.Context, key Key) ([]byte, error) {
	metrics.KVGets.Inc()
	if key.Home == s.idx {
		s.mu.Lock()
		blob, ok := s.data[key.ID]
		s.mu.Unlock()
		if !ok {
			return nil, fmt.Errorf("kv: get %s: %w", key.ID, ErrKeyAbsent)
		}
		return bytes.Clone(blob), nil
	}
	timer := metrics.NewTimer(metrics.KVRemoteLatency)
	defer timer.Stop()
	if err := s.peers.SendTo(ctx, key.Home, GetMsg{Key: key}); err != nil {
		return nil, fmt.Errorf("kv: get: sending to node %d: %w", key.Home, err)
	}
	select {
	case blob := <-s.replyGetCh:
		return blob, nil
	case <-s.quit:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitAndGet returns the blob at key, blocking (locally via a condition
// variable, remotely via the reply slot) until it is present.
func (s *Store) WaitAndGet(ctx context.Context, key Key) ([]byte, error) {
	metrics.KVWaitAndGets.Inc()
	if key.Home == s.idx {
		return s.waitLocal(ctx, key.ID)
	}
	timer := metrics.NewTimer(metrics.KVRemoteLatency)
	defer timer.Stop()
	if err := s.peers.SendTo(ctx, key.Home, WaitAndGetMsg{Key: key}); err != nil {
		return nil, fmt.Errorf("kv: wait_and_get: sending to node %d: %w", key.Home, err)
	}
	select {
	case blob := <-s.replyWagCh:
		return blob, nil
	case <-s.quit:
		return nil, ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Store) waitLocal(ctx context.Context, id string) ([]byte, error) {
	done := make(chan struct{})
	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.mu.Lock()
				s.cond.Broadcast()
				s.mu.Unlock()
			case <-done:
			}
		}()
		defer close(done)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if blob, ok := s.data[id]; ok {
			return bytes.Clone(blob), nil
		}
		select {
		case <-s.quit:
			return nil, ErrShutdown
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		s.cond.Wait()
	}
}

// HandleMessage processes a message received from peer idx. Ack/Reply
// populate the corresponding slot inline; Put/Get/WaitAndGet are expected
// to already be running in their own goroutine by the time this is
// called (transport.Server spawns the worker), matching SPEC_FULL.md
// §4.8's "freshly spawned worker tasks" rule. Serving those three blocks:
// WaitAndGet waits until the key is present, and the Ack/Reply goes out
// through SendTo, which waits until the requester's connection is known.
func (s *Store) HandleMessage(ctx context.Context, from int, m Message) error {
	switch msg := m.(type) {
	case AckMsg:
		select {
		case s.ackCh <- struct{}{}:
		default:
		}
		return nil
	case ReplyMsg:
		switch msg.Request {
		case KindGet:
			select {
			case s.replyGetCh <- msg.Blob:
			default:
			}
		case KindWaitAndGet:
			select {
			case s.replyWagCh <- msg.Blob:
			default:
			}
		default:
			return fmt.Errorf("kv: %w: reply for unexpected request kind %s", ErrMalformedMessage, msg.Request)
		}
		return nil
	case PutMsg:
		if msg.Key.Home != s.idx {
			return fmt.Errorf("kv: put for key %s: %w (this node is %d)", msg.Key, ErrWrongHome, s.idx)
		}
		s.putLocal(msg.Key.ID, msg.Blob)
		return s.peers.SendTo(ctx, from, AckMsg{})
	case GetMsg:
		blob, err := s.Get(ctx, Key{ID: msg.Key.ID, Home: s.idx})
		if err != nil {
			return fmt.Errorf("kv: serving get for %s: %w", msg.Key.ID, err)
		}
		return s.peers.SendTo(ctx, from, ReplyMsg{Request: KindGet, Blob: blob})
	case WaitAndGetMsg:
		blob, err := s.WaitAndGet(ctx, Key{ID: msg.Key.ID, Home: s.idx})
		if err != nil {
			return fmt.Errorf("kv: serving wait_and_get for %s: %w", msg.Key.ID, err)
		}
		return s.peers.SendTo(ctx, from, ReplyMsg{Request: KindWaitAndGet, Blob: blob})
	default:
		return fmt.Errorf("kv: %w: unhandled message kind from node %d", ErrMalformedMessage, from)
	}
}
