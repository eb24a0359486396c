package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eau2/eau2/internal/log"
	"github.com/eau2/eau2/kv"
	"github.com/eau2/eau2/metrics"
)

// MessageHandler is implemented by kv.Store. Server never interprets a
// decoded message's KV semantics itself; it only recognizes Register and
// Directory, which belong to bootstrap rather than to the KV plane
// (SPEC_FULL.md §4.8's split between C7 and C8).
type MessageHandler interface {
	HandleMessage(ctx context.Context, from int, m kv.Message) error
}

// Server owns this node's peer connections, runs the registration
// handshake described in SPEC_FULL.md §4.7, and implements kv.PeerLink so
// a kv.Store can reach other nodes without any knowledge of sockets. Its
// goroutine lifecycle (accept loop, per-connection readers) is managed by
// an errgroup.Group, generalizing the teacher's sync.WaitGroup-based
// Server.wg (SPEC_FULL.md §11).
type Server struct {
	cfg      kv.Config
	dialer   Dialer
	listener Listener
	log      *log.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	conns   map[int]ConnTransport
	handler MessageHandler

	eg    *errgroup.Group
	egCtx context.Context
	quit  chan struct{}
}

// NewServer returns a Server for cfg, dialing peers with dialer and
// accepting inbound connections with listener. SetHandler must be called
// with the owning kv.Store before Start.
func NewServer(cfg kv.Config, dialer Dialer, listener Listener) *Server {
	s := &Server{
		cfg:      cfg,
		dialer:   dialer,
		listener: listener,
		log:      log.Default().Module("transport"),
		conns:    make(map[int]ConnTransport),
		quit:     make(chan struct{}),
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetHandler wires the KV message handler. It must be called before Start.
func (s *Server) SetHandler(h MessageHandler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

// Start accepts inbound connections, then runs the registration handshake
// appropriate to this node's index: node 0 gathers registrations from the
// other N-1 nodes and broadcasts the resulting directory; every other
// node registers with node 0, receives the directory, and dials any peer
// of higher index to complete the mesh. Once the handshake completes, Start
// waits out cfg.Warmup before returning, so a caller that proceeds to use
// the Store does so only after the mesh has had time to settle
// (SPEC_FULL.md §4.7's "~1s warmup").
func (s *Server) Start(ctx context.Context) error {
	s.eg, s.egCtx = errgroup.WithContext(ctx)
	s.eg.Go(func() error {
		return s.acceptLoop(s.egCtx)
	})

	if s.cfg.Index == 0 {
		if err := s.bootstrapSeed(s.egCtx); err != nil {
			return err
		}
	} else {
		if err := s.bootstrapPeer(s.egCtx); err != nil {
			return err
		}
	}
	return s.warmup(s.egCtx)
}

// warmup blocks for cfg.Warmup, or until ctx is canceled, whichever comes
// first. A zero Warmup skips the wait entirely.
func (s *Server) warmup(ctx context.Context) error {
	if s.cfg.Warmup <= 0 {
		return nil
	}
	select {
	case <-time.After(s.cfg.Warmup):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every goroutine owned by Server's errgroup returns,
// returning the first non-nil error (if any).
func (s *Server) Wait() error {
	return s.eg.Wait()
}

// Close stops accepting connections and unblocks every goroutine waiting
// on quit.
func (s *Server) Close() error {
	select {
	case <-s.quit:
	default:
		close(s.quit)
	}
	return s.listener.Close()
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
				return fmt.Errorf("transport: accept: %w", err)
			}
		}
		s.eg.Go(func() error {
			return s.handleInbound(ctx, conn)
		})
	}
}

// handleInbound reads the first frame of a freshly accepted connection,
// which is always a RegisterMsg identifying the peer's node index, then
// hands off to readLoop.
func (s *Server) handleInbound(ctx context.Context, conn ConnTransport) error {
	frame, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("transport: reading handshake from %s: %w", conn.RemoteAddr(), err)
	}
	m, err := kv.DecodeMessage(frame)
	if err != nil {
		return fmt.Errorf("transport: decoding handshake from %s: %w", conn.RemoteAddr(), err)
	}
	reg, ok := m.(kv.RegisterMsg)
	if !ok {
		return fmt.Errorf("transport: %s: first frame was %T, want RegisterMsg", conn.RemoteAddr(), m)
	}
	s.registerConn(reg.SenderNode, conn)
	return s.readLoop(ctx, reg.SenderNode, conn)
}

func (s *Server) registerConn(idx int, conn ConnTransport) {
	s.mu.Lock()
	_, already := s.conns[idx]
	s.conns[idx] = conn
	s.cond.Broadcast()
	s.mu.Unlock()
	if !already {
		metrics.PeersConnected.Inc()
	}
}

// readLoop decodes frames from conn until it closes, dispatching each to
// the handler. Put/Get/WaitAndGet are handed to freshly spawned goroutines
// (SPEC_FULL.md §4.8) so a request that recurses back into SendTo on this
// same node never deadlocks the connection's own read loop.
func (s *Server) readLoop(ctx context.Context, peerIdx int, conn ConnTransport) error {
	defer metrics.PeersConnected.Dec()
	for {
		frame, err := conn.ReadFrame()
		if err != nil {
			s.log.Warn("peer connection closed", "peer", peerIdx, "err", err)
			return nil
		}
		m, err := kv.DecodeMessage(frame)
		if err != nil {
			s.log.Warn("malformed frame", "peer", peerIdx, "err", err)
			continue
		}
		metrics.MessagesReceived.Inc()
		metrics.MessageRate.Mark(1)

		switch m.(type) {
		case kv.PutMsg, kv.GetMsg, kv.WaitAndGetMsg:
			handler := s.currentHandler()
			metrics.WorkersActive.Inc()
			go func(m kv.Message) {
				defer metrics.WorkersActive.Dec()
				if err := handler.HandleMessage(ctx, peerIdx, m); err != nil {
					s.log.Warn("handling message", "peer", peerIdx, "err", err)
				}
			}(m)
		default:
			handler := s.currentHandler()
			if err := handler.HandleMessage(ctx, peerIdx, m); err != nil {
				s.log.Warn("handling message", "peer", peerIdx, "err", err)
			}
		}
	}
}

func (s *Server) currentHandler() MessageHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// bootstrapSeed waits for every other node to register, then broadcasts
// the resulting directory to each of them.
func (s *Server) bootstrapSeed(ctx context.Context) error {
	if err := s.waitForPeerCount(ctx, s.cfg.N-1); err != nil {
		return err
	}

	s.mu.Lock()
	dir := kv.DirectoryMsg{}
	dir.AddClient(s.cfg.Addresses.Address(0), 0)
	for idx := range s.conns {
		dir.AddClient(s.cfg.Addresses.Address(idx), idx)
	}
	conns := make(map[int]ConnTransport, len(s.conns))
	for idx, c := range s.conns {
		conns[idx] = c
	}
	s.mu.Unlock()

	frame := stripDelim(kv.EncodeMessage(dir))
	for idx, c := range conns {
		if err := c.WriteFrame(frame); err != nil {
			return fmt.Errorf("transport: sending directory to node %d: %w", idx, err)
		}
	}
	return nil
}

// bootstrapPeer registers with the seed node, waits for the directory,
// then dials every peer of higher index to complete the mesh (peers of
// lower index dial us and are handled by acceptLoop/handleInbound; the
// seed connection dialed here is registered and read from directly).
func (s *Server) bootstrapPeer(ctx context.Context) error {
	seedAddr := s.cfg.Addresses.Address(0)
	conn, err := s.dialer.Dial(seedAddr)
	if err != nil {
		return fmt.Errorf("transport: dialing seed %s: %w", seedAddr, err)
	}
	selfAddr := s.cfg.Addresses.Address(s.cfg.Index)
	reg := kv.RegisterMsg{SenderIP: selfAddr, SenderNode: s.cfg.Index}
	if err := conn.WriteFrame(stripDelim(kv.EncodeMessage(reg))); err != nil {
		return fmt.Errorf("transport: registering with seed: %w", err)
	}

	frame, err := conn.ReadFrame()
	if err != nil {
		return fmt.Errorf("transport: reading directory from seed: %w", err)
	}
	m, err := kv.DecodeMessage(frame)
	if err != nil {
		return fmt.Errorf("transport: decoding directory: %w", err)
	}
	dir, ok := m.(kv.DirectoryMsg)
	if !ok {
		return fmt.Errorf("transport: expected DirectoryMsg from seed, got %T", m)
	}

	s.registerConn(0, conn)
	s.eg.Go(func() error {
		return s.readLoop(s.egCtx, 0, conn)
	})

	for i, idx := range dir.Indices {
		if idx <= s.cfg.Index {
			continue // lower or equal index dials us, or is us
		}
		addr := dir.IPs[i]
		peerConn, err := s.dialer.Dial(addr)
		if err != nil {
			return fmt.Errorf("transport: dialing peer %d at %s: %w", idx, addr, err)
		}
		peerReg := kv.RegisterMsg{SenderIP: selfAddr, SenderNode: s.cfg.Index}
		if err := peerConn.WriteFrame(stripDelim(kv.EncodeMessage(peerReg))); err != nil {
			return fmt.Errorf("transport: registering with peer %d: %w", idx, err)
		}
		s.registerConn(idx, peerConn)
		s.eg.Go(func() error {
			return s.readLoop(s.egCtx, idx, peerConn)
		})
	}
	return nil
}

// waitForPeerCount blocks until at least n peers have registered.
func (s *Server) waitForPeerCount(ctx context.Context, n int) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stop:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.conns) < n {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.cond.Wait()
	}
	return nil
}

// SendTo implements kv.PeerLink, blocking until idx's connection is known
// (SPEC_FULL.md §5's documented pre-handshake suspension point) and then
// writing m as a framed message.
func (s *Server) SendTo(ctx context.Context, idx int, m kv.Message) error {
	conn, err := s.connFor(ctx, idx)
	if err != nil {
		return err
	}
	if err := conn.WriteFrame(stripDelim(kv.EncodeMessage(m))); err != nil {
		return fmt.Errorf("transport: sending to node %d: %w", idx, err)
	}
	metrics.MessagesSent.Inc()
	metrics.MessageRate.Mark(1)
	return nil
}

func (s *Server) connFor(ctx context.Context, idx int) (ConnTransport, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-s.quit:
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stop:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if c, ok := s.conns[idx]; ok {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.quit:
			return nil, ErrTransportClosed
		default:
		}
		s.cond.Wait()
	}
}

// stripDelim removes the trailing "\n" that kv.EncodeMessage appends,
// since Transport.WriteFrame adds its own.
func stripDelim(frame []byte) []byte {
	if len(frame) > 0 && frame[len(frame)-1] == '\n' {
		return frame[:len(frame)-1]
	}
	return frame
}
