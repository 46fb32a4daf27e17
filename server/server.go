package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/alanwang67/replicated_files/lamportclock"
	"github.com/alanwang67/replicated_files/protocol"
	"github.com/alanwang67/replicated_files/queue"
	"github.com/alanwang67/replicated_files/storage"
	"github.com/charmbracelet/log"
)

// New creates a replica with the given identity, peers and file store.
// Entries of peers naming self are ignored.
func New(self protocol.Identity, peers []protocol.Identity, store *storage.Store) *Server {
	others := make([]protocol.Identity, 0, len(peers))
	for _, p := range peers {
		if p.Name != self.Name {
			others = append(others, p)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		Self:          self,
		Peers:         others,
		ConnectRounds: DefaultConnectRounds,
		ConnectDelay:  DefaultConnectDelay,
		Logger:        log.Default().WithPrefix(self.Name),
		store:         store,
		clock:         lamportclock.New(lamportclock.DefaultStep),
		queue:         queue.New(),
		registry:      NewRegistry(self.Name, others),
		conns:         make(map[net.Conn]struct{}),
		ctx:           ctx,
		cancel:        cancel,
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start listens on the replica's own address and serves until Close.
func (s *Server) Start() error {
	s.Logger.Debugf("starting server %s", s.Self.Name)

	l, err := net.Listen("tcp", s.Self.Address())
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Serve accepts connections on l, one goroutine per connection, and
// connects to the peers in the background. It returns nil after Close.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		l.Close()
		return nil
	}
	s.listener = l
	s.mu.Unlock()

	s.Logger.Infof("server %s listening on %s", s.Self.Name, l.Addr())

	go s.connectAll(s.ctx)

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.Logger.Errorf("server %s accept error: %v", s.Self.Name, err)
			continue
		}

		if !s.track(conn) {
			conn.Close()
			return nil
		}
		go s.handleConnection(conn)
	}
}

// Close stops the listener, closes every stream and aborts writes that are
// still waiting for admission.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	for c := range s.conns {
		c.Close()
	}
	s.registry.closeAll()
	l := s.listener
	s.cond.Broadcast()
	s.mu.Unlock()

	if l != nil {
		return l.Close()
	}
	return nil
}

func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// connectAll dials every configured peer that is not connected yet, for at
// most ConnectRounds rounds spaced by ConnectDelay. Peers that stay
// unreachable are left out; the replica keeps working with the rest.
func (s *Server) connectAll(ctx context.Context) {
	for round := 1; ; round++ {
		s.mu.Lock()
		targets := s.registry.Disconnected()
		s.mu.Unlock()

		if len(targets) == 0 {
			s.Logger.Infof("connected to all %d peers", len(s.Peers))
			return
		}
		if round > s.ConnectRounds {
			s.Logger.Warnf("giving up on %d unreachable peers after %d rounds", len(targets), s.ConnectRounds)
			return
		}

		for _, id := range targets {
			if err := s.dialPeer(ctx, id.Name); err != nil {
				s.Logger.Warnf("round %d/%d: could not connect to %s: %v", round, s.ConnectRounds, id, err)
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.ConnectDelay):
		}
	}
}

// dialPeer opens the outbound stream to name, sends the handshake and
// registers it. It is a no-op if the peer is connected or being dialed.
func (s *Server) dialPeer(ctx context.Context, name string) error {
	s.mu.Lock()
	id, ok := s.registry.beginDial(name)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	conn, err := protocol.Dial(ctx, id)
	if err == nil {
		if err = protocol.WriteFrame(conn, protocol.Handshake(s.Self.Name)); err != nil {
			conn.Close()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry.endDial(name)
	if err != nil {
		return err
	}
	if s.closed {
		conn.Close()
		return net.ErrClosed
	}

	s.registry.addOutbound(name, conn)
	s.Logger.Infof("connected to peer %s", id)
	s.greetLocked(name)
	s.cond.Broadcast()
	return nil
}

// ConnectedPeers returns the names of the peers currently in the quorum.
func (s *Server) ConnectedPeers() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Connected()
}

// Clock returns the replica's current logical time.
func (s *Server) Clock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Time()
}

// QueueLen returns the number of pending Acquire and Response entries.
func (s *Server) QueueLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}
