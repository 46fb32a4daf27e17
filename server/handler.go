package server

import (
	"errors"
	"io"
	"net"

	"github.com/alanwang67/replicated_files/protocol"
)

// handleConnection reads the first frame of an accepted stream and hands
// the stream to the peer or the client loop.
func (s *Server) handleConnection(conn net.Conn) {
	defer s.untrack(conn)

	frame, err := protocol.ReadFrame(conn)
	if err != nil {
		s.Logger.Debugf("connection from %s closed before its first frame: %v", conn.RemoteAddr(), err)
		return
	}

	if name, ok := protocol.ParseHandshake(frame); ok {
		s.acceptPeer(name, conn)
		s.servePeer(name, conn)
		return
	}

	req, err := protocol.Decode(frame)
	if err != nil {
		s.Logger.Errorf("dropping client %s: %v", conn.RemoteAddr(), err)
		return
	}
	s.serveClient(conn, req)
}

// acceptPeer registers an inbound peer stream. If there is no outbound
// stream to that peer yet, one is dialed so replies can reach it.
func (s *Server) acceptPeer(name string, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Logger.Infof("accepted peer %s from %s", name, conn.RemoteAddr())
	s.registry.addInbound(name, conn)
	if !s.registry.IsConnected(name) {
		go s.dialPeer(s.ctx, name)
	}
}

// servePeer applies every message read from an inbound peer stream until
// the stream fails. A failed stream drops the peer.
func (s *Server) servePeer(name string, conn net.Conn) {
	for {
		m, err := protocol.ReadMessage(conn)
		if err != nil {
			s.peerGone(name, conn, err)
			return
		}
		s.Logger.Debugf("received %q from %s", m.Encode(), name)
		s.handlePeerMessage(m)
	}
}

func (s *Server) peerGone(name string, conn net.Conn, err error) {
	switch {
	case errors.Is(err, protocol.ErrParseFault):
		s.Logger.Errorf("peer %s sent a bad frame: %v", name, err)
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		s.Logger.Debugf("peer %s closed its stream", name)
	default:
		s.Logger.Warnf("stream fault reading from peer %s: %v", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.registry.inbound(name) != conn {
		return
	}
	s.registry.clearInbound(name)
	s.dropPeerLocked(name, err)
}

// serveClient answers every write request on a client stream with exactly
// one acknowledgement, starting with the already decoded first request.
func (s *Server) serveClient(conn net.Conn, req protocol.Message) {
	s.Logger.Debugf("serving client %s from %s", req.SenderName, conn.RemoteAddr())

	for {
		ack := s.HandleClientWrite(req)
		if err := protocol.WriteMessage(conn, ack); err != nil {
			s.Logger.Warnf("could not reply to client %s: %v", req.SenderName, err)
			return
		}

		next, err := protocol.ReadMessage(conn)
		if err != nil {
			if errors.Is(err, protocol.ErrParseFault) {
				s.Logger.Errorf("client %s sent a bad frame: %v", req.SenderName, err)
			} else {
				s.Logger.Debugf("client %s disconnected: %v", req.SenderName, err)
			}
			return
		}
		req = next
	}
}
