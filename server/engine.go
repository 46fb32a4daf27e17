package server

import (
	"github.com/alanwang67/replicated_files/protocol"
	"github.com/alanwang67/replicated_files/queue"
	"github.com/google/uuid"
)

// receiveLocked merges the timestamp of an incoming message into the clock:
// observe, then advance.
func (s *Server) receiveLocked(ts uint64) {
	s.clock.Observe(ts)
	s.clock.Advance()
}

// stampLocked builds an outgoing message with a fresh timestamp.
func (s *Server) stampLocked(t protocol.MessageType, payload string) protocol.Message {
	return protocol.Message{
		SenderName: s.Self.Name,
		Type:       t,
		Timestamp:  s.clock.Advance(),
		Payload:    payload,
	}
}

func (s *Server) sendLocked(name string, m protocol.Message) {
	s.Logger.Debugf("sending %q to %s", m.Encode(), name)
	if err := s.registry.Send(name, m); err != nil {
		s.dropPeerLocked(name, err)
	}
}

// broadcastLocked sends m to every connected peer. Peers whose stream
// fails are dropped after the loop.
func (s *Server) broadcastLocked(m protocol.Message) {
	var failed []string
	var errs []error
	for _, name := range s.registry.Connected() {
		s.Logger.Debugf("sending %q to %s", m.Encode(), name)
		if err := s.registry.Send(name, m); err != nil {
			failed = append(failed, name)
			errs = append(errs, err)
		}
	}
	for i, name := range failed {
		s.dropPeerLocked(name, errs[i])
	}
}

// dropPeerLocked removes name from the quorum and prunes its queued
// entries, so neither blocks admission any longer.
func (s *Server) dropPeerLocked(name string, reason error) {
	if out := s.registry.drop(name); out != nil {
		out.Close()
	}
	removed := s.queue.RemoveWhere(func(m protocol.Message) bool {
		return m.SenderName == name
	})
	s.Logger.Warnf("dropped peer %s (%v), pruned %d queued entries", name, reason, len(removed))
	s.cond.Broadcast()
}

// greetLocked brings a freshly connected peer up to date: it gets the
// pending own Acquire, and a Response if it has Acquires queued here.
func (s *Server) greetLocked(name string) {
	if s.pending != nil {
		s.sendLocked(name, *s.pending)
	}

	waiting := s.queue.Select(func(m protocol.Message) bool {
		return m.SenderName == name && m.Type == protocol.WriteAcquireRequest
	})
	if len(waiting) > 0 {
		s.sendLocked(name, s.stampLocked(protocol.WriteAcquireResponse, waiting[len(waiting)-1].Payload))
	}
}

func (s *Server) ackLocked(ok bool, payload string) protocol.Message {
	if ok {
		return s.stampLocked(protocol.WriteSuccessAck, payload)
	}
	return s.stampLocked(protocol.WriteFailureAck, payload)
}

func (s *Server) ack(ok bool, payload string) protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ackLocked(ok, payload)
}

// HandleClientWrite runs one client write through the protocol and returns
// the acknowledgement for the client. The file must already exist in the
// local store; otherwise no Acquire is sent and the write fails.
func (s *Server) HandleClientWrite(req protocol.Message) protocol.Message {
	logger := s.Logger.With("request", uuid.NewString()[:8], "client", req.SenderName)

	s.mu.Lock()
	s.receiveLocked(req.Timestamp)
	s.mu.Unlock()

	if req.Type != protocol.ClientWriteRequest {
		logger.Warnf("unexpected %s from client", req.Type)
		return s.ack(false, req.Payload)
	}

	fileName, line, err := protocol.ParseWritePayload(req.Payload)
	if err != nil {
		logger.Errorf("%v", err)
		return s.ack(false, req.Payload)
	}
	if !s.store.Exists(fileName) {
		logger.Infof("rejecting write: %s does not exist", fileName)
		return s.ack(false, req.Payload)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return s.ackLocked(false, req.Payload)
	}

	acquire := s.stampLocked(protocol.WriteAcquireRequest, req.Payload)
	s.queue.Insert(acquire)
	s.pending = &acquire
	s.broadcastLocked(acquire)

	for !s.closed && !s.admissibleLocked(acquire) {
		s.cond.Wait()
	}
	if s.closed {
		s.pending = nil
		return s.ackLocked(false, req.Payload)
	}

	logger.Infof("entering critical section for %s at %d", fileName, acquire.Timestamp)

	ok := true
	if err := s.store.Append(fileName, line); err != nil {
		// nothing was written locally, so peers are not asked to write either
		logger.Errorf("storage fault: %v", err)
		ok = false
		s.retireLocked(acquire, s.clock.Time())
	} else {
		sync := s.stampLocked(protocol.WriteSyncRequest, req.Payload)
		s.broadcastLocked(sync)
		s.retireLocked(acquire, sync.Timestamp)
	}

	s.broadcastLocked(s.stampLocked(protocol.WriteReleaseRequest, req.Payload))
	s.pending = nil
	s.cond.Broadcast()

	logger.Infof("left critical section for %s", fileName)
	return s.ackLocked(ok, req.Payload)
}

// retireLocked removes a finished own Acquire together with the Responses
// received for it, up to the given time. Acquires of other replicas stay
// queued even when they carry the same payload.
func (s *Server) retireLocked(acquire protocol.Message, upTo uint64) {
	s.queue.RemoveWhere(func(m protocol.Message) bool {
		if m.Timestamp > upTo || m.Payload != acquire.Payload {
			return false
		}
		if m.Type == protocol.WriteAcquireResponse {
			return true
		}
		return m.SenderName == s.Self.Name && m.Type == protocol.WriteAcquireRequest
	})
}

// admissibleLocked reports whether acquire may enter the critical section:
// it heads the queue, and every connected peer has a queued message
// stamped after it.
func (s *Server) admissibleLocked(acquire protocol.Message) bool {
	head, ok := s.queue.Peek()
	if !ok || head != acquire {
		return false
	}

	for _, name := range s.registry.Connected() {
		later := s.queue.Select(func(m protocol.Message) bool {
			return m.SenderName == name && m.Timestamp > acquire.Timestamp
		})
		if len(later) == 0 {
			return false
		}
	}
	return true
}

// syncReadyLocked reports whether a Sync can be applied here: no Acquire
// from a third replica orders before the sender's own queued Acquire.
func (s *Server) syncReadyLocked(sync protocol.Message) bool {
	own := s.queue.Select(func(m protocol.Message) bool {
		return m.SenderName == sync.SenderName && m.Type == protocol.WriteAcquireRequest
	})
	if len(own) == 0 {
		return true
	}

	earlier := s.queue.Select(func(m protocol.Message) bool {
		return m.Type == protocol.WriteAcquireRequest &&
			m.SenderName != sync.SenderName &&
			m.SenderName != s.Self.Name &&
			queue.Less(m, own[0])
	})
	return len(earlier) == 0
}

// handlePeerMessage applies one message received from another replica.
func (s *Server) handlePeerMessage(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.receiveLocked(m.Timestamp)

	switch m.Type {
	case protocol.WriteAcquireRequest:
		s.queue.Insert(m)
		if s.registry.IsConnected(m.SenderName) {
			s.sendLocked(m.SenderName, s.stampLocked(protocol.WriteAcquireResponse, m.Payload))
		} else {
			// the response goes out once the dial-back registers the peer
			s.Logger.Warnf("no stream to %s yet, deferring response", m.SenderName)
			go s.dialPeer(s.ctx, m.SenderName)
		}

	case protocol.WriteAcquireResponse:
		s.queue.RemoveWhere(func(e protocol.Message) bool {
			return e.SenderName == m.SenderName &&
				e.Type == protocol.WriteAcquireResponse &&
				e.Timestamp < m.Timestamp
		})
		s.queue.Insert(m)

	case protocol.WriteSyncRequest:
		for !s.closed && !s.syncReadyLocked(m) {
			s.cond.Wait()
		}
		if s.closed {
			return
		}

		fileName, line, err := protocol.ParseWritePayload(m.Payload)
		if err != nil {
			s.Logger.Errorf("sync from %s: %v", m.SenderName, err)
			return
		}
		if err := s.store.Append(fileName, line); err != nil {
			s.Logger.Errorf("storage fault applying sync from %s: %v", m.SenderName, err)
			return
		}
		s.Logger.Debugf("applied sync from %s to %s", m.SenderName, fileName)

	case protocol.WriteReleaseRequest:
		s.queue.RemoveWhere(func(e protocol.Message) bool {
			return e.SenderName == m.SenderName &&
				e.Type == protocol.WriteAcquireRequest &&
				e.Timestamp < m.Timestamp
		})

	default:
		s.Logger.Warnf("ignoring %s from peer %s", m.Type, m.SenderName)
		return
	}

	s.cond.Broadcast()
}
