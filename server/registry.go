package server

import (
	"errors"
	"net"
	"sort"

	"github.com/alanwang67/replicated_files/protocol"
)

var errNotConnected = errors.New("peer not connected")

type peer struct {
	id      protocol.Identity
	known   bool     // address comes from configuration
	out     net.Conn // stream this replica dialed; every send goes here
	in      net.Conn // stream the peer dialed; only read from
	dialing bool
}

// Registry maps peer names to their connections. It has no lock of its
// own; the owning Server's mutex guards it.
type Registry struct {
	self  string
	peers map[string]*peer
}

func NewRegistry(self string, peers []protocol.Identity) *Registry {
	r := &Registry{self: self, peers: make(map[string]*peer)}
	for _, id := range peers {
		if id.Name == self {
			continue
		}
		r.peers[id.Name] = &peer{id: id, known: true}
	}
	return r
}

func (r *Registry) get(name string) *peer {
	p, ok := r.peers[name]
	if !ok {
		p = &peer{id: protocol.Identity{Name: name}}
		r.peers[name] = p
	}
	return p
}

// Connected returns the sorted names of peers with a live outbound stream.
// These are the peers a write has to hear from before it is admitted.
func (r *Registry) Connected() []string {
	var names []string
	for name, p := range r.peers {
		if p.out != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (r *Registry) IsConnected(name string) bool {
	p, ok := r.peers[name]
	return ok && p.out != nil
}

// Disconnected returns configured peers that have no outbound stream,
// including those with a dial in progress.
func (r *Registry) Disconnected() []protocol.Identity {
	var ids []protocol.Identity
	for _, p := range r.peers {
		if p.known && p.out == nil {
			ids = append(ids, p.id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Name < ids[j].Name })
	return ids
}

// beginDial marks name as being dialed. It fails when the peer is unknown,
// already connected or already being dialed.
func (r *Registry) beginDial(name string) (protocol.Identity, bool) {
	p, ok := r.peers[name]
	if !ok || !p.known || p.out != nil || p.dialing {
		return protocol.Identity{}, false
	}
	p.dialing = true
	return p.id, true
}

func (r *Registry) endDial(name string) {
	if p, ok := r.peers[name]; ok {
		p.dialing = false
	}
}

func (r *Registry) addOutbound(name string, conn net.Conn) {
	r.get(name).out = conn
}

func (r *Registry) addInbound(name string, conn net.Conn) {
	r.get(name).in = conn
}

func (r *Registry) inbound(name string) net.Conn {
	if p, ok := r.peers[name]; ok {
		return p.in
	}
	return nil
}

// drop forgets the outbound stream of name and returns it so the caller
// can close it.
func (r *Registry) drop(name string) net.Conn {
	p, ok := r.peers[name]
	if !ok {
		return nil
	}
	out := p.out
	p.out = nil
	return out
}

func (r *Registry) clearInbound(name string) {
	if p, ok := r.peers[name]; ok {
		p.in = nil
	}
}

// Send writes m to the outbound stream of name.
func (r *Registry) Send(name string, m protocol.Message) error {
	p, ok := r.peers[name]
	if !ok || p.out == nil {
		return errNotConnected
	}
	return protocol.WriteMessage(p.out, m)
}

func (r *Registry) closeAll() {
	for _, p := range r.peers {
		if p.out != nil {
			p.out.Close()
		}
		if p.in != nil {
			p.in.Close()
		}
		p.out, p.in = nil, nil
	}
}
