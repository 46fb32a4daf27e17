package server

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/alanwang67/replicated_files/lamportclock"
	"github.com/alanwang67/replicated_files/protocol"
	"github.com/alanwang67/replicated_files/queue"
	"github.com/alanwang67/replicated_files/storage"
	"github.com/charmbracelet/log"
)

const (
	DefaultConnectRounds = 5
	DefaultConnectDelay  = 500 * time.Millisecond
)

// Server is one replica. It accepts peers and clients on a single listener
// and runs the Lamport mutual-exclusion protocol for every client write.
type Server struct {
	Self  protocol.Identity
	Peers []protocol.Identity

	// ConnectRounds and ConnectDelay bound the startup peer-connect loop.
	ConnectRounds int
	ConnectDelay  time.Duration

	Logger *log.Logger

	store *storage.Store

	// mu guards the clock, the queue, the registry and everything below
	// it. cond is signalled on every change that may affect admission.
	mu       sync.Mutex
	cond     *sync.Cond
	clock    *lamportclock.Clock
	queue    *queue.Queue
	registry *Registry
	pending  *protocol.Message // own Acquire waiting for or inside the critical section
	closed   bool
	listener net.Listener
	conns    map[net.Conn]struct{}

	// writeMu keeps at most one own Acquire outstanding.
	writeMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
}
