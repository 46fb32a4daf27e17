package client

import (
	"net"
	"sync"

	"github.com/alanwang67/replicated_files/lamportclock"
	"github.com/alanwang67/replicated_files/protocol"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Client issues write requests to replicas and keeps a Lamport clock of
// its own across them.
type Client struct {
	Name    string
	Servers []protocol.Identity
	Logger  *log.Logger

	// Limiter paces Run. Nil runs the workload unthrottled.
	Limiter *rate.Limiter

	mu    sync.Mutex
	clock *lamportclock.Clock
	conns map[string]net.Conn
}

// New creates a client for the given replicas. An empty name gets a random
// one.
func New(name string, servers []protocol.Identity) *Client {
	if name == "" {
		name = "client-" + uuid.NewString()[:8]
	}
	log.Debugf("client %s created", name)
	return &Client{
		Name:    name,
		Servers: servers,
		Logger:  log.Default().WithPrefix(name),
		clock:   lamportclock.New(lamportclock.DefaultStep),
		conns:   make(map[string]net.Conn),
	}
}
