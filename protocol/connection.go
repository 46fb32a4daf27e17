package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// HandshakePrefix starts the first frame a replica sends on a connection it
// dialed. Connections whose first frame lacks it belong to clients.
const HandshakePrefix = "Server"

// Identity names a replica and the address it listens on.
type Identity struct {
	Name string
	Host string
	Port int
}

func (i Identity) Address() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

func (i Identity) String() string {
	return fmt.Sprintf("%s (%s)", i.Name, i.Address())
}

// ParseIdentity parses "name:host:port". IPv6 hosts may be bracketed.
func ParseIdentity(s string) (Identity, error) {
	name, hostPort, found := strings.Cut(s, ":")
	if !found || name == "" {
		return Identity{}, fmt.Errorf("identity %q: want name:host:port", s)
	}

	host, portStr, err := net.SplitHostPort(hostPort)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: %w", s, err)
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Identity{}, fmt.Errorf("identity %q: bad port %q", s, portStr)
	}

	return Identity{Name: name, Host: host, Port: port}, nil
}

// Handshake returns the frame a replica sends right after dialing a peer.
func Handshake(selfName string) string {
	return HandshakePrefix + " " + selfName
}

// ParseHandshake reports whether frame is a replica handshake and, if so,
// the sender's name.
func ParseHandshake(frame string) (name string, ok bool) {
	rest, found := strings.CutPrefix(frame, HandshakePrefix+" ")
	if !found || strings.Contains(rest, Delimiter) {
		return "", false
	}
	name = strings.TrimSpace(rest)
	return name, name != ""
}

// Dial opens a TCP stream to the replica.
func Dial(ctx context.Context, id Identity) (net.Conn, error) {
	dialer := net.Dialer{}
	return dialer.DialContext(ctx, "tcp", id.Address())
}
