package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/alanwang67/replicated_files/metrics"
	"github.com/alanwang67/replicated_files/protocol"
	"github.com/alanwang67/replicated_files/workload"
	"golang.org/x/exp/rand"
)

var (
	ErrNotConnected = errors.New("client: replica not connected")
	ErrNoReplicas   = errors.New("client: no replica reachable")
)

// Connect opens a stream to every configured replica. Unreachable
// replicas are skipped; it fails only if none can be reached.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range c.Servers {
		if _, ok := c.conns[id.Name]; ok {
			continue
		}
		conn, err := protocol.Dial(ctx, id)
		if err != nil {
			c.Logger.Warnf("could not connect to %s: %v", id, err)
			continue
		}
		c.Logger.Infof("connected to %s", id)
		c.conns[id.Name] = conn
	}

	if len(c.conns) == 0 {
		return ErrNoReplicas
	}
	return nil
}

// Connected returns the sorted names of the replicas with an open stream.
func (c *Client) Connected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectedLocked()
}

func (c *Client) connectedLocked() []string {
	names := make([]string, 0, len(c.conns))
	for name := range c.conns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *Client) Clock() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock.Time()
}

// Write appends line to file through the named replica and reports
// whether the replica acknowledged success. A stream failure closes the
// stream and is returned as an error.
func (c *Client) Write(server, file, line string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writeLocked(server, file, line)
}

func (c *Client) writeLocked(server, file, line string) (bool, error) {
	conn, ok := c.conns[server]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrNotConnected, server)
	}

	req := protocol.Message{
		SenderName: c.Name,
		Type:       protocol.ClientWriteRequest,
		Timestamp:  c.clock.Advance(),
		Payload:    protocol.WritePayload(file, line),
	}
	c.Logger.Debugf("sending %q to %s", req.Encode(), server)

	err := protocol.WriteMessage(conn, req)
	var reply protocol.Message
	if err == nil {
		reply, err = protocol.ReadMessage(conn)
	}
	if err != nil {
		conn.Close()
		delete(c.conns, server)
		return false, fmt.Errorf("write to %s: %w", server, err)
	}
	c.Logger.Debugf("received %q from %s", reply.Encode(), server)

	c.clock.Advance()
	c.clock.Observe(reply.Timestamp)

	switch reply.Type {
	case protocol.WriteSuccessAck:
		return true, nil
	case protocol.WriteFailureAck:
		return false, nil
	default:
		return false, fmt.Errorf("write to %s: unexpected %s reply", server, reply.Type)
	}
}

// WriteAny tries the connected replicas in random order until one of them
// answers. It returns the replica that answered.
func (c *Client) WriteAny(file, line string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	names := c.connectedLocked()
	var errs []error
	for _, i := range rand.Perm(len(names)) {
		ok, err := c.writeLocked(names[i], file, line)
		if err == nil {
			return names[i], ok, nil
		}
		c.Logger.Warnf("%v", err)
		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return "", false, ErrNoReplicas
	}
	return "", false, errors.Join(errs...)
}

// Run executes the instructions in order and records one metric per
// write. It stops early only when ctx is done.
func (c *Client) Run(ctx context.Context, instructions []workload.Instruction) ([]metrics.Metric, error) {
	c.Logger.Debugf("starting client %s with %d instructions", c.Name, len(instructions))

	startTime := time.Now()
	results := make([]metrics.Metric, 0, len(instructions))

	for i, in := range instructions {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return results, err
			}
		} else if err := ctx.Err(); err != nil {
			return results, err
		}

		startOp := time.Now()
		server := in.Server
		var ok bool
		var err error
		if server == "" {
			server, ok, err = c.WriteAny(in.File, in.Line)
		} else {
			ok, err = c.Write(server, in.File, in.Line)
		}

		switch {
		case err != nil:
			c.Logger.Warnf("write %d failed: %v", i+1, err)
		case ok:
			c.Logger.Infof("write %d of %q to %s via %s succeeded", i+1, in.Line, in.File, server)
		default:
			c.Logger.Infof("write %d of %q to %s via %s was rejected", i+1, in.Line, in.File, server)
		}

		results = append(results, metrics.Metric{
			OperationIndex: i + 1,
			OperationType:  workload.InstructionTypeWrite,
			Server:         server,
			Latency:        time.Since(startOp).Seconds(),
			Timestamp:      time.Since(startTime).Seconds(),
			Succeeded:      ok,
		})

		if d := in.Delay(); d > 0 {
			select {
			case <-ctx.Done():
				return results, ctx.Err()
			case <-time.After(d):
			}
		}
	}

	c.Logger.Infof("client %s completed workload", c.Name)
	return results, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for name, conn := range c.conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.conns, name)
	}
	return errors.Join(errs...)
}
