package gps

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Port is the receive side of a GNSS connection. Buffered reports how many
// bytes can be read without blocking.
type Port interface {
	Buffered() (int, error)
	Read(p []byte) (int, error)
	Close() error
}

const (
	DriverTermios = "termios"
	DriverBugst   = "bugst"
	DriverJacobsa = "jacobsa"
	DriverGPSD    = "gpsd"
	DriverSim     = "sim"
	DriverReplay  = "replay"
)

var openPortFn = openPort

func openPort(cfg Config) (Port, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverTermios:
		return openTermios(cfg.Device, cfg.Baud, cfg.Timeout)
	case DriverBugst:
		return openBugst(cfg.Device, cfg.Baud)
	case DriverJacobsa:
		return openJacobsa(cfg.Device, cfg.Baud, cfg.Timeout)
	case DriverGPSD:
		return openGPSD(cfg.GPSDAddr)
	case DriverSim:
		return newSimPort(cfg.Sim, nil), nil
	case DriverReplay:
		return openReplayPort(cfg.Replay, nil)
	default:
		return nil, fmt.Errorf("gps: unknown driver %q", cfg.Driver)
	}
}

// chunkPort adapts a reader without a pending-byte query. Buffered performs
// one short read and keeps the bytes until Read drains them. readFn must
// return promptly when no data is available (0, nil or a timeout error that
// isTimeout recognizes).
type chunkPort struct {
	readFn    func(p []byte) (int, error)
	closeFn   func() error
	isTimeout func(error) bool

	mu      sync.Mutex
	pending []byte
	scratch []byte
}

func newChunkPort(readFn func([]byte) (int, error), closeFn func() error, isTimeout func(error) bool) *chunkPort {
	return &chunkPort{readFn: readFn, closeFn: closeFn, isTimeout: isTimeout, scratch: make([]byte, 1024)}
}

func (c *chunkPort) Buffered() (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, err := c.readFn(c.scratch)
	if n > 0 {
		c.pending = append(c.pending, c.scratch[:n]...)
	}
	if err != nil && !errors.Is(err, io.EOF) && (c.isTimeout == nil || !c.isTimeout(err)) {
		return len(c.pending), err
	}
	return len(c.pending), nil
}

func (c *chunkPort) Read(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *chunkPort) Close() error {
	if c.closeFn == nil {
		return nil
	}
	return c.closeFn()
}

// queuePort is a pull-based in-memory port: fill is called from Buffered to
// append whatever has become due.
type queuePort struct {
	mu   sync.Mutex
	buf  []byte
	fill func(dst []byte) []byte
}

func (q *queuePort) Buffered() (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.fill != nil {
		q.buf = q.fill(q.buf)
	}
	return len(q.buf), nil
}

func (q *queuePort) Read(p []byte) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := copy(p, q.buf)
	q.buf = q.buf[n:]
	return n, nil
}

func (q *queuePort) Close() error { return nil }
