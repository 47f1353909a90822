package udp

import (
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"grove-gnss/internal/gps"
)

type sender interface {
	Send(payload []byte) error
}

type ForwarderSnapshot struct {
	Dest      string `json:"dest"`
	Sent      uint64 `json:"sent"`
	Errors    uint64 `json:"errors"`
	LastError string `json:"last_error,omitempty"`
}

// Forwarder re-emits every recognised sentence as its own datagram,
// terminated with CRLF. Rejected, ignored and unrecognised lines are not
// forwarded.
type Forwarder struct {
	dest string
	out  sender

	sent   atomic.Uint64
	errors atomic.Uint64

	mu      sync.Mutex
	lastErr string
}

func NewForwarder(b *Broadcaster) *Forwarder {
	return &Forwarder{dest: b.Dest(), out: b}
}

func (f *Forwarder) ObserveSentence(_ string, outcome gps.Outcome, line string) {
	if f == nil {
		return
	}
	if outcome != gps.OutcomeApplied && outcome != gps.OutcomePartial {
		return
	}
	if err := f.Forward(line); err != nil {
		f.errors.Add(1)
		f.setError(err)
		return
	}
	f.sent.Add(1)
	f.setError(nil)
}

// Forward sends one line, normalising the terminator to CRLF.
func (f *Forwarder) Forward(line string) error {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return nil
	}
	return f.out.Send([]byte(line + "\r\n"))
}

func (f *Forwarder) Snapshot() ForwarderSnapshot {
	if f == nil {
		return ForwarderSnapshot{}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return ForwarderSnapshot{
		Dest:      f.dest,
		Sent:      f.sent.Load(),
		Errors:    f.errors.Load(),
		LastError: f.lastErr,
	}
}

func (f *Forwarder) setError(err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	f.mu.Lock()
	changed := f.lastErr != msg
	f.lastErr = msg
	f.mu.Unlock()
	if changed && err != nil {
		log.Printf("udp forward failed dest=%s: %v", f.dest, err)
	}
}
