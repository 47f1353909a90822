package gps

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

const (
	defaultPollInterval = 50 * time.Millisecond
	// maxLineBytes bounds the accumulation buffer; NMEA sentences are at
	// most 82 characters.
	maxLineBytes = 4096
)

type LineReaderOptions struct {
	// PollInterval is the sleep between polling cycles. Defaults to 50ms.
	PollInterval time.Duration
}

// LineReaderStats are cumulative counters since construction.
type LineReaderStats struct {
	BytesRead uint64 `json:"bytes_read"`
	Lines     uint64 `json:"lines"`
	Overflows uint64 `json:"overflows"`
}

// LineReader drains a Port on a fixed polling interval and hands every
// complete '\n'-terminated line to the registered handler.
//
// The handler runs on the reader goroutine after the cycle's bytes have been
// drained, once per line in arrival order. A slow handler delays the next
// cycle but never overlaps it.
type LineReader struct {
	port     Port
	interval time.Duration

	mu      sync.Mutex
	handler func(line string)
	cancel  context.CancelFunc
	done    chan struct{}
	lastErr string

	bytesRead atomic.Uint64
	lines     atomic.Uint64
	overflows atomic.Uint64
}

func NewLineReader(port Port, opts LineReaderOptions) *LineReader {
	interval := opts.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	return &LineReader{port: port, interval: interval}
}

// SetLineHandler registers fn for complete lines; nil clears it. The change
// is picked up at the start of the next polling cycle.
func (r *LineReader) SetLineHandler(fn func(line string)) {
	r.mu.Lock()
	r.handler = fn
	r.mu.Unlock()
}

// Start launches the polling goroutine. It is a no-op while running.
func (r *LineReader) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(ctx, r.done)
}

// Stop requests the goroutine to exit at the top of its next cycle and waits
// for it. Concurrent or repeated calls wait for the same exit.
//
// Stop cannot interrupt a Port.Read that never returns.
func (r *LineReader) Stop() {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done

	r.mu.Lock()
	if r.done == done {
		r.cancel = nil
	}
	r.mu.Unlock()
}

func (r *LineReader) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cancel != nil
}

func (r *LineReader) Stats() LineReaderStats {
	return LineReaderStats{
		BytesRead: r.bytesRead.Load(),
		Lines:     r.lines.Load(),
		Overflows: r.overflows.Load(),
	}
}

// LastError is the most recent port error, if any.
func (r *LineReader) LastError() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *LineReader) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	acc := &lineAcc{buf: make([]byte, 0, 128)}
	chunk := make([]byte, 512)
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r.mu.Lock()
		handler := r.handler
		r.mu.Unlock()

		batch := r.drain(acc, chunk)

		if handler != nil {
			for _, line := range batch {
				handler(line)
			}
		}

		timer.Reset(r.interval)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

// lineAcc is the partial line carried between cycles. Once a line outgrows
// maxLineBytes everything up to its terminator is dropped.
type lineAcc struct {
	buf        []byte
	discarding bool
}

func (a *lineAcc) push(b byte) (line string, ok bool, overflow bool) {
	if b == '\n' {
		wasDiscarding := a.discarding
		a.discarding = false
		if wasDiscarding || len(a.buf) == 0 {
			a.buf = a.buf[:0]
			return "", false, false
		}
		line = string(a.buf)
		a.buf = a.buf[:0]
		return line, true, false
	}
	if a.discarding {
		return "", false, false
	}
	if len(a.buf) >= maxLineBytes {
		a.buf = a.buf[:0]
		a.discarding = true
		return "", false, true
	}
	a.buf = append(a.buf, b)
	return "", false, false
}

// drain reads every pending byte and returns the completed lines.
func (r *LineReader) drain(acc *lineAcc, chunk []byte) []string {
	var batch []string
	pending, err := r.port.Buffered()
	if err != nil {
		// A dead port looks like a silent one.
		r.setErr(err)
		return nil
	}
	for pending > 0 {
		want := pending
		if want > len(chunk) {
			want = len(chunk)
		}
		n, err := r.port.Read(chunk[:want])
		if n > 0 {
			r.bytesRead.Add(uint64(n))
			for _, b := range chunk[:n] {
				line, ok, overflow := acc.push(b)
				if overflow {
					r.overflows.Add(1)
				}
				if ok {
					batch = append(batch, line)
					r.lines.Add(1)
				}
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.setErr(err)
			}
			break
		}
		if n == 0 {
			break
		}
		pending -= n
	}
	return batch
}

func (r *LineReader) setErr(err error) {
	msg := err.Error()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastErr = msg
}
