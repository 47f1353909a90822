package gps

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const defaultLineQueue = 64

// Config controls the GPS service.
//
// Driver selects the Port implementation (see the Driver constants). Device,
// Baud and Timeout apply to the serial drivers; GPSDAddr, Sim and Replay to
// their respective drivers.
type Config struct {
	Enable bool

	Driver  string
	Device  string
	Baud    int
	Timeout time.Duration

	PollInterval   time.Duration
	Talkers        []string
	VerifyChecksum bool

	// LineQueue is the capacity of the reader -> aggregator channel.
	LineQueue int

	GPSDAddr string
	Sim      SimConfig
	Replay   ReplayConfig

	// LineTap, if set, sees every raw line on the reader goroutine before it
	// is queued. Used by the recorder.
	LineTap   func(line string)
	Observers []Observer
}

type Snapshot struct {
	Enabled bool   `json:"enabled"`
	Running bool   `json:"running"`
	Driver  string `json:"driver,omitempty"`
	Device  string `json:"device,omitempty"`
	Baud    int    `json:"baud,omitempty"`

	BytesRead    uint64 `json:"bytes_read"`
	LinesRead    uint64 `json:"lines_read"`
	LinesDropped uint64 `json:"lines_dropped"`
	Overflows    uint64 `json:"overflows"`

	LastError string   `json:"last_error,omitempty"`
	Nav       NavState `json:"nav"`
}

// Service owns one port, its LineReader and the Aggregator fed by it.
type Service struct {
	cfg Config
	agg *Aggregator

	mu      sync.Mutex
	sess    *session
	reader  *LineReader
	lastErr string

	linesRead    atomic.Uint64
	linesDropped atomic.Uint64
	dropping     atomic.Bool
}

type session struct {
	port   Port
	reader *LineReader
	lines  chan string
	stop   chan struct{}
	wg     sync.WaitGroup
}

func New(cfg Config) (*Service, error) {
	agg, err := NewAggregator(AggregatorOptions{
		Talkers:        cfg.Talkers,
		VerifyChecksum: cfg.VerifyChecksum,
		Observers:      cfg.Observers,
	})
	if err != nil {
		return nil, err
	}
	return &Service{cfg: cfg, agg: agg}, nil
}

// Nav returns the aggregator. It is valid before Start and after Close.
func (s *Service) Nav() *Aggregator {
	if s == nil {
		return nil
	}
	return s.agg
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sess != nil {
		return nil
	}

	port, err := openPortFn(s.cfg)
	if err != nil {
		s.lastErr = fmt.Sprintf("gps open failed driver=%s device=%s: %v", s.cfg.Driver, s.deviceLabel(), err)
		return fmt.Errorf("gps: open %s: %w", s.cfg.Driver, err)
	}

	queue := s.cfg.LineQueue
	if queue <= 0 {
		queue = defaultLineQueue
	}
	sess := &session{
		port:   port,
		reader: NewLineReader(port, LineReaderOptions{PollInterval: s.cfg.PollInterval}),
		lines:  make(chan string, queue),
		stop:   make(chan struct{}),
	}
	sess.reader.SetLineHandler(s.lineHandler(sess.lines))

	sess.wg.Add(1)
	go func() {
		defer sess.wg.Done()
		// Drains until the channel is closed so queued lines are not lost.
		s.agg.Run(context.Background(), sess.lines)
	}()
	sess.reader.Start()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-sess.stop:
		}
	}()

	s.sess = sess
	s.reader = sess.reader
	s.lastErr = ""
	log.Printf("gps enabled driver=%s device=%s baud=%d", s.cfg.Driver, s.deviceLabel(), s.cfg.Baud)
	return nil
}

func (s *Service) lineHandler(lines chan<- string) func(string) {
	tap := s.cfg.LineTap
	return func(line string) {
		s.linesRead.Add(1)
		if tap != nil {
			tap(line)
		}
		select {
		case lines <- line:
			s.dropping.Store(false)
		default:
			s.linesDropped.Add(1)
			if !s.dropping.Swap(true) {
				log.Printf("gps line queue full; dropping lines queue=%d", cap(lines))
			}
		}
	}
}

// Close stops the reader, lets the aggregator drain the queue and closes the
// port. It is safe to call more than once.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	sess := s.sess
	s.sess = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}

	close(sess.stop)
	sess.reader.Stop()
	close(sess.lines)
	sess.wg.Wait()
	if err := sess.port.Close(); err != nil {
		s.setError(fmt.Sprintf("gps close failed: %v", err))
	}
	log.Printf("gps stopped driver=%s lines=%d dropped=%d", s.cfg.Driver, s.linesRead.Load(), s.linesDropped.Load())
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.Lock()
	running := s.sess != nil
	reader := s.reader
	lastErr := s.lastErr
	s.mu.Unlock()

	snap := Snapshot{
		Enabled:      s.cfg.Enable,
		Running:      running,
		Driver:       s.cfg.Driver,
		Device:       s.deviceLabel(),
		Baud:         s.cfg.Baud,
		LinesRead:    s.linesRead.Load(),
		LinesDropped: s.linesDropped.Load(),
		Nav:          s.agg.Snapshot(),
	}
	if reader != nil {
		st := reader.Stats()
		snap.BytesRead = st.BytesRead
		snap.Overflows = st.Overflows
		if lastErr == "" {
			lastErr = reader.LastError()
		}
	}
	snap.LastError = lastErr
	return snap
}

func (s *Service) deviceLabel() string {
	switch strings.ToLower(strings.TrimSpace(s.cfg.Driver)) {
	case DriverGPSD:
		return s.cfg.GPSDAddr
	case DriverReplay:
		return s.cfg.Replay.Path
	case DriverSim:
		return "sim"
	default:
		return s.cfg.Device
	}
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}
