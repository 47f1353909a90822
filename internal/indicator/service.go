// Package indicator drives a status LED from the fix state: solid when a fix
// is held, blinking while the receiver is searching, off when stopped.
package indicator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
)

type led interface {
	Set(on bool) error
	Close() error
}

// FixSource is satisfied by *gps.Aggregator.
type FixSource interface {
	HasFix() bool
}

type Config struct {
	Enable bool
	// Pin is BCM GPIO numbering.
	Pin            int
	UpdateInterval time.Duration
}

type Snapshot struct {
	Enabled   bool   `json:"enabled"`
	Available bool   `json:"available"`
	Pin       int    `json:"pin"`
	Fix       bool   `json:"fix"`
	On        bool   `json:"on"`
	LastError string `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	src FixSource

	mu   sync.RWMutex
	snap Snapshot

	ledMu sync.Mutex
	led   led

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, src FixSource) *Service {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = 500 * time.Millisecond
	}
	return &Service{
		cfg:    cfg,
		src:    src,
		snap:   Snapshot{Enabled: cfg.Enable, Pin: cfg.Pin},
		stopCh: make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("indicator: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}
	if s.src == nil {
		return fmt.Errorf("indicator: fix source is nil")
	}

	l, err := openGPIOFn(s.cfg.Pin)
	if err != nil {
		s.setState(func(sn *Snapshot) { sn.LastError = err.Error() })
		return err
	}
	s.ledMu.Lock()
	s.led = l
	s.ledMu.Unlock()
	s.setState(func(sn *Snapshot) { sn.Available = true })
	log.Printf("indicator enabled pin=%d interval=%s", s.cfg.Pin, s.cfg.UpdateInterval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx, l)
	}()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.stopCh:
		}
	}()
	return nil
}

func (s *Service) run(ctx context.Context, l led) {
	t := time.NewTicker(s.cfg.UpdateInterval)
	defer t.Stop()

	on := false
	for {
		fix := s.src.HasFix()
		on = nextLevel(fix, on)
		err := l.Set(on)
		s.setState(func(sn *Snapshot) {
			sn.Fix = fix
			sn.On = on
			if err != nil {
				sn.LastError = err.Error()
			} else {
				sn.LastError = ""
			}
		})

		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
		}
	}
}

// nextLevel is solid on with a fix and toggles without one.
func nextLevel(fix, prev bool) bool {
	if fix {
		return true
	}
	return !prev
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Close stops the update loop and leaves the LED off.
func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()

	s.ledMu.Lock()
	l := s.led
	s.led = nil
	s.ledMu.Unlock()
	if l != nil {
		_ = l.Close()
		s.setState(func(sn *Snapshot) { sn.On = false })
	}
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
}
