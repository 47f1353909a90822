package indicator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeLED struct {
	mu     sync.Mutex
	levels []bool
	closed bool
	setCh  chan bool
}

func (l *fakeLED) Set(on bool) error {
	l.mu.Lock()
	l.levels = append(l.levels, on)
	l.mu.Unlock()
	select {
	case l.setCh <- on:
	default:
	}
	return nil
}

func (l *fakeLED) Close() error {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	return nil
}

type fakeFix struct{ fix atomic.Bool }

func (f *fakeFix) HasFix() bool { return f.fix.Load() }

func withLED(t *testing.T, l *fakeLED, openErr error) {
	t.Helper()
	old := openGPIOFn
	openGPIOFn = func(pin int) (led, error) {
		if openErr != nil {
			return nil, openErr
		}
		return l, nil
	}
	t.Cleanup(func() { openGPIOFn = old })
}

func TestNextLevel(t *testing.T) {
	if !nextLevel(true, false) || !nextLevel(true, true) {
		t.Fatalf("fix should hold the LED on")
	}
	if nextLevel(false, true) || !nextLevel(false, false) {
		t.Fatalf("no fix should toggle")
	}
}

func TestServiceBlinksThenHoldsOnFix(t *testing.T) {
	l := &fakeLED{setCh: make(chan bool, 64)}
	withLED(t, l, nil)
	src := &fakeFix{}

	svc := New(Config{Enable: true, Pin: 17, UpdateInterval: time.Millisecond}, src)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	first := waitLevel(t, l.setCh)
	second := waitLevel(t, l.setCh)
	if first == second {
		t.Fatalf("expected blinking without fix, got %v then %v", first, second)
	}

	src.fix.Store(true)
	deadline := time.Now().Add(2 * time.Second)
	for !svc.Snapshot().Fix && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	for drained := false; !drained; {
		select {
		case <-l.setCh:
		default:
			drained = true
		}
	}
	for i := 0; i < 3; i++ {
		if !waitLevel(t, l.setCh) {
			t.Fatalf("expected LED held on with fix")
		}
	}

	svc.Close()
	svc.Close()
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if !closed {
		t.Fatalf("expected LED closed")
	}
	if snap := svc.Snapshot(); snap.On || !snap.Available || snap.Pin != 17 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func waitLevel(t *testing.T, ch chan bool) bool {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for LED update")
		return false
	}
}

func TestServiceStopsOnContextCancel(t *testing.T) {
	l := &fakeLED{setCh: make(chan bool, 64)}
	withLED(t, l, nil)

	ctx, cancel := context.WithCancel(context.Background())
	svc := New(Config{Enable: true, UpdateInterval: time.Millisecond}, &fakeFix{})
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		closed := l.closed
		l.mu.Unlock()
		if closed {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("expected LED closed after cancel")
}

func TestServiceOpenError(t *testing.T) {
	withLED(t, nil, errors.New("gpio busy"))

	svc := New(Config{Enable: true, Pin: 4}, &fakeFix{})
	if err := svc.Start(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
	if snap := svc.Snapshot(); snap.Available || snap.LastError != "gpio busy" {
		t.Fatalf("snapshot=%+v", snap)
	}
	svc.Close()
}

func TestServiceDisabledDoesNothing(t *testing.T) {
	withLED(t, nil, errors.New("should not open"))
	svc := New(Config{}, nil)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	svc.Close()
	var nilSvc *Service
	nilSvc.Close()
	if nilSvc.Snapshot() != (Snapshot{}) {
		t.Fatalf("expected zero snapshot")
	}
}
