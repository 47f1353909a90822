package web

import (
	"context"
	"reflect"
	"sync"
	"time"

	"grove-gnss/internal/gps"
)

// NavSource is anything that can copy out the current navigation record.
// *gps.Aggregator satisfies it.
type NavSource interface {
	Snapshot() gps.NavState
}

// NavHub fans navigation snapshots out to live listeners (WebSocket clients).
// It keeps the most recent value so new subscribers get an immediate sample.
// Slow subscribers miss updates rather than block the publisher.
type NavHub struct {
	mu       sync.RWMutex
	subs     map[int]chan gps.NavState
	nextID   int
	last     gps.NavState
	haveLast bool
}

func NewNavHub() *NavHub {
	return &NavHub{subs: make(map[int]chan gps.NavState)}
}

func (h *NavHub) Subscribe(buffer int) (int, <-chan gps.NavState) {
	if h == nil {
		return 0, nil
	}
	if buffer <= 0 {
		buffer = 2
	}
	ch := make(chan gps.NavState, buffer)
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = ch
	last := h.last
	have := h.haveLast
	h.mu.Unlock()
	if have {
		select {
		case ch <- last:
		default:
		}
	}
	return id, ch
}

func (h *NavHub) Unsubscribe(id int) {
	if h == nil {
		return
	}
	h.mu.Lock()
	ch, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
		close(ch)
	}
	h.mu.Unlock()
}

func (h *NavHub) Subscribers() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

func (h *NavHub) Publish(nav gps.NavState) {
	if h == nil {
		return
	}
	// Sends happen under the read lock so Unsubscribe cannot close a channel
	// mid-send.
	h.mu.RLock()
	for _, ch := range h.subs {
		select {
		case ch <- nav:
		default:
		}
	}
	h.mu.RUnlock()

	h.mu.Lock()
	h.last = nav
	h.haveLast = true
	h.mu.Unlock()
}

// Run samples src every interval and publishes when the record changed.
func (h *NavHub) Run(ctx context.Context, src NavSource, interval time.Duration) {
	if h == nil || src == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	var prev gps.NavState
	first := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			nav := src.Snapshot()
			if !first && reflect.DeepEqual(nav, prev) {
				continue
			}
			first = false
			prev = nav
			h.Publish(nav)
		}
	}
}
