package gps

import (
	"fmt"
	"time"

	"grove-gnss/internal/replay"
)

type ReplayConfig struct {
	Path  string
	Speed float64
	Loop  bool
}

func openReplayPort(cfg ReplayConfig, now func() time.Time) (Port, error) {
	recs, err := replay.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("gps: replay %s: %w", cfg.Path, err)
	}
	return newReplayPort(recs, cfg.Speed, cfg.Loop, now)
}

// newReplayPort feeds captured lines back with their recorded spacing,
// scaled by speed. Time is sampled on each Buffered call.
func newReplayPort(recs []replay.Record, speed float64, loop bool, now func() time.Time) (Port, error) {
	if speed == 0 {
		speed = 1
	}
	if speed < 0 {
		return nil, fmt.Errorf("gps: replay speed must be > 0")
	}
	if now == nil {
		now = time.Now
	}
	data := 0
	for _, r := range recs {
		if r.Line != "" {
			data++
		}
	}
	if data == 0 {
		return nil, fmt.Errorf("gps: replay has no records")
	}

	var (
		started bool
		start   time.Time
		origin  time.Duration
		idx     int
	)
	return &queuePort{fill: func(dst []byte) []byte {
		t := now()
		if !started {
			started = true
			start = t
		}
		elapsed := time.Duration(float64(t.Sub(start)) * speed)
		wrapped := false
		for {
			if idx >= len(recs) {
				// At most one pass per call, so a capture whose records are
				// all at offset 0 cannot spin here.
				if !loop || wrapped {
					return dst
				}
				wrapped = true
				idx = 0
				origin = 0
				start = t
				elapsed = 0
			}
			r := recs[idx]
			if r.Line == "" {
				// START marker: the next session is timed from now.
				origin = r.At
				if idx > 0 {
					start = t
					elapsed = 0
				}
				idx++
				continue
			}
			if r.At-origin > elapsed {
				return dst
			}
			dst = append(dst, r.Line...)
			dst = append(dst, '\n')
			idx++
		}
	}}, nil
}
