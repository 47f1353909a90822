package web

import (
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"

	"grove-gnss/internal/gps"
)

// GPSSource provides the receiver pipeline state. *gps.Service satisfies it.
type GPSSource interface {
	Snapshot() gps.Snapshot
}

type Status struct {
	startUnixNano int64
	gps           atomic.Value // GPSSource
	outputs       atomic.Value // func() map[string]any
}

func NewStatus() *Status {
	s := &Status{}
	atomic.StoreInt64(&s.startUnixNano, time.Now().UTC().UnixNano())
	s.outputs.Store(func() map[string]any { return map[string]any{} })
	return s
}

func (s *Status) SetGPS(src GPSSource) {
	if src != nil {
		s.gps.Store(src)
	}
}

// SetOutputs installs the function that reports the optional outputs
// (mqtt, forward, record, indicator). It is called on every snapshot.
func (s *Status) SetOutputs(fn func() map[string]any) {
	if fn != nil {
		s.outputs.Store(fn)
	}
}

type StatusSnapshot struct {
	Service   string         `json:"service"`
	NowUTC    string         `json:"now_utc"`
	UptimeSec int64          `json:"uptime_sec"`
	GoVersion string         `json:"go_version"`
	Version   string         `json:"version,omitempty"`
	Commit    string         `json:"commit,omitempty"`
	GPS       gps.Snapshot   `json:"gps"`
	Outputs   map[string]any `json:"outputs"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	start := time.Unix(0, atomic.LoadInt64(&s.startUnixNano)).UTC()

	snap := StatusSnapshot{
		Service:   "grove-gnss",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(start).Seconds()),
		GoVersion: runtime.Version(),
		Outputs:   s.outputs.Load().(func() map[string]any)(),
	}
	if src, ok := s.gps.Load().(GPSSource); ok {
		snap.GPS = src.Snapshot()
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		snap.Version = bi.Main.Version
		for _, kv := range bi.Settings {
			if kv.Key == "vcs.revision" {
				snap.Commit = kv.Value
			}
		}
	}
	return snap
}
