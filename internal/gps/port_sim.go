package gps

import (
	"time"

	"grove-gnss/internal/sim"
)

type SimConfig struct {
	CenterLatDeg float64
	CenterLonDeg float64
	AltM         float64
	GroundKt     float64
	RadiusNm     float64
	Period       time.Duration
	// Rate is the interval between epochs.
	Rate time.Duration
}

// newSimPort returns a port that emits one simulated epoch per Rate. now
// defaults to time.Now.
func newSimPort(cfg SimConfig, now func() time.Time) Port {
	if now == nil {
		now = time.Now
	}
	rate := cfg.Rate
	if rate <= 0 {
		rate = time.Second
	}
	s := sim.NMEASim{
		Track: sim.Track{
			CenterLatDeg: cfg.CenterLatDeg,
			CenterLonDeg: cfg.CenterLonDeg,
			RadiusNm:     cfg.RadiusNm,
			Period:       cfg.Period,
		},
		AltM:     cfg.AltM,
		GroundKt: cfg.GroundKt,
	}
	var next time.Time
	return &queuePort{fill: func(dst []byte) []byte {
		t := now()
		if !next.IsZero() && t.Before(next) {
			return dst
		}
		for _, line := range s.Epoch(t) {
			dst = append(dst, line...)
			dst = append(dst, '\r', '\n')
		}
		next = t.Truncate(rate).Add(rate)
		return dst
	}}
}
