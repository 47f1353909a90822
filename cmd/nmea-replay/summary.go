package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"grove-gnss/internal/gps"
	"grove-gnss/internal/replay"
)

type captureSummary struct {
	Segments    int
	Lines       int
	MaxDuration time.Duration
	// Counts is keyed by "KIND outcome", e.g. "GGA applied".
	Counts map[string]int
	Final  gps.NavState
}

type countingObserver map[string]int

func (c countingObserver) ObserveSentence(kind string, outcome gps.Outcome, _ string) {
	if kind == "" {
		kind = "-"
	}
	c[kind+" "+outcome.String()]++
}

// summarizeCapture feeds every line through a permissive aggregator and
// counts how each one was classified.
func summarizeCapture(records []replay.Record) (captureSummary, error) {
	counts := countingObserver{}
	s := captureSummary{Counts: counts}

	agg, err := gps.NewAggregator(gps.AggregatorOptions{
		Talkers:   []string{"GP", "GN", "GL", "GA", "BD"},
		Observers: []gps.Observer{counts},
	})
	if err != nil {
		return s, err
	}

	origin := time.Duration(0)
	hasLines := false
	for _, r := range records {
		if r.Line == "" {
			s.Segments++
			origin = r.At
			continue
		}
		hasLines = true
		s.Lines++
		at := r.At - origin
		if at < 0 {
			at = 0
		}
		if at > s.MaxDuration {
			s.MaxDuration = at
		}
		agg.HandleLine(r.Line)
	}
	if s.Segments == 0 && hasLines {
		s.Segments = 1
	}
	s.Final = agg.Snapshot()
	return s, nil
}

func printCaptureSummary(w io.Writer, path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("path is empty")
	}
	recs, err := replay.ReadFile(path)
	if err != nil {
		return err
	}
	s, err := summarizeCapture(recs)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "path: %s\n", path)
	fmt.Fprintf(w, "segments: %d\n", s.Segments)
	fmt.Fprintf(w, "lines: %d\n", s.Lines)
	fmt.Fprintf(w, "max_duration: %s\n", s.MaxDuration)
	fmt.Fprintf(w, "final_fix: %d sats_in_view=%d lat=%.6f lon=%.6f\n",
		s.Final.FixQuality, s.Final.SatellitesInView, s.Final.LatDeg, s.Final.LonDeg)

	keys := make([]string, 0, len(s.Counts))
	for k := range s.Counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintf(w, "sentence_counts:\n")
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %d\n", k, s.Counts[k])
	}
	return nil
}
