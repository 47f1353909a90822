package gps

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"grove-gnss/internal/replay"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func readAllPending(t *testing.T, p Port) string {
	t.Helper()
	n, err := p.Buffered()
	if err != nil {
		t.Fatalf("Buffered() error: %v", err)
	}
	buf := make([]byte, n)
	got, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	return string(buf[:got])
}

type timeoutErr struct{}

func (timeoutErr) Error() string { return "i/o timeout" }

func TestChunkPortBuffersShortReads(t *testing.T) {
	chunks := []string{"$GP", "", "GGA\n"}
	var closed bool
	p := newChunkPort(func(b []byte) (int, error) {
		if len(chunks) == 0 {
			return 0, io.EOF
		}
		c := chunks[0]
		chunks = chunks[1:]
		if c == "" {
			return 0, timeoutErr{}
		}
		return copy(b, c), nil
	}, func() error { closed = true; return nil }, func(err error) bool {
		return errors.Is(err, timeoutErr{})
	})

	for i := 0; i < 3; i++ {
		if _, err := p.Buffered(); err != nil {
			t.Fatalf("Buffered() #%d error: %v", i, err)
		}
	}
	if got := readAllPending(t, p); got != "$GPGGA\n" {
		t.Fatalf("got %q", got)
	}
	// EOF is silence, not an error.
	if n, err := p.Buffered(); n != 0 || err != nil {
		t.Fatalf("Buffered() after EOF = %d, %v", n, err)
	}
	if err := p.Close(); err != nil || !closed {
		t.Fatalf("Close() err=%v closed=%v", err, closed)
	}
}

func TestChunkPortReportsHardErrors(t *testing.T) {
	p := newChunkPort(func([]byte) (int, error) {
		return 0, errors.New("port unplugged")
	}, nil, nil)
	if _, err := p.Buffered(); err == nil {
		t.Fatalf("expected error")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestSimPortEmitsOneEpochPerRate(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := newSimPort(SimConfig{CenterLatDeg: 45, CenterLonDeg: -122, AltM: 100, GroundKt: 20, Rate: time.Second}, clk.now)

	first := readAllPending(t, p)
	lines := strings.Split(strings.TrimSuffix(first, "\r\n"), "\r\n")
	if len(lines) != 6 {
		t.Fatalf("expected 6 sentences, got %d: %q", len(lines), lines)
	}
	for i, prefix := range []string{"$GPGGA,", "$GPGSA,", "$GPGSV,2,1,", "$GPGSV,2,2,", "$GPRMC,", "$GPVTG,"} {
		if !strings.HasPrefix(lines[i], prefix) {
			t.Fatalf("line %d=%q want prefix %q", i, lines[i], prefix)
		}
	}

	clk.advance(500 * time.Millisecond)
	if got := readAllPending(t, p); got != "" {
		t.Fatalf("epoch emitted early: %q", got)
	}
	clk.advance(500 * time.Millisecond)
	if got := readAllPending(t, p); !strings.HasPrefix(got, "$GPGGA,120001.000,") {
		t.Fatalf("second epoch=%q", got)
	}
}

func TestSimPortOutputIsAccepted(t *testing.T) {
	clk := &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
	p := newSimPort(SimConfig{CenterLatDeg: -33.9, CenterLonDeg: 151.2, AltM: 50, GroundKt: 10, Rate: time.Second}, clk.now)

	obs := &recordingObserver{}
	a := newTestAggregator(t, AggregatorOptions{VerifyChecksum: true, Observers: []Observer{obs}})
	for _, line := range strings.Split(readAllPending(t, p), "\n") {
		a.HandleLine(line)
	}
	for _, o := range obs.seen {
		if !strings.HasSuffix(o, ":applied") && o != "GSV:partial" {
			t.Fatalf("sim sentence not applied: %v", obs.seen)
		}
	}
	lat, lon := a.Location()
	if lat > -33.8 || lat < -34.0 || lon < 151.1 || lon > 151.3 {
		t.Fatalf("location=(%v,%v)", lat, lon)
	}
	if a.SatellitesInView() != 6 || len(a.SatellitesUsed()) != 4 {
		t.Fatalf("in view=%d used=%v", a.SatellitesInView(), a.SatellitesUsed())
	}
	if !approx(a.Velocity(), 10*1.852) {
		t.Fatalf("velocity=%v", a.Velocity())
	}
}

func TestReplayPortHonorsTiming(t *testing.T) {
	recs := []replay.Record{
		{},
		{At: 0, Line: "$GPGGA,a"},
		{At: 2 * time.Second, Line: "$GPRMC,b"},
	}
	clk := &fakeClock{t: time.Unix(1000, 0)}
	p, err := newReplayPort(recs, 2, false, clk.now)
	if err != nil {
		t.Fatalf("newReplayPort() error: %v", err)
	}

	if got := readAllPending(t, p); got != "$GPGGA,a\n" {
		t.Fatalf("got %q", got)
	}
	clk.advance(900 * time.Millisecond)
	if got := readAllPending(t, p); got != "" {
		t.Fatalf("early: %q", got)
	}
	// 1s at 2x covers the 2s offset.
	clk.advance(100 * time.Millisecond)
	if got := readAllPending(t, p); got != "$GPRMC,b\n" {
		t.Fatalf("got %q", got)
	}
	clk.advance(time.Hour)
	if got := readAllPending(t, p); got != "" {
		t.Fatalf("expected end of capture, got %q", got)
	}
}

func TestReplayPortLoops(t *testing.T) {
	recs := []replay.Record{{}, {At: 0, Line: "x"}, {At: time.Second, Line: "y"}}
	clk := &fakeClock{t: time.Unix(0, 0)}
	p, err := newReplayPort(recs, 1, true, clk.now)
	if err != nil {
		t.Fatalf("newReplayPort() error: %v", err)
	}
	if got := readAllPending(t, p); got != "x\n" {
		t.Fatalf("got %q", got)
	}
	clk.advance(time.Second)
	// y is due, then the loop restarts and x is due immediately.
	if got := readAllPending(t, p); got != "y\nx\n" {
		t.Fatalf("got %q", got)
	}
}

func TestReplayPortLoopsSingleZeroOffsetRecord(t *testing.T) {
	recs := []replay.Record{{}, {At: 0, Line: "$GPVTG,054.7,T,,M,005.5,N,010.2,K"}}
	clk := &fakeClock{t: time.Unix(0, 0)}
	p, err := newReplayPort(recs, 1, true, clk.now)
	if err != nil {
		t.Fatalf("newReplayPort() error: %v", err)
	}

	done := make(chan string, 1)
	go func() {
		n, _ := p.Buffered()
		buf := make([]byte, n)
		got, _ := p.Read(buf)
		done <- string(buf[:got])
	}()
	select {
	case got := <-done:
		// The first pass plus one wrapped pass, then the call returns.
		if n := strings.Count(got, "$GPVTG"); n != 2 {
			t.Fatalf("got %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Buffered did not return")
	}

	if got := readAllPending(t, p); got != recs[1].Line+"\n" {
		t.Fatalf("next poll got %q", got)
	}
}

func TestReplayPortStartMarkerRebasesClock(t *testing.T) {
	recs := []replay.Record{
		{}, {At: 0, Line: "a"}, {At: 5 * time.Second, Line: "b"},
		{}, {At: 0, Line: "c"}, {At: time.Second, Line: "d"},
	}
	clk := &fakeClock{t: time.Unix(0, 0)}
	p, err := newReplayPort(recs, 1, false, clk.now)
	if err != nil {
		t.Fatalf("newReplayPort() error: %v", err)
	}
	_ = readAllPending(t, p)
	clk.advance(5 * time.Second)
	if got := readAllPending(t, p); got != "b\nc\n" {
		t.Fatalf("got %q", got)
	}
	clk.advance(999 * time.Millisecond)
	if got := readAllPending(t, p); got != "" {
		t.Fatalf("early: %q", got)
	}
	clk.advance(time.Millisecond)
	if got := readAllPending(t, p); got != "d\n" {
		t.Fatalf("got %q", got)
	}
}

func TestReplayPortRejectsBadInput(t *testing.T) {
	if _, err := newReplayPort([]replay.Record{{}}, 1, true, nil); err == nil {
		t.Fatalf("expected error for capture without data")
	}
	if _, err := newReplayPort([]replay.Record{{Line: "x"}}, -1, false, nil); err == nil {
		t.Fatalf("expected error for negative speed")
	}
}

func TestOpenReplayPortFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "capture.log")
	if err := os.WriteFile(path, []byte("START\n0,$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48\r\n"), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	p, err := openPort(Config{Driver: "replay", Replay: ReplayConfig{Path: path}})
	if err != nil {
		t.Fatalf("openPort() error: %v", err)
	}
	if got := readAllPending(t, p); got != "$GPVTG,054.7,T,034.4,M,005.5,N,010.2,K*48\r\n" {
		t.Fatalf("got %q", got)
	}
}

func TestOpenPortUnknownDriver(t *testing.T) {
	if _, err := openPort(Config{Driver: "carrier-pigeon"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestJacobsaInterCharTimeout(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want uint
	}{
		{0, 100},
		{20 * time.Millisecond, 100},
		{100 * time.Millisecond, 100},
		{240 * time.Millisecond, 200},
		{time.Second, 1000},
		{time.Minute, 25500},
	}
	for _, tc := range cases {
		if got := jacobsaInterCharTimeout(tc.in); got != tc.want {
			t.Fatalf("jacobsaInterCharTimeout(%s)=%d want %d", tc.in, got, tc.want)
		}
	}
}
