// Command nmea-replay plays a capture file back to stdout or a UDP
// destination with its original timing, or summarises it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"grove-gnss/internal/replay"
	"grove-gnss/internal/udp"
)

func main() {
	var (
		in      string
		dest    string
		speed   float64
		loop    bool
		summary bool
	)
	flag.StringVar(&in, "in", "", "Capture file to read")
	flag.StringVar(&dest, "udp", "", "Send lines to host:port instead of stdout")
	flag.Float64Var(&speed, "speed", 1.0, "Playback speed multiplier")
	flag.BoolVar(&loop, "loop", false, "Restart from the beginning at end of file")
	flag.BoolVar(&summary, "summary", false, "Print a summary of the capture and exit")
	flag.Parse()

	if strings.TrimSpace(in) == "" {
		log.Fatalf("-in is required")
	}

	if summary {
		if err := printCaptureSummary(os.Stdout, in); err != nil {
			log.Fatalf("summary failed: %v", err)
		}
		return
	}

	records, err := replay.ReadFile(in)
	if err != nil {
		log.Fatalf("read capture failed: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	send := func(line string) error {
		_, err := fmt.Fprintln(os.Stdout, strings.TrimRight(line, "\r"))
		return err
	}
	if dest != "" {
		b, err := udp.NewBroadcaster(dest)
		if err != nil {
			log.Fatalf("udp init failed: %v", err)
		}
		defer b.Close()
		f := udp.NewForwarder(b)
		send = f.Forward
		log.Printf("replaying %s to udp dest=%s speed=%.2f loop=%v", in, dest, speed, loop)
	}

	if err := runReplay(ctx, records, speed, loop, nil, send); err != nil && ctx.Err() == nil {
		log.Fatalf("replay failed: %v", err)
	}
}

// runReplay plays records until done or ctx is cancelled. A cancelled ctx is
// checked before every send.
func runReplay(ctx context.Context, records []replay.Record, speed float64, loop bool, sleeper replay.Sleeper, send func(line string) error) error {
	return replay.Play(records, speed, loop, sleeper, func(line string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return send(line)
	})
}
