package gps

import (
	"fmt"
	"time"

	serial "go.bug.st/serial"
)

// openBugst opens the device with go.bug.st/serial. The port has no pending
// byte query, so a 1ms read timeout turns each Buffered call into a poll.
func openBugst(device string, baud int) (Port, error) {
	p, err := serial.Open(device, &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("gps: open serial %s: %w", device, err)
	}
	if err := p.SetReadTimeout(time.Millisecond); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("gps: set read timeout %s: %w", device, err)
	}
	_ = p.ResetInputBuffer()
	return newChunkPort(p.Read, p.Close, nil), nil
}
