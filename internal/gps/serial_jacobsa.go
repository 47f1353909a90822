package gps

import (
	"fmt"
	"time"

	jserial "github.com/jacobsa/go-serial/serial"
)

// openJacobsa opens the device with github.com/jacobsa/go-serial.
// With MinimumReadSize 0 a read returns once the inter-character timeout
// passes with nothing queued.
func openJacobsa(device string, baud int, timeout time.Duration) (Port, error) {
	opts := jserial.OpenOptions{
		PortName:              device,
		BaudRate:              uint(baud),
		DataBits:              8,
		StopBits:              1,
		ParityMode:            jserial.PARITY_NONE,
		MinimumReadSize:       0,
		InterCharacterTimeout: jacobsaInterCharTimeout(timeout),
	}
	rwc, err := jserial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("gps: open serial %s: %w", device, err)
	}
	return newChunkPort(rwc.Read, rwc.Close, nil), nil
}

// jacobsaInterCharTimeout converts timeout to milliseconds in whole
// deciseconds. The library rejects MinimumReadSize 0 with anything under
// 100ms, so that is the floor.
func jacobsaInterCharTimeout(timeout time.Duration) uint {
	ds := (timeout + 50*time.Millisecond) / (100 * time.Millisecond)
	if ds < 1 {
		ds = 1
	}
	if ds > 255 {
		ds = 255
	}
	return uint(ds) * 100
}
