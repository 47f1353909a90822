//go:build !linux

package gps

import (
	"fmt"
	"time"
)

func openTermios(path string, baud int, timeout time.Duration) (Port, error) {
	return nil, fmt.Errorf("gps: termios driver not supported on this platform, use bugst")
}
