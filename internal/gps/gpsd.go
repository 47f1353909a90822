package gps

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

const gpsdDefaultAddr = "127.0.0.1:2947"

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	if strings.TrimSpace(addr) == "" {
		addr = gpsdDefaultAddr
	}
	d := &net.Dialer{Timeout: 2 * time.Second}
	if ctx == nil {
		return d.Dial("tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch asks gpsd to relay the receiver's NMEA sentences verbatim.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"nmea\":true}\n"))
	return err
}

// openGPSD returns a port streaming NMEA from gpsd. gpsd interleaves its own
// JSON banner lines; they fail classification and are dropped downstream.
func openGPSD(addr string) (Port, error) {
	conn, err := dialGPSD(context.Background(), addr)
	if err != nil {
		return nil, fmt.Errorf("gps: gpsd dial %s: %w", addr, err)
	}
	if err := gpsdWatch(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("gps: gpsd watch: %w", err)
	}
	return newGPSDPort(conn), nil
}

func newGPSDPort(conn net.Conn) Port {
	read := func(p []byte) (int, error) {
		if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
			return 0, err
		}
		return conn.Read(p)
	}
	return newChunkPort(read, conn.Close, isNetTimeout)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
