//go:build linux

package gps

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type termiosPort struct {
	f  *os.File
	fd int
}

func openTermios(path string, baud int, timeout time.Duration) (Port, error) {
	flag := unix.O_RDONLY | unix.O_NOCTTY
	fd, err := unix.Open(path, flag, 0)
	if err != nil {
		return nil, fmt.Errorf("gps: open serial %s: %w", path, err)
	}

	// Best-effort: if anything below fails, close fd.
	ok := false
	defer func() {
		if !ok {
			_ = unix.Close(fd)
		}
	}()

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}

	spd, err := baudToUnix(baud)
	if err != nil {
		return nil, err
	}

	// Raw mode, 8N1.
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL

	// Reads are only issued for bytes already pending, so VMIN=0 and the
	// configured timeout (deciseconds) only bound a racing read.
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = timeoutToVTIME(timeout)

	t.Cflag &^= unix.CBAUD
	t.Cflag |= spd
	t.Ispeed = spd
	t.Ospeed = spd

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		return nil, err
	}
	// Drop whatever queued up before we configured the line.
	_ = unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH)

	f := os.NewFile(uintptr(fd), path)
	if f == nil {
		return nil, fmt.Errorf("os.NewFile failed")
	}
	ok = true
	return &termiosPort{f: f, fd: fd}, nil
}

// Buffered returns the number of bytes in the driver's input queue.
func (p *termiosPort) Buffered() (int, error) {
	return unix.IoctlGetInt(p.fd, unix.TIOCINQ)
}

func (p *termiosPort) Read(b []byte) (int, error) {
	return p.f.Read(b)
}

func (p *termiosPort) Close() error {
	return p.f.Close()
}

func timeoutToVTIME(d time.Duration) uint8 {
	ds := d / (100 * time.Millisecond)
	if ds <= 0 {
		return 0
	}
	if ds > 255 {
		return 255
	}
	return uint8(ds)
}

func baudToUnix(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	default:
		return 0, fmt.Errorf("unsupported baud %d", baud)
	}
}
