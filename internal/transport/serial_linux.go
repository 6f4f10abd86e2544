//go:build linux

package transport

import (
	"fmt"
	"io"
	"syscall"

	"golang.org/x/sys/unix"
)

var baudRates = map[int]uint32{
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
	460800: unix.B460800,
	921600: unix.B921600,
}

// Serial is a tty opened in raw, non-blocking mode.
type Serial struct {
	fd     int
	device string
	fds    []unix.PollFd
}

// OpenSerial opens device at baud, 8N1, raw mode. Pending input is
// flushed so stale lines from before startup are not read as beats.
func OpenSerial(device string, baud int) (*Serial, error) {
	speed, ok := baudRates[baud]
	if !ok {
		return nil, fmt.Errorf("serial %s: unsupported baud rate %d", device, baud)
	}

	fd, err := unix.Open(device, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", device, err)
	}

	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial %s: get termios: %w", device, err)
	}

	// cfmakeraw
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | speed
	t.Ispeed = speed
	t.Ospeed = speed
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial %s: set termios: %w", device, err)
	}
	if err := unix.IoctlSetInt(fd, unix.TCFLSH, unix.TCIFLUSH); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("serial %s: flush input: %w", device, err)
	}

	return &Serial{
		fd:     fd,
		device: device,
		fds:    []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}},
	}, nil
}

// Device returns the path the port was opened from.
func (s *Serial) Device() string { return s.device }

// ReadAvailable implements AvailableReader using a zero-timeout poll(2).
func (s *Serial) ReadAvailable(p []byte) (int, error) {
	s.fds[0].Revents = 0
	n, err := unix.Poll(s.fds, 0)
	if err != nil {
		if err == syscall.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("serial %s: poll: %w", s.device, err)
	}
	if n == 0 {
		return 0, nil
	}

	rev := s.fds[0].Revents
	if rev&unix.POLLIN == 0 && rev&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
		return 0, fmt.Errorf("serial %s: device error/hangup (revents=%#x)", s.device, rev)
	}

	m, err := unix.Read(s.fd, p)
	if err != nil {
		if err == unix.EAGAIN || err == syscall.EINTR {
			return 0, nil
		}
		return 0, fmt.Errorf("serial %s: read: %w", s.device, err)
	}
	if m == 0 {
		return 0, io.EOF
	}
	return m, nil
}

// Close releases the port.
func (s *Serial) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	return err
}
