//go:build linux

package hci

import (
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/haystackgo/haystack"
)

const (
	iocWrite  = 1
	ioctlSize = 4
	typHCI    = 'H'

	// HCIDEVDOWN, _IOW('H', 202, int).
	hciDownDevice = iocWrite<<30 | ioctlSize<<16 | typHCI<<8 | 202

	// How long a read may block before the command deadline is checked.
	readTimeoutMicros = 100000
)

// socket is an HCI user channel socket.
type socket struct {
	fd int
}

// openSocket takes exclusive control of the adapter with index dev. The
// adapter is brought down first, since the kernel only grants a user
// channel on a down device.
func openSocket(dev int) (*socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "hci: socket")
	}
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), hciDownDevice, uintptr(dev)); errno != 0 && errno != unix.EALREADY {
		unix.Close(fd)
		return nil, errors.Wrapf(errno, "hci: bring hci%d down", dev)
	}
	if err := unix.Bind(fd, &unix.SockaddrHCI{Dev: uint16(dev), Channel: unix.HCI_CHANNEL_USER}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "hci: bind user channel on hci%d", dev)
	}
	tv := unix.NsecToTimeval(readTimeoutMicros * 1000)
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "hci: set read timeout")
	}
	return &socket{fd: fd}, nil
}

func (s *socket) Read(b []byte) (int, error) {
	n, err := unix.Read(s.fd, b)
	switch err {
	case nil:
		return n, nil
	case unix.EAGAIN, unix.EINTR:
		return 0, nil
	default:
		return 0, os.NewSyscallError("read", err)
	}
}

func (s *socket) Write(b []byte) (int, error) {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		return n, os.NewSyscallError("write", err)
	}
	return n, nil
}

func (s *socket) Close() error {
	return unix.Close(s.fd)
}

// Open returns a Broadcaster on the named adapter ("hci0" or "0").
// Failures wrap haystack.ErrRadioUnavailable.
func Open(adapter string, log logrus.FieldLogger) (*Broadcaster, error) {
	dev, err := ParseAdapter(adapter)
	if err != nil {
		return nil, err
	}
	s, err := openSocket(dev)
	if err != nil {
		return nil, haystack.RadioUnavailable(err, "hci: open")
	}
	return NewBroadcaster(s, log), nil
}
