//go:build linux

package bluez

import (
	"os"
	"strconv"

	"github.com/muka/go-bluetooth/api"
	"github.com/muka/go-bluetooth/bluez/profile/advertising"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/haystackgo/haystack"
	"github.com/haystackgo/haystack/hci"
)

// How long a management read may block before deadlines are checked.
const readTimeoutMicros = 100000

// controlSocket is a management control channel socket.
type controlSocket struct {
	fd int
}

func openControlSocket() (*controlSocket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "bluez: socket")
	}
	if err := unix.Bind(fd, &unix.SockaddrHCI{Dev: mgmtIndexNone, Channel: unix.HCI_CHANNEL_CONTROL}); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bluez: bind control channel")
	}
	tv := unix.NsecToTimeval(readTimeoutMicros * 1000)
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "bluez: set read timeout")
	}
	return &controlSocket{fd: fd}, nil
}

func (s *controlSocket) Read(b []byte) (int, error) {
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

func (s *controlSocket) Write(b []byte) (int, error) {
	n, err := unix.Write(s.fd, b)
	if err != nil {
		return n, os.NewSyscallError("write", err)
	}
	return n, nil
}

func (s *controlSocket) Close() error {
	return unix.Close(s.fd)
}

// Open returns a Broadcaster on the named adapter ("hci0" or "0"). An
// empty name selects the default adapter. Failures wrap
// haystack.ErrRadioUnavailable.
func Open(name string, log logrus.FieldLogger) (*Broadcaster, error) {
	if name == "" {
		a, err := api.GetDefaultAdapter()
		if err != nil {
			return nil, haystack.RadioUnavailable(err, "bluez: default adapter")
		}
		if name, err = a.GetAdapterID(); err != nil {
			return nil, haystack.RadioUnavailable(err, "bluez: adapter id")
		}
	}
	index, err := hci.ParseAdapter(name)
	if err != nil {
		return nil, err
	}
	id := "hci" + strconv.Itoa(index)
	adapter, err := api.GetAdapter(id)
	if err != nil {
		return nil, haystack.RadioUnavailable(err, "bluez: adapter %s", id)
	}
	sock, err := openControlSocket()
	if err != nil {
		return nil, haystack.RadioUnavailable(err, "bluez: open")
	}
	expose := func(props *advertising.LEAdvertisement1Properties) (func(), error) {
		return api.ExposeAdvertisement(id, props, uint32(props.Timeout))
	}
	return newBroadcaster(adapter, newMgmt(sock, uint16(index)), expose, log), nil
}
