package bluez

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/haystackgo/haystack"
)

// Management API opcodes and events, see doc/mgmt-api.txt in BlueZ.
const (
	mgmtOpSetLE            = 0x000D
	mgmtOpSetBREDR         = 0x002A
	mgmtOpSetStaticAddress = 0x002B

	mgmtEvCmdComplete = 0x0001
	mgmtEvCmdStatus   = 0x0002

	mgmtHeaderSize = 6

	// mgmtIndexNone addresses the management interface itself.
	mgmtIndexNone = 0xFFFF
)

// MgmtError is a non-zero status returned by the kernel management
// interface.
type MgmtError struct {
	Opcode uint16
	Status uint8
}

func (e *MgmtError) Error() string {
	return fmt.Sprintf("bluez: management command %#04x failed with status %#02x", e.Opcode, e.Status)
}

var errMgmtTimeout = errors.New("bluez: management command timed out")

// mgmt issues commands on a management control channel. Every read must
// return one event; an empty read is a poll timeout.
type mgmt struct {
	dev     io.ReadWriteCloser
	index   uint16
	timeout time.Duration
	buf     []byte
}

func newMgmt(dev io.ReadWriteCloser, index uint16) *mgmt {
	return &mgmt{
		dev:     dev,
		index:   index,
		timeout: 3 * time.Second,
		buf:     make([]byte, 512),
	}
}

func encodeMgmtCommand(opcode, index uint16, params []byte) []byte {
	pkt := make([]byte, mgmtHeaderSize+len(params))
	binary.LittleEndian.PutUint16(pkt[0:], opcode)
	binary.LittleEndian.PutUint16(pkt[2:], index)
	binary.LittleEndian.PutUint16(pkt[4:], uint16(len(params)))
	copy(pkt[mgmtHeaderSize:], params)
	return pkt
}

func (m *mgmt) command(ctx context.Context, opcode uint16, params []byte) error {
	if _, err := m.dev.Write(encodeMgmtCommand(opcode, m.index, params)); err != nil {
		return errors.Wrapf(err, "bluez: write management command %#04x", opcode)
	}
	deadline := time.Now().Add(m.timeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return errors.Wrapf(errMgmtTimeout, "opcode %#04x", opcode)
		}
		n, err := m.dev.Read(m.buf)
		if err != nil {
			return errors.Wrap(err, "bluez: read management event")
		}
		if n < mgmtHeaderSize+3 {
			continue
		}
		evt := m.buf[:n]
		code := binary.LittleEndian.Uint16(evt[0:])
		index := binary.LittleEndian.Uint16(evt[2:])
		if (code != mgmtEvCmdComplete && code != mgmtEvCmdStatus) || index != m.index {
			continue
		}
		if binary.LittleEndian.Uint16(evt[mgmtHeaderSize:]) != opcode {
			continue
		}
		if status := evt[mgmtHeaderSize+2]; status != 0 {
			return &MgmtError{Opcode: opcode, Status: status}
		}
		return nil
	}
}

func (m *mgmt) setBool(ctx context.Context, opcode uint16, on bool) error {
	var v [1]byte
	if on {
		v[0] = 1
	}
	return m.command(ctx, opcode, v[:])
}

// useStaticAddress makes the powered-off controller use addr: LE on, BR/EDR
// off (BlueZ only uses a static address on LE-only controllers), then the
// address itself.
func (m *mgmt) useStaticAddress(ctx context.Context, addr haystack.DeviceAddress) error {
	if err := m.setBool(ctx, mgmtOpSetLE, true); err != nil {
		return err
	}
	if err := m.setBool(ctx, mgmtOpSetBREDR, false); err != nil {
		var mgmtErr *MgmtError
		// LE-only controllers reject the BR/EDR switch as not supported.
		if !errors.As(err, &mgmtErr) || mgmtErr.Status != mgmtStatusNotSupported {
			return err
		}
	}
	return m.command(ctx, mgmtOpSetStaticAddress, addr.MAC[:])
}

const mgmtStatusNotSupported = 0x0C

func (m *mgmt) Close() error {
	return m.dev.Close()
}
