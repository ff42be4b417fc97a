package hci

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haystackgo/haystack"
)

// fakeController answers every command with a Command Complete event.
type fakeController struct {
	commands [][]byte
	pending  [][]byte
	status   map[uint16]uint8
	// silent opcodes are never answered.
	silent map[uint16]bool
	// noise is delivered before each answer.
	noise [][]byte
	// pendingFirst sends a successful Command Status before each answer.
	pendingFirst bool
	closed       bool
}

func newFakeController() *fakeController {
	return &fakeController{status: map[uint16]uint8{}, silent: map[uint16]bool{}}
}

func (c *fakeController) Write(b []byte) (int, error) {
	pkt := append([]byte(nil), b...)
	c.commands = append(c.commands, pkt)
	opcode := binary.LittleEndian.Uint16(pkt[1:])
	if c.silent[opcode] {
		return len(b), nil
	}
	c.pending = append(c.pending, c.noise...)
	if c.pendingFirst {
		st := []byte{hciEventPkt, evtCmdStatus, 4, 0, 1, 0, 0}
		binary.LittleEndian.PutUint16(st[5:], opcode)
		c.pending = append(c.pending, st)
	}
	evt := []byte{hciEventPkt, evtCmdComplete, 4, 1, 0, 0, c.status[opcode]}
	binary.LittleEndian.PutUint16(evt[4:], opcode)
	c.pending = append(c.pending, evt)
	return len(b), nil
}

func (c *fakeController) Read(b []byte) (int, error) {
	if len(c.pending) == 0 {
		return 0, nil
	}
	n := copy(b, c.pending[0])
	c.pending = c.pending[1:]
	return n, nil
}

func (c *fakeController) Close() error {
	c.closed = true
	return nil
}

func (c *fakeController) opcodes() []uint16 {
	var ops []uint16
	for _, cmd := range c.commands {
		ops = append(ops, binary.LittleEndian.Uint16(cmd[1:]))
	}
	return ops
}

func testIdentity(t *testing.T) haystack.DeviceIdentity {
	t.Helper()
	key, err := haystack.DecodePublicKey("a50102030405060708090a0b0c0d0e0f101112131415161718191a1b")
	require.NoError(t, err)
	return haystack.NewDeviceIdentity(key)
}

func TestAdvertiseCommandSequence(t *testing.T) {
	dev := newFakeController()
	b := NewBroadcaster(dev, nil)
	err := b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{
		Interval: haystack.NewAdvertiseInterval(1000),
	})
	require.NoError(t, err)

	assert.Equal(t, []uint16{0x0c03, 0x2005, 0x2006, 0x2008, 0x200a}, dev.opcodes())

	// LE Set Random Address carries the address little endian.
	assert.Equal(t, "010520060504030201e5", hex.EncodeToString(dev.commands[1]))

	// 1s interval, ADV_NONCONN_IND, random own address, all channels.
	assert.Equal(t, "0106200f"+"4006"+"4006"+"03"+"01"+"00"+"000000000000"+"07"+"00",
		hex.EncodeToString(dev.commands[2]))

	data := dev.commands[3]
	require.Len(t, data, 4+32)
	assert.Equal(t, byte(32), data[3])
	assert.Equal(t, byte(31), data[4])
	assert.Equal(t, "1eff4c00121900060708090a0b0c0d0e0f101112131415161718191a1b0200", hex.EncodeToString(data[5:]))

	assert.Equal(t, "010a200101", hex.EncodeToString(dev.commands[4]))

	require.NoError(t, b.Close())
	assert.Equal(t, "010a200100", hex.EncodeToString(dev.commands[5]))
	assert.True(t, dev.closed)
}

func TestAdvertiseStatusError(t *testing.T) {
	dev := newFakeController()
	dev.status[opLESetRandomAddress] = 0x12 // invalid parameters
	b := NewBroadcaster(dev, nil)
	err := b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, uint16(opLESetRandomAddress), statusErr.Opcode)
	assert.Equal(t, uint8(0x12), statusErr.Status)
	assert.Len(t, dev.commands, 2, "no command may follow a failure")

	require.NoError(t, b.Close())
	assert.Len(t, dev.commands, 2, "advertising was never enabled")
}

func TestAdvertiseIgnoresUnrelatedEvents(t *testing.T) {
	dev := newFakeController()
	dev.noise = [][]byte{
		{0x02, 0x00, 0x00},                                 // stray ACL data
		{hciEventPkt, 0x3e, 0x02, 0x02, 0x00},              // LE meta event
		{hciEventPkt, evtCmdComplete, 4, 1, 0xff, 0xff, 0}, // other opcode
	}
	b := NewBroadcaster(dev, nil)
	require.NoError(t, b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{}))
}

func TestCommandStatusPendingThenComplete(t *testing.T) {
	dev := newFakeController()
	dev.pendingFirst = true
	b := NewBroadcaster(dev, nil)
	require.NoError(t, b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{}))
	assert.Len(t, dev.commands, 5)
}

func TestCommandStatusEvent(t *testing.T) {
	b := NewBroadcaster(newFakeController(), nil)
	done, err := b.handlePacket(opReset, []byte{hciEventPkt, evtCmdStatus, 4, 0x01, 1, 0x03, 0x0c})
	assert.True(t, done)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, uint8(0x01), statusErr.Status)

	// A successful Command Status only means the command is pending.
	done, err = b.handlePacket(opReset, []byte{hciEventPkt, evtCmdStatus, 4, 0x00, 1, 0x03, 0x0c})
	assert.False(t, done)
	assert.NoError(t, err)

	_, err = b.handlePacket(opReset, []byte{hciEventPkt, evtCmdComplete, 10, 0})
	assert.Equal(t, ErrHCIInvalidPacket, err)

	done, err = b.handlePacket(opReset, []byte{hciEventPkt, evtHardwareError, 1, 0})
	assert.True(t, done)
	assert.Equal(t, ErrHCIHardware, err)
}

func TestCommandTimeout(t *testing.T) {
	dev := newFakeController()
	dev.silent[opReset] = true
	b := NewBroadcaster(dev, nil)
	b.CommandTimeout = 10 * time.Millisecond
	err := b.Advertise(context.Background(), testIdentity(t), haystack.AdvertiseOptions{})
	assert.True(t, errors.Is(err, ErrHCITimeout))
}

func TestCommandContextCanceled(t *testing.T) {
	dev := newFakeController()
	dev.silent[opReset] = true
	b := NewBroadcaster(dev, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := b.Advertise(ctx, testIdentity(t), haystack.AdvertiseOptions{})
	assert.Equal(t, context.Canceled, err)
}

func TestParseAdapter(t *testing.T) {
	for name, idx := range map[string]int{"hci0": 0, "hci3": 3, "1": 1} {
		n, err := ParseAdapter(name)
		require.NoError(t, err, name)
		assert.Equal(t, idx, n, name)
	}
	for _, name := range []string{"", "hci", "usb0", "hci-1"} {
		_, err := ParseAdapter(name)
		assert.Error(t, err, name)
	}
}
