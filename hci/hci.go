// Package hci advertises a beacon identity by driving a Bluetooth
// controller directly with HCI commands. On Linux the controller is reached
// through an HCI user channel socket, which takes the adapter away from
// BlueZ while the beacon runs.
package hci

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/haystackgo/haystack"
)

const (
	ogfCommandPos = 10

	ogfHostCtl = 0x03
	ogfLECtrl  = 0x08

	// ogfHostCtl
	ocfReset = 0x0003

	// ogfLECtrl
	ocfLESetRandomAddress         = 0x0005
	ocfLESetAdvertisingParameters = 0x0006
	ocfLESetAdvertisingData       = 0x0008
	ocfLESetAdvertiseEnable       = 0x000a

	hciCommandPkt = 0x01
	hciEventPkt   = 0x04

	evtCmdComplete   = 0x0e
	evtCmdStatus     = 0x0f
	evtHardwareError = 0x10

	// Advertising types, Vol 4, Part E, 7.8.5.
	advNonconnInd = 0x03

	ownAddressRandom = 0x01
	// All three primary advertising channels.
	advChannelMap = 0x07

	maxAdvData = 31
)

const (
	opReset                     = ogfHostCtl<<ogfCommandPos | ocfReset
	opLESetRandomAddress        = ogfLECtrl<<ogfCommandPos | ocfLESetRandomAddress
	opLESetAdvertisingParameter = ogfLECtrl<<ogfCommandPos | ocfLESetAdvertisingParameters
	opLESetAdvertisingData      = ogfLECtrl<<ogfCommandPos | ocfLESetAdvertisingData
	opLESetAdvertiseEnable      = ogfLECtrl<<ogfCommandPos | ocfLESetAdvertiseEnable
)

// DefaultCommandTimeout bounds the wait for a command to complete.
const DefaultCommandTimeout = 3 * time.Second

var (
	ErrHCITimeout       = errors.New("hci: timeout")
	ErrHCIInvalidPacket = errors.New("hci: invalid packet")
	ErrHCIHardware      = errors.New("hci: hardware error")
)

// StatusError is a non-zero status returned by the controller for a
// command.
type StatusError struct {
	Opcode uint16
	Status uint8
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hci: command %#04x failed with status %#02x", e.Opcode, e.Status)
}

// Broadcaster advertises a beacon identity over an HCI transport. Every read
// from the transport must return exactly one HCI packet, prefixed with its
// packet indicator, as Linux HCI sockets and H4 framers do. A read that
// returns no data is treated as a poll timeout.
type Broadcaster struct {
	dev io.ReadWriteCloser
	log logrus.FieldLogger
	buf []byte

	// CommandTimeout defaults to DefaultCommandTimeout.
	CommandTimeout time.Duration

	advertising bool
}

// NewBroadcaster returns a Broadcaster on dev. A nil log discards debug
// output.
func NewBroadcaster(dev io.ReadWriteCloser, log logrus.FieldLogger) *Broadcaster {
	if log == nil {
		l := logrus.New()
		l.SetOutput(ioutil.Discard)
		log = l
	}
	return &Broadcaster{
		dev:            dev,
		log:            log,
		buf:            make([]byte, 260),
		CommandTimeout: DefaultCommandTimeout,
	}
}

// Advertise resets the controller, installs the identity's random static
// address and starts non-connectable advertising of its data.
func (b *Broadcaster) Advertise(ctx context.Context, id haystack.DeviceIdentity, options haystack.AdvertiseOptions) error {
	addr := id.Address()
	if !addr.IsStaticRandom() {
		return errors.Errorf("hci: %s is not a random static address", addr)
	}
	data, err := id.AdvertisingData()
	if err != nil {
		return err
	}
	interval := options.Interval.Clamp()

	if err := b.reset(ctx); err != nil {
		return err
	}
	if err := b.leSetRandomAddress(ctx, addr.MAC); err != nil {
		return err
	}
	if err := b.leSetAdvertisingParameters(ctx, uint16(interval), uint16(interval),
		advNonconnInd, ownAddressRandom, 0, [6]byte{}, advChannelMap, 0); err != nil {
		return err
	}
	if err := b.leSetAdvertisingData(ctx, data); err != nil {
		return err
	}
	if err := b.leSetAdvertiseEnable(ctx, true); err != nil {
		return err
	}
	b.advertising = true
	b.log.WithFields(logrus.Fields{
		"address":  addr.String(),
		"interval": interval.Duration(),
	}).Debug("hci: advertising enabled")
	return nil
}

// Close stops advertising, if it was started, and closes the transport.
func (b *Broadcaster) Close() error {
	var err error
	if b.advertising {
		ctx, cancel := context.WithTimeout(context.Background(), b.CommandTimeout)
		err = b.leSetAdvertiseEnable(ctx, false)
		cancel()
		b.advertising = false
	}
	if cerr := b.dev.Close(); err == nil {
		err = cerr
	}
	return err
}

func (b *Broadcaster) reset(ctx context.Context) error {
	return b.sendCommand(ctx, opReset)
}

func (b *Broadcaster) leSetRandomAddress(ctx context.Context, mac haystack.MAC) error {
	return b.sendCommandWithParams(ctx, opLESetRandomAddress, mac[:])
}

func (b *Broadcaster) leSetAdvertiseEnable(ctx context.Context, enabled bool) error {
	var data [1]byte
	if enabled {
		data[0] = 1
	}

	return b.sendCommandWithParams(ctx, opLESetAdvertiseEnable, data[:])
}

func (b *Broadcaster) leSetAdvertisingParameters(ctx context.Context, minInterval, maxInterval uint16,
	advType, ownBdaddrType uint8,
	directBdaddrType uint8, directBdaddr [6]byte,
	chanMap, filter uint8) error {

	var p [15]byte
	binary.LittleEndian.PutUint16(p[0:], minInterval)
	binary.LittleEndian.PutUint16(p[2:], maxInterval)
	p[4] = advType
	p[5] = ownBdaddrType
	p[6] = directBdaddrType
	copy(p[7:], directBdaddr[:])
	p[13] = chanMap
	p[14] = filter

	return b.sendCommandWithParams(ctx, opLESetAdvertisingParameter, p[:])
}

func (b *Broadcaster) leSetAdvertisingData(ctx context.Context, data []byte) error {
	if len(data) > maxAdvData {
		return errors.Errorf("hci: advertising data too long (%d bytes)", len(data))
	}
	var p [maxAdvData + 1]byte
	p[0] = byte(len(data))
	copy(p[1:], data)

	return b.sendCommandWithParams(ctx, opLESetAdvertisingData, p[:])
}

func (b *Broadcaster) sendCommand(ctx context.Context, opcode uint16) error {
	return b.sendCommandWithParams(ctx, opcode, nil)
}

// sendCommandWithParams writes a command packet and waits for its Command
// Complete event, or a Command Status event reporting failure.
func (b *Broadcaster) sendCommandWithParams(ctx context.Context, opcode uint16, params []byte) error {
	b.log.WithFields(logrus.Fields{
		"opcode": fmt.Sprintf("%#04x", opcode),
		"params": hex.EncodeToString(params),
	}).Debug("hci: send command")

	pkt := make([]byte, 4+len(params))
	pkt[0] = hciCommandPkt
	binary.LittleEndian.PutUint16(pkt[1:], opcode)
	pkt[3] = byte(len(params))
	copy(pkt[4:], params)

	if _, err := b.dev.Write(pkt); err != nil {
		return errors.Wrapf(err, "hci: write command %#04x", opcode)
	}

	deadline := time.Now().Add(b.CommandTimeout)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return errors.Wrapf(ErrHCITimeout, "command %#04x", opcode)
		}
		n, err := b.dev.Read(b.buf)
		if err != nil {
			return errors.Wrap(err, "hci: read")
		}
		if n == 0 {
			continue
		}
		done, err := b.handlePacket(opcode, b.buf[:n])
		if err != nil || done {
			return err
		}
	}
}

// handlePacket processes one packet received while waiting for opcode. It
// reports whether the command has completed.
func (b *Broadcaster) handlePacket(opcode uint16, pkt []byte) (bool, error) {
	if pkt[0] != hciEventPkt {
		// ACL data and the like cannot occur without connections.
		return false, nil
	}
	if len(pkt) < 3 || len(pkt) < 3+int(pkt[2]) {
		return false, ErrHCIInvalidPacket
	}
	evt, params := pkt[1], pkt[3:3+int(pkt[2])]

	switch evt {
	case evtCmdComplete:
		if len(params) < 4 {
			return false, ErrHCIInvalidPacket
		}
		if binary.LittleEndian.Uint16(params[1:]) != opcode {
			return false, nil
		}
		if status := params[3]; status != 0 {
			return true, &StatusError{Opcode: opcode, Status: status}
		}
		return true, nil

	case evtCmdStatus:
		if len(params) < 4 {
			return false, ErrHCIInvalidPacket
		}
		if binary.LittleEndian.Uint16(params[2:]) != opcode {
			return false, nil
		}
		if status := params[0]; status != 0 {
			return true, &StatusError{Opcode: opcode, Status: status}
		}
		// Pending; Command Complete follows.
		return false, nil

	case evtHardwareError:
		return true, ErrHCIHardware

	default:
		b.log.WithField("event", fmt.Sprintf("%#02x", evt)).Debug("hci: ignoring event")
		return false, nil
	}
}
