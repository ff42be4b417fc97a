package haystack

import (
	"context"
	"time"
)

// AdvertiseOptions configures everything related to BLE advertisements that
// is not derived from the key.
type AdvertiseOptions struct {
	Interval AdvertiseInterval
}

// AdvertiseInterval is the advertisement interval in 0.625ms units.
type AdvertiseInterval uint32

// Limits of the advertising interval for non-connectable advertising.
const (
	MinAdvertiseInterval AdvertiseInterval = 0x00A0
	MaxAdvertiseInterval AdvertiseInterval = 0x4000
)

// DefaultAdvertiseInterval is used when AdvertiseOptions.Interval is zero.
var DefaultAdvertiseInterval = NewAdvertiseInterval(2000)

// NewAdvertiseInterval returns a new advertisement interval, based on an
// interval in milliseconds.
func NewAdvertiseInterval(intervalMillis uint32) AdvertiseInterval {
	// Convert an interval to units of 0.625ms.
	return AdvertiseInterval(intervalMillis * 8 / 5)
}

// Duration returns the interval as a time.Duration.
func (i AdvertiseInterval) Duration() time.Duration {
	return time.Duration(i) * 625 * time.Microsecond
}

// Clamp limits i to the range the link layer accepts for non-connectable
// advertising. A zero interval becomes DefaultAdvertiseInterval.
func (i AdvertiseInterval) Clamp() AdvertiseInterval {
	switch {
	case i == 0:
		return DefaultAdvertiseInterval
	case i < MinAdvertiseInterval:
		return MinAdvertiseInterval
	case i > MaxAdvertiseInterval:
		return MaxAdvertiseInterval
	}
	return i
}

// Broadcaster is a radio that can advertise a DeviceIdentity. Advertise
// must register the identity's address with the controller and start
// non-connectable advertising of its data; the radio owns the cadence from
// then on.
type Broadcaster interface {
	Advertise(ctx context.Context, id DeviceIdentity, options AdvertiseOptions) error
	Close() error
}
