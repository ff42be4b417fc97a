package haystack

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DefaultKeyID is the settings name the firmware stores its key under.
const DefaultKeyID = "airtag/public_key"

// KeyLoader returns the raw key blob stored under id.
type KeyLoader interface {
	Load(ctx context.Context, id string) ([]byte, error)
}

// State is the lifecycle state of a Beacon. States only move forward.
type State int

const (
	StateUninitialized State = iota
	StateKeyLoaded
	StateDerived
	StateAdvertising
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateKeyLoaded:
		return "key loaded"
	case StateDerived:
		return "derived"
	case StateAdvertising:
		return "advertising"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// BeaconConfig configures a Beacon.
type BeaconConfig struct {
	// KeyID names the key in the KeyLoader. Defaults to DefaultKeyID.
	KeyID string

	Battery   BatteryLevel
	Advertise AdvertiseOptions

	// Logger defaults to the logrus standard logger.
	Logger logrus.FieldLogger
}

// Beacon loads a key once, derives its identity and hands it to a radio.
// A Beacon is single use and not safe for concurrent use.
type Beacon struct {
	loader      KeyLoader
	broadcaster Broadcaster
	config      BeaconConfig
	log         logrus.FieldLogger

	state    State
	identity DeviceIdentity
}

// NewBeacon returns a Beacon in StateUninitialized.
func NewBeacon(loader KeyLoader, broadcaster Broadcaster, config BeaconConfig) *Beacon {
	if config.KeyID == "" {
		config.KeyID = DefaultKeyID
	}
	config.Advertise.Interval = config.Advertise.Interval.Clamp()
	log := config.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Beacon{
		loader:      loader,
		broadcaster: broadcaster,
		config:      config,
		log:         log.WithField("key_id", config.KeyID),
	}
}

// State returns the current lifecycle state.
func (b *Beacon) State() State {
	return b.state
}

// Identity returns the derived identity once the key has been processed.
func (b *Beacon) Identity() (DeviceIdentity, bool) {
	return b.identity, b.state >= StateDerived && b.state != StateFailed
}

// Start loads the key, derives the identity and starts advertising. The
// identity is fully derived before the radio is touched. Any failure is
// final: errors wrap ErrKeyUnavailable or ErrRadioUnavailable and the
// beacon moves to StateFailed.
func (b *Beacon) Start(ctx context.Context) error {
	if b.state != StateUninitialized {
		return errAlreadyStarted
	}

	key, err := b.loadKey(ctx)
	if err != nil {
		b.state = StateFailed
		b.log.WithError(err).Error("Failed to load public key")
		return err
	}
	b.state = StateKeyLoaded
	b.log.WithField("public_key", hex.EncodeToString(key[:])).Debug("Loaded public key")

	b.identity = NewDeviceIdentity(key, WithBattery(b.config.Battery))
	b.state = StateDerived
	b.log.WithFields(logrus.Fields{
		"address": b.identity.Address().String(),
		"payload": hex.EncodeToString(b.identity.payload[:]),
	}).Info("Derived advertisement")

	if err := b.broadcaster.Advertise(ctx, b.identity, b.config.Advertise); err != nil {
		b.state = StateFailed
		b.log.WithError(err).Error("Advertising failed to start")
		if errors.Is(err, ErrRadioUnavailable) {
			return err
		}
		return RadioUnavailable(err, "advertise")
	}
	b.state = StateAdvertising
	b.log.WithField("interval", b.config.Advertise.Interval.Duration()).Info("Advertising")
	return nil
}

func (b *Beacon) loadKey(ctx context.Context) (PublicKey, error) {
	blob, err := b.loader.Load(ctx, b.config.KeyID)
	if err != nil {
		if errors.Is(err, ErrKeyUnavailable) {
			return PublicKey{}, err
		}
		return PublicKey{}, KeyUnavailable(err, "load %q", b.config.KeyID)
	}
	return ParsePublicKey(blob)
}

// Stop stops advertising and releases the radio.
func (b *Beacon) Stop() error {
	if b.state != StateAdvertising {
		return errNotAdvertising
	}
	b.state = StateStopped
	return b.broadcaster.Close()
}
