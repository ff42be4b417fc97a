package main

import (
	"context"
	"encoding/hex"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/haystackgo/haystack"
	"github.com/haystackgo/haystack/bluez"
	"github.com/haystackgo/haystack/hci"
	"github.com/haystackgo/haystack/internal/config"
)

// openBroadcaster opens the configured radio backend.
func openBroadcaster(cfg config.RadioConfig, log logrus.FieldLogger) (haystack.Broadcaster, error) {
	switch cfg.Backend {
	case config.BackendHCI:
		b, err := hci.Open(cfg.Adapter, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendBlueZ:
		b, err := bluez.Open(cfg.Adapter, log)
		if err != nil {
			return nil, err
		}
		return b, nil
	case config.BackendDryRun:
		return &dryRun{log: log}, nil
	}
	return nil, errors.Errorf("unknown radio backend %q", cfg.Backend)
}

// dryRun logs the advertisement it would send.
type dryRun struct {
	log         logrus.FieldLogger
	advertising bool
}

func (d *dryRun) Advertise(ctx context.Context, id haystack.DeviceIdentity, options haystack.AdvertiseOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := id.AdvertisingData()
	if err != nil {
		return err
	}
	d.advertising = true
	d.log.WithFields(logrus.Fields{
		"address":          id.Address().String(),
		"interval":         options.Interval.Duration(),
		"advertising_data": hex.EncodeToString(data),
	}).Info("Dry run, not transmitting")
	return nil
}

func (d *dryRun) Close() error {
	if d.advertising {
		d.log.Info("Dry run stopped")
		d.advertising = false
	}
	return nil
}
