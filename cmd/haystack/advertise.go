package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli"

	"github.com/haystackgo/haystack"
)

func advertise(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	store, err := cfg.KeyStore()
	if err != nil {
		return err
	}
	interval, err := cfg.AdvertiseInterval()
	if err != nil {
		return err
	}
	battery, err := cfg.BatteryLevel()
	if err != nil {
		return err
	}

	radio, err := openBroadcaster(cfg.Radio, log.WithField("backend", cfg.Radio.Backend))
	if err != nil {
		return err
	}
	beacon := haystack.NewBeacon(store, radio, haystack.BeaconConfig{
		KeyID:     cfg.Key.ID,
		Battery:   battery,
		Advertise: haystack.AdvertiseOptions{Interval: interval},
		Logger:    log,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := beacon.Start(ctx); err != nil {
		radio.Close()
		return err
	}
	<-ctx.Done()
	log.Info("Stopping")
	return beacon.Stop()
}
