package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli"

	"github.com/haystackgo/haystack"
	"github.com/haystackgo/haystack/internal/config"
	"github.com/haystackgo/haystack/keystore"
)

func show(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	store, err := cfg.KeyStore()
	if err != nil {
		return err
	}
	id, err := loadIdentity(cfg, store)
	if err != nil {
		return err
	}
	ad, err := id.AdvertisingData()
	if err != nil {
		return err
	}
	payload := id.Payload()
	key := id.Key()

	w := tabwriter.NewWriter(c.App.Writer, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "public key:\t%s\n", key)
	fmt.Fprintf(w, "hashed key:\t%s\n", key.HashedKey())
	fmt.Fprintf(w, "address:\t%s (%s)\n", id.Address(), id.Address().Type)
	fmt.Fprintf(w, "battery:\t%s\n", id.Battery())
	fmt.Fprintf(w, "payload:\t%s\n", hex.EncodeToString(payload[:]))
	fmt.Fprintf(w, "manufacturer data:\t%s\n", hex.EncodeToString(id.Layout().ManufacturerData(payload)))
	fmt.Fprintf(w, "advertising data:\t%s\n", hex.EncodeToString(ad))
	if nvs, ok := store.(*keystore.NVS); ok {
		fmt.Fprintf(w, "settings:\t%s\n", strings.Join(nvs.Names(), ", "))
	}
	return w.Flush()
}

// loadIdentity reads the configured key from store and derives its
// identity.
func loadIdentity(cfg config.Config, store keystore.Store) (haystack.DeviceIdentity, error) {
	battery, err := cfg.BatteryLevel()
	if err != nil {
		return haystack.DeviceIdentity{}, err
	}
	blob, err := store.Load(context.Background(), cfg.Key.ID)
	if err != nil {
		return haystack.DeviceIdentity{}, haystack.KeyUnavailable(err, "load %q", cfg.Key.ID)
	}
	key, err := haystack.ParsePublicKey(blob)
	if err != nil {
		return haystack.DeviceIdentity{}, err
	}
	return haystack.NewDeviceIdentity(key, haystack.WithBattery(battery)), nil
}
