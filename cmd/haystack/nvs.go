package main

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli"

	"github.com/haystackgo/haystack/keystore"
)

func nvs(c *cli.Context) error {
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
	key := id.Key()

	img := keystore.NewNVSImage()
	img.SectorSize = cfg.Key.SectorSize
	img.SectorCount = c.Int("sectors")
	img.FlashOffset = uint32(c.Uint("offset"))
	if err := img.Add(cfg.Key.ID, key[:]); err != nil {
		return err
	}

	format := c.String("format")
	if format != "hex" && format != "bin" {
		return errors.Errorf("nvs: unknown format %q", format)
	}
	path := c.String("output")
	if path == "" {
		return writeImage(img, format, c.App.Writer)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "nvs")
	}
	if err := writeImage(img, format, f); err != nil {
		f.Close()
		return err
	}
	return errors.Wrap(f.Close(), "nvs")
}

func writeImage(img *keystore.NVSImage, format string, w io.Writer) error {
	switch format {
	case "hex":
		return img.WriteIntelHex(w)
	case "bin":
		return img.WriteBinary(w)
	}
	return errors.Errorf("nvs: unknown format %q", format)
}
