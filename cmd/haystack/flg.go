package main

import (
	"github.com/urfave/cli"

	"github.com/haystackgo/haystack/internal/config"
	"github.com/haystackgo/haystack/keystore"
)

var (
	flgConfig    = cli.StringFlag{Name: "config, c", Usage: "YAML configuration file", EnvVar: "HAYSTACK_CONFIG"}
	flgLogLevel  = cli.StringFlag{Name: "log-level", Usage: "panic, fatal, error, warn, info, debug or trace", EnvVar: "HAYSTACK_LOG_LEVEL"}
	flgLogFormat = cli.StringFlag{Name: "log-format", Usage: "auto, text or json", EnvVar: "HAYSTACK_LOG_FORMAT"}

	flgKey        = cli.StringFlag{Name: "key, k", Usage: "Public key as base64 or hex, instead of a key store", EnvVar: "HAYSTACK_KEY"}
	flgKeyStore   = cli.StringFlag{Name: "key-store", Usage: "file, dir, nvs or inline"}
	flgKeyPath    = cli.StringFlag{Name: "key-path", Usage: "Key file, key directory or NVS image"}
	flgKeyID      = cli.StringFlag{Name: "key-id", Usage: "Key name in a dir or nvs store"}
	flgSectorSize = cli.IntFlag{Name: "sector-size", Value: keystore.DefaultSectorSize, Usage: "NVS sector size"}

	flgBackend  = cli.StringFlag{Name: "backend, b", Usage: "hci, bluez or dryrun", EnvVar: "HAYSTACK_BACKEND"}
	flgAdapter  = cli.StringFlag{Name: "adapter, i", Usage: "Bluetooth adapter, such as hci0"}
	flgInterval = cli.StringFlag{Name: "interval", Usage: "Advertising interval, such as 2s"}
	flgBattery  = cli.StringFlag{Name: "battery", Usage: "full, medium, low or critical"}

	flgFormat  = cli.StringFlag{Name: "format, f", Value: "hex", Usage: "Image format: hex or bin"}
	flgOutput  = cli.StringFlag{Name: "output, o", Usage: "Output file (default stdout)"}
	flgOffset  = cli.UintFlag{Name: "offset", Value: keystore.DefaultFlashOffset, Usage: "Flash address of the partition"}
	flgSectors = cli.IntFlag{Name: "sectors", Value: keystore.DefaultSectorCount, Usage: "Number of NVS sectors"}
)

func keyFlags() []cli.Flag {
	return []cli.Flag{flgKey, flgKeyStore, flgKeyPath, flgKeyID, flgSectorSize}
}

// loadConfig reads the configuration file and applies the flags that were
// set on the command line or in the environment.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return config.Config{}, err
	}
	for _, o := range []struct {
		flag   string
		global bool
		dst    *string
	}{
		{"log-level", true, &cfg.Log.Level},
		{"log-format", true, &cfg.Log.Format},
		{"key-store", false, &cfg.Key.Store},
		{"key-path", false, &cfg.Key.Path},
		{"key-id", false, &cfg.Key.ID},
		{"backend", false, &cfg.Radio.Backend},
		{"adapter", false, &cfg.Radio.Adapter},
		{"interval", false, &cfg.Radio.Interval},
		{"battery", false, &cfg.Battery},
	} {
		switch {
		case o.global && c.GlobalIsSet(o.flag):
			*o.dst = c.GlobalString(o.flag)
		case !o.global && c.IsSet(o.flag):
			*o.dst = c.String(o.flag)
		}
	}
	if c.IsSet("sector-size") {
		cfg.Key.SectorSize = c.Int("sector-size")
	}
	if c.IsSet("key") {
		cfg.Key.Store = config.StoreInline
		cfg.Key.Value = c.String("key")
	}
	return cfg, cfg.Validate()
}
