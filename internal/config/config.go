// Package config loads the beacon configuration from a YAML file.
package config

import (
	"io/ioutil"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/haystackgo/haystack"
	"github.com/haystackgo/haystack/keystore"
)

// Key store kinds.
const (
	StoreFile   = "file"
	StoreDir    = "dir"
	StoreNVS    = "nvs"
	StoreInline = "inline"
)

// Radio backends.
const (
	BackendHCI    = "hci"
	BackendBlueZ  = "bluez"
	BackendDryRun = "dryrun"
)

// Log formats.
const (
	FormatAuto = "auto"
	FormatText = "text"
	FormatJSON = "json"
)

type Config struct {
	Key     KeyConfig   `yaml:"key"`
	Radio   RadioConfig `yaml:"radio"`
	Battery string      `yaml:"battery"`
	Log     LogConfig   `yaml:"log"`
}

// KeyConfig selects where the public key is read from. Path is a file for
// the file and nvs stores and a directory for the dir store. Value holds a
// base64 or hex key for the inline store.
type KeyConfig struct {
	Store      string `yaml:"store"`
	ID         string `yaml:"id"`
	Path       string `yaml:"path"`
	Value      string `yaml:"value"`
	SectorSize int    `yaml:"sector_size"`
}

type RadioConfig struct {
	Backend  string `yaml:"backend"`
	Adapter  string `yaml:"adapter"`
	Interval string `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used for anything a file leaves out.
func Default() Config {
	return Config{
		Key: KeyConfig{
			Store:      StoreFile,
			ID:         haystack.DefaultKeyID,
			SectorSize: keystore.DefaultSectorSize,
		},
		Radio: RadioConfig{
			Backend:  BackendHCI,
			Adapter:  "hci0",
			Interval: haystack.DefaultAdvertiseInterval.Duration().String(),
		},
		Battery: haystack.BatteryFull.String(),
		Log: LogConfig{
			Level:  logrus.InfoLevel.String(),
			Format: FormatAuto,
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "config: read")
	}
	c, err := Parse(data)
	if err != nil {
		return Config{}, errors.Wrap(err, path)
	}
	return c, nil
}

// Parse decodes YAML over the defaults. Unknown fields are rejected.
func Parse(data []byte) (Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(data, &c); err != nil {
		return Config{}, errors.Wrap(err, "config: parse")
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every field that has a fixed set of values.
func (c Config) Validate() error {
	switch c.Key.Store {
	case StoreFile, StoreDir, StoreNVS:
		if c.Key.Path == "" {
			return errors.Errorf("config: key store %q needs a path", c.Key.Store)
		}
	case StoreInline:
		if c.Key.Value == "" {
			return errors.New("config: inline key store needs a value")
		}
	default:
		return errors.Errorf("config: unknown key store %q", c.Key.Store)
	}
	if c.Key.ID == "" {
		return errors.New("config: empty key id")
	}
	switch c.Radio.Backend {
	case BackendHCI, BackendBlueZ, BackendDryRun:
	default:
		return errors.Errorf("config: unknown radio backend %q", c.Radio.Backend)
	}
	if _, err := c.AdvertiseInterval(); err != nil {
		return err
	}
	if _, err := c.BatteryLevel(); err != nil {
		return err
	}
	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrap(err, "config")
	}
	switch c.Log.Format {
	case FormatAuto, FormatText, FormatJSON:
	default:
		return errors.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// AdvertiseInterval parses Radio.Interval, such as "2s" or "500ms".
func (c Config) AdvertiseInterval() (haystack.AdvertiseInterval, error) {
	d, err := time.ParseDuration(c.Radio.Interval)
	if err != nil {
		return 0, errors.Wrap(err, "config: radio interval")
	}
	i := haystack.NewAdvertiseInterval(uint32(d / time.Millisecond))
	if i < haystack.MinAdvertiseInterval || i > haystack.MaxAdvertiseInterval {
		return 0, errors.Errorf("config: radio interval %s out of range", d)
	}
	return i, nil
}

func (c Config) BatteryLevel() (haystack.BatteryLevel, error) {
	l, ok := haystack.ParseBatteryLevel(c.Battery)
	if !ok {
		return 0, errors.Errorf("config: unknown battery level %q", c.Battery)
	}
	return l, nil
}

// KeyStore opens the configured key store.
func (c Config) KeyStore() (keystore.Store, error) {
	switch c.Key.Store {
	case StoreFile:
		return keystore.File(c.Key.Path), nil
	case StoreDir:
		return keystore.Dir(c.Key.Path), nil
	case StoreNVS:
		return keystore.OpenNVS(c.Key.Path, c.Key.SectorSize)
	case StoreInline:
		key, err := haystack.DecodePublicKey(c.Key.Value)
		if err != nil {
			return nil, err
		}
		return keystore.Memory{c.Key.ID: key[:]}, nil
	}
	return nil, errors.Errorf("config: unknown key store %q", c.Key.Store)
}
