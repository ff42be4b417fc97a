package main

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh/terminal"

	"github.com/haystackgo/haystack/internal/config"
)

// newLogger returns a logger writing to out. The auto format picks text
// when out is a terminal and JSON otherwise.
func newLogger(cfg config.LogConfig, out io.Writer) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	log := logrus.New()
	log.Out = out
	log.Level = level

	format := cfg.Format
	if format == config.FormatAuto {
		format = config.FormatJSON
		if f, ok := out.(interface{ Fd() uintptr }); ok && terminal.IsTerminal(int(f.Fd())) {
			format = config.FormatText
		}
	}
	switch format {
	case config.FormatText:
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	case config.FormatJSON:
		log.Formatter = &logrus.JSONFormatter{}
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	return log, nil
}
