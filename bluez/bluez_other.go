//go:build !linux

package bluez

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/haystackgo/haystack"
)

// Open always fails: BlueZ only runs on Linux.
func Open(name string, log logrus.FieldLogger) (*Broadcaster, error) {
	return nil, errors.Wrap(haystack.ErrRadioUnavailable, "bluez: not supported on this platform")
}
