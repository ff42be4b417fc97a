//go:build !linux

package hci

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/haystackgo/haystack"
)

// Open is only supported on Linux.
func Open(adapter string, log logrus.FieldLogger) (*Broadcaster, error) {
	return nil, errors.Wrap(haystack.ErrRadioUnavailable, "hci: user channel sockets require Linux")
}
