// Package keystore loads advertisement keys from persistent storage: plain
// files, memory, or a Zephyr settings partition on NVS flash as written by
// the beacon firmware's provisioning tooling.
package keystore

import (
	"context"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is returned when no key is stored under the requested id.
	ErrNotFound = errors.New("keystore: key not found")

	// ErrCorrupt is returned for storage that cannot be parsed.
	ErrCorrupt = errors.New("keystore: corrupt storage")
)

// Store returns the raw key blob stored under id. Implementations return
// ErrNotFound (possibly wrapped) for a missing id.
type Store interface {
	Load(ctx context.Context, id string) ([]byte, error)
}

// Memory is a Store backed by a map. The zero value is empty.
type Memory map[string][]byte

// Load implements Store.
func (m Memory) Load(ctx context.Context, id string) ([]byte, error) {
	b, ok := m[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return append([]byte(nil), b...), nil
}
