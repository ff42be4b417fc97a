package keystore

import (
	"bytes"
	"context"
	"io/ioutil"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/haystackgo/haystack"
)

// Dir is a Store that keeps one key per file below a root directory. The id
// is a slash separated path relative to the root, so the firmware's
// "airtag/public_key" maps to <root>/airtag/public_key.
//
// A file holds either the raw key bytes or the key as text in base64 or
// hex.
type Dir string

// Load implements Store.
func (d Dir) Load(ctx context.Context, id string) ([]byte, error) {
	p, err := d.path(id)
	if err != nil {
		return nil, err
	}
	b, err := ioutil.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "keystore: read %s", p)
	}
	return decodeKeyFile(b)
}

func (d Dir) path(id string) (string, error) {
	clean := path.Clean("/" + id)
	if clean == "/" || strings.Contains(id, "\\") {
		return "", errors.Errorf("keystore: invalid key id %q", id)
	}
	return filepath.Join(string(d), filepath.FromSlash(clean[1:])), nil
}

// File is a Store holding a single key file, returned for any id.
type File string

// Load implements Store.
func (f File) Load(ctx context.Context, id string) ([]byte, error) {
	b, err := ioutil.ReadFile(string(f))
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, string(f))
	}
	if err != nil {
		return nil, errors.Wrapf(err, "keystore: read %s", string(f))
	}
	return decodeKeyFile(b)
}

// decodeKeyFile accepts a raw key or a text encoding of one. Blobs that are
// neither are returned unchanged so the caller reports their length.
func decodeKeyFile(b []byte) ([]byte, error) {
	if len(b) == haystack.KeySize {
		return b, nil
	}
	text := bytes.TrimSpace(b)
	if len(text) == 0 || !isPrintable(text) {
		return b, nil
	}
	key, err := haystack.DecodePublicKey(string(text))
	if err != nil {
		return nil, err
	}
	return key[:], nil
}

func isPrintable(b []byte) bool {
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
