package keystore

import (
	"bytes"
	"context"
	"encoding/hex"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestATECRC(t *testing.T) {
	// Vectors from the firmware's settings image generator.
	tests := map[string]uint8{
		"ffff00000000ff": 0x5c,
		"01801e000400ff": 0x4f,
		"008000000200ff": 0x8d,
	}
	for in, crc := range tests {
		assert.Equal(t, crc, crc8.Checksum(mustHex(t, in), ateCRC), in)
	}
	assert.Equal(t, uint8(0xFB), crc8.Checksum([]byte("123456789"), ateCRC))
}

func TestATEMarshal(t *testing.T) {
	a := ate{id: 0xC001, offset: 2, length: 28, part: 0xFF}
	b := a.marshal()
	assert.Equal(t, "01c002001c00ff6e", hex.EncodeToString(b[:]))

	parsed, ok := parseATE(b[:])
	require.True(t, ok)
	assert.Equal(t, a, parsed)

	b[3] ^= 0x01
	_, ok = parseATE(b[:])
	assert.False(t, ok, "corrupted ATE must fail its CRC")
}

func testKey() []byte {
	return bytes.Repeat([]byte{0x01}, 28)
}

func TestNVSImageLayout(t *testing.T) {
	img := NewNVSImage()
	require.NoError(t, img.Add("airtag/public_key", testKey()))
	data, err := img.Bytes()
	require.NoError(t, err)
	require.Len(t, data, DefaultSectorSize*DefaultSectorCount)

	ates := map[int]string{
		4080: "ffff00000000ff5c", // sector close
		4072: "008000000200ff8d", // name count
		4064: "01c002001c00ff6e", // value
		4056: "01801e001100ff2d", // name
	}
	for off, expected := range ates {
		assert.Equal(t, expected, hex.EncodeToString(data[off:off+ateSize]), "ATE at %d", off)
	}
	assert.Equal(t, bytes.Repeat([]byte{0xFF}, 8), data[4088:4096])
	assert.Equal(t, []byte{0x01, 0x80}, data[0:2])
	assert.Equal(t, testKey(), data[2:30])
	assert.Equal(t, "airtag/public_key", string(data[30:47]))
	assert.True(t, erased(data[47:4056]))
	assert.True(t, erased(data[DefaultSectorSize:]))
}

func TestNVSRoundTripBinary(t *testing.T) {
	img := NewNVSImage()
	require.NoError(t, img.Add("airtag/public_key", testKey()))
	require.NoError(t, img.Add("airtag/label", []byte("keys")))

	var buf bytes.Buffer
	require.NoError(t, img.WriteBinary(&buf))

	store, err := ParseNVS(buf.Bytes(), DefaultSectorSize)
	require.NoError(t, err)
	assert.Equal(t, []string{"airtag/label", "airtag/public_key"}, store.Names())

	key, err := store.Load(context.Background(), "airtag/public_key")
	require.NoError(t, err)
	assert.Equal(t, testKey(), key)

	_, err = store.Load(context.Background(), "airtag/missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNVSRoundTripIntelHex(t *testing.T) {
	img := NewNVSImage()
	require.NoError(t, img.Add("airtag/public_key", testKey()))

	path := filepath.Join(t.TempDir(), "nvs_generated.hex")
	var buf bytes.Buffer
	require.NoError(t, img.WriteIntelHex(&buf))
	require.True(t, bytes.HasPrefix(buf.Bytes(), []byte(":")))
	require.NoError(t, ioutil.WriteFile(path, buf.Bytes(), 0644))

	store, err := OpenNVS(path, DefaultSectorSize)
	require.NoError(t, err)
	key, err := store.Load(context.Background(), "airtag/public_key")
	require.NoError(t, err)
	assert.Equal(t, testKey(), key)
}

func TestNVSLatestEntryWins(t *testing.T) {
	img := NewNVSImage()
	require.NoError(t, img.Add("airtag/public_key", testKey()))
	data, err := img.Bytes()
	require.NoError(t, err)

	// Append a newer value ATE for the same name, pointing at fresh data.
	newer := bytes.Repeat([]byte{0x02}, 28)
	copy(data[47:], newer)
	a := ate{id: 0xC001, offset: 47, length: 28, part: 0xFF}.marshal()
	copy(data[4048:], a[:])

	store, err := ParseNVS(data, DefaultSectorSize)
	require.NoError(t, err)
	key, err := store.Load(context.Background(), "airtag/public_key")
	require.NoError(t, err)
	assert.Equal(t, newer, key)

	// A zero length value deletes the setting.
	d := ate{id: 0xC001, offset: 75, length: 0, part: 0xFF}.marshal()
	copy(data[4040:], d[:])
	store, err = ParseNVS(data, DefaultSectorSize)
	require.NoError(t, err)
	_, err = store.Load(context.Background(), "airtag/public_key")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNVSNewerValueInLaterSector(t *testing.T) {
	img := NewNVSImage()
	require.NoError(t, img.Add("airtag/public_key", testKey()))
	data, err := img.Bytes()
	require.NoError(t, err)

	// Rewriting an existing setting only writes its value entry, here into
	// the second sector.
	sector1 := data[DefaultSectorSize : 2*DefaultSectorSize]
	newer := bytes.Repeat([]byte{0x02}, 28)
	copy(sector1, newer)
	a := ate{id: 0xC001, offset: 0, length: 28, part: 0xFF}.marshal()
	copy(sector1[DefaultSectorSize-3*ateSize:], a[:])

	store, err := ParseNVS(data, DefaultSectorSize)
	require.NoError(t, err)
	key, err := store.Load(context.Background(), "airtag/public_key")
	require.NoError(t, err)
	assert.Equal(t, newer, key)
	assert.Equal(t, []string{"airtag/public_key"}, store.Names())

	d := ate{id: 0xC001, offset: 28, length: 0, part: 0xFF}.marshal()
	copy(sector1[DefaultSectorSize-4*ateSize:], d[:])
	store, err = ParseNVS(data, DefaultSectorSize)
	require.NoError(t, err)
	_, err = store.Load(context.Background(), "airtag/public_key")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Empty(t, store.Names())
}

func TestParseNVSCorrupt(t *testing.T) {
	_, err := ParseNVS(make([]byte, 100), DefaultSectorSize)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = ParseNVS(nil, DefaultSectorSize)
	assert.True(t, errors.Is(err, ErrCorrupt))

	_, err = ParseNVSIntelHex([]byte(":00000001FF\n"), DefaultSectorSize)
	assert.True(t, errors.Is(err, ErrCorrupt))

	img := NewNVSImage()
	require.NoError(t, img.Add("airtag/public_key", testKey()))
	data, err := img.Bytes()
	require.NoError(t, err)
	bad := ate{id: 0xC001, offset: 4000, length: 200, part: 0xFF}.marshal()
	copy(data[4064:], bad[:])
	_, err = ParseNVS(data, DefaultSectorSize)
	assert.True(t, errors.Is(err, ErrCorrupt))
}

func TestNVSImageErrors(t *testing.T) {
	img := NewNVSImage()
	assert.Error(t, img.Add("", testKey()))
	require.NoError(t, img.Add("a", testKey()))
	assert.Error(t, img.Add("a", testKey()))

	img.SectorSize = 64
	_, err := img.Bytes()
	assert.Error(t, err, "settings must not fit in a 64 byte sector")

	img.SectorSize = DefaultSectorSize
	img.SectorCount = 1
	_, err = img.Bytes()
	assert.Error(t, err)
}
