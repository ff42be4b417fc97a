package keystore

import (
	"bytes"
	"context"
	"encoding/binary"
	"io/ioutil"
	"sort"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
	"github.com/sigurn/crc8"
)

// Zephyr NVS and settings constants.
const (
	DefaultSectorSize  = 4096
	DefaultSectorCount = 8
	// DefaultFlashOffset is the storage partition of an nRF52840 DK.
	DefaultFlashOffset = 0xF8000

	ateSize = 8

	// nameCountID stores the highest name id in use.
	nameCountID = 0x8000
	// nameIDOffset separates a name entry from its value entry.
	nameIDOffset = 0x4000
	closeATEID   = 0xFFFF
	erasedByte   = 0xFF
)

// ateCRC is CRC-8 with polynomial 0x07 and initial value 0xFF, as NVS
// computes it over the first seven bytes of an allocation table entry.
var ateCRC = crc8.MakeTable(crc8.Params{
	Poly:   0x07,
	Init:   0xFF,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0xFB,
	Name:   "CRC-8/NVS",
})

// ate is an NVS allocation table entry.
type ate struct {
	id     uint16
	offset uint16
	length uint16
	part   uint8
}

func (a ate) marshal() [ateSize]byte {
	var b [ateSize]byte
	binary.LittleEndian.PutUint16(b[0:], a.id)
	binary.LittleEndian.PutUint16(b[2:], a.offset)
	binary.LittleEndian.PutUint16(b[4:], a.length)
	b[6] = a.part
	b[7] = crc8.Checksum(b[:7], ateCRC)
	return b
}

func parseATE(b []byte) (ate, bool) {
	if crc8.Checksum(b[:7], ateCRC) != b[7] {
		return ate{}, false
	}
	return ate{
		id:     binary.LittleEndian.Uint16(b[0:]),
		offset: binary.LittleEndian.Uint16(b[2:]),
		length: binary.LittleEndian.Uint16(b[4:]),
		part:   b[6],
	}, true
}

func erased(b []byte) bool {
	for _, c := range b {
		if c != erasedByte {
			return false
		}
	}
	return true
}

// NVS is a read-only Store over a Zephyr settings partition image.
type NVS struct {
	settings map[string][]byte
}

// ParseNVS reads the settings stored in a raw NVS partition image.
//
// TODO: follow the sector ring from the open sector, so that images which
// wrapped around during garbage collection resolve to the newest entry.
func ParseNVS(image []byte, sectorSize int) (*NVS, error) {
	if sectorSize <= 0 || sectorSize%ateSize != 0 || sectorSize > 1<<16 {
		return nil, errors.Errorf("keystore: invalid NVS sector size %d", sectorSize)
	}
	if len(image) == 0 || len(image)%sectorSize != 0 {
		return nil, errors.Wrapf(ErrCorrupt, "image size %d is not a multiple of the sector size", len(image))
	}

	// Sectors are walked in index order, so later sectors win.
	entries := make(map[uint16]located)
	var sectors [][]byte
	for start := 0; start < len(image); start += sectorSize {
		sector := image[start : start+sectorSize]
		index := len(sectors)
		sectors = append(sectors, sector)
		walkATEs(sector, func(a ate) {
			entries[a.id] = located{ate: a, sector: index}
		})
	}

	settings := make(map[string][]byte)
	for id, nameEntry := range entries {
		if id <= nameCountID || id >= nameCountID+nameIDOffset {
			continue
		}
		valueEntry, ok := entries[id+nameIDOffset]
		if !ok || valueEntry.length == 0 {
			continue // deleted
		}
		name, err := entryData(sectors[nameEntry.sector], nameEntry.ate)
		if err != nil {
			return nil, err
		}
		value, err := entryData(sectors[valueEntry.sector], valueEntry.ate)
		if err != nil {
			return nil, err
		}
		settings[string(name)] = append([]byte(nil), value...)
	}
	return &NVS{settings: settings}, nil
}

// located is an ATE and the index of the sector holding its data.
type located struct {
	ate
	sector int
}

// walkATEs calls fn for every valid ATE in sector, oldest first. The two
// topmost slots hold the sector close and garbage collection markers.
func walkATEs(sector []byte, fn func(ate)) {
	for slot := len(sector) - ateSize; slot >= 0; slot -= ateSize {
		b := sector[slot : slot+ateSize]
		if erased(b) {
			if slot >= len(sector)-2*ateSize {
				continue
			}
			return
		}
		a, ok := parseATE(b)
		if !ok || a.id == closeATEID {
			continue
		}
		fn(a)
	}
}

func entryData(sector []byte, a ate) ([]byte, error) {
	end := int(a.offset) + int(a.length)
	if end > len(sector) {
		return nil, errors.Wrapf(ErrCorrupt, "entry %#04x exceeds its sector", a.id)
	}
	return sector[a.offset:end], nil
}

// ParseNVSIntelHex reads an NVS partition from an Intel HEX file. Gaps
// between records read as erased flash.
func ParseNVSIntelHex(data []byte, sectorSize int) (*NVS, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(bytes.NewReader(data)); err != nil {
		return nil, errors.Wrapf(ErrCorrupt, "intel hex: %v", err)
	}
	segments := mem.GetDataSegments()
	if len(segments) == 0 {
		return nil, errors.Wrap(ErrCorrupt, "intel hex: no data")
	}
	sort.Slice(segments, func(i, j int) bool {
		return segments[i].Address < segments[j].Address
	})
	base := segments[0].Address
	last := segments[len(segments)-1]
	size := int(last.Address-base) + len(last.Data)
	if rem := size % sectorSize; rem != 0 {
		size += sectorSize - rem
	}
	image := bytes.Repeat([]byte{erasedByte}, size)
	for _, seg := range segments {
		copy(image[seg.Address-base:], seg.Data)
	}
	return ParseNVS(image, sectorSize)
}

// OpenNVS reads an NVS image from a file. Files starting with ':' are read
// as Intel HEX, anything else as a raw flash dump.
func OpenNVS(path string, sectorSize int) (*NVS, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "keystore: read %s", path)
	}
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte(":")) {
		return ParseNVSIntelHex(data, sectorSize)
	}
	return ParseNVS(data, sectorSize)
}

// Load implements Store.
func (s *NVS) Load(ctx context.Context, id string) ([]byte, error) {
	b, ok := s.settings[id]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, id)
	}
	return append([]byte(nil), b...), nil
}

// Names returns the names of all stored settings, sorted.
func (s *NVS) Names() []string {
	names := make([]string, 0, len(s.settings))
	for name := range s.settings {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
