package keystore

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// hexLineLength is the number of data bytes per Intel HEX record.
const hexLineLength = 16

// NVSImage builds a Zephyr settings partition holding a set of entries, so
// a key can be flashed next to the firmware instead of compiled into it.
type NVSImage struct {
	SectorSize  int
	SectorCount int
	// FlashOffset is the address of the partition, used for Intel HEX
	// output.
	FlashOffset uint32

	names  []string
	values [][]byte
}

// NewNVSImage returns an empty image with the default geometry.
func NewNVSImage() *NVSImage {
	return &NVSImage{
		SectorSize:  DefaultSectorSize,
		SectorCount: DefaultSectorCount,
		FlashOffset: DefaultFlashOffset,
	}
}

// Add appends a setting. Names must be unique.
func (img *NVSImage) Add(name string, value []byte) error {
	if name == "" {
		return errors.New("keystore: empty setting name")
	}
	for _, n := range img.names {
		if n == name {
			return errors.Errorf("keystore: duplicate setting %q", name)
		}
	}
	if len(img.names) >= nameIDOffset-1 {
		return errors.New("keystore: too many settings")
	}
	img.names = append(img.names, name)
	img.values = append(img.values, append([]byte(nil), value...))
	return nil
}

// Bytes renders the partition. Only the first sector is written; the others
// are left erased.
//
// The first sector holds, from its end downwards: the sector close ATE, the
// name count ATE and then a value ATE and a name ATE per setting. Data is
// written upwards from the start of the sector: the name count followed by
// each value and name.
func (img *NVSImage) Bytes() ([]byte, error) {
	if img.SectorSize <= 2*ateSize || img.SectorSize%ateSize != 0 || img.SectorSize > 1<<16 {
		return nil, errors.Errorf("keystore: invalid NVS sector size %d", img.SectorSize)
	}
	if img.SectorCount < 2 {
		return nil, errors.Errorf("keystore: NVS needs at least 2 sectors, got %d", img.SectorCount)
	}
	data := bytes.Repeat([]byte{erasedByte}, img.SectorSize*img.SectorCount)
	sector := data[:img.SectorSize]

	trail := img.SectorSize - 2*ateSize
	putATE := func(a ate) {
		b := a.marshal()
		copy(sector[trail:], b[:])
	}
	putATE(ate{id: closeATEID, part: erasedByte})

	offset := 0
	write := func(id uint16, value []byte) error {
		trail -= ateSize
		if offset+len(value) > trail {
			return errors.Errorf("keystore: settings do not fit in a %d byte sector", img.SectorSize)
		}
		putATE(ate{id: id, offset: uint16(offset), length: uint16(len(value)), part: erasedByte})
		copy(sector[offset:], value)
		offset += len(value)
		return nil
	}

	var count [2]byte
	binary.LittleEndian.PutUint16(count[:], uint16(nameCountID+len(img.names)))
	if err := write(nameCountID, count[:]); err != nil {
		return nil, err
	}
	for i, name := range img.names {
		id := uint16(nameCountID + 1 + i)
		if err := write(id+nameIDOffset, img.values[i]); err != nil {
			return nil, err
		}
		if err := write(id, []byte(name)); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// WriteBinary writes the raw partition to w.
func (img *NVSImage) WriteBinary(w io.Writer) error {
	data, err := img.Bytes()
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// WriteIntelHex writes the partition to w as Intel HEX located at
// FlashOffset.
func (img *NVSImage) WriteIntelHex(w io.Writer) error {
	data, err := img.Bytes()
	if err != nil {
		return err
	}
	mem := gohex.NewMemory()
	if err := mem.AddBinary(img.FlashOffset, data); err != nil {
		return errors.Wrap(err, "keystore: intel hex")
	}
	return mem.DumpIntelHex(w, hexLineLength)
}
