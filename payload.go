package haystack

import "encoding/binary"

// Payload is the body of an offline-finding record: everything after the
// record length byte.
type Payload [RecordLength]byte

// EncodePayload encodes key with the OfflineFinding layout and a full
// battery.
func EncodePayload(key PublicKey) Payload {
	return OfflineFinding.Encode(key, BatteryFull)
}

// Encode builds the record body for key. The key bytes that did not fit in
// the address are copied verbatim, and the two bits the address overwrote
// are stored in the overflow byte so the full key can be reconstructed.
//
// Encode panics if the layout is inconsistent; layouts are constants.
func (l RecordLayout) Encode(key PublicKey, battery BatteryLevel) Payload {
	if !l.valid() {
		panic("haystack: invalid record layout")
	}
	var p Payload
	p[l.StatusOffset] |= byte(battery&batteryMask) << l.BatteryShift
	copy(p[l.BodyOffset:l.BodyOffset+bodySize], key[AddressSize:])
	_, overflow := packAddressBits(key[0])
	p[l.OverflowOffset] |= overflow << l.OverflowShift
	return p
}

// ManufacturerData returns the manufacturer specific data for p: company
// identifier (little endian), record type, record length, then p.
func (l RecordLayout) ManufacturerData(p Payload) []byte {
	b := make([]byte, recordHeaderSize+len(p))
	binary.LittleEndian.PutUint16(b, l.CompanyID)
	b[2] = l.RecordType
	b[3] = RecordLength
	copy(b[recordHeaderSize:], p[:])
	return b
}

// Body returns the key bytes carried by p.
func (l RecordLayout) Body(p Payload) []byte {
	return p[l.BodyOffset : l.BodyOffset+bodySize]
}

// Battery returns the battery level stored in p.
func (l RecordLayout) Battery(p Payload) BatteryLevel {
	return BatteryLevel(p[l.StatusOffset]>>l.BatteryShift) & batteryMask
}

// extractOverflowBits returns the two key bits displaced by the address,
// right aligned. It undoes the overflow half of packAddressBits.
func (l RecordLayout) extractOverflowBits(p Payload) byte {
	return p[l.OverflowOffset] >> l.OverflowShift & overflowMask
}

// OverflowBits returns the two high bits of the first key byte as stored in
// an OfflineFinding payload.
func (p Payload) OverflowBits() byte {
	return OfflineFinding.extractOverflowBits(p)
}

// Battery returns the battery level of an OfflineFinding payload.
func (p Payload) Battery() BatteryLevel {
	return OfflineFinding.Battery(p)
}
