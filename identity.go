package haystack

import (
	"encoding/hex"

	"github.com/pkg/errors"
)

// Assemble derives the address and payload a beacon broadcasts for key.
func Assemble(key PublicKey) (DeviceAddress, Payload) {
	return DeriveAddress(key), EncodePayload(key)
}

// DeviceIdentity is everything a radio needs to advertise a key. It is
// derived once and never modified.
type DeviceIdentity struct {
	key     PublicKey
	address DeviceAddress
	payload Payload
	layout  RecordLayout
	battery BatteryLevel
}

// IdentityOption customizes NewDeviceIdentity.
type IdentityOption func(*DeviceIdentity)

// WithBattery reports the given battery level in the status byte.
func WithBattery(level BatteryLevel) IdentityOption {
	return func(id *DeviceIdentity) {
		id.battery = level
	}
}

// WithLayout encodes the record with a layout other than OfflineFinding.
func WithLayout(layout RecordLayout) IdentityOption {
	return func(id *DeviceIdentity) {
		id.layout = layout
	}
}

// NewDeviceIdentity derives the identity for key.
func NewDeviceIdentity(key PublicKey, options ...IdentityOption) DeviceIdentity {
	id := DeviceIdentity{
		key:     key,
		layout:  OfflineFinding,
		battery: BatteryFull,
	}
	for _, o := range options {
		o(&id)
	}
	id.address = DeriveAddress(key)
	id.payload = id.layout.Encode(key, id.battery)
	return id
}

// Key returns the public key the identity was derived from.
func (id DeviceIdentity) Key() PublicKey { return id.key }

// Address returns the random static address to advertise from.
func (id DeviceIdentity) Address() DeviceAddress { return id.address }

// Payload returns the offline-finding record body.
func (id DeviceIdentity) Payload() Payload { return id.payload }

// Layout returns the record layout of Payload.
func (id DeviceIdentity) Layout() RecordLayout { return id.layout }

// Battery returns the battery level reported by the identity.
func (id DeviceIdentity) Battery() BatteryLevel { return id.battery }

// ManufacturerData returns the manufacturer specific data with the company
// identifier split off, as BlueZ and most host stacks take it.
func (id DeviceIdentity) ManufacturerData() ManufacturerDataElement {
	b := id.layout.ManufacturerData(id.payload)
	return ManufacturerDataElement{
		CompanyID: id.layout.CompanyID,
		Data:      b[2:],
	}
}

// AdvertisingData returns the raw advertising data: a single manufacturer
// specific data structure that fills the legacy 31 byte PDU.
func (id DeviceIdentity) AdvertisingData() ([]byte, error) {
	var buf rawAdvertisementPayload
	md := id.ManufacturerData()
	if !buf.addManufacturerData(md.CompanyID, md.Data) {
		return nil, errPayloadTooBig
	}
	return append([]byte(nil), buf.Bytes()...), nil
}

// String summarizes the identity for logs.
func (id DeviceIdentity) String() string {
	return id.address.String() + " " + hex.EncodeToString(id.payload[:])
}

// RestoreKeyPrefix reconstructs the first key byte from a derived address
// and its payload. It is the inverse of the bit forcing DeriveAddress does.
func RestoreKeyPrefix(addr DeviceAddress, p Payload) (byte, error) {
	if !addr.IsStaticRandom() {
		return 0, errors.New("haystack: not a random static address")
	}
	b := addr.Bytes()
	return restoreAddressBits(b[0], p.OverflowBits()), nil
}
