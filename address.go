package haystack

// AddressSize is the length of a BLE device address.
const AddressSize = 6

// staticRandomMask marks a random address as static (Bluetooth Core Vol 6, Part
// B, 1.3.2.1): both most significant bits set.
const staticRandomMask = 0xC0

// overflowBits is the number of key bits displaced by staticRandomMask.
const (
	overflowBits = 2
	overflowMask = 1<<overflowBits - 1
)

// AddressType is the BLE link-layer address type.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandomStatic
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "public"
	case AddressRandomStatic:
		return "random static"
	default:
		return "unknown"
	}
}

// DeviceAddress is the address a beacon advertises from.
type DeviceAddress struct {
	MAC
	Type AddressType
}

// DeriveAddress maps the first six key bytes onto a random static address.
// Bits 7 and 6 of the first byte are forced to 1; the bits they replace are
// carried in the payload instead (see EncodePayload).
func DeriveAddress(key PublicKey) DeviceAddress {
	var b [AddressSize]byte
	copy(b[:], key[:AddressSize])
	b[0], _ = packAddressBits(b[0])
	return DeviceAddress{MAC: macFromBytes(b), Type: AddressRandomStatic}
}

// Bytes returns the address in transmission order as printed, most
// significant byte first. For a derived address this is the key prefix.
func (a DeviceAddress) Bytes() [AddressSize]byte {
	var b [AddressSize]byte
	for i := range b {
		b[i] = a.MAC[AddressSize-1-i]
	}
	return b
}

// IsStaticRandom reports whether the address satisfies the random static
// address format.
func (a DeviceAddress) IsStaticRandom() bool {
	return a.Type == AddressRandomStatic && a.MAC[AddressSize-1]&staticRandomMask == staticRandomMask
}

func macFromBytes(b [AddressSize]byte) MAC {
	var mac MAC
	for i := range b {
		mac[AddressSize-1-i] = b[i]
	}
	return mac
}

// packAddressBits forces the static random marker into the first key byte.
// It returns the address byte and the two displaced bits, right aligned.
func packAddressBits(first byte) (addr, overflow byte) {
	return first | staticRandomMask, first >> (8 - overflowBits)
}

// restoreAddressBits is the inverse of packAddressBits.
func restoreAddressBits(addr, overflow byte) byte {
	return addr&^staticRandomMask | (overflow&overflowMask)<<(8-overflowBits)
}
