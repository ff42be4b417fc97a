package haystack

// Offline-finding record constants. Changing any of them breaks
// interoperability with the location network.
const (
	// CompanyIDApple is the Bluetooth SIG company identifier the record is
	// filed under.
	CompanyIDApple uint16 = 0x004C

	// RecordTypeOfflineFinding identifies a locate record.
	RecordTypeOfflineFinding byte = 0x12

	// RecordLength is the value of the record's length byte: the number of
	// bytes following it, which is the size of a Payload.
	RecordLength = 25

	// bodySize is the number of key bytes not consumed by the address.
	bodySize = KeySize - AddressSize

	// recordHeaderSize covers the company identifier, type and length.
	recordHeaderSize = 4
)

// BatteryLevel is the coarse battery state reported in the status byte.
type BatteryLevel uint8

const batteryMask = 0x3

const (
	BatteryFull BatteryLevel = iota
	BatteryMedium
	BatteryLow
	BatteryCritical
)

func (l BatteryLevel) String() string {
	switch l {
	case BatteryFull:
		return "full"
	case BatteryMedium:
		return "medium"
	case BatteryLow:
		return "low"
	case BatteryCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// ParseBatteryLevel is the inverse of BatteryLevel.String.
func ParseBatteryLevel(s string) (BatteryLevel, bool) {
	for l := BatteryFull; l <= BatteryCritical; l++ {
		if l.String() == s {
			return l, true
		}
	}
	return 0, false
}

// RecordLayout describes where each field of an offline-finding record
// lives. Offsets are relative to the start of the Payload.
type RecordLayout struct {
	CompanyID  uint16
	RecordType byte

	StatusOffset int
	// BatteryShift is the position of the two battery bits in the status
	// byte.
	BatteryShift uint

	BodyOffset int

	OverflowOffset int
	// OverflowShift is the position of the two displaced key bits in the
	// overflow byte.
	OverflowShift uint

	HintOffset int
}

// OfflineFinding is the record layout the Find My network decodes.
var OfflineFinding = RecordLayout{
	CompanyID:      CompanyIDApple,
	RecordType:     RecordTypeOfflineFinding,
	StatusOffset:   0,
	BatteryShift:   6,
	BodyOffset:     1,
	OverflowOffset: 1 + bodySize,
	OverflowShift:  0,
	HintOffset:     2 + bodySize,
}

// valid reports whether all fields fit in a Payload without overlapping the
// key body or each other.
func (l RecordLayout) valid() bool {
	if l.BodyOffset < 0 || l.BodyOffset+bodySize > RecordLength {
		return false
	}
	if l.BatteryShift > 6 || l.OverflowShift > 8-overflowBits {
		return false
	}
	// Battery and overflow bits may share a byte but not a bit.
	if l.StatusOffset == l.OverflowOffset &&
		l.BatteryShift < l.OverflowShift+overflowBits && l.OverflowShift < l.BatteryShift+2 {
		return false
	}
	for _, off := range []int{l.StatusOffset, l.OverflowOffset, l.HintOffset} {
		if off < 0 || off >= RecordLength {
			return false
		}
		if off >= l.BodyOffset && off < l.BodyOffset+bodySize {
			return false
		}
	}
	return true
}
