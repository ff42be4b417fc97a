package haystack

// adManufacturerData is the Manufacturer Specific Data AD type (Core
// Specification Supplement, Part A, 1.4).
const adManufacturerData = 0xFF

// maxAdvertisingData is the size of legacy advertising data.
const maxAdvertisingData = 31

// ManufacturerDataElement is a manufacturer specific data AD structure split
// into its company identifier and the data that follows it.
type ManufacturerDataElement struct {
	CompanyID uint16
	Data      []byte
}

// rawAdvertisementPayload encapsulates a raw advertisement packet. Send it
// with the LE Set Advertising Data HCI command.
type rawAdvertisementPayload struct {
	len  uint8
	data [maxAdvertisingData]byte
}

// Bytes returns the raw bytes of this payload.
func (buf *rawAdvertisementPayload) Bytes() []byte {
	return buf.data[:buf.len]
}

// addManufacturerData adds a manufacturer specific data field. It returns
// false if the field does not fit.
func (buf *rawAdvertisementPayload) addManufacturerData(companyID uint16, value []byte) (ok bool) {
	fieldLength := len(value) + 4
	if int(buf.len)+fieldLength > len(buf.data) {
		return false
	}
	buf.data[buf.len+0] = byte(fieldLength - 1) // length of field (including type)
	buf.data[buf.len+1] = adManufacturerData
	buf.data[buf.len+2] = byte(companyID)
	buf.data[buf.len+3] = byte(companyID >> 8)
	copy(buf.data[buf.len+4:], value)
	buf.len += uint8(fieldLength)
	return true
}
