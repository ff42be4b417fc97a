package haystack

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
)

// MAC represents a MAC address, in little endian format as the HCI and the
// BlueZ management interface expect it.
type MAC [6]byte

var errInvalidMAC = errors.New("haystack: failed to parse MAC address")

// ParseMAC parses the given MAC address, which must be in 11:22:33:AA:BB:CC
// format. If it cannot be parsed, an error is returned.
func ParseMAC(s string) (mac MAC, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != len(mac) {
		return mac, errInvalidMAC
	}
	for i, part := range parts {
		if len(part) != 2 {
			return MAC{}, errInvalidMAC
		}
		b, err := hex.DecodeString(part)
		if err != nil {
			return MAC{}, errInvalidMAC
		}
		// The first octet printed is the most significant one.
		mac[len(mac)-1-i] = b[0]
	}
	return mac, nil
}

// String returns a human-readable version of this MAC address, such as
// 11:22:33:AA:BB:CC.
func (mac MAC) String() string {
	var sb strings.Builder
	for i := len(mac) - 1; i >= 0; i-- {
		if i != len(mac)-1 {
			sb.WriteByte(':')
		}
		sb.WriteString(strings.ToUpper(hex.EncodeToString(mac[i : i+1])))
	}
	return sb.String()
}
