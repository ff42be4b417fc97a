package hci

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseAdapter returns the index of an adapter named "hciN" or "N".
func ParseAdapter(name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "hci"))
	if err != nil || n < 0 || n > 0xFFFE {
		return 0, errors.Errorf("hci: invalid adapter %q", name)
	}
	return n, nil
}
