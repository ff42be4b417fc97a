package haystack

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrKeyUnavailable is returned when the public key could not be loaded
	// or is malformed. A beacon never advertises without a valid key.
	ErrKeyUnavailable = errors.New("haystack: public key unavailable")

	// ErrRadioUnavailable is returned when the radio backend could not be
	// brought up or refused to advertise.
	ErrRadioUnavailable = errors.New("haystack: radio unavailable")

	errAlreadyStarted = errors.New("haystack: beacon already started")
	errNotAdvertising = errors.New("haystack: beacon is not advertising")
	errPayloadTooBig  = errors.New("haystack: advertisement payload too big")
)

// KeyLengthError reports a key blob that is not exactly KeySize bytes.
type KeyLengthError struct {
	Got int
}

func (e *KeyLengthError) Error() string {
	return fmt.Sprintf("haystack: public key must be %d bytes, got %d", KeySize, e.Got)
}

// Unwrap makes errors.Is(err, ErrKeyUnavailable) hold.
func (e *KeyLengthError) Unwrap() error {
	return ErrKeyUnavailable
}

// causeError marks a failure as one of the sentinel classes while keeping
// the underlying error reachable through errors.As.
type causeError struct {
	class error
	msg   string
	cause error
}

func (e *causeError) Error() string {
	return e.msg + ": " + e.cause.Error()
}

func (e *causeError) Unwrap() error {
	return e.cause
}

func (e *causeError) Is(target error) bool {
	return target == e.class
}

// KeyUnavailable annotates err so that errors.Is(err, ErrKeyUnavailable)
// holds.
func KeyUnavailable(err error, format string, args ...interface{}) error {
	return &causeError{class: ErrKeyUnavailable, msg: fmt.Sprintf(format, args...), cause: err}
}

// RadioUnavailable annotates err so that errors.Is(err,
// ErrRadioUnavailable) holds.
func RadioUnavailable(err error, format string, args ...interface{}) error {
	return &causeError{class: ErrRadioUnavailable, msg: fmt.Sprintf(format, args...), cause: err}
}
