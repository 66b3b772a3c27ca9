package geocode

import (
	"errors"
	"fmt"
)

var (
	errUserAgentRequired = errors.New("geocode: user agent is required")
	errBaseURLRequired   = errors.New("geocode: base url is required")
	errEmptyAddress      = errors.New("geocode: address is empty")
)

// NotFoundError reports that the provider returned no match for an address.
type NotFoundError struct {
	Address string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("geocode: no match for %q", e.Address)
}

// TimeoutError reports that every attempt for an address timed out.
type TimeoutError struct {
	Address  string
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("geocode: %q timed out after %d attempts", e.Address, e.Attempts)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// StatusError reports an unexpected HTTP status from the provider.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("geocode: provider status %d", e.Status)
	}
	return fmt.Sprintf("geocode: provider status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsTimeout reports whether err carries a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
