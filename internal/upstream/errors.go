package upstream

import (
	"errors"
	"fmt"
)

// ErrCityNotFound is returned when the geocoding endpoint resolves a city
// name to an empty result set.
var ErrCityNotFound = errors.New("city not found")

// UpstreamError is a non-2xx response from the provider. StatusCode is
// propagated to the caller so client-caused and provider-caused failures
// stay distinguishable.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Message)
}

// TransportError is a network-level failure: timeout, DNS, connection reset.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
