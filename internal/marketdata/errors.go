package marketdata

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by FetchSeries and ListInstruments. Callers
// match them with errors.Is.
var (
	// ErrAuthRequired means no bearer token was available; no network
	// request was attempted.
	ErrAuthRequired = errors.New("marketdata: authentication required")

	// ErrAuthFailed means the backend rejected the token and the single
	// refresh-and-retry attempt did not recover.
	ErrAuthFailed = errors.New("marketdata: authentication failed")

	// ErrMalformedResponse means the response body matched none of the
	// supported wire shapes.
	ErrMalformedResponse = errors.New("marketdata: malformed response")

	// ErrNetworkUnavailable means the request failed below the HTTP layer
	// (connection refused, timeout, DNS).
	ErrNetworkUnavailable = errors.New("marketdata: network unavailable")
)

// RequestError reports a non-2xx backend response other than 401.
type RequestError struct {
	Status int
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("marketdata: backend returned status %d", e.Status)
}
