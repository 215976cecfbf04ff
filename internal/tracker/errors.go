package tracker

import (
	"errors"
	"fmt"
)

// ErrNoHandler is returned by Registry.Resolve when no registered handler
// recognizes a URL.
var ErrNoHandler = errors.New("no handler recognizes url")

// URLParseError reports that a handler could not extract the identifiers it
// needs (barcode, postcode) from a tracking URL.
type URLParseError struct {
	URL    string
	Reason string
}

func (e *URLParseError) Error() string {
	return fmt.Sprintf("parse tracking url %q: %s", e.URL, e.Reason)
}

// FetchError reports a failed fetch attempt against a carrier API. Status
// is zero when the request never produced an HTTP response.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ClientError reports whether the fetch failed with an HTTP 4xx status.
func (e *FetchError) ClientError() bool {
	return e.Status >= 400 && e.Status < 500
}

// ParseError reports a carrier response body that could not be parsed.
type ParseError struct {
	Channel string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s response: %s: %v", e.Channel, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s response: %s", e.Channel, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// MissingFieldError reports a required field absent from a carrier
// response. The barcode is the only field whose absence is an error; all
// other fields degrade to nil or empty values.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing required field %q", e.Field)
}
