package tracker

import (
	"context"
	"time"
)

// Status is the delivery state derived from a carrier response.
type Status string

const (
	// StatusInTransit marks a package without a delivery timestamp.
	StatusInTransit Status = "in_transit"
	// StatusDelivered marks a package the carrier reports as delivered.
	StatusDelivered Status = "delivered"
)

// TimeWindow is a delivery window reported by a carrier.
type TimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Event is a single tracking event. Order follows the carrier response,
// which is not necessarily chronological.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Text      string    `json:"text"`
}

// Package is the normalized tracking result shared by all carriers. A
// handler builds a fresh value per parse; it is never mutated afterwards.
type Package struct {
	Barcode   string      `json:"barcode"`
	Channel   string      `json:"channel"`
	Sender    *string     `json:"sender,omitempty"`
	Recipient *string     `json:"recipient,omitempty"`
	Eta       *time.Time  `json:"eta,omitempty"`
	EtaWindow *TimeWindow `json:"eta_window,omitempty"`
	Delivered *time.Time  `json:"delivered,omitempty"`
	Events    []Event     `json:"events"`
}

// Status reports Delivered when a delivery timestamp is present.
func (p *Package) Status() Status {
	if p.Delivered != nil {
		return StatusDelivered
	}
	return StatusInTransit
}

// Context carries per-run hints threaded through every fetch. It is read
// only; the retry path clones it with the postcode cleared.
type Context struct {
	// RecipientPostcode is the user's home postcode, used by carriers
	// whose APIs require one when the tracking URL carries none.
	RecipientPostcode string
	// Language is the preferred response language, e.g. "en" or "nl".
	Language string
}

// WithoutPostcode returns a copy of the context with the postcode cleared.
func (c Context) WithoutPostcode() Context {
	c.RecipientPostcode = ""
	return c
}

// Handler integrates one carrier: it recognizes tracking URLs it can
// service, fetches the raw tracking payload, and parses it into a Package.
type Handler interface {
	// Name returns the carrier channel name, e.g. "DHL".
	Name() string

	// Recognize reports whether this handler services the given tracking
	// URL. It must be cheap, total and side-effect free.
	Recognize(url string) bool

	// Fetch issues exactly one GET against the carrier API derived from
	// the tracking URL and returns the raw response body. The body format
	// is opaque until Parse runs.
	Fetch(ctx context.Context, url string, tc Context) (string, error)

	// Parse converts a raw response body into a Package. It performs no
	// I/O so cached bodies can be re-parsed without a network round trip.
	Parse(text string) (*Package, error)
}
