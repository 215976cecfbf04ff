package dhl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/noah-isme/packtrack/internal/tracker"
)

const (
	channel        = "DHL"
	defaultBaseURL = "https://api-gw.dhlparcel.nl"
)

var (
	parcelPattern    = regexp.MustCompile(`.*dhl.com.*tracking-id=([A-Z0-9-].*)`)
	ecommercePattern = regexp.MustCompile(`.*dhlecommerce.*tracktrace/([A-Z0-9-]+)/?([A-Z0-9-]+)?\??.*`)
)

// Handler tracks DHL shipments through the dhlparcel.nl consumer API.
type Handler struct {
	Client  *http.Client
	BaseURL string
}

func New(client *http.Client) *Handler {
	return &Handler{Client: client, BaseURL: defaultBaseURL}
}

func (h *Handler) Name() string { return channel }

func (h *Handler) Recognize(url string) bool {
	return strings.Contains(url, "dhl")
}

// Fetch looks the shipment up by barcode. When the tracking URL or the
// tracking context carries a postcode it is joined onto the lookup key,
// which narrows the API response to the addressee's view.
func (h *Handler) Fetch(ctx context.Context, trackingURL string, tc tracker.Context) (string, error) {
	barcode, postcode, ok := extractIdentifiers(trackingURL)
	if !ok {
		return "", &tracker.URLParseError{URL: trackingURL, Reason: "no barcode found"}
	}
	if postcode == "" {
		postcode = tc.RecipientPostcode
	}
	key := barcode
	if postcode != "" {
		key = barcode + "+" + postcode
	}
	q := url.Values{}
	q.Set("key", key)
	q.Set("role", "consumer-receiver")
	apiURL := fmt.Sprintf("%s/track-trace?%s", h.BaseURL, q.Encode())
	return tracker.FetchText(ctx, h.Client, apiURL)
}

func extractIdentifiers(trackingURL string) (barcode, postcode string, ok bool) {
	if m := parcelPattern.FindStringSubmatch(trackingURL); m != nil {
		return m[1], "", true
	}
	if m := ecommercePattern.FindStringSubmatch(trackingURL); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

// Parse maps the first shipment of a track-trace response onto the shared
// package model.
func (h *Handler) Parse(text string) (*tracker.Package, error) {
	raw, err := firstShipment([]byte(text))
	if err != nil {
		return nil, err
	}
	var s shipment
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed package payload", Err: err}
	}
	if s.Barcode == "" {
		return nil, &tracker.MissingFieldError{Field: "barcode"}
	}
	window, err := s.etaWindow()
	if err != nil {
		return nil, err
	}
	return &tracker.Package{
		Barcode:   s.Barcode,
		Channel:   channel,
		Sender:    partyName(s.Shipper),
		Recipient: partyName(s.Receiver),
		Eta:       s.eta(),
		EtaWindow: window,
		Delivered: s.DeliveredAt,
		Events:    s.events(),
	}, nil
}

func firstShipment(body []byte) (json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed response body", Err: err}
	}
	if len(items) == 0 {
		return nil, &tracker.ParseError{Channel: channel, Reason: "no packages in response"}
	}
	return items[0], nil
}

type shipment struct {
	Barcode                  string          `json:"barcode"`
	DeliveredAt              *time.Time      `json:"deliveredAt"`
	PlannedDeliveryTimeframe *string         `json:"plannedDeliveryTimeframe"`
	Receiver                 *party          `json:"receiver"`
	Shipper                  *party          `json:"shipper"`
	Events                   []shipmentEvent `json:"events"`
	TransitTime              *transitTime    `json:"transitTime"`
}

type party struct {
	Name string `json:"name"`
}

type shipmentEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Category  string    `json:"category"`
	Status    string    `json:"status"`
}

type transitTime struct {
	ExpectedDeliveryMoment time.Time `json:"expectedDeliveryMoment"`
}

func partyName(p *party) *string {
	if p == nil {
		return nil
	}
	return &p.Name
}

func (s *shipment) eta() *time.Time {
	if s.TransitTime == nil || s.TransitTime.ExpectedDeliveryMoment.IsZero() {
		return nil
	}
	moment := s.TransitTime.ExpectedDeliveryMoment
	return &moment
}

// etaWindow splits the "start/end" timeframe reported by the API. A
// present but malformed timeframe is a parse failure, not an absence.
func (s *shipment) etaWindow() (*tracker.TimeWindow, error) {
	if s.PlannedDeliveryTimeframe == nil {
		return nil, nil
	}
	parts := strings.SplitN(*s.PlannedDeliveryTimeframe, "/", 2)
	if len(parts) != 2 {
		return nil, &tracker.ParseError{
			Channel: channel,
			Reason:  fmt.Sprintf("malformed delivery timeframe %q", *s.PlannedDeliveryTimeframe),
		}
	}
	start, err := time.Parse(time.RFC3339, parts[0])
	if err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed delivery timeframe", Err: err}
	}
	end, err := time.Parse(time.RFC3339, parts[1])
	if err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed delivery timeframe", Err: err}
	}
	return &tracker.TimeWindow{Start: start, End: end}, nil
}

func (s *shipment) events() []tracker.Event {
	events := make([]tracker.Event, 0, len(s.Events))
	for _, e := range s.Events {
		events = append(events, tracker.Event{
			Timestamp: e.Timestamp,
			Text:      fmt.Sprintf("%s: %s", e.Category, e.Status),
		})
	}
	return events
}
