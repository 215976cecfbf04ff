package gls

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/noah-isme/packtrack/internal/tracker"
)

const (
	channel        = "GLS"
	defaultBaseURL = "https://apm.gls.nl"
)

var (
	barcodePattern  = regexp.MustCompile(`.*parcelNo=([A-Z0-9]+).*`)
	postcodePattern = regexp.MustCompile(`.*zipcode=([A-Z0-9]+).*`)
)

// Handler tracks GLS shipments through the apm.gls.nl parcel API.
type Handler struct {
	Client  *http.Client
	BaseURL string
}

func New(client *http.Client) *Handler {
	return &Handler{Client: client, BaseURL: defaultBaseURL}
}

func (h *Handler) Name() string { return channel }

func (h *Handler) Recognize(url string) bool {
	return strings.Contains(url, "www.gls")
}

// Fetch needs both a barcode and a postcode. The postcode may come from
// the tracking URL or from the tracking context; without one the parcel
// cannot be looked up at all.
func (h *Handler) Fetch(ctx context.Context, url string, tc tracker.Context) (string, error) {
	m := barcodePattern.FindStringSubmatch(url)
	if m == nil {
		return "", &tracker.URLParseError{URL: url, Reason: "no barcode found"}
	}
	barcode := m[1]

	postcode := tc.RecipientPostcode
	if pm := postcodePattern.FindStringSubmatch(url); pm != nil {
		postcode = pm[1]
	}
	if postcode == "" {
		return "", &tracker.URLParseError{URL: url, Reason: "no postcode in url or tracking context"}
	}

	apiURL := fmt.Sprintf("%s/api/tracktrace/v1/%s/postalcode/%s/details/en-GB", h.BaseURL, barcode, postcode)
	return tracker.FetchText(ctx, h.Client, apiURL)
}

// Parse maps a parcel details response onto the shared package model.
func (h *Handler) Parse(text string) (*tracker.Package, error) {
	var p parcel
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed response body", Err: err}
	}
	if p.ParcelNo == "" {
		return nil, &tracker.MissingFieldError{Field: "barcode"}
	}
	return &tracker.Package{
		Barcode:   p.ParcelNo,
		Channel:   channel,
		Sender:    p.sender(),
		Recipient: p.recipient(),
		Eta:       p.eta(),
		EtaWindow: p.etaWindow(),
		Delivered: p.delivered(),
		Events:    p.events(),
	}, nil
}

// glsTime accepts both zoned RFC 3339 timestamps and the naive local
// datetimes the GLS API reports, which are taken as UTC.
type glsTime struct {
	time.Time
}

func (t *glsTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

type parcel struct {
	ParcelNo         string          `json:"parcelNo"`
	AddressInfo      *addressInfo    `json:"addressInfo"`
	DeliveryStatus   *deliveryStatus `json:"deliveryStatus"`
	Scans            []scan          `json:"scans"`
	DeliveryScanInfo *deliveryScan   `json:"deliveryScanInfo"`
}

type addressInfo struct {
	From      *party `json:"from"`
	Recipient *party `json:"recipient"`
}

type party struct {
	Name string `json:"name"`
}

type deliveryStatus struct {
	EtaTimestamp    *glsTime `json:"etaTimestamp"`
	EtaTimestampMin *glsTime `json:"etaTimestampMin"`
	EtaTimestampMax *glsTime `json:"etaTimestampMax"`
}

type scan struct {
	DateTime         *glsTime `json:"dateTime"`
	EventReasonDescr *string  `json:"eventReasonDescr"`
}

type deliveryScan struct {
	DateTime    *glsTime `json:"dateTime"`
	IsDelivered *bool    `json:"isDelivered"`
}

// partyName drops empty names so callers can treat them as absent.
func partyName(p *party) *string {
	if p == nil || p.Name == "" {
		return nil
	}
	name := p.Name
	return &name
}

func (p *parcel) sender() *string {
	if p.AddressInfo == nil {
		return nil
	}
	return partyName(p.AddressInfo.From)
}

func (p *parcel) recipient() *string {
	if p.AddressInfo == nil {
		return nil
	}
	return partyName(p.AddressInfo.Recipient)
}

func (p *parcel) eta() *time.Time {
	if p.DeliveryStatus == nil || p.DeliveryStatus.EtaTimestamp == nil {
		return nil
	}
	eta := p.DeliveryStatus.EtaTimestamp.Time
	return &eta
}

func (p *parcel) etaWindow() *tracker.TimeWindow {
	if p.DeliveryStatus == nil || p.DeliveryStatus.EtaTimestampMin == nil || p.DeliveryStatus.EtaTimestampMax == nil {
		return nil
	}
	return &tracker.TimeWindow{
		Start: p.DeliveryStatus.EtaTimestampMin.Time,
		End:   p.DeliveryStatus.EtaTimestampMax.Time,
	}
}

func (p *parcel) delivered() *time.Time {
	info := p.DeliveryScanInfo
	if info == nil || info.IsDelivered == nil || !*info.IsDelivered || info.DateTime == nil {
		return nil
	}
	delivered := info.DateTime.Time
	return &delivered
}

// events keeps only scans that carry both a timestamp and a description;
// incomplete scans are skipped rather than failing the whole parcel.
func (p *parcel) events() []tracker.Event {
	events := make([]tracker.Event, 0, len(p.Scans))
	for _, s := range p.Scans {
		if s.DateTime == nil || s.EventReasonDescr == nil {
			continue
		}
		events = append(events, tracker.Event{Timestamp: s.DateTime.Time, Text: *s.EventReasonDescr})
	}
	return events
}
