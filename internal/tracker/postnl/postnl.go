package postnl

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/noah-isme/packtrack/internal/tracker"
)

const (
	channel        = "PostNL"
	defaultBaseURL = "https://jouw.postnl.nl"
)

var urlPattern = regexp.MustCompile(`track-and-trace/(?P<barcode>[0-9A-Z]+)(?:[-/](?P<country>[A-Z]{2})[-/](?P<postcode>\d{4}[A-Z]{2}))?`)

// Handler tracks PostNL shipments through the jouw.postnl.nl consumer API.
type Handler struct {
	Client  *http.Client
	BaseURL string
}

func New(client *http.Client) *Handler {
	return &Handler{Client: client, BaseURL: defaultBaseURL}
}

func (h *Handler) Name() string { return channel }

func (h *Handler) Recognize(url string) bool {
	return strings.Contains(url, "postnl")
}

// Fetch extracts the barcode, country and postcode from the tracking URL
// and queries the track-and-trace API. The country and postcode segments
// are only appended to the lookup key when both are known; a postcode
// missing from the URL falls back to the tracking context.
func (h *Handler) Fetch(ctx context.Context, url string, tc tracker.Context) (string, error) {
	barcode, country, postcode := extractIdentifiers(url)
	if barcode == "" {
		return "", &tracker.URLParseError{URL: url, Reason: "no barcode found"}
	}
	if postcode == "" {
		postcode = tc.RecipientPostcode
	}
	language := tc.Language
	if language == "" {
		language = "en"
	}
	key := barcode
	if country != "" && postcode != "" {
		key = fmt.Sprintf("%s-%s-%s", barcode, country, postcode)
	}
	apiURL := fmt.Sprintf("%s/track-and-trace/api/trackAndTrace/%s?language=%s", h.BaseURL, key, language)
	return tracker.FetchText(ctx, h.Client, apiURL)
}

func extractIdentifiers(url string) (barcode, country, postcode string) {
	m := urlPattern.FindStringSubmatch(url)
	if m == nil {
		return "", "", ""
	}
	for i, name := range urlPattern.SubexpNames() {
		switch name {
		case "barcode":
			barcode = m[i]
		case "country":
			country = m[i]
		case "postcode":
			postcode = m[i]
		}
	}
	return barcode, country, postcode
}

// Parse maps the first package of a trackAndTrace response onto the
// shared package model. Responses key packages by barcode; the smallest
// key is taken so repeated parses of the same payload agree.
func (h *Handler) Parse(text string) (*tracker.Package, error) {
	raw, err := firstCollo([]byte(text))
	if err != nil {
		return nil, err
	}
	var pkg colloPackage
	if err := json.Unmarshal(raw, &pkg); err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed package payload", Err: err}
	}
	if pkg.Barcode == "" {
		return nil, &tracker.MissingFieldError{Field: "barcode"}
	}
	return &tracker.Package{
		Barcode:   pkg.Barcode,
		Channel:   channel,
		Sender:    pkg.Sender.name(),
		Recipient: pkg.Recipient.name(),
		Eta:       pkg.eta(),
		EtaWindow: pkg.etaWindow(),
		Delivered: pkg.DeliveryDate,
		Events:    pkg.events(),
	}, nil
}

func firstCollo(body []byte) (json.RawMessage, error) {
	var envelope struct {
		Colli map[string]json.RawMessage `json:"colli"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &tracker.ParseError{Channel: channel, Reason: "malformed response body", Err: err}
	}
	if len(envelope.Colli) == 0 {
		return nil, &tracker.ParseError{Channel: channel, Reason: "no packages in response"}
	}
	keys := make([]string, 0, len(envelope.Colli))
	for k := range envelope.Colli {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return envelope.Colli[keys[0]], nil
}

type colloPackage struct {
	Barcode          string       `json:"barcode"`
	Sender           *party       `json:"sender"`
	Recipient        *party       `json:"recipient"`
	DeliveryDate     *time.Time   `json:"deliveryDate"`
	RouteInformation *routeInfo   `json:"routeInformation"`
	AnalyticsInfo    *analytics   `json:"analyticsInfo"`
	Eta              *etaEnvelope `json:"eta"`
}

type party struct {
	Names struct {
		CompanyName *string `json:"companyName"`
		PersonName  *string `json:"personName"`
	} `json:"names"`
}

type routeInfo struct {
	ExpectedDeliveryTime       *time.Time `json:"expectedDeliveryTime"`
	ExpectedDeliveryTimeWindow *struct {
		StartDateTime *time.Time `json:"startDateTime"`
		EndDateTime   *time.Time `json:"endDateTime"`
	} `json:"expectedDeliveryTimeWindow"`
}

type analytics struct {
	AllObservations []struct {
		ObservationDate time.Time `json:"observationDate"`
		Description     string    `json:"description"`
	} `json:"allObservations"`
}

type etaEnvelope struct {
	Type  string     `json:"type"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

func (p *party) name() *string {
	if p == nil {
		return nil
	}
	if p.Names.CompanyName != nil {
		return p.Names.CompanyName
	}
	return p.Names.PersonName
}

func (p *colloPackage) eta() *time.Time {
	if p.RouteInformation == nil {
		return nil
	}
	return p.RouteInformation.ExpectedDeliveryTime
}

// etaWindow prefers the route information window and falls back to the
// top level eta envelope. A window needs both ends to be usable.
func (p *colloPackage) etaWindow() *tracker.TimeWindow {
	if p.RouteInformation != nil {
		if w := p.RouteInformation.ExpectedDeliveryTimeWindow; w != nil && w.StartDateTime != nil && w.EndDateTime != nil {
			return &tracker.TimeWindow{Start: *w.StartDateTime, End: *w.EndDateTime}
		}
	}
	if p.Eta != nil && p.Eta.Start != nil && p.Eta.End != nil {
		return &tracker.TimeWindow{Start: *p.Eta.Start, End: *p.Eta.End}
	}
	return nil
}

func (p *colloPackage) events() []tracker.Event {
	if p.AnalyticsInfo == nil {
		return []tracker.Event{}
	}
	events := make([]tracker.Event, 0, len(p.AnalyticsInfo.AllObservations))
	for _, obs := range p.AnalyticsInfo.AllObservations {
		events = append(events, tracker.Event{Timestamp: obs.ObservationDate, Text: obs.Description})
	}
	return events
}
