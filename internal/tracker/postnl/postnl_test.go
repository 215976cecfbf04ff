package postnl_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/packtrack/internal/tracker"
	"github.com/noah-isme/packtrack/internal/tracker/postnl"
)

func TestRecognize(t *testing.T) {
	t.Parallel()

	h := postnl.New(nil)
	require.True(t, h.Recognize("https://jouw.postnl.nl/track-and-trace/1ABCDE1234567-NL-1234AB"))
	require.True(t, h.Recognize("http://postnl.nl/whatever"))
	require.False(t, h.Recognize("https://www.dhl.com/nl-nl/home/tracking.html?tracking-id=1"))
	require.False(t, h.Recognize(""))
}

func TestFetchBuildsLookupKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		url      string
		tc       tracker.Context
		wantPath string
		wantLang string
	}{
		{
			name:     "barcode with country and postcode",
			url:      "https://jouw.postnl.nl/track-and-trace/1ABCDE1234567-AA-1234AB",
			wantPath: "/track-and-trace/api/trackAndTrace/1ABCDE1234567-AA-1234AB",
			wantLang: "en",
		},
		{
			name:     "slash separated country and postcode",
			url:      "https://jouw.postnl.nl/track-and-trace/1ABCDE1234567/NL/1234AB",
			wantPath: "/track-and-trace/api/trackAndTrace/1ABCDE1234567-NL-1234AB",
			wantLang: "en",
		},
		{
			name:     "bare barcode ignores context postcode without country",
			url:      "https://jouw.postnl.nl/track-and-trace/1ABCDE1234567",
			tc:       tracker.Context{RecipientPostcode: "1234AB"},
			wantPath: "/track-and-trace/api/trackAndTrace/1ABCDE1234567",
			wantLang: "en",
		},
		{
			name:     "country without postcode is not captured",
			url:      "https://jouw.postnl.nl/track-and-trace/1ABCDE1234567/NL",
			wantPath: "/track-and-trace/api/trackAndTrace/1ABCDE1234567",
			wantLang: "en",
		},
		{
			name:     "language from context",
			url:      "https://jouw.postnl.nl/track-and-trace/1ABCDE1234567-NL-1234AB",
			tc:       tracker.Context{Language: "nl"},
			wantPath: "/track-and-trace/api/trackAndTrace/1ABCDE1234567-NL-1234AB",
			wantLang: "nl",
		},
	}

	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()

			var gotPath, gotLang string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath = r.URL.Path
				gotLang = r.URL.Query().Get("language")
				w.Write([]byte(`{"colli":{}}`))
			}))
			defer srv.Close()

			h := postnl.New(srv.Client())
			h.BaseURL = srv.URL

			_, err := h.Fetch(context.Background(), c.url, c.tc)
			require.NoError(t, err)
			require.Equal(t, c.wantPath, gotPath)
			require.Equal(t, c.wantLang, gotLang)
		})
	}
}

func TestFetchRejectsURLWithoutBarcode(t *testing.T) {
	t.Parallel()

	h := postnl.New(nil)
	_, err := h.Fetch(context.Background(), "https://jouw.postnl.nl/", tracker.Context{})

	var perr *tracker.URLParseError
	require.ErrorAs(t, err, &perr)
}

func TestFetchReportsStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := postnl.New(srv.Client())
	h.BaseURL = srv.URL

	_, err := h.Fetch(context.Background(), "https://jouw.postnl.nl/track-and-trace/1ABCDE1234567", tracker.Context{})

	var ferr *tracker.FetchError
	require.ErrorAs(t, err, &ferr)
	require.Equal(t, http.StatusNotFound, ferr.Status)
	require.True(t, ferr.ClientError())
}

const deliveredBody = `{
	"colli": {
		"1ABCDE1234567": {
			"barcode": "1ABCDE1234567",
			"sender": {"names": {"companyName": "Bol.com"}},
			"recipient": {"names": {"personName": "J. de Vries"}},
			"deliveryDate": "2024-11-08T14:05:00Z",
			"analyticsInfo": {
				"allObservations": [
					{"observationDate": "2024-11-08T14:05:00Z", "description": "Shipment delivered"},
					{"observationDate": "2024-11-08T08:12:00Z", "description": "Out for delivery"}
				]
			}
		}
	}
}`

func TestParseDelivered(t *testing.T) {
	t.Parallel()

	pkg, err := postnl.New(nil).Parse(deliveredBody)
	require.NoError(t, err)

	require.Equal(t, "1ABCDE1234567", pkg.Barcode)
	require.Equal(t, "PostNL", pkg.Channel)
	require.NotNil(t, pkg.Sender)
	require.Equal(t, "Bol.com", *pkg.Sender)
	require.NotNil(t, pkg.Recipient)
	require.Equal(t, "J. de Vries", *pkg.Recipient)
	require.NotNil(t, pkg.Delivered)
	require.Equal(t, time.Date(2024, time.November, 8, 14, 5, 0, 0, time.UTC), *pkg.Delivered)
	require.Equal(t, tracker.StatusDelivered, pkg.Status())
	require.Len(t, pkg.Events, 2)
	require.Equal(t, "Shipment delivered", pkg.Events[0].Text)
}

const inTransitBody = `{
	"colli": {
		"1ABCDE1234567": {
			"barcode": "1ABCDE1234567",
			"sender": {"names": {"companyName": "Coolblue"}},
			"routeInformation": {
				"expectedDeliveryTime": "2024-11-09T13:00:00Z",
				"expectedDeliveryTimeWindow": {
					"startDateTime": "2024-11-09T12:30:00Z",
					"endDateTime": "2024-11-09T13:30:00Z"
				}
			},
			"analyticsInfo": {"allObservations": []}
		}
	}
}`

func TestParseInTransit(t *testing.T) {
	t.Parallel()

	pkg, err := postnl.New(nil).Parse(inTransitBody)
	require.NoError(t, err)

	require.Nil(t, pkg.Delivered)
	require.Equal(t, tracker.StatusInTransit, pkg.Status())
	require.NotNil(t, pkg.Eta)
	require.Equal(t, time.Date(2024, time.November, 9, 13, 0, 0, 0, time.UTC), *pkg.Eta)
	require.NotNil(t, pkg.EtaWindow)
	require.Equal(t, time.Date(2024, time.November, 9, 12, 30, 0, 0, time.UTC), pkg.EtaWindow.Start)
	require.Equal(t, time.Date(2024, time.November, 9, 13, 30, 0, 0, time.UTC), pkg.EtaWindow.End)
	require.Empty(t, pkg.Events)
}

const etaFallbackBody = `{
	"colli": {
		"1ABCDE1234567": {
			"barcode": "1ABCDE1234567",
			"routeInformation": {
				"expectedDeliveryTime": null,
				"expectedDeliveryTimeWindow": null
			},
			"eta": {"type": "specific", "start": "2024-11-09T09:00:00Z", "end": "2024-11-09T11:00:00Z"}
		}
	}
}`

func TestParseEtaFallbackWindow(t *testing.T) {
	t.Parallel()

	pkg, err := postnl.New(nil).Parse(etaFallbackBody)
	require.NoError(t, err)

	require.Nil(t, pkg.Eta)
	require.NotNil(t, pkg.EtaWindow)
	require.Equal(t, time.Date(2024, time.November, 9, 9, 0, 0, 0, time.UTC), pkg.EtaWindow.Start)
	require.Equal(t, time.Date(2024, time.November, 9, 11, 0, 0, 0, time.UTC), pkg.EtaWindow.End)
}

func TestParseTakesSmallestColloKey(t *testing.T) {
	t.Parallel()

	body := `{"colli":{
		"ZZZ": {"barcode": "ZZZ"},
		"AAA": {"barcode": "AAA"}
	}}`

	pkg, err := postnl.New(nil).Parse(body)
	require.NoError(t, err)
	require.Equal(t, "AAA", pkg.Barcode)
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	h := postnl.New(nil)

	t.Run("missing barcode", func(t *testing.T) {
		t.Parallel()
		_, err := h.Parse(`{"colli":{"X":{"sender":null}}}`)
		var merr *tracker.MissingFieldError
		require.ErrorAs(t, err, &merr)
		require.Equal(t, "barcode", merr.Field)
	})

	t.Run("empty colli", func(t *testing.T) {
		t.Parallel()
		_, err := h.Parse(`{"colli":{}}`)
		var perr *tracker.ParseError
		require.ErrorAs(t, err, &perr)
	})

	t.Run("not json", func(t *testing.T) {
		t.Parallel()
		_, err := h.Parse(`<html>downtime</html>`)
		var perr *tracker.ParseError
		require.ErrorAs(t, err, &perr)
		require.Equal(t, "PostNL", perr.Channel)
	})
}
