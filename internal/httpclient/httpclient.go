// Package httpclient builds the shared HTTP client used for outbound
// carrier API calls. Requests carry a stable User-Agent and are counted
// per host; traces come from the otelhttp transport when tracing is on.
package httpclient

import (
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/packtrack/internal/obs"
)

// Options configures the outbound client.
type Options struct {
	Timeout   time.Duration
	UserAgent string
}

// New returns an instrumented client for carrier API calls. There is no
// retry here; the one documented retry (4xx with the postcode cleared)
// is a dispatch concern, not a transport one.
func New(opts Options) *http.Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &instrumentedTransport{
			base:      otelhttp.NewTransport(http.DefaultTransport),
			userAgent: opts.UserAgent,
		},
	}
}

type instrumentedTransport struct {
	base      http.RoundTripper
	userAgent string
}

func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}
	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	host := req.URL.Host
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	if obs.OutboundRequestsTotal != nil {
		obs.OutboundRequestsTotal.WithLabelValues(host, status).Inc()
	}
	if obs.OutboundDuration != nil {
		obs.OutboundDuration.WithLabelValues(host).Observe(obs.DurationMillis(time.Since(start)))
	}
	return resp, err
}
