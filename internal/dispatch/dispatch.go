// Package dispatch orchestrates tracking runs: it resolves each URL to a
// carrier handler, serves reusable results from the shared cache, fetches
// fresh data otherwise and fans a batch out across goroutines.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/packtrack/internal/cache"
	"github.com/noah-isme/packtrack/internal/obs"
	"github.com/noah-isme/packtrack/internal/tracker"
)

// Policy controls cache reuse for one tracking run.
type Policy struct {
	// UseCache enables cache reads and writes for the run.
	UseCache bool
	// MaxAge is the oldest an in-transit cache entry may be and still be
	// reused. Delivered packages are reused regardless of entry age. Zero
	// means in-transit entries are never reused.
	MaxAge time.Duration
}

// Result is the outcome for one URL within a batch.
type Result struct {
	URL     string
	Package *tracker.Package
	Err     error
}

// Batch groups the results of one TrackAll run. Results line up with the
// input URLs.
type Batch struct {
	ID      string
	Results []Result
}

// Failed reports whether any URL in the batch failed.
func (b Batch) Failed() bool {
	for _, r := range b.Results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// Dispatcher tracks URLs through carrier handlers over a shared cache.
type Dispatcher struct {
	Registry *tracker.Registry
	Cache    cache.Store
	Logger   zerolog.Logger
}

// New returns a dispatcher over the given registry and cache store.
func New(reg *tracker.Registry, store cache.Store, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{Registry: reg, Cache: store, Logger: logger}
}

// Track resolves and tracks a single URL. Failures are terminal for the
// URL: apart from the one postcode retry inside fetch, nothing is retried.
func (d *Dispatcher) Track(ctx context.Context, url string, tc tracker.Context, pol Policy) (*tracker.Package, error) {
	ctx, span := otel.Tracer("dispatch.Dispatcher").Start(ctx, "Dispatcher.Track")
	defer span.End()
	span.SetAttributes(attribute.String("tracking.url", url))

	h, err := d.Registry.Resolve(url)
	if err != nil {
		span.RecordError(err)
		countDispatch("none", "no_handler")
		return nil, err
	}
	carrier := h.Name()
	span.SetAttributes(attribute.String("tracking.carrier", carrier))

	if pol.UseCache {
		if pkg := d.fromCache(ctx, h, url, pol.MaxAge); pkg != nil {
			countDispatch(carrier, "cached")
			return pkg, nil
		}
	}

	text, err := d.fetch(ctx, h, url, tc)
	if err != nil {
		span.RecordError(err)
		countDispatch(carrier, "fetch_failed")
		return nil, err
	}
	// The raw body goes into the cache before parsing, so a body that
	// trips a parser bug can be replayed from the cache file.
	if pol.UseCache {
		d.Cache.Insert(ctx, url, text)
	}
	pkg, err := h.Parse(text)
	if err != nil {
		span.RecordError(err)
		countDispatch(carrier, "parse_failed")
		return nil, err
	}
	countDispatch(carrier, "fetched")
	return pkg, nil
}

// TrackAll tracks every URL concurrently over the shared cache, then saves
// the cache once if anything changed. A failed save comes back as the
// batch error; it is never attached to a URL.
func (d *Dispatcher) TrackAll(ctx context.Context, urls []string, tc tracker.Context, pol Policy) (Batch, error) {
	batch := Batch{ID: uuid.NewString(), Results: make([]Result, len(urls))}
	scoped := *d
	scoped.Logger = d.Logger.With().Str("batch_id", batch.ID).Logger()

	ctx, span := otel.Tracer("dispatch.Dispatcher").Start(ctx, "Dispatcher.TrackAll")
	defer span.End()
	span.SetAttributes(
		attribute.String("batch.id", batch.ID),
		attribute.Int("batch.size", len(urls)),
	)

	start := time.Now()
	var wg sync.WaitGroup
	for i, url := range urls {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			pkg, err := scoped.Track(ctx, url, tc, pol)
			if err != nil {
				scoped.Logger.Warn().Err(err).Str("url", url).Msg("tracking failed")
			}
			batch.Results[i] = Result{URL: url, Package: pkg, Err: err}
		}(i, url)
	}
	wg.Wait()
	if obs.BatchDuration != nil {
		obs.BatchDuration.Observe(obs.DurationMillis(time.Since(start)))
	}

	if !pol.UseCache || !d.Cache.Modified() {
		return batch, nil
	}
	if err := d.Cache.Save(ctx); err != nil {
		span.RecordError(err)
		if obs.CacheSavesTotal != nil {
			obs.CacheSavesTotal.WithLabelValues("error").Inc()
		}
		scoped.Logger.Error().Err(err).Msg("cache save failed")
		return batch, fmt.Errorf("save cache: %w", err)
	}
	if obs.CacheSavesTotal != nil {
		obs.CacheSavesTotal.WithLabelValues("ok").Inc()
	}
	return batch, nil
}

// fromCache returns a reusable cached package for the URL, or nil when a
// fetch is needed. The lookup itself is unbounded: delivered packages are
// reused however old their entry is, so the age policy can only be applied
// after parsing, per status. An entry the handler cannot parse is logged
// and skipped; it never blocks the refetch.
func (d *Dispatcher) fromCache(ctx context.Context, h tracker.Handler, url string, maxAge time.Duration) *tracker.Package {
	entry, ok := d.Cache.GetFresh(ctx, url, 0)
	if !ok {
		countLookup(obs.CacheMiss)
		d.Logger.Debug().Str("url", url).Msg("no cache entry, fetching fresh")
		return nil
	}
	pkg, err := h.Parse(entry.Text)
	if err != nil {
		countLookup(obs.CachePoisoned)
		d.Logger.Warn().Err(err).Str("url", url).Msg("unreadable cache entry, fetching fresh")
		return nil
	}
	age := entry.Age()
	if pkg.Status() == tracker.StatusDelivered {
		countLookup(obs.CacheHitDelivered)
		d.Logger.Debug().Str("url", url).Str("barcode", pkg.Barcode).Dur("age", age).
			Msg("reusing cache entry for delivered package")
		return pkg
	}
	if age <= maxAge {
		countLookup(obs.CacheHitFresh)
		d.Logger.Debug().Str("url", url).Str("barcode", pkg.Barcode).Dur("age", age).
			Msg("reusing fresh cache entry")
		return pkg
	}
	countLookup(obs.CacheStale)
	d.Logger.Debug().Str("url", url).Dur("age", age).Msg("cache entry too old, fetching fresh")
	return nil
}

// fetch runs the carrier fetch, retrying once with the postcode cleared
// when the first attempt fails with a 4xx. Carriers answer 404 when the
// configured postcode does not match the package (a return shipment, or a
// package addressed to someone else); a postcode-less request at least
// gets an answer. Server errors and transport failures are not retried.
func (d *Dispatcher) fetch(ctx context.Context, h tracker.Handler, url string, tc tracker.Context) (string, error) {
	carrier := h.Name()
	text, err := h.Fetch(ctx, url, tc)
	if err == nil {
		countFetch(carrier, "ok")
		return text, nil
	}
	var fe *tracker.FetchError
	if !errors.As(err, &fe) || !fe.ClientError() || tc.RecipientPostcode == "" {
		countFetch(carrier, "error")
		return "", err
	}
	countFetch(carrier, "client_error")
	if obs.FetchRetriesTotal != nil {
		obs.FetchRetriesTotal.WithLabelValues(carrier).Inc()
	}
	d.Logger.Warn().Err(err).Str("url", url).Msg("client error, retrying without default postcode")
	text, err = h.Fetch(ctx, url, tc.WithoutPostcode())
	if err != nil {
		countFetch(carrier, "error")
		return "", err
	}
	countFetch(carrier, "ok")
	return text, nil
}

func countLookup(outcome string) {
	if obs.CacheLookupsTotal != nil {
		obs.CacheLookupsTotal.WithLabelValues(outcome).Inc()
	}
}

func countFetch(carrier, result string) {
	if obs.FetchTotal != nil {
		obs.FetchTotal.WithLabelValues(carrier, result).Inc()
	}
}

func countDispatch(carrier, result string) {
	if obs.DispatchTotal != nil {
		obs.DispatchTotal.WithLabelValues(carrier, result).Inc()
	}
}
