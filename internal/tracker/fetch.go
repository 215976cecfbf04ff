package tracker

import (
	"context"
	"io"
	"net/http"
)

// FetchText issues a single GET against a carrier API and returns the
// response body as text. Any non-2xx status is reported as a FetchError
// carrying the status code; transport failures carry a zero status.
func FetchText(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &FetchError{URL: url, Status: resp.StatusCode}
	}
	return string(body), nil
}
