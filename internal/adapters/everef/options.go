package everef

import (
	"net/http"

	"github.com/aflyhorse/kmstat/pkg/logger"
)

// FetcherOption configures a Fetcher.
type FetcherOption func(*Fetcher)

// WithEndpoint overrides the archive base URL.
func WithEndpoint(url string) FetcherOption {
	return func(f *Fetcher) {
		if url != "" {
			f.endpoint = url
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if hc != nil {
			f.httpClient = hc
		}
	}
}

// WithSpoolDir makes FetchDay download archives to dir before returning
// them, instead of streaming the response body.
func WithSpoolDir(dir string) FetcherOption {
	return func(f *Fetcher) {
		f.spoolDir = dir
	}
}

// WithLogger replaces the fetcher logger.
func WithLogger(log logger.Logger) FetcherOption {
	return func(f *Fetcher) {
		if log != nil {
			f.log = log
		}
	}
}
