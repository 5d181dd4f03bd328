package sde

import (
	"net/http"

	"github.com/aflyhorse/kmstat/pkg/logger"
)

// Option configures a Refresher.
type Option func(*Refresher)

// WithEndpoint overrides the dump base URL.
func WithEndpoint(url string) Option {
	return func(r *Refresher) {
		if url != "" {
			r.endpoint = url
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Refresher) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

// WithLogger replaces the refresher logger.
func WithLogger(log logger.Logger) Option {
	return func(r *Refresher) {
		if log != nil {
			r.log = log
		}
	}
}
