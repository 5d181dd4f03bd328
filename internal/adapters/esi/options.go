package esi

import (
	"net/http"

	"golang.org/x/time/rate"

	"github.com/aflyhorse/kmstat/pkg/logger"
)

// Option configures the client.
type Option func(*Client)

// WithESIEndpoint overrides the ESI base URL.
func WithESIEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.esiEndpoint = url
		}
	}
}

// WithZkillEndpoint overrides the zKillboard base URL.
func WithZkillEndpoint(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.zkillEndpoint = url
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithRequestsPerSecond sets the shared request rate.
func WithRequestsPerSecond(rps int) Option {
	return func(c *Client) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), rps)
		}
	}
}

// WithLogger replaces the client logger.
func WithLogger(log logger.Logger) Option {
	return func(c *Client) {
		if log != nil {
			c.log = log
		}
	}
}
