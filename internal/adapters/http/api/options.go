// Package api declares HTTP contracts and route registration helpers.
package api

// serverConfig holds the tunable knobs of the API server.
type serverConfig struct {
	maxUploadBytes int64
}

func newServerConfig() *serverConfig {
	return &serverConfig{maxUploadBytes: 16 << 20}
}

// Option configures the API server.
type Option func(*serverConfig)

// WithMaxUploadBytes caps the size of an accepted workbook upload.
func WithMaxUploadBytes(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxUploadBytes = n
		}
	}
}
