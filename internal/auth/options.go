package auth

import (
	"time"

	"github.com/aflyhorse/kmstat/pkg/logger"
)

// Option configures the Manager.
type Option func(*Manager)

// WithSessionTTL sets how long a login token stays valid.
func WithSessionTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithLogger replaces the manager logger.
func WithLogger(log logger.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}
