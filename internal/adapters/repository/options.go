package repository

// openConfig holds the tunable knobs of Open.
type openConfig struct {
	wal     bool
	migrate bool
}

func newOpenConfig() *openConfig {
	return &openConfig{wal: true, migrate: true}
}

// Option configures Open.
type Option func(*openConfig)

// WithoutWAL disables write-ahead logging, mainly for throwaway test databases.
func WithoutWAL() Option {
	return func(c *openConfig) { c.wal = false }
}

// WithoutMigration skips applying the schema on open. Callers then own
// calling InitSchema themselves.
func WithoutMigration() Option {
	return func(c *openConfig) { c.migrate = false }
}
