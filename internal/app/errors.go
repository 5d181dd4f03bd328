package service

import (
	"errors"
	"fmt"
)

var (
	// ErrNoStore means the service was started without a backing store.
	ErrNoStore = errors.New("no store configured")
	// ErrNotStarted means an import was requested before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrBadPeriod means a requested year or month is outside the
	// statistics window.
	ErrBadPeriod = errors.New("period out of range")
	// ErrNoUpstream means no ESI client or archive source is configured.
	ErrNoUpstream = errors.New("no upstream configured")
)

// UploadExistsError reports a conflicting monthly upload.
type UploadExistsError struct {
	Year  int
	Month int
}

func (e *UploadExistsError) Error() string {
	return fmt.Sprintf("upload for %d-%02d already exists", e.Year, e.Month)
}
