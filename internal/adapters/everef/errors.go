package everef

import "errors"

// ErrNoArchive means no archive has been published for the requested day.
var ErrNoArchive = errors.New("no archive for day")
