package sde

import "errors"

// ErrMissingColumn means a dump no longer carries an expected column.
var ErrMissingColumn = errors.New("missing column in dump")
