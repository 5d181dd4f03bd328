package esi

import "errors"

var (
	// ErrNotFound means the upstream has no record for the requested id.
	ErrNotFound = errors.New("not found upstream")
	// ErrUpstream covers transport failures and non-OK statuses.
	ErrUpstream = errors.New("upstream request failed")
)
