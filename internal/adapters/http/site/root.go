// Package site serves the embedded web frontend.
package site

import (
	"context"
	"net/http"
)

// Register attaches the embedded frontend routes to mux. API routes must be
// registered on the same mux first so the root file server only catches
// paths they do not claim.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("/", files)
}
