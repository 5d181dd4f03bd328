package auth

import "errors"

// ErrInvalidCredentials covers unknown users and wrong passwords alike, so
// responses cannot be used to probe for usernames.
var ErrInvalidCredentials = errors.New("invalid credentials")
