package client

import "errors"

// ErrNotLoggedIn is returned by calls that need a session before one exists.
var ErrNotLoggedIn = errors.New("not logged in")
