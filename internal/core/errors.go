package core

import "errors"

// ErrNotFound is the shared sentinel storage implementations return when a
// record is absent, so callers can branch without importing a driver.
var ErrNotFound = errors.New("not found")
