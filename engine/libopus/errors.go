package libopus

import "errors"

// ErrUnavailable indicates libopus could not be loaded on this host.
var ErrUnavailable = errors.New("libopus unavailable")
