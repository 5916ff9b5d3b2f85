package factory

import "errors"

// ErrUnknownEngine is returned for an engine name the factory does not know.
var ErrUnknownEngine = errors.New("unknown engine")

// ErrInvalidConfig is returned by UpdateConfig for a nil or out-of-range
// configuration.
var ErrInvalidConfig = errors.New("invalid factory configuration")
