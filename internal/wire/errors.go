package wire

import "errors"

// errInvalidParams is returned by the Validate methods when a caller
// supplies a non-positive numeric parameter. HTTP handlers return its text
// as the message of a 400 response; the message does not name which
// parameter was at fault.
var errInvalidParams = errors.New("wire: all numeric parameters must be positive")

// IsInvalidParams reports whether err is (or wraps) the validation sentinel.
func IsInvalidParams(err error) bool {
	return errors.Is(err, errInvalidParams)
}
