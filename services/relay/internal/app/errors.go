package app

import "errors"

var (
	// ErrValidation marks a submission the sender must fix before retrying.
	ErrValidation = errors.New("validation failed")
)
