package core

import "errors"

// Failure kinds. Every failure is wrapped with one of these and absorbed by the
// dispatcher; none is retried.
var (
	ErrTransport  = errors.New("transport failure")
	ErrHTTPStatus = errors.New("http failure")
	ErrParse      = errors.New("parse failure")
	ErrLocation   = errors.New("location failure")
	ErrNoHost     = errors.New("no host connected")
)
