package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrUnauthenticated indicates the gateway supplied no principal.
	ErrUnauthenticated = errors.New("principal missing")
	// ErrForbidden indicates the principal may not touch the resource.
	ErrForbidden = errors.New("forbidden")
)
