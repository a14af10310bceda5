package registry

import "errors"

var (
	// ErrNotFound is returned when an address has never registered a document.
	ErrNotFound = errors.New("registry: document not found")

	// ErrUnauthorized is returned when the caller is not the address being updated.
	ErrUnauthorized = errors.New("registry: caller does not own address")

	// ErrInvalidDocument is returned for an empty or over-long document URI.
	ErrInvalidDocument = errors.New("registry: invalid document uri")

	// ErrClosed is returned by operations on a closed registry.
	ErrClosed = errors.New("registry: closed")
)
