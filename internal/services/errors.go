package services

import "errors"

var (
	// ErrNotFound is returned when a requested record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrUnknownKind is returned for kinds that were never configured.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrReservedAttribute is returned when a caller sets a reserved name.
	ErrReservedAttribute = errors.New("attribute name is reserved")
)
