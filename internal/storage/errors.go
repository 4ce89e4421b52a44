package storage

import (
	"github.com/pkg/errors"
	"github.com/vadiminshakov/infbuy/internal/domain"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record with the same id already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when a store rejects a malformed record.
	ErrInvalidInput = domain.ErrInvalidInput
)
