// Package storage holds the errors every record store reports.
package storage

import "github.com/pkg/errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrVersionConflict = errors.New("record changed concurrently")
)
