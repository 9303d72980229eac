// Package errors re-exports github.com/cockroachdb/errors and defines the
// configuration and data error classes.
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New   = crdb.New
	Newf  = crdb.Newf
	Wrap  = crdb.Wrap
	Wrapf = crdb.Wrapf
	Mark  = crdb.Mark
)

// User-facing hints
var (
	WithHint  = crdb.WithHint
	WithHintf = crdb.WithHintf
)

// Error inspection
var (
	Is           = crdb.Is
	GetAllHints  = crdb.GetAllHints
	FlattenHints = crdb.FlattenHints
)

var (
	// ErrConfiguration marks invalid indexer, comparator or job configuration.
	ErrConfiguration = New("configuration error")

	// ErrData marks a mismatch between configuration and the supplied record
	// collections.
	ErrData = New("data error")
)

// Configf returns a formatted error marked as ErrConfiguration.
func Configf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrConfiguration)
}

// Dataf returns a formatted error marked as ErrData.
func Dataf(format string, args ...interface{}) error {
	return crdb.Mark(crdb.NewWithDepthf(1, format, args...), ErrData)
}

// IsConfiguration reports whether err is or wraps a configuration error.
func IsConfiguration(err error) bool {
	return err != nil && Is(err, ErrConfiguration)
}

// IsData reports whether err is or wraps a data error.
func IsData(err error) bool {
	return err != nil && Is(err, ErrData)
}
