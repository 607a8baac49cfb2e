package domain

import "errors"

// ErrUnknownApp is returned when an application reference does not match any
// registered application factory.
var ErrUnknownApp = errors.New("unknown application reference")

// ErrCacheMiss is returned when a key cannot be found in the analysis cache.
var ErrCacheMiss = errors.New("cache miss")

// ErrNoBindAddress is returned when neither flag, PORT, nor config file
// supplies a bind address.
var ErrNoBindAddress = errors.New("no bind address configured")

// ErrInvalidPort is returned when PORT (or a bind address) does not carry an
// integer in the valid TCP port range.
var ErrInvalidPort = errors.New("invalid port")

// ErrBootTimeout is returned when a worker does not report readiness within
// the configured boot timeout.
var ErrBootTimeout = errors.New("worker boot timeout")

// ErrPoolExhausted is returned when every worker has spent its restart budget.
var ErrPoolExhausted = errors.New("worker pool exhausted")

// ErrUnknownPack is returned when a manifest names a pack absent from the index.
var ErrUnknownPack = errors.New("unknown pack")

// ErrNoVersion is returned when no published version satisfies a manifest constraint.
var ErrNoVersion = errors.New("no version satisfies constraint")

// ErrDigestMismatch is returned when a fetched artifact does not match the
// digest declared by the index.
var ErrDigestMismatch = errors.New("artifact digest mismatch")

// ErrUnknownFormat is returned when a statement names a format pack that is
// not loaded.
var ErrUnknownFormat = errors.New("unknown statement format")

// ErrNoTransactions is returned when a statement parses to zero transactions.
var ErrNoTransactions = errors.New("no transactions detected")

// ErrUnsupportedFile is returned when an upload is neither a workbook nor a
// text statement export.
var ErrUnsupportedFile = errors.New("unsupported file type")

// ErrTooLarge is returned when an upload exceeds the configured size cap.
var ErrTooLarge = errors.New("file too large")
