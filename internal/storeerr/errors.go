// Package storeerr defines the event store's error taxonomy. Each kind
// maps to a policy in the storage contract: some are fatal to the calling
// operation, one is automatically retried by the facade, and one (cache
// miss) is not an error at all and is expressed through a bool return
// instead.
package storeerr

import (
	"errors"
	"fmt"
)

// Kind classifies a storage-layer failure.
type Kind int

const (
	// KindInvalidCriteria covers malformed filter criteria or factory
	// child-address locations (programmer error, fatal to the call).
	KindInvalidCriteria Kind = iota
	// KindReferentialViolation covers logs/transactions inserted without
	// their parent block/transaction in the same transaction.
	KindReferentialViolation
	// KindSerializationConflict covers a concurrent interval-merge
	// collision under SQLite's serializable isolation. Retried
	// automatically by the facade up to its configured attempt count.
	KindSerializationConflict
	// KindConnectionLost covers the underlying engine disconnecting.
	KindConnectionLost
)

func (k Kind) String() string {
	switch k {
	case KindInvalidCriteria:
		return "InvalidCriteria"
	case KindReferentialViolation:
		return "ReferentialViolation"
	case KindSerializationConflict:
		return "SerializationConflict"
	case KindConnectionLost:
		return "ConnectionLost"
	default:
		return "Unknown"
	}
}

// Error is a classified storage-layer error. It wraps the underlying cause
// so callers can still use errors.Is/errors.As against it.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a classified Error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Is reports whether err was produced by New with the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == kind
}

// InvalidCriteria wraps err as a KindInvalidCriteria error.
func InvalidCriteria(op string, err error) error {
	return New(KindInvalidCriteria, op, err)
}

// ReferentialViolation wraps err as a KindReferentialViolation error.
func ReferentialViolation(op string, err error) error {
	return New(KindReferentialViolation, op, err)
}

// SerializationConflict wraps err as a KindSerializationConflict error.
func SerializationConflict(op string, err error) error {
	return New(KindSerializationConflict, op, err)
}

// ConnectionLost wraps err as a KindConnectionLost error.
func ConnectionLost(op string, err error) error {
	return New(KindConnectionLost, op, err)
}

// ErrCacheMiss names a contract-read cache miss. The cache does not return
// it: its API reports a miss as a false found-bool, since a cache miss is
// not a failure.
var ErrCacheMiss = errors.New("contract read cache: miss")
