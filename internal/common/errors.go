// Package common defines the error taxonomy and small helpers shared by the
// notevault store layers. Callers should use errors.Is against the sentinel
// values or KindOf to classify an error.
package common

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure categories surfaced by the store.
type Kind uint8

const (
	// KindInternal covers unexpected storage failures and anything unclassified.
	KindInternal Kind = iota
	// KindNotFound: the folder, note or user does not exist for the caller.
	KindNotFound
	// KindInvalidOperation: structurally disallowed action, e.g. moving the root.
	KindInvalidOperation
	// KindCycleDetected: a move would make a folder its own ancestor.
	KindCycleDetected
	// KindAuthenticationFailed: the GCM tag did not verify.
	KindAuthenticationFailed
	// KindCodec: malformed compressed payload.
	KindCodec
	// KindPayloadTooLarge: content exceeds a size cap.
	KindPayloadTooLarge
	// KindCrypto: misconfigured or malformed key material.
	KindCrypto
	// KindConflict: a unique constraint rejected the write.
	KindConflict
	// KindValidation: request fields failed validation.
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindInternal:
		return "internal error"
	case KindNotFound:
		return "not found"
	case KindInvalidOperation:
		return "invalid operation"
	case KindCycleDetected:
		return "cycle detected"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindCodec:
		return "codec error"
	case KindPayloadTooLarge:
		return "payload too large"
	case KindCrypto:
		return "crypto error"
	case KindConflict:
		return "conflict"
	case KindValidation:
		return "validation error"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Error is a classified store error. Op names the failing operation and Err
// carries the underlying cause, if any.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches bare sentinels (no Op, no Err) by kind, so
// errors.Is(err, ErrNotFound) holds for any NotFound error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrInternal             = &Error{Kind: KindInternal}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrInvalidOperation     = &Error{Kind: KindInvalidOperation}
	ErrCycleDetected        = &Error{Kind: KindCycleDetected}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrCodec                = &Error{Kind: KindCodec}
	ErrPayloadTooLarge      = &Error{Kind: KindPayloadTooLarge}
	ErrCrypto               = &Error{Kind: KindCrypto}
	ErrConflict             = &Error{Kind: KindConflict}
	ErrValidation           = &Error{Kind: KindValidation}
)

// E builds a classified error for op.
func E(kind Kind, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
