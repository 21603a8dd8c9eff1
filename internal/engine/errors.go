package engine

import (
	"errors"
	"fmt"
)

// Kind classifies an engine-level failure so the Request Adapter can map it
// to an HTTP status without inspecting error strings.
type Kind int

const (
	// KindInternal covers store I/O failures, decode failures, and
	// invariant violations detected at read time.
	KindInternal Kind = iota
	KindBadRequest
	KindNotFound
	KindPayloadTooLarge
	KindUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Error wraps an underlying cause with a Kind the adapter can switch on.
// It plays the role the teacher's sentinel errors (storage.ErrKeyNotFound)
// play, generalized to carry a status-mapping tag instead of one sentinel
// value per case.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// newErr builds an *Error, matching the teacher's fmt.Errorf("...: %w", err)
// wrapping convention but attaching a Kind.
func newErr(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func badRequest(op string, format string, args ...any) error {
	return newErr(op, KindBadRequest, fmt.Errorf(format, args...))
}

func notFound(op string) error {
	return newErr(op, KindNotFound, errors.New("key not found"))
}

// errNotFoundObjects builds the I1-violation error: keys[k] resolved to a
// hash with no matching objects entry.
func errNotFoundObjects(h [16]byte) error {
	return fmt.Errorf("invariant violation: objects[%x] missing for referenced hash", h)
}

func internalErr(op string, err error) error {
	return newErr(op, KindInternal, err)
}

// KindOf extracts the Kind from err, defaulting to KindInternal for any
// error the engine did not itself construct.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
