package engine

import "errors"

// Kind is the language-neutral error taxonomy the HTTP adapter maps to
// status codes.
type Kind string

const (
	KindNoSuchQueue     Kind = "no_such_queue"
	KindNoSuchJob       Kind = "no_such_job"
	KindBadRequest      Kind = "bad_request"
	KindConflict        Kind = "conflict"
	KindRedisConnection Kind = "redis_connection"
	KindInternal        Kind = "internal"
)

// Error is the engine's structured error type. The adapter switches on Kind
// to pick an HTTP status; it never inspects Err's text.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

func NoSuchQueue(err error) *Error     { return newErr(KindNoSuchQueue, err) }
func NoSuchJob(err error) *Error       { return newErr(KindNoSuchJob, err) }
func BadRequest(err error) *Error      { return newErr(KindBadRequest, err) }
func Conflict(err error) *Error        { return newErr(KindConflict, err) }
func RedisConnection(err error) *Error { return newErr(KindRedisConnection, err) }
func Internal(err error) *Error        { return newErr(KindInternal, err) }

// KindOf extracts the Kind from err, defaulting to KindInternal for
// unrecognized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
