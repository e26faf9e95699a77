package tube

import (
	"fmt"
	"reflect"

	"github.com/samber/lo"
)

// ErrKind classifies the errors this module can produce.
type ErrKind uint8

const (
	// KindIllegalArgument: null/invalid arguments to factories or
	// operators, non-positive demand, non-positive buffer size for
	// BUFFER/LATEST.
	KindIllegalArgument ErrKind = iota
	// KindProtocolViolation: null items from upstream, null results from
	// Transform, null generator state or yields where forbidden.
	KindProtocolViolation
	// KindOverflow: a Tube's BUFFER/ERROR strategy was exceeded.
	KindOverflow
	// KindUserCallback: a supplier, generator, transform function, or
	// predicate panicked.
	KindUserCallback
	// KindUpstreamFailure: an error forwarded as-is from an upstream
	// Publisher.
	KindUpstreamFailure
)

func (k ErrKind) String() string {
	switch k {
	case KindIllegalArgument:
		return "IllegalArgument"
	case KindProtocolViolation:
		return "ProtocolViolation"
	case KindOverflow:
		return "Overflow"
	case KindUserCallback:
		return "UserCallback"
	case KindUpstreamFailure:
		return "UpstreamFailure"
	}

	panic("tube: unknown error kind")
}

// Error is the single error type used for every onError signal this module
// produces (upstream failures are the exception: those are propagated
// as-is, unwrapped, per the UpstreamFailure propagation policy).
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tube: %s: %s: %s", e.Kind, e.Msg, e.Err.Error())
	}

	return fmt.Sprintf("tube: %s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: cause}
}

// NewIllegalArgumentError builds a construction-time IllegalArgument error.
// Factories and operator constructors panic with this to fail synchronously,
// mirroring the Reactive Streams convention of raising argument validation
// errors directly to the caller rather than through a subscription.
func NewIllegalArgumentError(msg string) *Error {
	return newError(KindIllegalArgument, msg, nil)
}

// capturePanic runs fn and converts any panic into a KindUserCallback error
// instead of letting it unwind the call stack, following the same
// lo.TryCatchWithErrorValue pattern the teacher uses to guard every
// user-supplied callback (see samber-ro/observer.go's tryNext/tryError/
// tryComplete).
func capturePanic(fn func()) (err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			fn()
			return nil
		},
		func(e any) {
			err = newError(KindUserCallback, "user callback panicked", recoverValueToError(e))
		},
	)

	return err
}

// capturePanicValue runs fn and returns its result, converting any panic
// into a KindUserCallback error instead of letting it unwind the call
// stack. Used at every call site that invokes user-supplied code with a
// return value: transform functions, predicates, generator steps.
func capturePanicValue[T any](fn func() T) (value T, err error) {
	lo.TryCatchWithErrorValue(
		func() error {
			value = fn()
			return nil
		},
		func(e any) {
			err = newError(KindUserCallback, "user callback panicked", recoverValueToError(e))
		},
	)

	return value, err
}

func recoverValueToError(e any) error {
	if err, ok := e.(error); ok {
		return err
	}

	return fmt.Errorf("%v", e)
}

// isNilValue reports whether v holds a nil value of a nilable kind (pointer,
// interface, map, slice, channel, or function). Value kinds (numbers,
// strings, structs, arrays, bools) can never be "null" and always report
// false — this is the Go-idiomatic rendition of the "null items/results are
// forbidden" invariant (I4), which in the source language assumes every
// generic parameter is reference-typed.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}

	rv := reflect.ValueOf(v)

	switch rv.Kind() { //nolint:exhaustive
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}
