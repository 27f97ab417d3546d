package http

import "fmt"

type resultKind uint8

const (
	resultValue resultKind = iota
	resultContinue
	resultReplace
)

// Result is what handlers and the helpers they call return.
//
// A Value result carries a T and lets the caller carry on. Continue stops the
// handler and keeps whatever response is already on the Context. Replace
// stops the handler and substitutes its own response.
//
// Nested calls short-circuit the caller through Propagate:
//
//	body := http.ValidateJSON[signup](ctx)
//	payload, ok := body.Get()
//	if !ok {
//		return http.Propagate[http.Done](body)
//	}
type Result[T any] struct {
	kind     resultKind
	value    T
	response *Response
}

// Done is the value type of a handler's own result.
type Done = struct{}

// Outcome is the result type every route handler returns.
type Outcome = Result[Done]

// Value wraps a value to continue with.
func Value[T any](v T) Result[T] {
	return Result[T]{kind: resultValue, value: v}
}

// Continue stops the handler and keeps the Context response.
func Continue[T any]() Result[T] {
	return Result[T]{kind: resultContinue}
}

// Replace stops the handler and substitutes res for the Context response.
func Replace[T any](res *Response) Result[T] {
	return Result[T]{kind: resultReplace, response: res}
}

// Get returns the carried value and true for Value results.
func (r Result[T]) Get() (T, bool) {
	return r.value, r.kind == resultValue
}

// IsValue reports whether the caller may continue.
func (r Result[T]) IsValue() bool {
	return r.kind == resultValue
}

// IsReplace reports whether the result carries a substitute response.
func (r Result[T]) IsReplace() bool {
	return r.kind == resultReplace
}

// Response returns the substitute response of a Replace result, nil otherwise.
func (r Result[T]) Response() *Response {
	if r.kind != resultReplace {
		return nil
	}
	return r.response
}

// Propagate re-types a non-value result so the caller can return it as is.
// Propagating a Value result is a programming error and panics.
func Propagate[U, T any](r Result[T]) Result[U] {
	switch r.kind {
	case resultContinue:
		return Continue[U]()
	case resultReplace:
		return Replace[U](r.response)
	default:
		panic(fmt.Sprintf("http: Propagate called on a value result of type %T", r.value))
	}
}

// Then runs next with the carried value, or short-circuits with the same
// non-value outcome.
func Then[T, U any](r Result[T], next func(T) Result[U]) Result[U] {
	if r.kind != resultValue {
		return Propagate[U](r)
	}
	return next(r.value)
}
