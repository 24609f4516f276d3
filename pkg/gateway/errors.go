package gateway

import "errors"

// ErrorKind classifies a Model failure. Quota and service-unavailable errors
// count against the model's circuit breaker; invalid-request errors are
// permanent and stop the cascade without touching the breaker (§4.L1).
type ErrorKind string

const (
	KindQuotaExhausted     ErrorKind = "quota_exhausted"
	KindServiceUnavailable ErrorKind = "service_unavailable"
	KindInvalidRequest     ErrorKind = "invalid_request"
	KindOther              ErrorKind = "other"
)

// CountsAgainstBreaker reports whether this error kind should increment the
// breaker's consecutive-failure count.
func (k ErrorKind) CountsAgainstBreaker() bool {
	return k == KindQuotaExhausted || k == KindServiceUnavailable || k == KindOther
}

// ClassifiedError wraps an underlying provider error with its ErrorKind.
// Concrete Model implementations return errors satisfying this interface so
// the gateway can classify failures without depending on any one provider's
// error types.
type ClassifiedError interface {
	error
	Kind() ErrorKind
}

type classifiedError struct {
	kind ErrorKind
	err  error
}

func (c *classifiedError) Error() string   { return c.err.Error() }
func (c *classifiedError) Unwrap() error   { return c.err }
func (c *classifiedError) Kind() ErrorKind { return c.kind }

// NewClassifiedError wraps err with an explicit ErrorKind for providers that
// do not implement ClassifiedError themselves.
func NewClassifiedError(kind ErrorKind, err error) ClassifiedError {
	return &classifiedError{kind: kind, err: err}
}

// classify extracts the ErrorKind from err, defaulting to KindOther for
// errors that don't declare one — an unclassified failure is treated the
// same as a transient one so it still counts against the breaker.
func classify(err error) ErrorKind {
	var ce ClassifiedError
	if errors.As(err, &ce) {
		return ce.Kind()
	}
	return KindOther
}

// Fatal cascade errors (§4.L1 Failure semantics).
var (
	ErrAllModelsFailed    = errors.New("gateway: all models in fallback chain failed")
	ErrCostCapExceeded    = errors.New("gateway: cumulative query cost would exceed cap")
	ErrFallbackDepthExceeded = errors.New("gateway: fallback cascade exceeded max depth")
	ErrNoModelsConfigured = errors.New("gateway: fallback chain for tier has no models configured")
)
