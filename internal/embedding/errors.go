package embedding

import "errors"

// Error taxonomy for embedding operations. Callers branch on these with
// errors.Is: transient errors (rate limit, unavailable) may be retried,
// permanent errors (invalid input) must not be.
var (
	// ErrRateLimited indicates the provider or the local limiter rejected
	// the request for exceeding the allowed rate. Transient.
	ErrRateLimited = errors.New("embedding: rate limited")

	// ErrUnavailable indicates the provider could not be reached or
	// returned a server-side failure. Transient.
	ErrUnavailable = errors.New("embedding: provider unavailable")

	// ErrInvalidInput indicates the input text or requested dimensions
	// cannot be embedded. Permanent; retrying cannot help.
	ErrInvalidInput = errors.New("embedding: invalid input")

	// ErrCircuitOpen is returned when the circuit breaker is in open state
	// and rejects requests to prevent cascading failures.
	ErrCircuitOpen = errors.New("embedding: circuit breaker is open")
)

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}
