package domain

import "errors"

// RetriableError defines an interface for errors that can be retried.
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable.
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// NetworkError represents a transport failure that may be retriable.
type NetworkError struct {
	Op        string // operation that failed ("dial", "read", "write", "rpc")
	Err       error
	Retriable bool
}

func (e *NetworkError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *NetworkError) IsRetriable() bool { return e.Retriable }

func (e *NetworkError) Unwrap() error { return e.Err }

// NewNetworkError creates a retriable network error.
func NewNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: true}
}

// NewFatalNetworkError creates a non-retriable network error.
func NewFatalNetworkError(op string, err error) *NetworkError {
	return &NetworkError{Op: op, Err: err, Retriable: false}
}

// SubscriptionError is a server-reported stream status failure. It is
// reported upward as a status event; the worker keeps running unless the
// condition is a market closure.
type SubscriptionError struct {
	Code    string
	Message string
}

func (e *SubscriptionError) Error() string {
	return "subscription error [" + e.Code + "]: " + e.Message
}

func (e *SubscriptionError) IsRetriable() bool { return false }

// APIError is a business-level rejection from the exchange RPC. Never
// retriable: the same request would fail the same way.
type APIError struct {
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return "api error [" + e.Code + "]: " + e.Message
}

func (e *APIError) IsRetriable() bool { return false }

var (
	// ErrWorkerNotFound is returned when stopping or querying a market
	// that has no running worker. A "not found" condition, not a crash.
	ErrWorkerNotFound = errors.New("no worker running for market")

	// ErrHandshakeTimeout is returned when the connect/authenticate/
	// subscribe sequence does not complete in time.
	ErrHandshakeTimeout = errors.New("stream handshake timed out")

	// ErrWorkerStopped is returned from operations on a worker whose
	// running flag has been cleared.
	ErrWorkerStopped = errors.New("worker stopped")

	// ErrNoSession is returned when an authenticated call is attempted
	// without a session token.
	ErrNoSession = errors.New("no session token available")
)
