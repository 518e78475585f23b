package domain

import "errors"

// RetriableError defines an interface for errors that can be retried
type RetriableError interface {
	error
	IsRetriable() bool
}

// IsRetriable checks if an error is retriable
func IsRetriable(err error) bool {
	var re RetriableError
	if errors.As(err, &re) {
		return re.IsRetriable()
	}
	return false
}

// Quote source failures. The adapter never retries on its own; the
// orchestrator owns retry policy.
var (
	// ErrQuoteUnavailable is returned on transport or provider failure. Retriable.
	ErrQuoteUnavailable = errors.New("quote unavailable")

	// ErrMalformedQuote is returned when a response is missing expected
	// fields or carries a non-positive price.
	ErrMalformedQuote = errors.New("malformed quote response")

	// ErrInstrumentNotFound is returned for an unknown instrument reference. Not retriable.
	ErrInstrumentNotFound = errors.New("instrument not found")
)

// Notification failures. Both are advisory: the caller logs and moves on,
// never aborts the loop over them.
var (
	// ErrNotifyNotConfigured means no destination is configured. Log-only.
	ErrNotifyNotConfigured = errors.New("notifier not configured")

	// ErrNotifyTransport is a delivery failure on a configured channel.
	ErrNotifyTransport = errors.New("notify transport failure")
)

// Assistant failures. Mapped by the caller to a fixed apology, never
// surfaced to end users raw.
var (
	// ErrBackendFailure covers completion errors and empty completions.
	ErrBackendFailure = errors.New("completion backend failure")

	// ErrAssistantNotConfigured means no backend credential is present.
	ErrAssistantNotConfigured = errors.New("assistant not configured")
)

// TransportError wraps a low-level network failure from one of the
// outbound clients (quote fetch, live feed, notify, completion).
type TransportError struct {
	Op        string // Operation that failed (e.g., "fetch", "connect", "send")
	Err       error  // Underlying error
	Retriable bool   // Whether this error is retriable
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) IsRetriable() bool {
	return e.Retriable
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a new retriable transport error
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, Retriable: true}
}

// NewFatalTransportError creates a non-retriable transport error
func NewFatalTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, Retriable: false}
}

// InitError represents a startup failure (missing credential, bad
// configuration). Fatal: the process reports and stops before running.
type InitError struct {
	Field string
	Err   error
}

func (e *InitError) Error() string {
	return "init error [" + e.Field + "]: " + e.Err.Error()
}

func (e *InitError) IsRetriable() bool {
	return false
}

func (e *InitError) Unwrap() error {
	return e.Err
}
