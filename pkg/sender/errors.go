package sender

import "errors"

var (
	// ErrUnsupportedChannel is returned for a channel outside the supported
	// set. Non-retryable; it never enters the backoff path.
	ErrUnsupportedChannel = errors.New("unsupported notification channel")

	// ErrInvalidRecipient is returned when the recipient cannot possibly be
	// delivered to. Non-retryable.
	ErrInvalidRecipient = errors.New("invalid recipient")

	// ErrNoTransport is returned when a sender is constructed without a
	// usable transport client.
	ErrNoTransport = errors.New("no transport configured")
)

// DeliveryError wraps a send failure with its retryability. Workers decide
// between backoff and terminal failure based on the Retryable flag.
type DeliveryError struct {
	Cause     error
	Retryable bool
}

func (e *DeliveryError) Error() string {
	if e.Cause == nil {
		return "delivery failed"
	}
	return e.Cause.Error()
}

func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// Permanent wraps cause as a non-retryable delivery error.
func Permanent(cause error) *DeliveryError {
	return &DeliveryError{Cause: cause, Retryable: false}
}

// Transient wraps cause as a retryable delivery error.
func Transient(cause error) *DeliveryError {
	return &DeliveryError{Cause: cause, Retryable: true}
}

// IsRetryable reports whether err should re-enter the backoff path. Errors
// that do not carry retryability are treated as retryable, so unclassified
// transport trouble gets the benefit of the attempt budget.
func IsRetryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}
