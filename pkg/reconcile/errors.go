package reconcile

import "errors"

var (
	// ErrBadRequest is returned when an event payload is malformed.
	// No side effects have happened when it is returned.
	ErrBadRequest = errors.New("malformed event payload")

	// ErrUnsupportedEvent is returned for event types the service does
	// not handle.
	ErrUnsupportedEvent = errors.New("unsupported event type")

	// ErrCustomerNotLinked is returned when a customer has no known
	// target account. The provider's own retry policy governs redelivery;
	// this service does not retry.
	ErrCustomerNotLinked = errors.New("customer not linked to an account")

	// ErrAccountNotFound is returned when the directory lookup for the
	// linked account fails.
	ErrAccountNotFound = errors.New("account not found in directory")

	// ErrInvalidStatus is returned for a subscription status outside the
	// supported set. The whole event is aborted rather than partially
	// applied; the status table is assumed exhaustive, so this signals a
	// defect worth investigating.
	ErrInvalidStatus = errors.New("unrecognized subscription status")

	// ErrDownstreamUnavailable is returned when a directory or
	// notification call fails transiently.
	ErrDownstreamUnavailable = errors.New("downstream service unavailable")
)
