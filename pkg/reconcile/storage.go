package reconcile

import "context"

// IdentityStore is the durable mapping from payment customer ids to target
// account ids. Implementations must be safe for concurrent use.
type IdentityStore interface {
	// Lookup returns the account id linked to customerID.
	// Returns ErrCustomerNotLinked when no link exists.
	Lookup(ctx context.Context, customerID string) (string, error)

	// Associate links customerID to accountID. The write is an idempotent
	// atomic upsert (last write wins) and must be durable before
	// returning; losing the link silently breaks every later event for
	// that customer.
	Associate(ctx context.Context, customerID, accountID string) error
}

// EventLog records processed event ids so redeliveries can be suppressed.
// Implementations must be safe for concurrent use.
type EventLog interface {
	// Admit returns true the first time eventID is seen and records it;
	// every later call with the same id returns false. The membership
	// check and the record are a single atomic step, and the record is
	// durable before Admit returns so a crash mid-processing still stops
	// re-grant retries on the next redelivery.
	Admit(ctx context.Context, eventID string) (bool, error)
}

// Store combines the two durable stores the orchestrator needs.
type Store interface {
	IdentityStore
	EventLog
}
