package reconcile

import "context"

// Directory performs account lookups and role mutations on the chat
// platform. Lookup misses return ErrAccountNotFound; transient mutation
// failures return ErrDownstreamUnavailable (wrapped).
type Directory interface {
	// LookupAccount resolves the linked identifier to a directory account.
	LookupAccount(ctx context.Context, linkedID string) (*Account, error)

	// GrantRole adds roleID to the account.
	GrantRole(ctx context.Context, accountID, roleID string) error

	// RevokeRole removes roleID from the account.
	RevokeRole(ctx context.Context, accountID, roleID string) error
}

// SubscriptionSource fetches the authoritative current state of a
// subscription by id. The Created branch uses it instead of the webhook
// payload's embedded object, which may lag the provider's records.
type SubscriptionSource interface {
	Fetch(ctx context.Context, subscriptionID string) (Status, []LineItem, error)
}

// Notifier delivers an event summary to the audit channel. Delivery is
// fire-and-forget: implementations must not block on slow sinks, and the
// orchestrator only logs failures.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}
