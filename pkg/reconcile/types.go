package reconcile

import "fmt"

// EventType identifies the subscription lifecycle change carried by a
// webhook delivery.
type EventType string

const (
	// EventCreated is a completed checkout session for a new subscription.
	EventCreated EventType = "created"
	// EventUpdated is a change to an existing subscription (status or plan).
	EventUpdated EventType = "updated"
	// EventDeleted is a subscription removal.
	EventDeleted EventType = "deleted"
)

// Status is a subscription's payment status as reported by the provider.
type Status string

const (
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incomplete_expired"
	StatusPastDue           Status = "past_due"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
)

// Statuses returns every supported Status. The resolver's action table is
// verified against this list when an Orchestrator is constructed.
func Statuses() []Status {
	return []Status{
		StatusTrialing,
		StatusActive,
		StatusIncomplete,
		StatusIncompleteExpired,
		StatusPastDue,
		StatusCanceled,
		StatusUnpaid,
	}
}

// ParseStatus converts a provider status string into a Status.
// Unrecognized values return ErrInvalidStatus.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if _, ok := statusActions[st]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}

// LineItem is one subscribed product on a subscription.
type LineItem struct {
	ProductID string
}

// Event is a decoded webhook delivery. It is immutable once decoded.
type Event struct {
	// ID is the provider's unique event identifier, used for deduplication.
	ID string

	// Type is the lifecycle change this event describes.
	Type EventType

	// CustomerID is the payment provider's customer identifier.
	CustomerID string

	// AccountID is the target chat account collected from the checkout
	// form. Only present on Created events.
	AccountID string

	// SubscriptionID identifies the subscription resource. Only used on
	// Created events, where the current state is re-fetched by id.
	SubscriptionID string

	// Status is the subscription status embedded in the event payload.
	// Not trusted on Created events (see Orchestrator).
	Status Status

	// Items are the subscription's current line items.
	Items []LineItem

	// PreviousItems are the line items before a plan change.
	// Only present on Updated events that changed the plan.
	PreviousItems []LineItem
}

// ActionKind is the kind of role mutation an event resolves to.
type ActionKind int

const (
	// ActionGrant adds a role to the target account.
	ActionGrant ActionKind = iota + 1
	// ActionRevoke removes a role from the target account.
	ActionRevoke
)

// String returns a human-readable kind name.
func (k ActionKind) String() string {
	switch k {
	case ActionGrant:
		return "grant"
	case ActionRevoke:
		return "revoke"
	default:
		return "unknown"
	}
}

// RoleAction is a single role mutation produced by the resolver.
type RoleAction struct {
	Kind   ActionKind
	RoleID string
}

// RoleMap maps provider product ids to chat-platform role ids.
// It is static configuration, read-only at runtime. Products without a
// mapping never produce actions.
type RoleMap map[string]string

// Role returns the role id mapped to productID.
func (m RoleMap) Role(productID string) (string, bool) {
	roleID, ok := m[productID]
	return roleID, ok
}

// Account is a resolved directory member.
type Account struct {
	// ID is the directory's account identifier.
	ID string

	// Username is the account's login name.
	Username string

	// Nick is the guild-local display name, may be empty.
	Nick string
}

// DisplayName returns the guild nickname when set, the username otherwise.
func (a *Account) DisplayName() string {
	if a.Nick != "" {
		return a.Nick
	}
	return a.Username
}

// Outcome is the terminal result of processing one event.
type Outcome string

const (
	// OutcomeOK means the event was processed and actions were dispatched.
	OutcomeOK Outcome = "ok"
	// OutcomeDuplicate means the event id was seen before; no side effects.
	OutcomeDuplicate Outcome = "duplicate"
)

// Result describes how an event was handled.
type Result struct {
	Outcome Outcome

	// Applied is the number of role mutations successfully applied.
	Applied int
}

// Summary describes one status transition for a single mapped product.
// It is handed to the Notifier after role mutations were dispatched.
type Summary struct {
	EventID     string
	EventType   EventType
	Status      Status
	ProductID   string
	RoleID      string
	AccountID   string
	AccountName string
}
