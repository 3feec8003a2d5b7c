package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const defaultMutationPace = 250 * time.Millisecond

// Config holds orchestrator configuration.
type Config struct {
	// Store persists the customer/account links and processed event ids.
	Store Store

	// Directory performs account lookups and role mutations.
	Directory Directory

	// Subscriptions re-fetches subscription state for Created events.
	Subscriptions SubscriptionSource

	// Notifier receives event summaries (optional).
	Notifier Notifier

	// Roles maps product ids to role ids.
	Roles RoleMap

	// MutationPace is the minimum delay between consecutive role
	// mutations for the same account, to respect the directory API's
	// rate limits (default: 250ms).
	MutationPace time.Duration

	// Logger is used for structured logging (default: NoopLogger).
	Logger Logger

	// Metrics is used for tracking operations (default: NoopMetrics).
	Metrics Metrics
}

// Orchestrator drives one webhook event from admission to dispatched role
// mutations. Events for the same customer are serialized; unrelated events
// proceed concurrently.
type Orchestrator struct {
	store     Store
	directory Directory
	subs      SubscriptionSource
	notifier  Notifier
	roles     RoleMap
	pace      time.Duration
	logger    Logger
	metrics   Metrics
	customers keyedMutex
}

// NewOrchestrator creates an orchestrator. It fails if a required
// collaborator is missing or the status action table does not cover every
// status variant.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Directory == nil {
		return nil, errors.New("directory is required")
	}
	if cfg.Subscriptions == nil {
		return nil, errors.New("subscription source is required")
	}
	if err := verifyStatusTable(); err != nil {
		return nil, err
	}

	pace := cfg.MutationPace
	if pace <= 0 {
		pace = defaultMutationPace
	}
	logger := cfg.Logger
	if logger == nil {
		logger = &NoopLogger{}
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &NoopMetrics{}
	}

	return &Orchestrator{
		store:     cfg.Store,
		directory: cfg.Directory,
		subs:      cfg.Subscriptions,
		notifier:  cfg.Notifier,
		roles:     cfg.Roles,
		pace:      pace,
		logger:    logger,
		metrics:   metrics,
	}, nil
}

// Process handles one decoded event to a terminal outcome. Duplicate
// deliveries return OutcomeDuplicate with zero side effects. Admission is
// recorded before the event-specific work, so a delivery that fails after
// admission is not retried even though no role was touched; the provider's
// redelivery would be a no-op by design.
func (o *Orchestrator) Process(ctx context.Context, ev *Event) (*Result, error) {
	start := time.Now()
	res, err := o.process(ctx, ev)

	eventType := "unknown"
	if ev != nil && ev.Type != "" {
		eventType = string(ev.Type)
	}
	o.metrics.RecordEventDuration(eventType, time.Since(start))
	if err != nil {
		o.metrics.RecordEvent(eventType, outcomeForError(err))
		return nil, err
	}
	o.metrics.RecordEvent(eventType, string(res.Outcome))
	return res, nil
}

func (o *Orchestrator) process(ctx context.Context, ev *Event) (*Result, error) {
	if ev == nil || ev.ID == "" || ev.CustomerID == "" {
		return nil, ErrBadRequest
	}

	// Deliveries for one customer are applied in arrival order relative
	// to each other; everything else runs concurrently.
	unlock := o.customers.lock(ev.CustomerID)
	defer unlock()

	admitted, err := o.store.Admit(ctx, ev.ID)
	if err != nil {
		return nil, fmt.Errorf("event log: %w", err)
	}
	if !admitted {
		o.logger.Info("duplicate delivery suppressed",
			Field{Key: "event_id", Value: ev.ID})
		return &Result{Outcome: OutcomeDuplicate}, nil
	}

	var (
		linkedID string
		status   Status
		items    []LineItem
		actions  []RoleAction
	)

	switch ev.Type {
	case EventCreated:
		if ev.AccountID == "" {
			return nil, fmt.Errorf("%w: created event without account id", ErrBadRequest)
		}
		if err := o.store.Associate(ctx, ev.CustomerID, ev.AccountID); err != nil {
			return nil, fmt.Errorf("identity store: %w", err)
		}
		linkedID = ev.AccountID

		// The embedded object is not trusted here: the webhook can fire
		// before the provider's records settle, so the subscription is
		// re-fetched by id.
		status, items, err = o.subs.Fetch(ctx, ev.SubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("subscription fetch: %w", err)
		}
		actions, err = ResolveNew(status, items, o.roles)
		if err != nil {
			return nil, err
		}

	case EventUpdated:
		linkedID, err = o.store.Lookup(ctx, ev.CustomerID)
		if err != nil {
			return nil, err
		}
		status = ev.Status
		items = ev.Items
		actions, err = ResolveUpdate(ev.Status, ev.Items, ev.PreviousItems, o.roles)
		if err != nil {
			return nil, err
		}

	case EventDeleted:
		linkedID, err = o.store.Lookup(ctx, ev.CustomerID)
		if err != nil {
			return nil, err
		}
		items = ev.Items
		actions = ResolveDelete(ev.Items, o.roles)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, ev.Type)
	}

	account, err := o.directory.LookupAccount(ctx, linkedID)
	if err != nil {
		return nil, err
	}

	applied := o.dispatch(ctx, account.ID, actions)

	o.notify(ctx, ev, status, account, items)

	o.logger.Info("event reconciled",
		Field{Key: "event_id", Value: ev.ID},
		Field{Key: "event_type", Value: string(ev.Type)},
		Field{Key: "customer_id", Value: ev.CustomerID},
		Field{Key: "actions_applied", Value: applied})

	return &Result{Outcome: OutcomeOK, Applied: applied}, nil
}

// dispatch issues the resolved mutations against one account: every
// Revoke before any Grant, with a minimum delay between consecutive
// calls. Individual failures are logged and skipped, never rolled back;
// role state is independently correctable on a later event.
func (o *Orchestrator) dispatch(ctx context.Context, accountID string, actions []RoleAction) int {
	ordered := make([]RoleAction, 0, len(actions))
	for _, a := range actions {
		if a.Kind == ActionRevoke {
			ordered = append(ordered, a)
		}
	}
	for _, a := range actions {
		if a.Kind == ActionGrant {
			ordered = append(ordered, a)
		}
	}

	applied := 0
	for i, a := range ordered {
		if i > 0 && !o.paceWait(ctx) {
			break
		}

		var err error
		switch a.Kind {
		case ActionRevoke:
			err = o.directory.RevokeRole(ctx, accountID, a.RoleID)
		case ActionGrant:
			err = o.directory.GrantRole(ctx, accountID, a.RoleID)
		}
		if err != nil {
			o.metrics.RecordRoleAction(a.Kind.String(), "error")
			o.logger.Warn("role mutation failed",
				Field{Key: "account_id", Value: accountID},
				Field{Key: "role_id", Value: a.RoleID},
				Field{Key: "kind", Value: a.Kind.String()},
				Field{Key: "error", Value: err.Error()})
			continue
		}
		o.metrics.RecordRoleAction(a.Kind.String(), "success")
		applied++
	}
	return applied
}

// paceWait sleeps for the configured inter-mutation delay. Returns false
// if the context ended first.
func (o *Orchestrator) paceWait(ctx context.Context) bool {
	t := time.NewTimer(o.pace)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// notify emits one summary per mapped product on the event, covering the
// status transition the event described. Failures are logged only; the
// webhook response never waits on the sink.
func (o *Orchestrator) notify(ctx context.Context, ev *Event, status Status, account *Account, items []LineItem) {
	if o.notifier == nil {
		return
	}
	for _, item := range items {
		roleID, ok := o.roles.Role(item.ProductID)
		if !ok {
			continue
		}
		s := Summary{
			EventID:     ev.ID,
			EventType:   ev.Type,
			Status:      status,
			ProductID:   item.ProductID,
			RoleID:      roleID,
			AccountID:   account.ID,
			AccountName: account.DisplayName(),
		}
		if err := o.notifier.Notify(ctx, s); err != nil {
			o.metrics.RecordNotification("error")
			o.logger.Warn("notification failed",
				Field{Key: "event_id", Value: ev.ID},
				Field{Key: "error", Value: err.Error()})
			continue
		}
		o.metrics.RecordNotification("success")
	}
}

// outcomeForError classifies a processing error for metrics.
func outcomeForError(err error) string {
	switch {
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrUnsupportedEvent):
		return "unsupported"
	case errors.Is(err, ErrCustomerNotLinked):
		return "unlinked_customer"
	case errors.Is(err, ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, ErrInvalidStatus):
		return "invalid_status"
	case errors.Is(err, ErrDownstreamUnavailable):
		return "downstream_unavailable"
	default:
		return "error"
	}
}

// keyedMutex serializes work per string key without a global lock across
// unrelated keys. Entries are removed once the last holder releases.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
