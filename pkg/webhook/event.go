package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v83"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// lineItemList mirrors the items shape of the raw webhook JSON, where
// product is a plain id string. The typed stripe structs shift between
// plan and price across API versions; the raw shape carries both.
type lineItemList struct {
	Data []struct {
		Plan struct {
			Product string `json:"product"`
		} `json:"plan"`
		Price struct {
			Product string `json:"product"`
		} `json:"price"`
	} `json:"data"`
}

func (l *lineItemList) items() []reconcile.LineItem {
	items := make([]reconcile.LineItem, 0, len(l.Data))
	for _, d := range l.Data {
		productID := d.Plan.Product
		if productID == "" {
			productID = d.Price.Product
		}
		if productID == "" {
			continue
		}
		items = append(items, reconcile.LineItem{ProductID: productID})
	}
	return items
}

// TranslateEvent converts a provider envelope into a reconcile event.
// Event types outside the three lifecycle events return
// reconcile.ErrUnsupportedEvent. Status strings are passed through
// unvalidated; the resolver's table is the single authority, and it is
// consulted only after the event has been admitted to the dedup log.
func TranslateEvent(event *stripe.Event) (*reconcile.Event, error) {
	if event == nil || event.Data == nil {
		return nil, fmt.Errorf("%w: empty envelope", reconcile.ErrBadRequest)
	}

	switch event.Type {
	case "checkout.session.completed":
		return translateCheckout(event)
	case "customer.subscription.updated":
		return translateSubscription(event, reconcile.EventUpdated)
	case "customer.subscription.deleted":
		return translateSubscription(event, reconcile.EventDeleted)
	default:
		return nil, fmt.Errorf("%w: %q", reconcile.ErrUnsupportedEvent, event.Type)
	}
}

func translateCheckout(event *stripe.Event) (*reconcile.Event, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, fmt.Errorf("%w: checkout session: %v", reconcile.ErrBadRequest, err)
	}

	// The target account id is collected as the first custom field on
	// the checkout form.
	if len(session.CustomFields) < 1 ||
		session.CustomFields[0].Text == nil ||
		session.CustomFields[0].Text.Value == "" {
		return nil, fmt.Errorf("%w: checkout session missing account custom field", reconcile.ErrBadRequest)
	}
	accountID := session.CustomFields[0].Text.Value

	if session.Customer == nil || session.Customer.ID == "" {
		return nil, fmt.Errorf("%w: checkout session missing customer", reconcile.ErrBadRequest)
	}
	if session.Subscription == nil || session.Subscription.ID == "" {
		return nil, fmt.Errorf("%w: checkout session missing subscription", reconcile.ErrBadRequest)
	}

	return &reconcile.Event{
		ID:             event.ID,
		Type:           reconcile.EventCreated,
		CustomerID:     session.Customer.ID,
		AccountID:      accountID,
		SubscriptionID: session.Subscription.ID,
	}, nil
}

func translateSubscription(event *stripe.Event, eventType reconcile.EventType) (*reconcile.Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("%w: subscription: %v", reconcile.ErrBadRequest, err)
	}
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, fmt.Errorf("%w: subscription missing customer", reconcile.ErrBadRequest)
	}

	var current lineItemList
	if err := json.Unmarshal(event.Data.Raw, &struct {
		Items *lineItemList `json:"items"`
	}{Items: &current}); err != nil {
		return nil, fmt.Errorf("%w: subscription items: %v", reconcile.ErrBadRequest, err)
	}

	ev := &reconcile.Event{
		ID:         event.ID,
		Type:       eventType,
		CustomerID: sub.Customer.ID,
		Status:     reconcile.Status(sub.Status),
		Items:      current.items(),
	}

	if eventType == reconcile.EventUpdated {
		prev, err := previousItems(event)
		if err != nil {
			return nil, err
		}
		ev.PreviousItems = prev
	}

	return ev, nil
}

// previousItems extracts the line items from previous_attributes when a
// plan change included them. Absence is normal (most updates change only
// the status).
func previousItems(event *stripe.Event) ([]reconcile.LineItem, error) {
	raw, ok := event.Data.PreviousAttributes["items"]
	if !ok {
		return nil, nil
	}

	encoded, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: previous items: %v", reconcile.ErrBadRequest, err)
	}
	var prev lineItemList
	if err := json.Unmarshal(encoded, &prev); err != nil {
		return nil, fmt.Errorf("%w: previous items: %v", reconcile.ErrBadRequest, err)
	}
	return prev.items(), nil
}
