package webhook

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v83"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

// SubscriptionClient implements reconcile.SubscriptionSource over the
// Stripe API. The checkout branch uses it to read the subscription's
// authoritative current state instead of the webhook payload.
type SubscriptionClient struct {
	client *stripe.Client
}

// NewSubscriptionClient creates a subscription client
func NewSubscriptionClient(apiKey string) (*SubscriptionClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	return &SubscriptionClient{client: stripe.NewClient(apiKey)}, nil
}

// Fetch implements reconcile.SubscriptionSource
func (c *SubscriptionClient) Fetch(ctx context.Context, subscriptionID string) (reconcile.Status, []reconcile.LineItem, error) {
	if subscriptionID == "" {
		return "", nil, fmt.Errorf("%w: missing subscription id", reconcile.ErrBadRequest)
	}

	sub, err := c.client.V1Subscriptions.Retrieve(ctx, subscriptionID, nil)
	if err != nil {
		return "", nil, fmt.Errorf("%w: subscription fetch: %v", reconcile.ErrDownstreamUnavailable, err)
	}

	var items []reconcile.LineItem
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price == nil || item.Price.Product == nil || item.Price.Product.ID == "" {
				continue
			}
			items = append(items, reconcile.LineItem{ProductID: item.Price.Product.ID})
		}
	}

	return reconcile.Status(sub.Status), items, nil
}
