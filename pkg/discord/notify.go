package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cenkalti/backoff/v4"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

const (
	defaultNotifyUsername = "arktsudoi-subscription"
	notifyMaxRetries      = 3

	colorGrant  = 0x00ff00
	colorSkip   = 0xffff00
	colorRevoke = 0xff0000
)

// Embed is a Discord webhook embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
}

// EmbedField is a single name/value pair on an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// EmbedFooter is the embed footer line.
type EmbedFooter struct {
	Text string `json:"text"`
}

type webhookMessage struct {
	Username string  `json:"username"`
	Content  string  `json:"content,omitempty"`
	Embeds   []Embed `json:"embeds,omitempty"`
}

// WebhookNotifier implements reconcile.Notifier by posting embeds to a
// Discord webhook URL. Delivery happens on a background goroutine with a
// bounded retry, so Notify returns without waiting on the sink.
type WebhookNotifier struct {
	url      string
	username string
	http     *http.Client
	logger   reconcile.Logger

	wg sync.WaitGroup
}

// NotifierConfig holds webhook notifier configuration
type NotifierConfig struct {
	// URL is the Discord webhook URL.
	URL string

	// Username overrides the webhook's display name.
	Username string

	// HTTPClient is an optional HTTP client.
	HTTPClient *http.Client

	// Logger is used for delivery failures (default: NoopLogger).
	Logger reconcile.Logger
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(config NotifierConfig) (*WebhookNotifier, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}

	username := config.Username
	if username == "" {
		username = defaultNotifyUsername
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = &reconcile.NoopLogger{}
	}

	return &WebhookNotifier{
		url:      config.URL,
		username: username,
		http:     httpClient,
		logger:   logger,
	}, nil
}

// Notify implements reconcile.Notifier. The summary is queued for
// delivery and the call returns immediately; failures after retries are
// logged, never surfaced.
func (n *WebhookNotifier) Notify(ctx context.Context, s reconcile.Summary) error {
	msg := webhookMessage{
		Username: n.username,
		Embeds:   []Embed{buildEmbed(s)},
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	// Detach from the request context: the webhook response must not
	// wait on the sink, but an in-flight delivery should survive it.
	sendCtx := context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		if err := n.send(sendCtx, body); err != nil {
			n.logger.Warn("notification delivery failed",
				reconcile.Field{Key: "event_id", Value: s.EventID},
				reconcile.Field{Key: "error", Value: err.Error()})
		}
	}()
	return nil
}

// Flush waits for queued deliveries to finish. Called on shutdown.
func (n *WebhookNotifier) Flush() {
	n.wg.Wait()
}

func (n *WebhookNotifier) send(ctx context.Context, body []byte) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("webhook returned %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("webhook returned %d", resp.StatusCode))
		}
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), notifyMaxRetries), ctx)
	return backoff.Retry(op, policy)
}

// buildEmbed renders one status transition as an audit embed.
func buildEmbed(s reconcile.Summary) Embed {
	title, state, color := describeTransition(s)

	// Deleted events carry no payment status.
	statusLabel := string(s.Status)
	if statusLabel == "" {
		statusLabel = "deleted"
	}

	e := Embed{
		Title:       title,
		Description: fmt.Sprintf("User: %s (<@%s>)\nPlan: `%s`", s.AccountName, s.AccountID, s.ProductID),
		Color:       color,
		Fields: []EmbedField{
			{Name: "Status", Value: fmt.Sprintf("%s\n`%s`/`%s`", state, eventTypeName(s.EventType), statusLabel), Inline: true},
		},
		Footer: &EmbedFooter{Text: "event_id: " + s.EventID},
	}

	roleState := "No action taken."
	switch statusDisposition(s) {
	case reconcile.ActionGrant:
		roleState = "Granted. (Removed again when the subscription lapses.)"
	case reconcile.ActionRevoke:
		roleState = "Removed."
	}
	e.Fields = append(e.Fields, EmbedField{Name: "Role", Value: roleState, Inline: true})
	if statusDisposition(s) != 0 {
		e.Fields = append(e.Fields, EmbedField{Name: "Target role", Value: fmt.Sprintf("<@&%s>", s.RoleID), Inline: true})
	}
	return e
}

func describeTransition(s reconcile.Summary) (title, state string, color int) {
	if s.EventType == reconcile.EventDeleted {
		return "Subscription deleted", "The subscription was removed.", colorRevoke
	}

	switch s.Status {
	case reconcile.StatusTrialing:
		return "Trial started!", "Trialing", colorGrant
	case reconcile.StatusActive:
		return "Subscription started!", "Subscription active", colorGrant
	case reconcile.StatusIncomplete:
		return "Waiting for payment", "Purchase attempted but payment is not complete", colorSkip
	case reconcile.StatusIncompleteExpired:
		return "Payment failed", "Purchase attempted but payment failed", colorRevoke
	case reconcile.StatusPastDue:
		return "Automatic payment failed", "Automatic payment failed (the provider may retry)", colorRevoke
	case reconcile.StatusCanceled:
		return "Payment canceled", "Payment canceled", colorRevoke
	case reconcile.StatusUnpaid:
		return "Payment not made", "Payment was not made", colorRevoke
	default:
		return "Subscription event", string(s.Status), colorSkip
	}
}

// statusDisposition mirrors the resolver's table for presentation only.
// Returns 0 when the status produces no action.
func statusDisposition(s reconcile.Summary) reconcile.ActionKind {
	if s.EventType == reconcile.EventDeleted {
		return reconcile.ActionRevoke
	}
	switch s.Status {
	case reconcile.StatusTrialing, reconcile.StatusActive:
		return reconcile.ActionGrant
	case reconcile.StatusIncompleteExpired, reconcile.StatusPastDue,
		reconcile.StatusCanceled, reconcile.StatusUnpaid:
		return reconcile.ActionRevoke
	default:
		return 0
	}
}

func eventTypeName(t reconcile.EventType) string {
	switch t {
	case reconcile.EventCreated:
		return "checkout.session.completed"
	case reconcile.EventUpdated:
		return "customer.subscription.updated"
	case reconcile.EventDeleted:
		return "customer.subscription.deleted"
	default:
		return string(t)
	}
}
