// Package discord holds the chat-platform collaborators: the guild
// directory client that looks up members and mutates roles, and the
// webhook notifier that posts audit embeds.
package discord

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

const (
	defaultAPIBase     = "https://discord.com/api/v10"
	defaultHTTPTimeout = 10 * time.Second
	defaultAuditReason = "Subscriptions were settled by Stripe. (arktsudoi-subscription)"
)

// Config holds directory client configuration
type Config struct {
	// Token is the bot token used for authorization.
	Token string

	// GuildID is the guild whose members and roles are managed.
	GuildID string

	// BaseURL overrides the API base, mainly for tests.
	BaseURL string

	// HTTPClient is an optional HTTP client.
	// If nil, a default client with 10s timeout will be used.
	HTTPClient *http.Client

	// AuditReason is sent with role mutations and shows up in the
	// guild's audit log.
	AuditReason string
}

// Client implements reconcile.Directory against the Discord REST API
type Client struct {
	token   string
	guildID string
	baseURL string
	reason  string
	http    *http.Client
}

// NewClient creates a new directory client
func NewClient(config Config) (*Client, error) {
	if strings.TrimSpace(config.Token) == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	if strings.TrimSpace(config.GuildID) == "" {
		return nil, fmt.Errorf("guild id is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultAPIBase
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	reason := config.AuditReason
	if reason == "" {
		reason = defaultAuditReason
	}

	return &Client{
		token:   config.Token,
		guildID: config.GuildID,
		baseURL: strings.TrimRight(baseURL, "/"),
		reason:  reason,
		http:    httpClient,
	}, nil
}

// guildMember is the subset of the member payload the client reads.
type guildMember struct {
	Nick string `json:"nick"`
	User struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// LookupAccount implements reconcile.Directory
func (c *Client) LookupAccount(ctx context.Context, linkedID string) (*reconcile.Account, error) {
	url := fmt.Sprintf("%s/guilds/%s/members/%s", c.baseURL, c.guildID, linkedID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build member request: %w", err)
	}
	c.setHeaders(req, false)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: member lookup: %v", reconcile.ErrDownstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, reconcile.ErrAccountNotFound
	default:
		return nil, fmt.Errorf("%w: member lookup returned %d", reconcile.ErrDownstreamUnavailable, resp.StatusCode)
	}

	var m guildMember
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to decode member: %w", err)
	}

	return &reconcile.Account{
		ID:       m.User.ID,
		Username: m.User.Username,
		Nick:     m.Nick,
	}, nil
}

// GrantRole implements reconcile.Directory
func (c *Client) GrantRole(ctx context.Context, accountID, roleID string) error {
	return c.mutateRole(ctx, http.MethodPut, accountID, roleID)
}

// RevokeRole implements reconcile.Directory
func (c *Client) RevokeRole(ctx context.Context, accountID, roleID string) error {
	return c.mutateRole(ctx, http.MethodDelete, accountID, roleID)
}

func (c *Client) mutateRole(ctx context.Context, method, accountID, roleID string) error {
	url := fmt.Sprintf("%s/guilds/%s/members/%s/roles/%s", c.baseURL, c.guildID, accountID, roleID)
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build role request: %w", err)
	}
	c.setHeaders(req, true)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: role mutation: %v", reconcile.ErrDownstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("%w: role mutation returned %d", reconcile.ErrDownstreamUnavailable, resp.StatusCode)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request, mutation bool) {
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if mutation {
		req.Header.Set("X-Audit-Log-Reason", c.reason)
	}
}
