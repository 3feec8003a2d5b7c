package discord

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

type recordedRequest struct {
	method string
	path   string
	auth   string
	reason string
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]recordedRequest) {
	t.Helper()

	var seen []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, recordedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			reason: r.Header.Get("X-Audit-Log-Reason"),
		})
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{
		Token:   "bot-token",
		GuildID: "guild_1",
		BaseURL: srv.URL,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c, &seen
}

func TestLookupAccount(t *testing.T) {
	c, seen := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"nick": "Natty", "user": {"id": "user_42", "username": "nattyan"}}`))
	})

	acct, err := c.LookupAccount(context.Background(), "user_42")
	if err != nil {
		t.Fatalf("LookupAccount failed: %v", err)
	}
	if acct.ID != "user_42" || acct.Username != "nattyan" || acct.Nick != "Natty" {
		t.Errorf("account mismatch: %+v", acct)
	}
	if acct.DisplayName() != "Natty" {
		t.Errorf("nick should win as display name, got %s", acct.DisplayName())
	}

	req := (*seen)[0]
	if req.method != http.MethodGet || req.path != "/guilds/guild_1/members/user_42" {
		t.Errorf("request mismatch: %+v", req)
	}
	if req.auth != "Bot bot-token" {
		t.Errorf("authorization header mismatch: %q", req.auth)
	}
}

func TestLookupAccount_NotFound(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	if _, err := c.LookupAccount(context.Background(), "user_gone"); !errors.Is(err, reconcile.ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestLookupAccount_ServerError(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := c.LookupAccount(context.Background(), "user_42"); !errors.Is(err, reconcile.ErrDownstreamUnavailable) {
		t.Fatalf("expected ErrDownstreamUnavailable, got %v", err)
	}
}

func TestGrantRole(t *testing.T) {
	c, seen := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.GrantRole(context.Background(), "user_42", "role_X"); err != nil {
		t.Fatalf("GrantRole failed: %v", err)
	}

	req := (*seen)[0]
	if req.method != http.MethodPut || req.path != "/guilds/guild_1/members/user_42/roles/role_X" {
		t.Errorf("request mismatch: %+v", req)
	}
	if req.reason == "" {
		t.Errorf("role mutations should carry an audit log reason")
	}
}

func TestRevokeRole(t *testing.T) {
	c, seen := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.RevokeRole(context.Background(), "user_42", "role_X"); err != nil {
		t.Fatalf("RevokeRole failed: %v", err)
	}

	req := (*seen)[0]
	if req.method != http.MethodDelete || req.path != "/guilds/guild_1/members/user_42/roles/role_X" {
		t.Errorf("request mismatch: %+v", req)
	}
}

func TestMutateRole_Failure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	if err := c.GrantRole(context.Background(), "user_42", "role_X"); !errors.Is(err, reconcile.ErrDownstreamUnavailable) {
		t.Fatalf("expected ErrDownstreamUnavailable, got %v", err)
	}
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := NewClient(Config{GuildID: "guild_1"}); err == nil {
		t.Errorf("expected error for missing token")
	}
	if _, err := NewClient(Config{Token: "bot-token"}); err == nil {
		t.Errorf("expected error for missing guild id")
	}
}
