package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/nattyan-tv/arktsudoi-subscription/pkg/reconcile"
)

func TestWebhookNotifier_Delivers(t *testing.T) {
	var mu sync.Mutex
	var received []webhookMessage

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg webhookMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("failed to decode delivery: %v", err)
		}
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(NotifierConfig{URL: srv.URL, Username: "tester"})
	if err != nil {
		t.Fatalf("NewWebhookNotifier failed: %v", err)
	}

	err = n.Notify(context.Background(), reconcile.Summary{
		EventID:     "evt_1",
		EventType:   reconcile.EventUpdated,
		Status:      reconcile.StatusActive,
		ProductID:   "prod_A",
		RoleID:      "role_X",
		AccountID:   "user_42",
		AccountName: "nattyan",
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	n.Flush()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one delivery, got %d", len(received))
	}
	msg := received[0]
	if msg.Username != "tester" {
		t.Errorf("username mismatch: %q", msg.Username)
	}
	if len(msg.Embeds) != 1 {
		t.Fatalf("expected one embed, got %d", len(msg.Embeds))
	}
	embed := msg.Embeds[0]
	if embed.Color != colorGrant {
		t.Errorf("active status should use the grant color, got %#x", embed.Color)
	}
	if embed.Footer == nil || embed.Footer.Text != "event_id: evt_1" {
		t.Errorf("footer mismatch: %+v", embed.Footer)
	}
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(NotifierConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookNotifier failed: %v", err)
	}

	if err := n.Notify(context.Background(), reconcile.Summary{EventID: "evt_1"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	n.Flush()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("expected a retry after 500, got %d attempts", attempts)
	}
}

func TestWebhookNotifier_ClientErrorNotRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n, err := NewWebhookNotifier(NotifierConfig{URL: srv.URL})
	if err != nil {
		t.Fatalf("NewWebhookNotifier failed: %v", err)
	}

	if err := n.Notify(context.Background(), reconcile.Summary{EventID: "evt_1"}); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	n.Flush()

	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("4xx responses must not be retried, got %d attempts", attempts)
	}
}

func TestBuildEmbed_DeletedWithoutStatus(t *testing.T) {
	e := buildEmbed(reconcile.Summary{
		EventID:   "evt_1",
		EventType: reconcile.EventDeleted,
		RoleID:    "role_X",
	})

	if len(e.Fields) == 0 {
		t.Fatalf("embed has no fields")
	}
	status := e.Fields[0]
	if status.Name != "Status" {
		t.Fatalf("first field should be Status, got %q", status.Name)
	}
	if strings.HasSuffix(status.Value, "/``") {
		t.Errorf("status segment rendered empty: %q", status.Value)
	}
	if !strings.Contains(status.Value, "`deleted`") {
		t.Errorf("missing deleted label: %q", status.Value)
	}
}

func TestBuildEmbed_Dispositions(t *testing.T) {
	tests := []struct {
		name      string
		summary   reconcile.Summary
		wantColor int
		wantRole  bool
	}{
		{
			name:      "grant",
			summary:   reconcile.Summary{EventType: reconcile.EventUpdated, Status: reconcile.StatusTrialing, RoleID: "role_X"},
			wantColor: colorGrant,
			wantRole:  true,
		},
		{
			name:      "skip",
			summary:   reconcile.Summary{EventType: reconcile.EventUpdated, Status: reconcile.StatusIncomplete},
			wantColor: colorSkip,
			wantRole:  false,
		},
		{
			name:      "revoke",
			summary:   reconcile.Summary{EventType: reconcile.EventUpdated, Status: reconcile.StatusCanceled, RoleID: "role_X"},
			wantColor: colorRevoke,
			wantRole:  true,
		},
		{
			name:      "deleted",
			summary:   reconcile.Summary{EventType: reconcile.EventDeleted, Status: reconcile.StatusCanceled, RoleID: "role_X"},
			wantColor: colorRevoke,
			wantRole:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := buildEmbed(tt.summary)
			if e.Color != tt.wantColor {
				t.Errorf("color mismatch: got %#x, want %#x", e.Color, tt.wantColor)
			}
			hasRoleField := false
			for _, f := range e.Fields {
				if f.Name == "Target role" {
					hasRoleField = true
				}
			}
			if hasRoleField != tt.wantRole {
				t.Errorf("target role field presence mismatch: got %v, want %v", hasRoleField, tt.wantRole)
			}
		})
	}
}
