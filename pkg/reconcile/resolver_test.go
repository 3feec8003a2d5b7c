package reconcile

import (
	"errors"
	"testing"
)

var testRoles = RoleMap{
	"prod_A": "role_X",
	"prod_B": "role_Y",
}

func TestResolveNew_StatusTable(t *testing.T) {
	tests := []struct {
		status Status
		want   ActionKind // 0 means no action
	}{
		{StatusTrialing, ActionGrant},
		{StatusActive, ActionGrant},
		{StatusIncomplete, 0},
		{StatusIncompleteExpired, ActionRevoke},
		{StatusPastDue, ActionRevoke},
		{StatusCanceled, ActionRevoke},
		{StatusUnpaid, ActionRevoke},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			actions, err := ResolveNew(tt.status, []LineItem{{ProductID: "prod_A"}}, testRoles)
			if err != nil {
				t.Fatalf("ResolveNew failed: %v", err)
			}
			if tt.want == 0 {
				if len(actions) != 0 {
					t.Fatalf("expected no actions, got %v", actions)
				}
				return
			}
			if len(actions) != 1 {
				t.Fatalf("expected exactly one action, got %v", actions)
			}
			if actions[0].Kind != tt.want {
				t.Errorf("kind mismatch: got %s, want %s", actions[0].Kind, tt.want)
			}
			if actions[0].RoleID != "role_X" {
				t.Errorf("role mismatch: got %s, want role_X", actions[0].RoleID)
			}
		})
	}
}

func TestResolveNew_UnknownStatus(t *testing.T) {
	actions, err := ResolveNew(Status("paused"), []LineItem{{ProductID: "prod_A"}}, testRoles)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
	if actions != nil {
		t.Errorf("expected no actions on invalid status, got %v", actions)
	}
}

func TestResolveNew_UnmappedProductsSkipped(t *testing.T) {
	actions, err := ResolveNew(StatusActive, []LineItem{
		{ProductID: "prod_unknown"},
		{ProductID: "prod_A"},
	}, testRoles)
	if err != nil {
		t.Fatalf("ResolveNew failed: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("expected one action, got %v", actions)
	}
	if actions[0].RoleID != "role_X" {
		t.Errorf("role mismatch: got %s", actions[0].RoleID)
	}
}

func TestResolveUpdate_RevokesPrecedeGrants(t *testing.T) {
	actions, err := ResolveUpdate(StatusActive,
		[]LineItem{{ProductID: "prod_B"}},
		[]LineItem{{ProductID: "prod_A"}},
		testRoles)
	if err != nil {
		t.Fatalf("ResolveUpdate failed: %v", err)
	}
	if len(actions) != 2 {
		t.Fatalf("expected two actions, got %v", actions)
	}
	if actions[0].Kind != ActionRevoke || actions[0].RoleID != "role_X" {
		t.Errorf("first action should revoke role_X, got %+v", actions[0])
	}
	if actions[1].Kind != ActionGrant || actions[1].RoleID != "role_Y" {
		t.Errorf("second action should grant role_Y, got %+v", actions[1])
	}
}

func TestResolveUpdate_NoPreviousItems(t *testing.T) {
	actions, err := ResolveUpdate(StatusPastDue, []LineItem{{ProductID: "prod_A"}}, nil, testRoles)
	if err != nil {
		t.Fatalf("ResolveUpdate failed: %v", err)
	}
	if len(actions) != 1 || actions[0].Kind != ActionRevoke {
		t.Fatalf("expected a single revoke, got %v", actions)
	}
}

func TestResolveUpdate_UnknownStatus(t *testing.T) {
	_, err := ResolveUpdate(Status("bogus"),
		[]LineItem{{ProductID: "prod_B"}},
		[]LineItem{{ProductID: "prod_A"}},
		testRoles)
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestResolveDelete(t *testing.T) {
	actions := ResolveDelete([]LineItem{
		{ProductID: "prod_A"},
		{ProductID: "prod_unknown"},
		{ProductID: "prod_B"},
	}, testRoles)

	if len(actions) != 2 {
		t.Fatalf("expected two revokes, got %v", actions)
	}
	for i, want := range []string{"role_X", "role_Y"} {
		if actions[i].Kind != ActionRevoke {
			t.Errorf("action %d should be a revoke, got %s", i, actions[i].Kind)
		}
		if actions[i].RoleID != want {
			t.Errorf("action %d role mismatch: got %s, want %s", i, actions[i].RoleID, want)
		}
	}
}

func TestVerifyStatusTable_CoversAllStatuses(t *testing.T) {
	if err := verifyStatusTable(); err != nil {
		t.Fatalf("status table incomplete: %v", err)
	}
	for _, st := range Statuses() {
		if _, err := ParseStatus(string(st)); err != nil {
			t.Errorf("ParseStatus rejected supported status %q: %v", st, err)
		}
	}
}

func TestParseStatus_Unknown(t *testing.T) {
	if _, err := ParseStatus("definitely_not_a_status"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}
