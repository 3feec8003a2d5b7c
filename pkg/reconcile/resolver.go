package reconcile

import "fmt"

// statusOutcome is what the action table prescribes for one mapped product.
type statusOutcome int

const (
	outcomeSkip statusOutcome = iota
	outcomeGrant
	outcomeRevoke
)

// statusActions maps every supported status to the role action it implies
// for each mapped product. verifyStatusTable checks at startup that no
// Status variant is missing.
var statusActions = map[Status]statusOutcome{
	StatusTrialing:          outcomeGrant,
	StatusActive:            outcomeGrant,
	StatusIncomplete:        outcomeSkip,
	StatusIncompleteExpired: outcomeRevoke,
	StatusPastDue:           outcomeRevoke,
	StatusCanceled:          outcomeRevoke,
	StatusUnpaid:            outcomeRevoke,
}

// verifyStatusTable ensures statusActions covers every Status variant.
func verifyStatusTable() error {
	for _, st := range Statuses() {
		if _, ok := statusActions[st]; !ok {
			return fmt.Errorf("status table missing entry for %q", st)
		}
	}
	return nil
}

// ResolveNew maps a new subscription's status to role actions, one per
// line item whose product has a role mapping. Unmapped products are
// skipped. An unknown status returns ErrInvalidStatus and no actions; the
// caller must abort the whole event rather than partially apply.
func ResolveNew(status Status, items []LineItem, roles RoleMap) ([]RoleAction, error) {
	st, err := ParseStatus(string(status))
	if err != nil {
		return nil, err
	}
	outcome := statusActions[st]

	var actions []RoleAction
	for _, item := range items {
		roleID, ok := roles.Role(item.ProductID)
		if !ok {
			continue
		}
		switch outcome {
		case outcomeGrant:
			actions = append(actions, RoleAction{Kind: ActionGrant, RoleID: roleID})
		case outcomeRevoke:
			actions = append(actions, RoleAction{Kind: ActionRevoke, RoleID: roleID})
		case outcomeSkip:
		}
	}
	return actions, nil
}

// ResolveUpdate resolves a subscription update. Roles tied to previous
// line items are unconditionally revoked first, retracting entitlements
// from the old plan before the new plan's actions are applied. The
// returned sequence keeps those revokes ahead of any grants so a crash
// between the two phases can never leave an old entitlement in place.
func ResolveUpdate(status Status, items, previous []LineItem, roles RoleMap) ([]RoleAction, error) {
	var actions []RoleAction
	for _, item := range previous {
		roleID, ok := roles.Role(item.ProductID)
		if !ok {
			continue
		}
		actions = append(actions, RoleAction{Kind: ActionRevoke, RoleID: roleID})
	}

	current, err := ResolveNew(status, items, roles)
	if err != nil {
		return nil, err
	}
	return append(actions, current...), nil
}

// ResolveDelete resolves a subscription deletion: one Revoke per mapped
// product, in input order. Status is irrelevant.
func ResolveDelete(items []LineItem, roles RoleMap) []RoleAction {
	var actions []RoleAction
	for _, item := range items {
		roleID, ok := roles.Role(item.ProductID)
		if !ok {
			continue
		}
		actions = append(actions, RoleAction{Kind: ActionRevoke, RoleID: roleID})
	}
	return actions
}
