package procurement

import (
	"fmt"

	"github.com/odyssey-erp/odyssey-purchasing/internal/inventory"
	"github.com/odyssey-erp/odyssey-purchasing/internal/shared"
)

// transitions lists the legal targets per lifecycle and current status.
// COMPLETED and VOID have no entry and are therefore terminal.
var transitions = map[Lifecycle]map[Status][]Status{
	LifecycleDirect: {
		StatusPending:  {StatusApproved, StatusDenied, StatusVoid},
		StatusApproved: {StatusPending, StatusDenied, StatusCompleted, StatusVoid},
		StatusDenied:   {StatusPending, StatusApproved, StatusVoid},
	},
	LifecycleDeferred: {
		StatusPending:  {StatusApproved, StatusDenied, StatusVoid},
		StatusApproved: {StatusCompleted, StatusDenied, StatusVoid},
		StatusDenied:   {StatusPending, StatusVoid},
	},
}

// CanTransition reports whether from → to is a legal edge for l.
func (l Lifecycle) CanTransition(from, to Status) bool {
	for _, target := range transitions[l][from] {
		if target == to {
			return true
		}
	}
	return false
}

// LedgerActive reports whether an order in status s has its lines applied to
// the ledger.
func (l Lifecycle) LedgerActive(s Status) bool {
	switch l {
	case LifecycleDirect:
		return s == StatusApproved || s == StatusCompleted
	case LifecycleDeferred:
		return s == StatusCompleted
	}
	return false
}

// Edge returns the ledger sign for crossing from → to. moves is false for
// ledger-neutral edges.
func (l Lifecycle) Edge(from, to Status) (sign inventory.Sign, moves bool) {
	before, after := l.LedgerActive(from), l.LedgerActive(to)
	switch {
	case !before && after:
		return inventory.Apply, true
	case before && !after:
		return inventory.Revert, true
	}
	return 0, false
}

func invalidTransition(l Lifecycle, from, to Status) error {
	return fmt.Errorf("%w: %s order cannot move from %s to %s", shared.ErrInvalidState, l, from, to)
}
