package ledger

import (
	"github.com/GregHandsley/pokeflip-sub002/pkg/enums"
	pkgerrors "github.com/GregHandsley/pokeflip-sub002/pkg/errors"
)

// Operation is a mutation gated by lot status.
type Operation string

const (
	OpEdit       Operation = "edit"
	OpDelete     Operation = "delete"
	OpSplit      Operation = "split"
	OpMerge      Operation = "merge"
	OpBundleItem Operation = "bundle_item"
	OpSale       Operation = "sale"
)

var transitions = map[enums.LotStatus][]enums.LotStatus{
	enums.LotStatusDraft:    {enums.LotStatusReady},
	enums.LotStatusReady:    {enums.LotStatusDraft, enums.LotStatusListed, enums.LotStatusArchived},
	enums.LotStatusListed:   {enums.LotStatusReady, enums.LotStatusSold, enums.LotStatusArchived},
	enums.LotStatusArchived: {enums.LotStatusReady},
	enums.LotStatusSold:     nil,
}

var blocked = map[enums.LotStatus][]Operation{
	enums.LotStatusSold:     {OpEdit, OpDelete, OpSplit, OpMerge, OpBundleItem, OpSale},
	enums.LotStatusArchived: {OpEdit, OpSplit, OpMerge, OpBundleItem, OpSale},
}

// CanTransition reports whether a manual move from -> to is allowed.
// Staying in the same state is always allowed.
func CanTransition(from, to enums.LotStatus) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and reports whether anything changes.
func Transition(from, to enums.LotStatus) (bool, error) {
	if !to.IsValid() {
		return false, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status %q", to)
	}
	if from == to {
		return false, nil
	}
	if !CanTransition(from, to) {
		return false, pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot change lot status from %s to %s", from, to).
			WithDetails(map[string]any{"from": from, "to": to})
	}
	return true, nil
}

// CheckOperation rejects op for lots whose status forbids it.
func CheckOperation(status enums.LotStatus, op Operation) error {
	for _, b := range blocked[status] {
		if b == op {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "cannot %s a %s lot", operationVerb(op), status).
				WithDetails(map[string]any{"status": status, "operation": op})
		}
	}
	return nil
}

// StatusAfterSale returns sold once every unit has gone, otherwise the current status.
func StatusAfterSale(current enums.LotStatus, quantity, sold int) enums.LotStatus {
	if quantity > 0 && sold >= quantity {
		return enums.LotStatusSold
	}
	return current
}

func operationVerb(op Operation) string {
	switch op {
	case OpBundleItem:
		return "bundle"
	case OpSale:
		return "sell"
	default:
		return string(op)
	}
}
