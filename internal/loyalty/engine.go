// engine.go - the balance & reward engine.
//
// All balance mutation flows through Engine.Scan. The store serializes
// concurrent scans on the same pass with a row-level lock, so two scans
// arriving together each see the other's committed balance (no lost update).
//
// Scans are not retried internally and carry no idempotency key: a caller
// that resubmits a timed-out scan will double-apply the delta. Scan
// submission must therefore be designed to be safe to resubmit by the
// collaborator.
package loyalty

import (
	"context"
	"fmt"
)

// BalanceUpdate is what the engine asks the store to persist for one scan.
type BalanceUpdate struct {
	// NewBalance is the value stored as the pass's current balance.
	NewBalance int

	// Delta is added to the lifetime balance unconditionally and recorded
	// in the ledger, even when the current balance wraps to zero.
	Delta int

	Type        TransactionType
	Description string
}

// Store is the persistence surface the engine needs.
type Store interface {
	// MutateBalance runs apply within a transaction that holds a row lock on
	// the pass identified by serial, then persists the returned update and
	// appends the ledger entry atomically. It returns the pass as stored
	// after the update.
	MutateBalance(ctx context.Context, serial string, apply func(pass Pass, design Design) (BalanceUpdate, error)) (Pass, error)
}

// Engine applies scan events to pass balances and decides when rewards fire.
type Engine struct {
	store Store
}

func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Scan applies a non-negative delta to the pass identified by serial.
//
// Stamp cards: reaching or passing MaxStamps earns the reward and resets the
// stored balance to zero - the overflow past MaxStamps is discarded, which is
// a product decision, not rounding.
//
// Points cards: the reward fires only when the balance crosses the threshold
// within this scan (previous balance below, new balance at or above), so it
// fires exactly once per crossing and the balance keeps growing.
func (e *Engine) Scan(ctx context.Context, serial string, delta int, description string) (BalanceResult, error) {
	if delta < 0 {
		return BalanceResult{}, NewValidationError(fmt.Sprintf("negative delta %d: only non-negative increments are supported", delta))
	}

	var result BalanceResult

	_, err := e.store.MutateBalance(ctx, serial, func(pass Pass, design Design) (BalanceUpdate, error) {
		if !pass.Active {
			return BalanceUpdate{}, NewInactiveError(fmt.Sprintf("pass %s is deactivated", serial))
		}

		previous := pass.CurrentBalance
		next := previous + delta

		update := BalanceUpdate{
			NewBalance:  next,
			Delta:       delta,
			Type:        TxPoints,
			Description: description,
		}
		result = BalanceResult{
			SerialNumber:    serial,
			PreviousBalance: previous,
			NewBalance:      next,
			AmountAdded:     delta,
		}

		switch rules := design.Rules.(type) {
		case StampRules:
			update.Type = TxStamp
			if rules.MaxStamps > 0 && next >= rules.MaxStamps {
				result.RewardEarned = true
				result.RewardMessage = rules.RewardDescription
				result.NewBalance = 0
				update.NewBalance = 0
			}

		case PointsRules:
			if rules.RewardThreshold > 0 && previous < rules.RewardThreshold && next >= rules.RewardThreshold {
				result.RewardEarned = true
				result.RewardMessage = rules.RewardDescription
			}

		case MembershipRules:
			// membership passes track visits but never earn balance rewards

		default:
			return BalanceUpdate{}, NewValidationError(fmt.Sprintf("design %s has unsupported loyalty rules %T", design.ID, design.Rules))
		}

		return update, nil
	})
	if err != nil {
		return BalanceResult{}, err
	}

	return result, nil
}
