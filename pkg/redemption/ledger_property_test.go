//go:build property
// +build property

// Property-based tests for the lock ledger's temporal invariants.
package redemption

import (
	"context"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

// TestLockMonotonicity verifies that under any non-decreasing sequence of
// deposit-like calls the unlock timestamp never moves backwards.
func TestLockMonotonicity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("unlock timestamps are monotonic non-decreasing", prop.ForAll(
		func(offsets []int64) bool {
			ctx := context.Background()
			store := statestore.NewMemoryStore()
			ledger := NewLedger(DefaultClassifier(), 600*time.Second)

			now := int64(1000)
			prevUnlock := int64(0)
			for _, off := range offsets {
				if off < 0 {
					off = -off
				}
				now += off % 10_000

				txn, err := store.Begin(ctx)
				if err != nil {
					return false
				}
				change, err := ledger.LockChecks(ctx, txn, contracts.Address("acct"), contracts.OpDeposit, time.Unix(now, 0))
				if err != nil || change == nil {
					_ = txn.Rollback()
					return false
				}
				if err := txn.Commit(); err != nil {
					return false
				}
				if change.UnlockTime < prevUnlock {
					return false
				}
				prevUnlock = change.UnlockTime
			}
			return true
		},
		gen.SliceOf(gen.Int64Range(0, 10_000)),
	))

	properties.TestingRun(t)
}

// TestWithdrawNeverMutates verifies that withdraw-like calls, accepted or
// rejected, leave the stored unlock timestamp untouched.
func TestWithdrawNeverMutates(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("withdraw-like calls never mutate the ledger", prop.ForAll(
		func(depositAt, withdrawAt int64) bool {
			ctx := context.Background()
			store := statestore.NewMemoryStore()
			ledger := NewLedger(DefaultClassifier(), 600*time.Second)

			txn, err := store.Begin(ctx)
			if err != nil {
				return false
			}
			change, err := ledger.LockChecks(ctx, txn, contracts.Address("acct"), contracts.OpDeposit, time.Unix(depositAt, 0))
			if err != nil || change == nil {
				return false
			}
			if err := txn.Commit(); err != nil {
				return false
			}

			txn, err = store.Begin(ctx)
			if err != nil {
				return false
			}
			_, _ = ledger.LockChecks(ctx, txn, contracts.Address("acct"), contracts.OpWithdraw, time.Unix(withdrawAt, 0))
			unlock, err := ledger.LockTime(ctx, txn, contracts.Address("acct"))
			_ = txn.Rollback()
			if err != nil {
				return false
			}
			return unlock == change.UnlockTime
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(0, 1_000_000),
	))

	properties.TestingRun(t)
}
