package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

// LockedError reports that the account's redemption lock has not elapsed.
// The caller may retry once the current time reaches UnlockTime.
type LockedError struct {
	UnlockTime int64 // unix seconds
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account is locked until %d", e.UnlockTime)
}

// LockChange describes one lock update for audit notification.
type LockChange struct {
	Account    contracts.Address
	UnlockTime int64 // unix seconds
}

// Ledger maintains per-account unlock timestamps in the namespaced state
// store. A zero delay disables the feature entirely.
type Ledger struct {
	classifier Classifier
	delay      time.Duration
	locks      statestore.LockTable
}

// NewLedger creates a ledger with the given classifier and redemption
// delay. The delay bound is enforced by pkg/gate at construction.
func NewLedger(classifier Classifier, delay time.Duration) *Ledger {
	return &Ledger{
		classifier: classifier,
		delay:      delay,
		locks:      statestore.NewLockTable(),
	}
}

// Delay returns the configured redemption delay.
func (l *Ledger) Delay() time.Duration { return l.delay }

// LockChecks runs the redemption-lock bookkeeping for one incoming
// operation. Withdraw-like operations fail with LockedError while the
// account's unlock time lies strictly in the future; the boundary instant
// is allowed. Deposit-like operations push the unlock time to
// now + delay (a no-op when the delay is zero). Other operations have no
// effect. The returned change is non-nil only when the lock was updated.
func (l *Ledger) LockChecks(ctx context.Context, txn statestore.Txn, account contracts.Address, op contracts.OpID, now time.Time) (*LockChange, error) {
	switch l.classifier.Classify(op) {
	case KindWithdraw:
		unlock, ok, err := l.locks.Get(ctx, txn, account)
		if err != nil {
			return nil, err
		}
		if ok && unlock > now.Unix() {
			return nil, &LockedError{UnlockTime: unlock}
		}
		return nil, nil

	case KindDeposit:
		if l.delay == 0 {
			return nil, nil
		}
		unlock := now.Add(l.delay).Unix()
		if err := l.locks.Set(ctx, txn, account, unlock); err != nil {
			return nil, err
		}
		return &LockChange{Account: account, UnlockTime: unlock}, nil

	default:
		return nil, nil
	}
}

// LockTime returns the account's current unlock timestamp, zero when the
// account has never been locked.
func (l *Ledger) LockTime(ctx context.Context, txn statestore.Txn, account contracts.Address) (int64, error) {
	unlock, ok, err := l.locks.Get(ctx, txn, account)
	if err != nil || !ok {
		return 0, err
	}
	return unlock, nil
}
