package statestore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
)

// Namespace strings for the control plane's own structs. Each must stay
// globally unique for the lifetime of the deployment.
const (
	NamespaceRedemptionLocks = "vaultgate.storage.redemption_locks"
	NamespaceMinimalDelays   = "vaultgate.storage.minimal_execution_delays"
	NamespaceRedemptionDelay = "vaultgate.storage.redemption_delay"
	NamespaceInitialized     = "vaultgate.storage.initialized"
)

// LockTable maps accounts to unlock timestamps (unix seconds).
type LockTable struct {
	slot SlotID
}

// NewLockTable returns the lock table at its namespaced slot.
func NewLockTable() LockTable {
	return LockTable{slot: Slot(NamespaceRedemptionLocks)}
}

// Get returns the unlock timestamp for an account; ok is false when the
// account has never been locked.
func (t LockTable) Get(ctx context.Context, txn Txn, account contracts.Address) (int64, bool, error) {
	raw, ok, err := txn.Get(ctx, t.slot, string(account))
	if err != nil || !ok {
		return 0, false, err
	}
	ts, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("corrupt lock entry for %q: %w", account, err)
	}
	return ts, true, nil
}

// Set records the unlock timestamp for an account.
func (t LockTable) Set(ctx context.Context, txn Txn, account contracts.Address, unlock int64) error {
	return txn.Put(ctx, t.slot, string(account), []byte(strconv.FormatInt(unlock, 10)))
}

// DelayTable maps role ids to minimal execution delays (seconds).
type DelayTable struct {
	slot SlotID
}

// NewDelayTable returns the minimal-delay table at its namespaced slot.
func NewDelayTable() DelayTable {
	return DelayTable{slot: Slot(NamespaceMinimalDelays)}
}

// Get returns the minimal execution delay for a role; missing roles have
// a zero floor.
func (t DelayTable) Get(ctx context.Context, txn Txn, role contracts.RoleID) (int64, error) {
	raw, ok, err := txn.Get(ctx, t.slot, strconv.FormatUint(uint64(role), 10))
	if err != nil || !ok {
		return 0, err
	}
	secs, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt delay entry for role %d: %w", role, err)
	}
	return secs, nil
}

// Set overwrites the minimal execution delay for a role.
func (t DelayTable) Set(ctx context.Context, txn Txn, role contracts.RoleID, secs int64) error {
	return txn.Put(ctx, t.slot, strconv.FormatUint(uint64(role), 10), []byte(strconv.FormatInt(secs, 10)))
}

// ScalarTable stores a single JSON-encoded value under a namespaced slot.
// The control plane uses it for the redemption delay scalar.
type ScalarTable struct {
	slot SlotID
}

// NewScalarTable returns a scalar table at the slot for the namespace.
func NewScalarTable(namespace string) ScalarTable {
	return ScalarTable{slot: Slot(namespace)}
}

const scalarKey = "value"

// Get decodes the scalar into out; ok is false when unset.
func (t ScalarTable) Get(ctx context.Context, txn Txn, out any) (bool, error) {
	raw, ok, err := txn.Get(ctx, t.slot, scalarKey)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return false, fmt.Errorf("corrupt scalar at %s: %w", t.slot, err)
	}
	return true, nil
}

// Set encodes and stores the scalar.
func (t ScalarTable) Set(ctx context.Context, txn Txn, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Put(ctx, t.slot, scalarKey, raw)
}

// FlagTable is a one-way latch: unset until Raise, set forever after.
// The control plane uses it for the initialization guard.
type FlagTable struct {
	slot SlotID
}

// NewFlagTable returns a flag table at the slot for the namespace.
func NewFlagTable(namespace string) FlagTable {
	return FlagTable{slot: Slot(namespace)}
}

// IsSet reports whether the latch has been raised.
func (t FlagTable) IsSet(ctx context.Context, txn Txn) (bool, error) {
	_, ok, err := txn.Get(ctx, t.slot, scalarKey)
	return ok, err
}

// Raise sets the latch. Raising an already-set latch is a no-op; the
// caller checks IsSet first when the transition must be observed.
func (t FlagTable) Raise(ctx context.Context, txn Txn) error {
	return txn.Put(ctx, t.slot, scalarKey, []byte("1"))
}
