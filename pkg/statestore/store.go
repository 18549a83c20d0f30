// Package statestore implements the namespaced persistent state store
// backing the VaultGate control plane. Each logical struct (redemption
// locks, per-role minimal delays, the redemption delay scalar, the
// initialization latch) occupies a statically computed slot derived from
// hashing a globally unique namespace string, so control-plane state can
// never alias state owned by the permission registry or by future
// extensions.
package statestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

var (
	// ErrTxnClosed is returned when a transaction is used after Commit or
	// Rollback.
	ErrTxnClosed = errors.New("transaction is closed")
)

// SlotID is the fixed 32-byte address of one namespaced struct.
type SlotID [32]byte

// String returns the hex encoding of the slot address.
func (s SlotID) String() string {
	return hex.EncodeToString(s[:])
}

// Slot derives the slot address for a namespace string. The namespace must
// be globally unique; VaultGate uses "vaultgate.storage.<struct>".
func Slot(namespace string) SlotID {
	return sha256.Sum256([]byte(namespace))
}

// Txn is a single all-or-nothing unit of work against the store. Every
// public mutator of the control plane runs inside one Txn so a failure
// anywhere in the call unwinds every write made during that call.
type Txn interface {
	// Get returns the value at (slot, key). The second result reports
	// whether the key exists.
	Get(ctx context.Context, slot SlotID, key string) ([]byte, bool, error)

	// Put writes the value at (slot, key), overwriting any prior value.
	Put(ctx context.Context, slot SlotID, key string, value []byte) error

	// Delete removes (slot, key). Deleting a missing key is a no-op.
	Delete(ctx context.Context, slot SlotID, key string) error

	// Commit atomically applies all writes.
	Commit() error

	// Rollback discards all writes. Safe to call after Commit; it is then
	// a no-op so callers can defer it unconditionally.
	Rollback() error
}

// Store is the durable interface for namespaced control-plane state.
type Store interface {
	Begin(ctx context.Context) (Txn, error)
}
