package statestore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
)

func TestSlotDerivation(t *testing.T) {
	a := Slot(NamespaceRedemptionLocks)
	b := Slot(NamespaceMinimalDelays)
	c := Slot(NamespaceRedemptionDelay)
	d := Slot(NamespaceInitialized)

	seen := map[SlotID]bool{a: true, b: true, c: true, d: true}
	require.Len(t, seen, 4, "namespace slots must not collide")

	// Deterministic across calls.
	require.Equal(t, a, Slot(NamespaceRedemptionLocks))
}

func TestMemoryStoreCommit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := Slot("test.commit")

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, slot, "k", []byte("v")))

	// Uncommitted writes are visible inside the transaction...
	v, ok, err := txn.Get(ctx, slot, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	// ...but not outside it.
	other, err := store.Begin(ctx)
	require.NoError(t, err)
	_, ok, err = other.Get(ctx, slot, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, other.Rollback())

	require.NoError(t, txn.Commit())

	after, err := store.Begin(ctx)
	require.NoError(t, err)
	v, ok, err = after.Get(ctx, slot, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)
	require.NoError(t, after.Rollback())
}

func TestMemoryStoreRollback(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := Slot("test.rollback")

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, slot, "k", []byte("v")))
	require.NoError(t, txn.Rollback())

	after, err := store.Begin(ctx)
	require.NoError(t, err)
	_, ok, err := after.Get(ctx, slot, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, after.Rollback())
}

func TestMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := Slot("test.delete")

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Put(ctx, slot, "k", []byte("v")))
	require.NoError(t, txn.Commit())

	txn, err = store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Delete(ctx, slot, "k"))
	_, ok, err := txn.Get(ctx, slot, "k")
	require.NoError(t, err)
	require.False(t, ok, "delete must be visible inside the transaction")
	require.NoError(t, txn.Commit())

	after, err := store.Begin(ctx)
	require.NoError(t, err)
	_, ok, err = after.Get(ctx, slot, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, after.Rollback())
}

func TestTxnClosed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	slot := Slot("test.closed")

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	require.ErrorIs(t, txn.Put(ctx, slot, "k", []byte("v")), ErrTxnClosed)
	require.ErrorIs(t, txn.Commit(), ErrTxnClosed)
}

func TestLockTable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	locks := NewLockTable()

	txn, err := store.Begin(ctx)
	require.NoError(t, err)

	_, ok, err := locks.Get(ctx, txn, contracts.Address("alice"))
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, locks.Set(ctx, txn, contracts.Address("alice"), 1600))
	ts, ok, err := locks.Get(ctx, txn, contracts.Address("alice"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(1600), ts)
	require.NoError(t, txn.Rollback())
}

func TestDelayTable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	delays := NewDelayTable()

	txn, err := store.Begin(ctx)
	require.NoError(t, err)

	// Missing roles have a zero floor.
	secs, err := delays.Get(ctx, txn, contracts.RoleID(7))
	require.NoError(t, err)
	require.Zero(t, secs)

	require.NoError(t, delays.Set(ctx, txn, contracts.RoleID(7), 3600))
	secs, err = delays.Get(ctx, txn, contracts.RoleID(7))
	require.NoError(t, err)
	require.Equal(t, int64(3600), secs)
	require.NoError(t, txn.Rollback())
}

func TestFlagTableLatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	flag := NewFlagTable("test.latch")

	txn, err := store.Begin(ctx)
	require.NoError(t, err)
	set, err := flag.IsSet(ctx, txn)
	require.NoError(t, err)
	require.False(t, set)

	require.NoError(t, flag.Raise(ctx, txn))
	require.NoError(t, txn.Commit())

	txn, err = store.Begin(ctx)
	require.NoError(t, err)
	set, err = flag.IsSet(ctx, txn)
	require.NoError(t, err)
	require.True(t, set)
	require.NoError(t, txn.Rollback())
}

func TestScalarTable(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	scalar := NewScalarTable("test.scalar")

	txn, err := store.Begin(ctx)
	require.NoError(t, err)

	var out int64
	ok, err := scalar.Get(ctx, txn, &out)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, scalar.Set(ctx, txn, int64(604800)))
	ok, err = scalar.Get(ctx, txn, &out)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(604800), out)
	require.NoError(t, txn.Rollback())
}
