package gate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/vaultgate/pkg/audit"
	"github.com/custodia-labs/vaultgate/pkg/authority"
	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time { return f.now }

func (f *fakeClock) Advance(d time.Duration) { f.now = f.now.Add(d) }

const (
	admin    = contracts.Address("admin")
	guardian = contracts.Address("guardian")
	operator = contracts.Address("operator")
	stranger = contracts.Address("stranger")
	vault    = contracts.Address("vault-1")
)

const roleOperator = contracts.RoleID(7)

func newTestCore(t *testing.T, delay time.Duration) (*Core, *authority.Registry, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Unix(1_000_000, 0)}
	registry := authority.NewRegistry(admin, authority.WithClock(clock))
	require.NoError(t, registry.GrantRole(contracts.RoleGuardian, guardian, 0))

	core, err := New(context.Background(), Config{
		Store:           statestore.NewMemoryStore(),
		Registry:        registry,
		RedemptionDelay: delay,
		Clock:           clock,
		Trail:           audit.NewTrail(),
	})
	require.NoError(t, err)
	return core, registry, clock
}

func TestConstructionBound(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_000_000, 0)}

	_, err := New(context.Background(), Config{
		Store:           statestore.NewMemoryStore(),
		Registry:        authority.NewRegistry(admin, authority.WithClock(clock)),
		RedemptionDelay: MaxRedemptionDelay + time.Second,
		Clock:           clock,
	})
	var tooLong *TooLongRedemptionDelayError
	require.ErrorAs(t, err, &tooLong)
	require.Equal(t, MaxRedemptionDelay, tooLong.Max)

	// Exactly the cap is accepted.
	core, err := New(context.Background(), Config{
		Store:           statestore.NewMemoryStore(),
		Registry:        authority.NewRegistry(admin, authority.WithClock(clock)),
		RedemptionDelay: MaxRedemptionDelay,
		Clock:           clock,
	})
	require.NoError(t, err)
	require.Equal(t, MaxRedemptionDelay, core.RedemptionDelay())
}

func TestRedemptionDelayImmutableAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.Unix(1_000_000, 0)}
	store := statestore.NewMemoryStore()

	_, err := New(ctx, Config{
		Store:           store,
		Registry:        authority.NewRegistry(admin, authority.WithClock(clock)),
		RedemptionDelay: 600 * time.Second,
		Clock:           clock,
	})
	require.NoError(t, err)

	// A restart over the same store with a different delay is rejected.
	_, err = New(ctx, Config{
		Store:           store,
		Registry:        authority.NewRegistry(admin, authority.WithClock(clock)),
		RedemptionDelay: 700 * time.Second,
		Clock:           clock,
	})
	require.ErrorIs(t, err, ErrRedemptionDelayMismatch)

	// The originally configured delay is accepted.
	core, err := New(ctx, Config{
		Store:           store,
		Registry:        authority.NewRegistry(admin, authority.WithClock(clock)),
		RedemptionDelay: 600 * time.Second,
		Clock:           clock,
	})
	require.NoError(t, err)
	require.Equal(t, 600*time.Second, core.RedemptionDelay())
}

func TestInitializeIdempotence(t *testing.T) {
	ctx := context.Background()
	core, _, _ := newTestCore(t, 0)

	bootstrap := Bootstrap{
		Permissions: []FunctionPermission{
			{Target: vault, Op: contracts.OpWithdraw, Role: roleOperator, MinimalDelay: time.Hour},
		},
		Grants: []Grant{
			{Role: roleOperator, Account: operator, ExecutionDelay: time.Hour},
		},
	}
	require.NoError(t, core.Initialize(ctx, admin, bootstrap))

	// The second call always fails, regardless of arguments, and leaves
	// the first call's state untouched.
	other := Bootstrap{
		Permissions: []FunctionPermission{
			{Target: vault, Op: contracts.OpWithdraw, Role: roleOperator, MinimalDelay: 10 * time.Second},
		},
	}
	require.ErrorIs(t, core.Initialize(ctx, admin, other), ErrAlreadyInitialized)

	floor, err := core.GetMinimalExecutionDelayForRole(ctx, roleOperator)
	require.NoError(t, err)
	require.Equal(t, time.Hour, floor)
}

func TestInitializeRequiresRootAdmin(t *testing.T) {
	core, _, _ := newTestCore(t, 0)

	err := core.Initialize(context.Background(), stranger, Bootstrap{})
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
	require.Equal(t, stranger, unauthorized.Caller)
}

func TestInitializeAssignsGuardianCancellation(t *testing.T) {
	ctx := context.Background()
	core, registry, clock := newTestCore(t, 0)

	require.NoError(t, core.Initialize(ctx, admin, Bootstrap{
		Permissions: []FunctionPermission{
			{Target: vault, Op: contracts.OpWithdraw, Role: roleOperator, MinimalDelay: 0},
		},
		Grants: []Grant{
			{Role: roleOperator, Account: operator, ExecutionDelay: time.Hour},
		},
	}))

	require.Equal(t, contracts.RoleGuardian, registry.GuardianOf(roleOperator))

	// The guardian can cancel any pending operation for the role.
	require.NoError(t, core.Schedule(ctx, operator, vault, contracts.OpWithdraw, clock.Now().Add(time.Hour)))
	require.NoError(t, core.CancelScheduledOperation(ctx, guardian, operator, vault, contracts.OpWithdraw))
}

func TestInitializeRejectsAdminCycle(t *testing.T) {
	ctx := context.Background()
	core, registry, _ := newTestCore(t, 0)

	err := core.Initialize(ctx, admin, Bootstrap{
		Permissions: []FunctionPermission{
			{Target: vault, Op: contracts.OpWithdraw, Role: roleOperator, MinimalDelay: time.Hour},
		},
		Admins: []AdminBinding{
			{Role: 7, Admin: 8},
			{Role: 8, Admin: 7},
		},
	})
	var cycle *authority.RoleCycleError
	require.ErrorAs(t, err, &cycle)

	// Nothing was applied: the binding and the floor are absent.
	_, bound := registry.TargetFunctionRole(vault, contracts.OpWithdraw)
	require.False(t, bound)
	floor, ferr := core.GetMinimalExecutionDelayForRole(ctx, roleOperator)
	require.NoError(t, ferr)
	require.Zero(t, floor)

	// A failed bootstrap does not raise the latch.
	require.NoError(t, core.Initialize(ctx, admin, Bootstrap{}))
}

func TestInitializeValidatesGrantFloors(t *testing.T) {
	ctx := context.Background()
	core, _, _ := newTestCore(t, 0)

	err := core.Initialize(ctx, admin, Bootstrap{
		Permissions: []FunctionPermission{
			{Target: vault, Op: contracts.OpWithdraw, Role: roleOperator, MinimalDelay: time.Hour},
		},
		Grants: []Grant{
			{Role: roleOperator, Account: operator, ExecutionDelay: 30 * time.Minute},
		},
	})
	var tooShort *TooShortExecutionDelayError
	require.ErrorAs(t, err, &tooShort)
	require.Equal(t, roleOperator, tooShort.Role)
}

func TestInitializeHonorsStoredFloor(t *testing.T) {
	ctx := context.Background()
	core, registry, _ := newTestCore(t, 0)

	// Floor configured before the bootstrap, for a role the batch's
	// permissions do not cover.
	require.NoError(t, core.SetMinimalExecutionDelaysForRoles(ctx, admin,
		[]contracts.RoleID{roleOperator}, []time.Duration{3600 * time.Second}))

	err := core.Initialize(ctx, admin, Bootstrap{
		Grants: []Grant{
			{Role: roleOperator, Account: operator, ExecutionDelay: 0},
		},
	})
	var tooShort *TooShortExecutionDelayError
	require.ErrorAs(t, err, &tooShort)
	require.Equal(t, roleOperator, tooShort.Role)

	// Nothing was granted and the latch stayed down.
	ok, _ := registry.HasRole(roleOperator, operator)
	require.False(t, ok)

	require.NoError(t, core.Initialize(ctx, admin, Bootstrap{
		Grants: []Grant{
			{Role: roleOperator, Account: operator, ExecutionDelay: 3600 * time.Second},
		},
	}))
	ok, delay := registry.HasRole(roleOperator, operator)
	require.True(t, ok)
	require.Equal(t, 3600*time.Second, delay)
}

func TestInitializeBatchFloorOverridesStored(t *testing.T) {
	ctx := context.Background()
	core, registry, _ := newTestCore(t, 0)

	require.NoError(t, core.SetMinimalExecutionDelaysForRoles(ctx, admin,
		[]contracts.RoleID{roleOperator}, []time.Duration{3600 * time.Second}))

	// The batch re-declares the floor; grants are checked against the
	// value the batch installs, not the superseded one.
	require.NoError(t, core.Initialize(ctx, admin, Bootstrap{
		Permissions: []FunctionPermission{
			{Target: vault, Op: contracts.OpWithdraw, Role: roleOperator, MinimalDelay: 0},
		},
		Grants: []Grant{
			{Role: roleOperator, Account: operator, ExecutionDelay: 0},
		},
	}))

	floor, err := core.GetMinimalExecutionDelayForRole(ctx, roleOperator)
	require.NoError(t, err)
	require.Zero(t, floor)
	ok, _ := registry.HasRole(roleOperator, operator)
	require.True(t, ok)
}

func TestDelayFloorInvariant(t *testing.T) {
	ctx := context.Background()
	core, _, _ := newTestCore(t, 0)

	require.NoError(t, core.SetMinimalExecutionDelaysForRoles(ctx, admin,
		[]contracts.RoleID{7}, []time.Duration{3600 * time.Second}))

	err := core.GrantRole(ctx, admin, 7, operator, 1800*time.Second)
	var tooShort *TooShortExecutionDelayError
	require.ErrorAs(t, err, &tooShort)
	require.Equal(t, contracts.RoleID(7), tooShort.Role)
	require.Equal(t, 1800*time.Second, tooShort.Delay)

	require.NoError(t, core.GrantRole(ctx, admin, 7, operator, 3600*time.Second))
}

func TestRaisingFloorDoesNotRevokeExistingGrants(t *testing.T) {
	ctx := context.Background()
	core, registry, _ := newTestCore(t, 0)

	require.NoError(t, core.GrantRole(ctx, admin, roleOperator, operator, time.Hour))
	require.NoError(t, core.SetMinimalExecutionDelaysForRoles(ctx, admin,
		[]contracts.RoleID{roleOperator}, []time.Duration{48 * time.Hour}))

	// The ratchet constrains future grants only.
	ok, delay := registry.HasRole(roleOperator, operator)
	require.True(t, ok)
	require.Equal(t, time.Hour, delay)

	err := core.GrantRole(ctx, admin, roleOperator, stranger, time.Hour)
	var tooShort *TooShortExecutionDelayError
	require.ErrorAs(t, err, &tooShort)
}

func TestBatchDelayUpdateIndependence(t *testing.T) {
	ctx := context.Background()
	core, _, _ := newTestCore(t, 0)

	require.NoError(t, core.SetMinimalExecutionDelaysForRoles(ctx, admin,
		[]contracts.RoleID{1001, 1002}, []time.Duration{100 * time.Second, 200 * time.Second}))

	d1, err := core.GetMinimalExecutionDelayForRole(ctx, 1001)
	require.NoError(t, err)
	require.Equal(t, 100*time.Second, d1)
	d2, err := core.GetMinimalExecutionDelayForRole(ctx, 1002)
	require.NoError(t, err)
	require.Equal(t, 200*time.Second, d2)
}

func TestBatchDelayLengthMismatch(t *testing.T) {
	core, _, _ := newTestCore(t, 0)

	err := core.SetMinimalExecutionDelaysForRoles(context.Background(), admin,
		[]contracts.RoleID{1, 2}, []time.Duration{time.Second})
	require.ErrorIs(t, err, ErrLengthMismatch)
}

func TestGrantRoleRequiresRoleAdmin(t *testing.T) {
	core, _, _ := newTestCore(t, 0)

	err := core.GrantRole(context.Background(), stranger, roleOperator, operator, time.Hour)
	var unauthorized *UnauthorizedError
	require.ErrorAs(t, err, &unauthorized)
}
