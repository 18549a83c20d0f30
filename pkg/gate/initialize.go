package gate

import (
	"context"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/audit"
	"github.com/custodia-labs/vaultgate/pkg/authority"
	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

// FunctionPermission binds one operation on one target to a required
// role, carrying the role's minimal execution delay.
type FunctionPermission struct {
	Target       contracts.Address
	Op           contracts.OpID
	Role         contracts.RoleID
	MinimalDelay time.Duration
}

// AdminBinding assigns the admin role for a role.
type AdminBinding struct {
	Role  contracts.RoleID
	Admin contracts.RoleID
}

// Grant makes one account a member of a role with an execution delay.
type Grant struct {
	Role           contracts.RoleID
	Account        contracts.Address
	ExecutionDelay time.Duration
}

// Bootstrap is the one-time initialization batch.
type Bootstrap struct {
	Permissions []FunctionPermission
	Admins      []AdminBinding
	Grants      []Grant
}

// Initialize performs the one-time role/permission bootstrap. It fails
// with ErrAlreadyInitialized on a second call, checked before any
// mutation. The batch is validated in full before anything is applied so
// a failing bootstrap leaves no partial state; every grant is checked
// against the minimal-delay floor that will be in force when it applies,
// whether declared in the batch or already stored. Effects are applied in
// passes: function-role bindings (assigning the guardian role as
// cancellation authority for every non-reserved role encountered), bulk
// minimal-delay set, admin-role bindings, then account grants.
func (c *Core) Initialize(ctx context.Context, by contracts.Address, bootstrap Bootstrap) error {
	if !c.holdsRole(contracts.RoleAdmin, by) {
		return &UnauthorizedError{Caller: by}
	}

	txn, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = txn.Rollback() }()

	set, err := c.initFlag.IsSet(ctx, txn)
	if err != nil {
		return err
	}
	if set {
		return ErrAlreadyInitialized
	}

	if err := validateBootstrap(bootstrap); err != nil {
		return err
	}
	if err := c.validateGrantFloors(ctx, txn, bootstrap); err != nil {
		return err
	}

	// Pass 1: function-role bindings. Every operational role picks up the
	// guardian role as its cancellation authority so an emergency actor
	// can always cancel its pending scheduled operations.
	for _, p := range bootstrap.Permissions {
		c.registry.SetTargetFunctionRole(p.Target, p.Op, p.Role)
		if !p.Role.IsReserved() {
			if err := c.registry.SetRoleGuardian(p.Role, contracts.RoleGuardian); err != nil {
				return err
			}
		}
	}

	// Pass 2: bulk minimal-delay set.
	for _, p := range bootstrap.Permissions {
		if err := c.delays.Set(ctx, txn, p.Role, int64(p.MinimalDelay/time.Second)); err != nil {
			return err
		}
	}

	// Pass 3: admin-role bindings.
	for _, a := range bootstrap.Admins {
		if err := c.registry.SetRoleAdmin(a.Role, a.Admin); err != nil {
			return err
		}
	}

	// Pass 4: account grants.
	for _, g := range bootstrap.Grants {
		if err := c.registry.GrantRole(g.Role, g.Account, g.ExecutionDelay); err != nil {
			return err
		}
	}

	if err := c.initFlag.Raise(ctx, txn); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	c.record(audit.EventInitialized, by, map[string]any{
		"permissions": len(bootstrap.Permissions),
		"admins":      len(bootstrap.Admins),
		"grants":      len(bootstrap.Grants),
	})
	return nil
}

// validateBootstrap checks the whole batch up front: admin bindings must
// keep the role-admin graph acyclic and must not touch reserved roles,
// and no grant may target the public role. Validation before application
// keeps a failing bootstrap free of partial registry mutation.
func validateBootstrap(b Bootstrap) error {
	admins := make(map[contracts.RoleID]contracts.RoleID, len(b.Admins))
	for _, a := range b.Admins {
		if a.Role == contracts.RolePublic || a.Admin == contracts.RolePublic {
			return authority.ErrPublicRoleImmutable
		}
		if a.Role == contracts.RoleAdmin {
			return &authority.RoleCycleError{Role: a.Role, Admin: a.Admin}
		}
		admins[a.Role] = a.Admin
	}
	for role := range admins {
		seen := make(map[contracts.RoleID]bool)
		cur := role
		for cur != contracts.RoleAdmin {
			if seen[cur] {
				return &authority.RoleCycleError{Role: role, Admin: admins[role]}
			}
			seen[cur] = true
			next, ok := admins[cur]
			if !ok {
				break // defaults to the root admin
			}
			cur = next
		}
	}

	for _, g := range b.Grants {
		if g.Role == contracts.RolePublic {
			return authority.ErrPublicRoleImmutable
		}
	}
	return nil
}

// validateGrantFloors checks every grant against the minimal-delay floor
// in force at grant time: the floor declared in the same batch, or, for
// roles the batch's Permissions do not cover, the floor already stored
// before the call.
func (c *Core) validateGrantFloors(ctx context.Context, txn statestore.Txn, b Bootstrap) error {
	floors := make(map[contracts.RoleID]time.Duration, len(b.Permissions))
	for _, p := range b.Permissions {
		floors[p.Role] = p.MinimalDelay
	}
	for _, g := range b.Grants {
		floor, declared := floors[g.Role]
		if !declared {
			secs, err := c.delays.Get(ctx, txn, g.Role)
			if err != nil {
				return err
			}
			floor = time.Duration(secs) * time.Second
		}
		if g.ExecutionDelay < floor {
			return &TooShortExecutionDelayError{Role: g.Role, Delay: g.ExecutionDelay}
		}
	}
	return nil
}
