// Package gate implements the AuthorizationCore: the single service that
// gates every privileged operation on a managed vault. It composes the
// permission registry, the redemption-lock ledger, the per-role minimal
// execution delays, and the one-time initialization latch over the
// namespaced persistent state store.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/audit"
	"github.com/custodia-labs/vaultgate/pkg/authority"
	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/observability"
	"github.com/custodia-labs/vaultgate/pkg/redemption"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

// MaxRedemptionDelay is the hard cap on the redemption delay.
const MaxRedemptionDelay = 7 * 24 * time.Hour

// Config assembles a Core.
type Config struct {
	// Store is the namespaced persistent state store. Required.
	Store statestore.Store

	// Registry is the underlying permission registry. Required.
	Registry *authority.Registry

	// Classifier maps operation ids to redemption-lock kinds. Defaults to
	// redemption.DefaultClassifier.
	Classifier redemption.Classifier

	// RedemptionDelay is the cooldown pushed onto an account by a
	// deposit-like operation. Zero disables the feature. Must not exceed
	// MaxRedemptionDelay.
	RedemptionDelay time.Duration

	// Clock overrides authority time. Defaults to the wall clock.
	Clock authority.Clock

	// Trail receives audit events. Optional.
	Trail *audit.Trail

	// Metrics receives decision counters. Optional.
	Metrics *observability.Metrics
}

// Core is the authorization and timelock control plane.
type Core struct {
	store    statestore.Store
	registry *authority.Registry
	locks    *redemption.Ledger
	delays   statestore.DelayTable
	initFlag statestore.FlagTable
	rdelay   statestore.ScalarTable
	clock    authority.Clock
	trail    *audit.Trail
	metrics  *observability.Metrics

	redemptionDelay time.Duration

	mu        sync.Mutex
	consuming *consumingOp
}

// New validates the configuration, persists the redemption delay scalar,
// and returns the assembled Core. A redemption delay above
// MaxRedemptionDelay fails with TooLongRedemptionDelayError; exactly
// MaxRedemptionDelay is accepted. The delay is immutable for the
// lifetime of the store: constructing over a store that already holds a
// different value fails with ErrRedemptionDelayMismatch.
func New(ctx context.Context, cfg Config) (*Core, error) {
	if cfg.RedemptionDelay < 0 || cfg.RedemptionDelay > MaxRedemptionDelay {
		return nil, &TooLongRedemptionDelayError{Delay: cfg.RedemptionDelay, Max: MaxRedemptionDelay}
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = redemption.DefaultClassifier()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = authority.WallClock{}
	}

	c := &Core{
		store:           cfg.Store,
		registry:        cfg.Registry,
		locks:           redemption.NewLedger(classifier, cfg.RedemptionDelay),
		delays:          statestore.NewDelayTable(),
		initFlag:        statestore.NewFlagTable(statestore.NamespaceInitialized),
		rdelay:          statestore.NewScalarTable(statestore.NamespaceRedemptionDelay),
		clock:           clock,
		trail:           cfg.Trail,
		metrics:         cfg.Metrics,
		redemptionDelay: cfg.RedemptionDelay,
	}

	txn, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = txn.Rollback() }()
	var storedSecs int64
	stored, err := c.rdelay.Get(ctx, txn, &storedSecs)
	if err != nil {
		return nil, err
	}
	if stored {
		if storedSecs != int64(cfg.RedemptionDelay/time.Second) {
			return nil, fmt.Errorf("%w: configured %s, stored %ds",
				ErrRedemptionDelayMismatch, cfg.RedemptionDelay, storedSecs)
		}
		return c, nil
	}
	if err := c.rdelay.Set(ctx, txn, int64(cfg.RedemptionDelay/time.Second)); err != nil {
		return nil, err
	}
	if err := txn.Commit(); err != nil {
		return nil, err
	}
	return c, nil
}

// RedemptionDelay returns the immutable redemption delay.
func (c *Core) RedemptionDelay() time.Duration { return c.redemptionDelay }

// CanCallAndUpdate is the single authorization entry point every guarded
// target must call before executing a sensitive body, exactly once per
// guarded invocation. It first runs redemption-lock bookkeeping keyed off
// the operation id (which may itself fail with redemption.LockedError
// before any permission check runs), then defers to the permission
// registry. It returns (true, 0) when the caller may proceed immediately,
// (false, d) with d > 0 when a scheduled operation must be consumed, and
// (false, 0) for a denial. A denial or an error unwinds the lock update
// made during the call.
func (c *Core) CanCallAndUpdate(ctx context.Context, caller, target contracts.Address, op contracts.OpID) (bool, time.Duration, error) {
	txn, err := c.store.Begin(ctx)
	if err != nil {
		return false, 0, err
	}
	defer func() { _ = txn.Rollback() }()

	change, err := c.locks.LockChecks(ctx, txn, caller, op, c.clock.Now())
	if err != nil {
		if _, locked := err.(*redemption.LockedError); locked {
			c.metrics.RecordLockRejection(ctx)
		}
		return false, 0, err
	}

	immediate, delay := false, time.Duration(0)
	if c.isConsuming(caller, target, op) {
		// Nested call during consumption of a scheduled operation; the
		// registry treats it as safe re-entry, not an attack.
		immediate = true
	} else {
		immediate, delay = c.registry.CanCall(caller, target, op)
	}

	if !immediate && delay == 0 {
		c.metrics.RecordDecision(ctx, observability.VerdictDenied)
		return false, 0, nil
	}

	if err := txn.Commit(); err != nil {
		return false, 0, err
	}
	if change != nil {
		c.notifyLockChange(caller, change)
	}
	if immediate {
		c.metrics.RecordDecision(ctx, observability.VerdictImmediate)
	} else {
		c.metrics.RecordDecision(ctx, observability.VerdictDelayed)
	}
	return immediate, delay, nil
}

// UpdateTargetClosed toggles whether a target is fully closed to all
// non-root callers regardless of role. Guardian-only.
func (c *Core) UpdateTargetClosed(ctx context.Context, by, target contracts.Address, closed bool) error {
	if !c.holdsRole(contracts.RoleGuardian, by) && !c.holdsRole(contracts.RoleAdmin, by) {
		return &UnauthorizedError{Caller: by}
	}
	c.registry.SetTargetClosed(target, closed)
	c.record(audit.EventTargetClosed, by, map[string]any{"target": target, "closed": closed})
	return nil
}

// ConvertToPublicVault rebinds the deposit-side operations on the vault
// to the universal public role. One-way: no exposed operation re-restricts
// them. Re-applying has no additional effect.
func (c *Core) ConvertToPublicVault(ctx context.Context, by, vault contracts.Address) error {
	if !c.holdsRole(contracts.RoleAdmin, by) {
		return &UnauthorizedError{Caller: by}
	}
	for _, op := range []contracts.OpID{contracts.OpDeposit, contracts.OpMint, contracts.OpDepositWithPermit} {
		c.registry.SetTargetFunctionRole(vault, op, contracts.RolePublic)
	}
	c.record(audit.EventVaultPublic, by, map[string]any{"vault": vault})
	return nil
}

// EnableTransferShares rebinds the share-transfer operations on the vault
// to the universal public role. One-way, independent of the deposit-side
// latch.
func (c *Core) EnableTransferShares(ctx context.Context, by, vault contracts.Address) error {
	if !c.holdsRole(contracts.RoleAdmin, by) {
		return &UnauthorizedError{Caller: by}
	}
	for _, op := range []contracts.OpID{contracts.OpTransfer, contracts.OpTransferFrom} {
		c.registry.SetTargetFunctionRole(vault, op, contracts.RolePublic)
	}
	c.record(audit.EventSharesEnabled, by, map[string]any{"vault": vault})
	return nil
}

// SetMinimalExecutionDelaysForRoles bulk-overwrites minimal execution
// delays, pairing roles and delays by index. Each pair applies
// independently and idempotently.
func (c *Core) SetMinimalExecutionDelaysForRoles(ctx context.Context, by contracts.Address, roles []contracts.RoleID, delays []time.Duration) error {
	if !c.holdsRole(contracts.RoleAdmin, by) {
		return &UnauthorizedError{Caller: by}
	}
	if len(roles) != len(delays) {
		return ErrLengthMismatch
	}
	txn, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = txn.Rollback() }()
	for i, role := range roles {
		if err := c.delays.Set(ctx, txn, role, int64(delays[i]/time.Second)); err != nil {
			return err
		}
	}
	if err := txn.Commit(); err != nil {
		return err
	}
	c.record(audit.EventDelaysUpdated, by, map[string]any{"roles": roles})
	return nil
}

// GrantRole makes account a member of role with the given execution
// delay, enforcing the role's minimal-delay floor. Only an account
// holding the role's admin role may grant it; the check uses the same
// registry being administered.
func (c *Core) GrantRole(ctx context.Context, by contracts.Address, role contracts.RoleID, account contracts.Address, delay time.Duration) error {
	if !c.holdsRole(c.registry.AdminOf(role), by) {
		return &UnauthorizedError{Caller: by}
	}

	txn, err := c.store.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = txn.Rollback() }()
	floor, err := c.delays.Get(ctx, txn, role)
	if err != nil {
		return err
	}
	if int64(delay/time.Second) < floor {
		return &TooShortExecutionDelayError{Role: role, Delay: delay}
	}
	if err := c.registry.GrantRole(role, account, delay); err != nil {
		return err
	}
	c.record(audit.EventRoleGranted, by, map[string]any{"role": role, "account": account, "delay_seconds": int64(delay / time.Second)})
	return nil
}

// GetMinimalExecutionDelayForRole returns the minimal execution delay
// configured for a role. Unrestricted read.
func (c *Core) GetMinimalExecutionDelayForRole(ctx context.Context, role contracts.RoleID) (time.Duration, error) {
	txn, err := c.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = txn.Rollback() }()
	secs, err := c.delays.Get(ctx, txn, role)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// GetAccountLockTime returns the account's current unlock timestamp in
// unix seconds, zero when the account has never been locked. Unrestricted
// read.
func (c *Core) GetAccountLockTime(ctx context.Context, account contracts.Address) (int64, error) {
	txn, err := c.store.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = txn.Rollback() }()
	return c.locks.LockTime(ctx, txn, account)
}

// holdsRole reports effective membership, treating the public role as
// universally held.
func (c *Core) holdsRole(role contracts.RoleID, account contracts.Address) bool {
	ok, _ := c.registry.HasRole(role, account)
	return ok
}

// record appends to the audit trail when one is configured.
func (c *Core) record(event audit.EventType, actor contracts.Address, payload any) {
	if c.trail == nil {
		return
	}
	_, _ = c.trail.Append(event, string(actor), payload)
}

func (c *Core) notifyLockChange(actor contracts.Address, change *redemption.LockChange) {
	c.record(audit.EventLockUpdated, actor, map[string]any{
		"account":     change.Account,
		"unlock_time": change.UnlockTime,
	})
}
