// Package authority implements the generic role/permission registry behind
// the VaultGate control plane: role membership with per-account execution
// delays, an explicit role-admin graph, per-target operation bindings, an
// emergency closed latch per target, and the schedule/consume/cancel
// lifecycle for delayed operations.
//
// The registry knows nothing about redemption locks or vault conversions;
// pkg/gate composes it with that logic.
package authority

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
)

// Access describes one account's membership in a role.
type Access struct {
	// Since is when the membership becomes effective. Grants made under a
	// role grant delay are pending until then.
	Since time.Time

	// ExecutionDelay is the minimum time this account must wait between
	// scheduling and consuming an operation under the role.
	ExecutionDelay time.Duration
}

type roleData struct {
	admin      contracts.RoleID
	guardian   contracts.RoleID
	members    map[contracts.Address]Access
	grantDelay time.Duration
}

type targetData struct {
	closed  bool
	fnRoles map[contracts.OpID]contracts.RoleID
}

// DefaultExpirationPeriod is how long a scheduled operation stays
// consumable after its ready time.
const DefaultExpirationPeriod = 7 * 24 * time.Hour

// Registry is the permission registry. All methods are safe for
// concurrent use; mutators apply atomically under the registry lock.
type Registry struct {
	mu         sync.RWMutex
	roles      map[contracts.RoleID]*roleData
	targets    map[contracts.Address]*targetData
	schedules  map[string]*scheduledOp
	clock      Clock
	expiration time.Duration
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the clock for deterministic testing.
func WithClock(c Clock) Option {
	return func(r *Registry) { r.clock = c }
}

// WithExpirationPeriod overrides how long scheduled operations remain
// consumable after their ready time.
func WithExpirationPeriod(d time.Duration) Option {
	return func(r *Registry) { r.expiration = d }
}

// NewRegistry creates a registry and grants the root admin role to
// initialAdmin with a zero execution delay. This initial grant is the
// bootstrap exception: it does not pass through any delay-floor check.
func NewRegistry(initialAdmin contracts.Address, opts ...Option) *Registry {
	r := &Registry{
		roles:      make(map[contracts.RoleID]*roleData),
		targets:    make(map[contracts.Address]*targetData),
		schedules:  make(map[string]*scheduledOp),
		clock:      WallClock{},
		expiration: DefaultExpirationPeriod,
	}
	for _, opt := range opts {
		opt(r)
	}
	admin := r.role(contracts.RoleAdmin)
	admin.members[initialAdmin] = Access{Since: r.clock.Now()}
	return r
}

// role returns the role data, creating it lazily. Must be called with the
// registry lock held (or from the constructor).
func (r *Registry) role(id contracts.RoleID) *roleData {
	d, ok := r.roles[id]
	if !ok {
		d = &roleData{
			admin:    contracts.RoleAdmin,
			guardian: contracts.RoleGuardian,
			members:  make(map[contracts.Address]Access),
		}
		r.roles[id] = d
	}
	return d
}

// CanCall reports whether caller may invoke the operation on the target.
// It returns (true, 0) for an immediate call, (false, d) with d > 0 when
// the caller must schedule and wait d, and (false, 0) for a denial.
func (r *Registry) CanCall(caller, target contracts.Address, op contracts.OpID) (bool, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.targets[target]
	if !ok {
		return false, 0
	}
	if t.closed && !r.hasRoleLocked(contracts.RoleAdmin, caller) {
		return false, 0
	}
	role, bound := t.fnRoles[op]
	if !bound {
		return false, 0
	}
	if role == contracts.RolePublic {
		return true, 0
	}
	access, member := r.accessLocked(role, caller)
	if !member {
		return false, 0
	}
	if access.ExecutionDelay == 0 {
		return true, 0
	}
	return false, access.ExecutionDelay
}

// HasRole reports effective membership and the member's execution delay.
func (r *Registry) HasRole(role contracts.RoleID, account contracts.Address) (bool, time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	access, ok := r.accessLocked(role, account)
	if !ok {
		return false, 0
	}
	return true, access.ExecutionDelay
}

func (r *Registry) hasRoleLocked(role contracts.RoleID, account contracts.Address) bool {
	_, ok := r.accessLocked(role, account)
	return ok
}

func (r *Registry) accessLocked(role contracts.RoleID, account contracts.Address) (Access, bool) {
	if role == contracts.RolePublic {
		return Access{}, true
	}
	d, ok := r.roles[role]
	if !ok {
		return Access{}, false
	}
	access, ok := d.members[account]
	if !ok {
		return Access{}, false
	}
	if r.clock.Now().Before(access.Since) {
		return Access{}, false
	}
	return access, true
}

// GrantRole makes account a member of role with the given execution
// delay. Granting an existing member overwrites the delay. The caller is
// expected to have checked admin authority; pkg/gate does so through
// HasRole on the role's admin, the same mechanism being defined here.
func (r *Registry) GrantRole(role contracts.RoleID, account contracts.Address, delay time.Duration) error {
	if role == contracts.RolePublic {
		return ErrPublicRoleImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	d := r.role(role)
	d.members[account] = Access{
		Since:          r.clock.Now().Add(d.grantDelay),
		ExecutionDelay: delay,
	}
	return nil
}

// RevokeRole removes account from role. Revoking a non-member is a no-op.
func (r *Registry) RevokeRole(role contracts.RoleID, account contracts.Address) error {
	if role == contracts.RolePublic {
		return ErrPublicRoleImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.roles[role]; ok {
		delete(d.members, account)
	}
	return nil
}

// AdminOf returns the admin role for a role. Roles without an explicit
// binding are administered by the root admin role.
func (r *Registry) AdminOf(role contracts.RoleID) contracts.RoleID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.roles[role]; ok {
		return d.admin
	}
	return contracts.RoleAdmin
}

// GuardianOf returns the cancellation authority for a role.
func (r *Registry) GuardianOf(role contracts.RoleID) contracts.RoleID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.roles[role]; ok {
		return d.guardian
	}
	return contracts.RoleGuardian
}

// SetRoleAdmin binds the admin role for a role. The binding is rejected
// when it would make the role-admin graph cyclic: every role except the
// root must stay reachable from the root so revocation cannot be
// orphaned.
func (r *Registry) SetRoleAdmin(role, admin contracts.RoleID) error {
	if role == contracts.RolePublic {
		return ErrPublicRoleImmutable
	}
	if role == contracts.RoleAdmin {
		return fmt.Errorf("root admin role cannot be re-administered")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkAcyclicLocked(role, admin); err != nil {
		return err
	}
	r.role(role).admin = admin
	return nil
}

// checkAcyclicLocked walks the parent pointers from candidate admin; if
// the walk reaches role before terminating at the root, the binding would
// create a cycle.
func (r *Registry) checkAcyclicLocked(role, admin contracts.RoleID) error {
	seen := make(map[contracts.RoleID]bool)
	cur := admin
	for cur != contracts.RoleAdmin {
		if cur == role {
			return &RoleCycleError{Role: role, Admin: admin}
		}
		if seen[cur] {
			// Pre-existing cycle elsewhere; still reject the binding.
			return &RoleCycleError{Role: role, Admin: admin}
		}
		seen[cur] = true
		d, ok := r.roles[cur]
		if !ok {
			break // unbound role defaults to the root admin
		}
		cur = d.admin
	}
	return nil
}

// SetRoleGuardian binds the cancellation authority for a role.
func (r *Registry) SetRoleGuardian(role, guardian contracts.RoleID) error {
	if role == contracts.RolePublic {
		return ErrPublicRoleImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.role(role).guardian = guardian
	return nil
}

// SetGrantDelay sets the delay before new grants of a role take effect.
func (r *Registry) SetGrantDelay(role contracts.RoleID, d time.Duration) error {
	if role == contracts.RolePublic {
		return ErrPublicRoleImmutable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.role(role).grantDelay = d
	return nil
}

// SetTargetFunctionRole binds the role required for one operation on one
// target, creating the target record if needed.
func (r *Registry) SetTargetFunctionRole(target contracts.Address, op contracts.OpID, role contracts.RoleID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[target]
	if !ok {
		t = &targetData{fnRoles: make(map[contracts.OpID]contracts.RoleID)}
		r.targets[target] = t
	}
	t.fnRoles[op] = role
}

// TargetFunctionRole returns the role bound to an operation on a target.
func (r *Registry) TargetFunctionRole(target contracts.Address, op contracts.OpID) (contracts.RoleID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[target]
	if !ok {
		return 0, false
	}
	role, ok := t.fnRoles[op]
	return role, ok
}

// SetTargetClosed toggles the emergency closed latch on a target.
func (r *Registry) SetTargetClosed(target contracts.Address, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.targets[target]
	if !ok {
		t = &targetData{fnRoles: make(map[contracts.OpID]contracts.RoleID)}
		r.targets[target] = t
	}
	t.closed = closed
}

// IsTargetClosed reports whether a target is closed to non-root callers.
func (r *Registry) IsTargetClosed(target contracts.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.targets[target]
	return ok && t.closed
}

// OperationID is the stable identifier for a (caller, target, op) triple
// in the schedule table.
func OperationID(caller, target contracts.Address, op contracts.OpID) string {
	h := sha256.Sum256([]byte(string(caller) + "\x00" + string(target) + "\x00" + string(op)))
	return hex.EncodeToString(h[:])
}
