package authority

import (
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
)

// scheduledOp is one pending delayed operation.
type scheduledOp struct {
	caller   contracts.Address
	target   contracts.Address
	op       contracts.OpID
	readyAt  time.Time
	nonce    string
	consumed bool
}

// ScheduledOperation is the externally visible view of a pending
// operation.
type ScheduledOperation struct {
	ID      string
	Caller  contracts.Address
	Target  contracts.Address
	Op      contracts.OpID
	ReadyAt time.Time
	Nonce   string
}

// Schedule records a delayed operation for later consumption. The ready
// time must honor the caller's execution delay for the operation's role;
// scheduling earlier fails with TooEarlyError. Re-scheduling the same
// triple replaces the pending entry under a fresh nonce.
func (r *Registry) Schedule(caller, target contracts.Address, op contracts.OpID, when time.Time) (ScheduledOperation, error) {
	_, delay := r.CanCall(caller, target, op)

	r.mu.Lock()
	defer r.mu.Unlock()

	earliest := r.clock.Now().Add(delay)
	if when.Before(earliest) {
		return ScheduledOperation{}, &TooEarlyError{Earliest: earliest.Unix()}
	}

	entry := &scheduledOp{
		caller:  caller,
		target:  target,
		op:      op,
		readyAt: when,
		nonce:   uuid.New().String(),
	}
	id := OperationID(caller, target, op)
	r.schedules[id] = entry

	return ScheduledOperation{
		ID:      id,
		Caller:  caller,
		Target:  target,
		Op:      op,
		ReadyAt: when,
		Nonce:   entry.nonce,
	}, nil
}

// Consume validates and consumes a scheduled operation: it must exist,
// be past its ready time, be inside the expiration window, and not have
// been consumed before. Consumption is one-shot.
func (r *Registry) Consume(caller, target contracts.Address, op contracts.OpID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := OperationID(caller, target, op)
	entry, ok := r.schedules[id]
	if !ok {
		return ErrNotScheduled
	}
	if entry.consumed {
		return ErrAlreadyConsumed
	}
	now := r.clock.Now()
	if now.Before(entry.readyAt) {
		return &NotReadyError{ReadyAt: entry.readyAt.Unix()}
	}
	if expiry := entry.readyAt.Add(r.expiration); now.After(expiry) {
		return &ExpiredError{ExpiredAt: expiry.Unix()}
	}
	entry.consumed = true
	return nil
}

// Cancel removes a pending scheduled operation. Allowed for the original
// scheduler, for a member of the required role's admin role, for a member
// of its guardian role, and for the root admin.
func (r *Registry) Cancel(by, caller, target contracts.Address, op contracts.OpID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := OperationID(caller, target, op)
	entry, ok := r.schedules[id]
	if !ok || entry.consumed {
		return ErrNotScheduled
	}

	if by != caller && !r.canAdministerLocked(by, target, op) {
		return ErrNotScheduled
	}
	delete(r.schedules, id)
	return nil
}

// canAdministerLocked reports whether by holds cancellation authority
// over the role bound to (target, op).
func (r *Registry) canAdministerLocked(by, target contracts.Address, op contracts.OpID) bool {
	if r.hasRoleLocked(contracts.RoleAdmin, by) {
		return true
	}
	t, ok := r.targets[target]
	if !ok {
		return false
	}
	role, ok := t.fnRoles[op]
	if !ok {
		return false
	}
	d, ok := r.roles[role]
	if !ok {
		return false
	}
	return r.hasRoleLocked(d.admin, by) || r.hasRoleLocked(d.guardian, by)
}

// Scheduled returns the pending operation for a triple, if any. Consumed
// entries are not reported.
func (r *Registry) Scheduled(caller, target contracts.Address, op contracts.OpID) (ScheduledOperation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.schedules[OperationID(caller, target, op)]
	if !ok || entry.consumed {
		return ScheduledOperation{}, false
	}
	return ScheduledOperation{
		ID:      OperationID(caller, target, op),
		Caller:  entry.caller,
		Target:  entry.target,
		Op:      entry.op,
		ReadyAt: entry.readyAt,
		Nonce:   entry.nonce,
	}, true
}
