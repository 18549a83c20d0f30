package gate

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/audit"
	"github.com/custodia-labs/vaultgate/pkg/contracts"
	"github.com/custodia-labs/vaultgate/pkg/statestore"
)

// Marker is the value returned by IsConsumingScheduledOp: non-zero while
// a consumption is in progress, zero otherwise.
type Marker uint32

// consumingMarker is the fixed non-zero marker, derived from the first
// four bytes of the consuming-op namespace slot.
var consumingMarker = func() Marker {
	slot := statestore.Slot("vaultgate.consuming_scheduled_op")
	return Marker(binary.BigEndian.Uint32(slot[:4]))
}()

type consumingOp struct {
	caller contracts.Address
	target contracts.Address
	op     contracts.OpID
}

// consumingGuard scopes the transient consuming marker to one
// consumption call. Release is idempotent and must run on every exit
// path so the marker can never be observed set outside the call.
type consumingGuard struct {
	core     *Core
	released bool
}

func (g *consumingGuard) Release() {
	if g.released {
		return
	}
	g.released = true
	g.core.mu.Lock()
	g.core.consuming = nil
	g.core.mu.Unlock()
}

func (c *Core) beginConsuming(caller, target contracts.Address, op contracts.OpID) *consumingGuard {
	c.mu.Lock()
	c.consuming = &consumingOp{caller: caller, target: target, op: op}
	c.mu.Unlock()
	return &consumingGuard{core: c}
}

// isConsuming matches the full (caller, target, op) triple so the marker
// never grants immediacy to a caller other than the one consuming.
func (c *Core) isConsuming(caller, target contracts.Address, op contracts.OpID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consuming != nil &&
		c.consuming.caller == caller &&
		c.consuming.target == target &&
		c.consuming.op == op
}

// IsConsumingScheduledOp returns the fixed non-zero marker while a
// scheduled-operation consumption is in progress, zero otherwise. The
// registry uses it to distinguish legitimate nested calls during the
// consumption callback from unexpected reentry.
func (c *Core) IsConsumingScheduledOp() Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.consuming != nil {
		return consumingMarker
	}
	return 0
}

// Schedule records a delayed operation with the registry for later
// consumption at the given ready time.
func (c *Core) Schedule(ctx context.Context, caller, target contracts.Address, op contracts.OpID, when time.Time) error {
	scheduled, err := c.registry.Schedule(caller, target, op, when)
	if err != nil {
		return err
	}
	c.record(audit.EventOpScheduled, caller, map[string]any{
		"operation_id": scheduled.ID,
		"target":       target,
		"op":           op,
		"ready_at":     scheduled.ReadyAt.Unix(),
	})
	return nil
}

// CancelScheduledOperation cancels a pending scheduled operation on
// behalf of by: the original scheduler, the required role's admin or
// guardian, or the root admin.
func (c *Core) CancelScheduledOperation(ctx context.Context, by, caller, target contracts.Address, op contracts.OpID) error {
	if err := c.registry.Cancel(by, caller, target, op); err != nil {
		return err
	}
	c.record(audit.EventOpCancelled, by, map[string]any{
		"caller": caller,
		"target": target,
		"op":     op,
	})
	return nil
}

// ConsumeScheduledOperation runs the second phase of the two-phase
// protocol within a single top-level call. When the registry reports a
// pending delay it acquires the scoped consuming guard, consumes the
// scheduled operation (validating it was scheduled, is past its ready
// time, and has not already been consumed), and then executes the guarded
// body under the marker so the body's own authorization check re-enters
// safely. When the caller holds no delay and no immediate authority it
// fails with UnauthorizedError: there is no pending schedule and no way
// to execute. The guard is released on every exit path.
func (c *Core) ConsumeScheduledOperation(ctx context.Context, caller, target contracts.Address, op contracts.OpID, body func(context.Context) error) error {
	immediate, delay := c.registry.CanCall(caller, target, op)
	if !immediate {
		if delay == 0 {
			return &UnauthorizedError{Caller: caller}
		}

		guard := c.beginConsuming(caller, target, op)
		defer guard.Release()

		if err := c.registry.Consume(caller, target, op); err != nil {
			return err
		}
		c.metrics.RecordConsumed(ctx)
		c.record(audit.EventOpConsumed, caller, map[string]any{
			"target": target,
			"op":     op,
		})
		if body != nil {
			return body(ctx)
		}
		return nil
	}

	if body != nil {
		return body(ctx)
	}
	return nil
}
