package authority

import (
	"errors"
	"fmt"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
)

var (
	// ErrNotScheduled is returned when consuming or cancelling an operation
	// that was never scheduled (or was already cancelled).
	ErrNotScheduled = errors.New("operation is not scheduled")

	// ErrAlreadyConsumed is returned when a scheduled operation is consumed
	// a second time.
	ErrAlreadyConsumed = errors.New("operation already consumed")

	// ErrPublicRoleImmutable is returned on attempts to grant, revoke, or
	// re-administer the universal public role.
	ErrPublicRoleImmutable = errors.New("public role cannot be granted or administered")
)

// NotReadyError is returned when a scheduled operation is consumed before
// its ready time.
type NotReadyError struct {
	ReadyAt int64 // unix seconds
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("operation not ready until %d", e.ReadyAt)
}

// ExpiredError is returned when a scheduled operation is consumed after
// its expiration window.
type ExpiredError struct {
	ExpiredAt int64 // unix seconds
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("operation expired at %d", e.ExpiredAt)
}

// TooEarlyError is returned when scheduling an operation before the
// caller's execution delay has been honored.
type TooEarlyError struct {
	Earliest int64 // unix seconds
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("cannot schedule before %d", e.Earliest)
}

// RoleCycleError is returned when an admin-role binding would make the
// role-admin graph cyclic, orphaning revocation.
type RoleCycleError struct {
	Role  contracts.RoleID
	Admin contracts.RoleID
}

func (e *RoleCycleError) Error() string {
	return fmt.Sprintf("admin binding %d -> %d creates a cycle in the role-admin graph", e.Role, e.Admin)
}
