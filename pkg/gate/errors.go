package gate

import (
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/vaultgate/pkg/contracts"
)

var (
	// ErrAlreadyInitialized is returned when Initialize is called a second
	// time. The state set by the first call is unchanged.
	ErrAlreadyInitialized = errors.New("control plane is already initialized")

	// ErrLengthMismatch is returned when paired role/delay arrays differ in
	// length.
	ErrLengthMismatch = errors.New("role and delay arrays must have the same length")

	// ErrRedemptionDelayMismatch is returned at construction when the
	// configured redemption delay differs from the value persisted by an
	// earlier construction over the same store. The delay is set once for
	// the lifetime of the store.
	ErrRedemptionDelayMismatch = errors.New("redemption delay differs from the stored value")
)

// TooLongRedemptionDelayError is returned at construction when the
// configured redemption delay exceeds the hard cap.
type TooLongRedemptionDelayError struct {
	Delay time.Duration
	Max   time.Duration
}

func (e *TooLongRedemptionDelayError) Error() string {
	return fmt.Sprintf("redemption delay %s exceeds maximum %s", e.Delay, e.Max)
}

// UnauthorizedError is returned when a caller holds no authority for the
// attempted operation and no pending schedule exists.
type UnauthorizedError struct {
	Caller contracts.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("caller %q is not authorized", e.Caller)
}

// TooShortExecutionDelayError is returned when a grant's execution delay
// is below the role's minimal-delay floor.
type TooShortExecutionDelayError struct {
	Role  contracts.RoleID
	Delay time.Duration
}

func (e *TooShortExecutionDelayError) Error() string {
	return fmt.Sprintf("execution delay %s is below the floor for role %d", e.Delay, e.Role)
}
