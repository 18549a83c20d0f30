// Package contracts holds the shared identifier types used across the
// VaultGate control plane: principals, guarded targets, and the compact
// operation identifiers recognized by managed vaults.
package contracts

// Address identifies a principal or a guarded target. The control plane
// treats addresses as opaque; callers typically use hex-encoded account
// identifiers from the surrounding ledger.
type Address string

// OpID is a compact operation identifier naming a guarded operation on a
// target, analogous to a function selector.
type OpID string

// Canonical operation identifiers recognized by managed vaults. The
// redemption-lock classifier correlates the deposit-side and withdraw-side
// sets per account.
const (
	OpDeposit           OpID = "deposit"
	OpMint              OpID = "mint"
	OpDepositWithPermit OpID = "deposit_with_permit"
	OpWithdraw          OpID = "withdraw"
	OpRedeem            OpID = "redeem"
	OpTransfer          OpID = "transfer"
	OpTransferFrom      OpID = "transfer_from"
)

// RoleID identifies a capability bucket. Accounts are members of roles
// with an individual execution delay.
type RoleID uint64

const (
	// RoleAdmin is the root admin role. It administers every role that has
	// no explicit admin binding and bypasses target-closed checks.
	RoleAdmin RoleID = 0

	// RoleGuardian is the emergency role: it may cancel pending scheduled
	// operations for any operational role and toggle target-closed state.
	RoleGuardian RoleID = 1

	// RolePublic is the universal role satisfied by every caller. Binding
	// an operation to it permanently opens the operation.
	RolePublic RoleID = 1<<64 - 1
)

// IsReserved reports whether the role id is one of the built-in roles.
func (r RoleID) IsReserved() bool {
	return r == RoleAdmin || r == RoleGuardian || r == RolePublic
}
