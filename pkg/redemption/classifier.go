// Package redemption implements the redemption-lock ledger: a per-account
// cooldown correlating deposit-like and withdraw-like operations so an
// account cannot deposit and withdraw inside the same window.
package redemption

import "github.com/custodia-labs/vaultgate/pkg/contracts"

// Kind is the redemption-lock classification of an operation.
type Kind int

const (
	// KindOther operations have no effect on the lock ledger.
	KindOther Kind = iota
	// KindDeposit operations refresh the account's unlock timestamp.
	KindDeposit
	// KindWithdraw operations are rejected while the account is locked.
	KindWithdraw
)

// Classifier maps operation identifiers to lock classifications. New
// operation kinds are added here without touching the lock logic.
type Classifier map[contracts.OpID]Kind

// DefaultClassifier covers the canonical vault operation set.
func DefaultClassifier() Classifier {
	return Classifier{
		contracts.OpDeposit:           KindDeposit,
		contracts.OpMint:              KindDeposit,
		contracts.OpDepositWithPermit: KindDeposit,
		contracts.OpWithdraw:          KindWithdraw,
		contracts.OpRedeem:            KindWithdraw,
		contracts.OpTransfer:          KindWithdraw,
		contracts.OpTransferFrom:      KindWithdraw,
	}
}

// Classify returns the kind for an operation; unknown operations are
// KindOther.
func (c Classifier) Classify(op contracts.OpID) Kind {
	return c[op]
}
