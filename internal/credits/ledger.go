// Package credits implements the user credit ledger: balances that never
// go negative, an append-only transaction log, and reconciliation of
// deductions that could not be recorded at generation time.
package credits

import (
	"context"

	"halcyon.studio/cinema/internal/domain"
)

// DeductRequest debits a user for generation work.
type DeductRequest struct {
	UserID string
	Amount int64
	Reason string
	// ReferenceID makes the deduction idempotent per user and type; empty
	// disables the check.
	ReferenceID string
	// Type defaults to generation. Bonus and refund entries credit the
	// balance, so they are not accepted here.
	Type domain.TransactionType
}

// EntryType returns the transaction type the deduction is recorded under.
func (r DeductRequest) EntryType() (domain.TransactionType, error) {
	switch r.Type {
	case "", domain.TxGeneration:
		return domain.TxGeneration, nil
	}
	return "", invalidAmount("deduction type must be generation, got " + string(r.Type))
}

// AddRequest credits a user. Type must be bonus or refund.
type AddRequest struct {
	UserID      string
	Amount      int64
	Reason      string
	ReferenceID string
	Type        domain.TransactionType
}

// Ledger stores balances and transactions.
//
// Deduct and Add are atomic: the balance change and its transaction
// record are committed together or not at all. Failures are *CreditError.
type Ledger interface {
	Deduct(ctx context.Context, req DeductRequest) (remaining int64, err error)
	Add(ctx context.Context, req AddRequest) (remaining int64, err error)
	Balance(ctx context.Context, userID string) (int64, error)
	// EnsureAccount creates the account with a starting balance if it does
	// not exist and returns the current balance.
	EnsureAccount(ctx context.Context, userID string, startingBalance int64) (int64, error)
	// Transactions returns the newest transactions first.
	Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error)
}
