package domain

import "time"

// TransactionType classifies a ledger entry.
type TransactionType string

const (
	TxGeneration TransactionType = "generation"
	TxBonus      TransactionType = "bonus"
	TxRefund     TransactionType = "refund"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TxGeneration, TxBonus, TxRefund:
		return true
	}
	return false
}

// CreditTransaction is an append-only ledger entry. Amount is positive;
// the type decides the direction (generation debits, bonus/refund credit).
type CreditTransaction struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Amount      int64           `json:"amount"`
	Reason      string          `json:"reason"`
	ReferenceID string          `json:"referenceId,omitempty"`
	Type        TransactionType `json:"type"`
	CreatedAt   time.Time       `json:"createdAt"`
}
