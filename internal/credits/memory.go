package credits

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"halcyon.studio/cinema/internal/domain"
)

type refKey struct {
	userID string
	ref    string
	typ    domain.TransactionType
}

// MemoryLedger is a process-local Ledger used when no database is
// configured, and in tests.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	txs      map[string][]domain.CreditTransaction
	refs     map[refKey]struct{}
	now      func() time.Time
}

// NewMemoryLedger creates an empty MemoryLedger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		balances: make(map[string]int64),
		txs:      make(map[string][]domain.CreditTransaction),
		refs:     make(map[refKey]struct{}),
		now:      time.Now,
	}
}

func (l *MemoryLedger) Deduct(_ context.Context, req DeductRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, invalidAmount("deduction amount must be positive")
	}
	typ, err := req.EntryType()
	if err != nil {
		return 0, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal, ok := l.balances[req.UserID]
	if !ok {
		return 0, Insufficient(0)
	}
	if req.ReferenceID != "" {
		if _, dup := l.refs[refKey{req.UserID, req.ReferenceID, typ}]; dup {
			return 0, Duplicate(req.ReferenceID, bal)
		}
	}
	if bal < req.Amount {
		return 0, Insufficient(bal)
	}
	bal -= req.Amount
	l.balances[req.UserID] = bal
	l.appendLocked(req.UserID, req.Amount, req.Reason, req.ReferenceID, typ)
	return bal, nil
}

func (l *MemoryLedger) Add(_ context.Context, req AddRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, invalidAmount("credit amount must be positive")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[req.UserID]
	if req.ReferenceID != "" {
		if _, dup := l.refs[refKey{req.UserID, req.ReferenceID, req.Type}]; dup {
			return 0, Duplicate(req.ReferenceID, bal)
		}
	}
	bal += req.Amount
	l.balances[req.UserID] = bal
	l.appendLocked(req.UserID, req.Amount, req.Reason, req.ReferenceID, req.Type)
	return bal, nil
}

func (l *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bal, ok := l.balances[userID]
	if !ok {
		return 0, NotFound(userID)
	}
	return bal, nil
}

func (l *MemoryLedger) EnsureAccount(_ context.Context, userID string, startingBalance int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if bal, ok := l.balances[userID]; ok {
		return bal, nil
	}
	l.balances[userID] = startingBalance
	if startingBalance > 0 {
		l.appendLocked(userID, startingBalance, "welcome bonus", "signup", domain.TxBonus)
	}
	return startingBalance, nil
}

func (l *MemoryLedger) Transactions(_ context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	all := l.txs[userID]
	out := make([]domain.CreditTransaction, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, all[i])
	}
	return out, nil
}

func (l *MemoryLedger) appendLocked(userID string, amount int64, reason, ref string, typ domain.TransactionType) {
	if ref != "" {
		l.refs[refKey{userID, ref, typ}] = struct{}{}
	}
	l.txs[userID] = append(l.txs[userID], domain.CreditTransaction{
		ID:          uuid.NewString(),
		UserID:      userID,
		Amount:      amount,
		Reason:      reason,
		ReferenceID: ref,
		Type:        typ,
		CreatedAt:   l.now().UTC(),
	})
}

var _ Ledger = (*MemoryLedger)(nil)
