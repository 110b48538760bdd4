// Package repository holds the PostgreSQL stores: the credit ledger,
// production runs, and the embedded schema migrations.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"halcyon.studio/cinema/internal/credits"
	"halcyon.studio/cinema/internal/domain"
)

// DB is the subset of *pgxpool.Pool the stores use.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresLedger implements credits.Ledger. Every balance change and its
// transaction row commit in one database transaction; the balance guard
// is a conditional UPDATE, so concurrent deductions cannot overdraw.
type PostgresLedger struct {
	db DB
}

func NewPostgresLedger(db DB) *PostgresLedger {
	return &PostgresLedger{db: db}
}

const (
	sqlDebit = `
UPDATE user_credits
   SET credits_remaining = credits_remaining - $2, updated_at = now()
 WHERE user_id = $1 AND credits_remaining >= $2
RETURNING credits_remaining`

	sqlCredit = `
INSERT INTO user_credits (user_id, credits_remaining)
VALUES ($1, $2)
ON CONFLICT (user_id) DO UPDATE
   SET credits_remaining = user_credits.credits_remaining + EXCLUDED.credits_remaining,
       updated_at = now()
RETURNING credits_remaining`

	sqlInsertTx = `
INSERT INTO credit_transactions (id, user_id, amount, reason, reference_id, type)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
ON CONFLICT (user_id, reference_id, type) WHERE reference_id IS NOT NULL DO NOTHING`

	sqlBalance = `SELECT credits_remaining FROM user_credits WHERE user_id = $1`

	sqlOpenAccount = `
INSERT INTO user_credits (user_id, credits_remaining)
VALUES ($1, $2)
ON CONFLICT (user_id) DO NOTHING`

	sqlTransactions = `
SELECT id, user_id, amount, reason, COALESCE(reference_id, ''), type, created_at
  FROM credit_transactions
 WHERE user_id = $1
 ORDER BY created_at DESC, id DESC
 LIMIT $2`
)

func (l *PostgresLedger) Deduct(ctx context.Context, req credits.DeductRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, &credits.CreditError{Code: credits.CodeInvalidAmount, Message: "deduction amount must be positive"}
	}
	typ, err := req.EntryType()
	if err != nil {
		return 0, err
	}
	var remaining int64
	err = pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, sqlDebit, req.UserID, req.Amount).Scan(&remaining)
		if errors.Is(err, pgx.ErrNoRows) {
			bal, err := balance(ctx, tx, req.UserID)
			if credits.IsCode(err, credits.CodeAccountNotFound) {
				return credits.Insufficient(0)
			}
			if err != nil {
				return err
			}
			return credits.Insufficient(bal)
		}
		if err != nil {
			return fmt.Errorf("debit: %w", err)
		}
		return appendTx(ctx, tx, req.UserID, req.Amount, req.Reason, req.ReferenceID, typ, remaining+req.Amount)
	})
	if err != nil {
		return 0, asCreditError(err)
	}
	return remaining, nil
}

func (l *PostgresLedger) Add(ctx context.Context, req credits.AddRequest) (int64, error) {
	if req.Amount <= 0 {
		return 0, &credits.CreditError{Code: credits.CodeInvalidAmount, Message: "credit amount must be positive"}
	}
	var remaining int64
	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, sqlCredit, req.UserID, req.Amount).Scan(&remaining); err != nil {
			return fmt.Errorf("credit: %w", err)
		}
		return appendTx(ctx, tx, req.UserID, req.Amount, req.Reason, req.ReferenceID, req.Type, remaining-req.Amount)
	})
	if err != nil {
		return 0, asCreditError(err)
	}
	return remaining, nil
}

func (l *PostgresLedger) Balance(ctx context.Context, userID string) (int64, error) {
	bal, err := balance(ctx, l.db, userID)
	if err != nil {
		return 0, asCreditError(err)
	}
	return bal, nil
}

func (l *PostgresLedger) EnsureAccount(ctx context.Context, userID string, startingBalance int64) (int64, error) {
	var bal int64
	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, sqlOpenAccount, userID, startingBalance)
		if err != nil {
			return fmt.Errorf("open account: %w", err)
		}
		if tag.RowsAffected() == 1 && startingBalance > 0 {
			if err := appendTx(ctx, tx, userID, startingBalance, "welcome bonus", "signup", domain.TxBonus, 0); err != nil {
				return err
			}
		}
		bal, err = balance(ctx, tx, userID)
		return err
	})
	if err != nil {
		return 0, asCreditError(err)
	}
	return bal, nil
}

func (l *PostgresLedger) Transactions(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := l.db.Query(ctx, sqlTransactions, userID, limit)
	if err != nil {
		return nil, credits.Unavailable(err)
	}
	defer rows.Close()

	var out []domain.CreditTransaction
	for rows.Next() {
		var t domain.CreditTransaction
		var id uuid.UUID
		if err := rows.Scan(&id, &t.UserID, &t.Amount, &t.Reason, &t.ReferenceID, &t.Type, &t.CreatedAt); err != nil {
			return nil, credits.Unavailable(err)
		}
		t.ID = id.String()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, credits.Unavailable(err)
	}
	return out, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func balance(ctx context.Context, q rowQuerier, userID string) (int64, error) {
	var bal int64
	err := q.QueryRow(ctx, sqlBalance, userID).Scan(&bal)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, credits.NotFound(userID)
	}
	if err != nil {
		return 0, fmt.Errorf("read balance: %w", err)
	}
	return bal, nil
}

// appendTx records the transaction. A reference already applied rolls
// the whole change back as a duplicate; before is the balance to report.
func appendTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reason, ref string, typ domain.TransactionType, before int64) error {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	tag, err := tx.Exec(ctx, sqlInsertTx, id, userID, amount, reason, ref, string(typ))
	if err != nil {
		return fmt.Errorf("append transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return credits.Duplicate(ref, before)
	}
	return nil
}

// asCreditError passes typed ledger errors through and classifies
// everything else as the database being unavailable.
func asCreditError(err error) error {
	var ce *credits.CreditError
	if errors.As(err, &ce) {
		return ce
	}
	return credits.Unavailable(err)
}

var _ credits.Ledger = (*PostgresLedger)(nil)
