package repo

import (
	"database/sql"
	"fmt"
	"time"
)

// Usage is the append-only usage log plus the credit-deduction path.
type Usage struct {
	db *sql.DB
}

// NewUsage binds the repository to the writer handle.
func NewUsage(db *sql.DB) *Usage { return &Usage{db: db} }

// InsertUsage records one usage event and debits the owning account in a
// single transaction. Top-up balance drains to zero first; the remainder
// comes off the subscription balance, which may go negative.
func (r *Usage) InsertUsage(accountID, sessionID, provider string, inputTokens, outputTokens int64) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin usage tx: %w", err)
	}
	defer tx.Rollback()

	var topup, tokens int64
	err = tx.QueryRow(`SELECT topup_remaining, token_remaining FROM accounts WHERE id = ?`, accountID).
		Scan(&topup, &tokens)
	if err == sql.ErrNoRows {
		return fmt.Errorf("insert usage: account %s not found", accountID)
	}
	if err != nil {
		return fmt.Errorf("insert usage: read balances: %w", err)
	}

	remaining := inputTokens + outputTokens
	if topup >= remaining {
		topup -= remaining
		remaining = 0
	} else {
		remaining -= topup
		topup = 0
	}
	if remaining > 0 {
		tokens -= remaining
	}

	now := time.Now().UnixMilli()
	_, err = tx.Exec(`
INSERT INTO usage_metrics (account_id, session_id, provider, input_tokens, output_tokens, total_tokens, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`,
		accountID, sessionID, provider, inputTokens, outputTokens, inputTokens+outputTokens, now)
	if err != nil {
		return fmt.Errorf("insert usage: append row: %w", err)
	}
	_, err = tx.Exec(`
UPDATE accounts SET topup_remaining = ?, token_remaining = ?, updated_at = ? WHERE id = ?`,
		topup, tokens, now, accountID)
	if err != nil {
		return fmt.Errorf("insert usage: update balances: %w", err)
	}
	return tx.Commit()
}
