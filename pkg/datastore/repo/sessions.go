package repo

import (
	"database/sql"
	"fmt"
	"time"
)

// Session row kinds.
const (
	KindSession = "SESSION"
	KindConv    = "CONV"
)

// SessionRow mirrors one sessions row.
type SessionRow struct {
	AccountID string
	SessionID string
	Kind      string
	Data      string
}

// LoadResult is what one key+session lookup yields: account identity and
// balances plus whatever session rows exist for that session id.
type LoadResult struct {
	AccountID      string
	KeyHash        string
	TokenRemaining int64
	TopupRemaining int64
	SessionData    string
	ConvData       string
	HasSession     bool
	HasConv        bool
}

// Sessions is the session-blob repository.
type Sessions struct {
	db *sql.DB
}

// NewSessions binds the repository to the writer handle.
func NewSessions(db *sql.DB) *Sessions { return &Sessions{db: db} }

// LoadSessionByKeyAndId resolves a plaintext key and session id in one
// query. The sessions side is a LEFT JOIN: a valid key with no stored rows
// still yields the account columns, which is what lets a brand-new session
// see its credit balance. Returns (nil, nil) when the key is unknown or
// expired.
func (r *Sessions) LoadSessionByKeyAndId(plainKey, sessionID string) (*LoadResult, error) {
	rows, err := r.db.Query(`
SELECT a.id, k.key_hash, a.token_remaining, a.topup_remaining, s.kind, s.data
FROM api_keys k
JOIN accounts a ON a.id = k.account_id
LEFT JOIN sessions s ON s.account_id = a.id AND s.session_id = ?
WHERE k.key_hash = ? AND (k.expires_at IS NULL OR k.expires_at > ?)`,
		sessionID, HashKey(plainKey), time.Now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	defer rows.Close()

	var result *LoadResult
	for rows.Next() {
		var (
			accountID, keyHash string
			tokens, topup      int64
			kind, data         sql.NullString
		)
		if err := rows.Scan(&accountID, &keyHash, &tokens, &topup, &kind, &data); err != nil {
			return nil, fmt.Errorf("load session: scan: %w", err)
		}
		if result == nil {
			result = &LoadResult{
				AccountID:      accountID,
				KeyHash:        keyHash,
				TokenRemaining: tokens,
				TopupRemaining: topup,
			}
		}
		switch kind.String {
		case KindSession:
			result.SessionData = data.String
			result.HasSession = true
		case KindConv:
			result.ConvData = data.String
			result.HasConv = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return result, nil
}

// UpsertSession stores the SESSION blob, replacing any prior value.
func (r *Sessions) UpsertSession(accountID, sessionID, sessionData string) error {
	_, err := r.db.Exec(`
INSERT INTO sessions (account_id, session_id, kind, data, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(account_id, session_id, kind) DO UPDATE SET data = excluded.data`,
		accountID, sessionID, KindSession, sessionData, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// AppendConversation stores or extends the CONV blob; an existing row
// concatenates rather than replaces.
func (r *Sessions) AppendConversation(accountID, sessionID, conversationData string) error {
	_, err := r.db.Exec(`
INSERT INTO sessions (account_id, session_id, kind, data, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(account_id, session_id, kind) DO UPDATE SET data = data || excluded.data`,
		accountID, sessionID, KindConv, conversationData, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("append conversation: %w", err)
	}
	return nil
}

// OverwriteConversation replaces the CONV blob outright. The summarizer
// uses it to swap the full transcript for its summary.
func (r *Sessions) OverwriteConversation(accountID, sessionID, content string) error {
	_, err := r.db.Exec(`
INSERT INTO sessions (account_id, session_id, kind, data, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(account_id, session_id, kind) DO UPDATE SET data = excluded.data`,
		accountID, sessionID, KindConv, content, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("overwrite conversation: %w", err)
	}
	return nil
}
