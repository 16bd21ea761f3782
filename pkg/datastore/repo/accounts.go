// Package repo holds the SQL repositories over the datastore's single
// writer handle. Timestamps are unix milliseconds.
package repo

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	keyPrefix        = "rslive_v1_"
	keyRandomBytes   = 24
	labelMaxLen      = 30
	indicatorAffixes = 5
)

// planDefaults maps plan names to their starting token balance. Unknown
// plans fall back to the Free allotment.
var planDefaults = map[string]int64{
	"Free":       1000,
	"Pro":        50000,
	"Enterprise": 500000,
}

// Account mirrors one accounts row.
type Account struct {
	ID             string
	Email          string
	PlanName       string
	TokenRemaining int64
	TopupRemaining int64
	Status         int
	CreatedAt      int64
	UpdatedAt      int64
}

// ApiKey mirrors one api_keys row. KeyHash is the hex SHA-256 of the
// plaintext; plaintext itself is never stored.
type ApiKey struct {
	KeyHash      string
	AccountID    string
	KeyIndicator string
	Label        string
	CreatedAt    int64
	ExpiresAt    sql.NullInt64
	LastUsedAt   sql.NullInt64
}

// Accounts is the account and API-key repository.
type Accounts struct {
	db *sql.DB
}

// NewAccounts binds the repository to the writer handle.
func NewAccounts(db *sql.DB) *Accounts { return &Accounts{db: db} }

// CreateAccount inserts a new account. An empty plan defaults to Free; a
// nil token balance defaults to the plan allotment; topup starts at zero.
func (r *Accounts) CreateAccount(email, planName string, tokenRemaining, topupRemaining *int64) (*Account, error) {
	if planName == "" {
		planName = "Free"
	}
	tokens, ok := planDefaults[planName]
	if !ok {
		tokens = planDefaults["Free"]
	}
	if tokenRemaining != nil {
		tokens = *tokenRemaining
	}
	var topup int64
	if topupRemaining != nil {
		topup = *topupRemaining
	}

	now := time.Now().UnixMilli()
	acc := &Account{
		ID:             uuid.NewString(),
		Email:          email,
		PlanName:       planName,
		TokenRemaining: tokens,
		TopupRemaining: topup,
		Status:         1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	_, err := r.db.Exec(`
INSERT INTO accounts (id, email, plan_name, token_remaining, topup_remaining, status, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		acc.ID, acc.Email, acc.PlanName, acc.TokenRemaining, acc.TopupRemaining, acc.Status, acc.CreatedAt, acc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return acc, nil
}

// GetAccount returns the account row, or (nil, nil) when absent.
func (r *Accounts) GetAccount(id string) (*Account, error) {
	var acc Account
	err := r.db.QueryRow(`
SELECT id, email, plan_name, token_remaining, topup_remaining, status, created_at, updated_at
FROM accounts WHERE id = ?`, id).Scan(
		&acc.ID, &acc.Email, &acc.PlanName, &acc.TokenRemaining, &acc.TopupRemaining,
		&acc.Status, &acc.CreatedAt, &acc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &acc, nil
}

// CreateApiKey mints a new key for the account and returns the persisted
// row plus the plaintext. The plaintext is not recoverable afterwards.
func (r *Accounts) CreateApiKey(accountID, label string, expiresAt *int64) (*ApiKey, string, error) {
	raw := make([]byte, keyRandomBytes)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	plain := keyPrefix + hex.EncodeToString(raw)

	label = strings.TrimSpace(label)
	if len(label) > labelMaxLen {
		label = label[:labelMaxLen]
	}

	key := &ApiKey{
		KeyHash:      HashKey(plain),
		AccountID:    accountID,
		KeyIndicator: keyIndicator(plain),
		Label:        label,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if expiresAt != nil {
		key.ExpiresAt = sql.NullInt64{Int64: *expiresAt, Valid: true}
	}
	_, err := r.db.Exec(`
INSERT INTO api_keys (key_hash, account_id, key_indicator, label, created_at, expires_at)
VALUES (?, ?, ?, ?, ?, ?)`,
		key.KeyHash, key.AccountID, key.KeyIndicator, key.Label, key.CreatedAt, key.ExpiresAt)
	if err != nil {
		return nil, "", fmt.Errorf("create api key: %w", err)
	}
	return key, plain, nil
}

// ValidateApiKey hashes the presented key and returns the matching active
// row, or (nil, nil) when the hash is unknown or expired.
func (r *Accounts) ValidateApiKey(plainKey string) (*ApiKey, error) {
	var key ApiKey
	err := r.db.QueryRow(`
SELECT key_hash, account_id, key_indicator, label, created_at, expires_at, last_used_at
FROM api_keys
WHERE key_hash = ? AND (expires_at IS NULL OR expires_at > ?)`,
		HashKey(plainKey), time.Now().UnixMilli()).Scan(
		&key.KeyHash, &key.AccountID, &key.KeyIndicator, &key.Label,
		&key.CreatedAt, &key.ExpiresAt, &key.LastUsedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("validate api key: %w", err)
	}
	return &key, nil
}

// RevokeApiKey expires the key now. Returns whether a row was affected.
func (r *Accounts) RevokeApiKey(keyHash string) (bool, error) {
	res, err := r.db.Exec(`UPDATE api_keys SET expires_at = ? WHERE key_hash = ?`,
		time.Now().UnixMilli(), keyHash)
	if err != nil {
		return false, fmt.Errorf("revoke api key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// TouchApiKey records key usage. Best-effort; callers log failures only.
func (r *Accounts) TouchApiKey(keyHash string) error {
	_, err := r.db.Exec(`UPDATE api_keys SET last_used_at = ? WHERE key_hash = ?`,
		time.Now().UnixMilli(), keyHash)
	return err
}

// GetCredits returns the combined balance, or zero for a missing account.
func (r *Accounts) GetCredits(accountID string) (int64, error) {
	var credits int64
	err := r.db.QueryRow(`
SELECT token_remaining + topup_remaining FROM accounts WHERE id = ?`, accountID).Scan(&credits)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get credits: %w", err)
	}
	return credits, nil
}

// HashKey returns the hex SHA-256 of a plaintext key.
func HashKey(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// keyIndicator renders the short display form, first and last five chars.
func keyIndicator(plain string) string {
	if len(plain) <= indicatorAffixes*2 {
		return plain
	}
	return plain[:indicatorAffixes] + "..." + plain[len(plain)-indicatorAffixes:]
}
