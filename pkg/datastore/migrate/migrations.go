package migrate

import "database/sql"

// all holds every schema step. Names carry a sortable timestamp prefix and
// run in lexicographic order.
var all = []Migration{
	{
		Name: "20250101000000_create_accounts",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := tableExists(db, "accounts")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`
CREATE TABLE accounts (
	id              TEXT PRIMARY KEY,
	email           TEXT NOT NULL UNIQUE,
	plan_name       TEXT NOT NULL DEFAULT 'Free',
	token_remaining INTEGER NOT NULL DEFAULT 0,
	topup_remaining INTEGER NOT NULL DEFAULT 0,
	status          INTEGER NOT NULL DEFAULT 1,
	created_at      INTEGER NOT NULL,
	updated_at      INTEGER NOT NULL
)`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS accounts`)
			return err
		},
	},
	{
		Name: "20250101000001_index_accounts",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := indexExists(db, "idx_accounts_email")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`
CREATE INDEX idx_accounts_email ON accounts(email);
CREATE INDEX idx_accounts_status ON accounts(status);
`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`
DROP INDEX IF EXISTS idx_accounts_email;
DROP INDEX IF EXISTS idx_accounts_status;
`)
			return err
		},
	},
	{
		Name: "20250101000002_create_api_keys",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := tableExists(db, "api_keys")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`
CREATE TABLE api_keys (
	key_hash      TEXT PRIMARY KEY,
	account_id    TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	key_indicator TEXT NOT NULL,
	label         TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	expires_at    INTEGER,
	last_used_at  INTEGER
)`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS api_keys`)
			return err
		},
	},
	{
		Name: "20250101000003_index_api_keys",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := indexExists(db, "idx_api_keys_account")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`CREATE INDEX idx_api_keys_account ON api_keys(account_id)`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`DROP INDEX IF EXISTS idx_api_keys_account`)
			return err
		},
	},
	{
		Name: "20250101000004_create_sessions",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := tableExists(db, "sessions")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`
CREATE TABLE sessions (
	account_id TEXT NOT NULL REFERENCES accounts(id) ON DELETE CASCADE,
	session_id TEXT NOT NULL,
	kind       TEXT NOT NULL CHECK (kind IN ('SESSION','CONV')),
	data       TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	PRIMARY KEY (account_id, session_id, kind)
)`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS sessions`)
			return err
		},
	},
	{
		Name: "20250101000005_index_sessions",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := indexExists(db, "idx_sessions_created")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`CREATE INDEX idx_sessions_created ON sessions(created_at)`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`DROP INDEX IF EXISTS idx_sessions_created`)
			return err
		},
	},
	{
		Name: "20250101000006_create_usage_metrics",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := tableExists(db, "usage_metrics")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`
CREATE TABLE usage_metrics (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id    TEXT NOT NULL,
	session_id    TEXT NOT NULL,
	provider      TEXT NOT NULL,
	input_tokens  INTEGER NOT NULL,
	output_tokens INTEGER NOT NULL,
	total_tokens  INTEGER NOT NULL,
	created_at    INTEGER NOT NULL
)`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS usage_metrics`)
			return err
		},
	},
	{
		Name: "20250101000007_index_usage_metrics",
		Up: func(db *sql.DB) (Status, error) {
			exists, err := indexExists(db, "idx_usage_account")
			if err != nil {
				return StatusFailed, err
			}
			if exists {
				return StatusSkipped, nil
			}
			_, err = db.Exec(`
CREATE INDEX idx_usage_account ON usage_metrics(account_id);
CREATE INDEX idx_usage_provider ON usage_metrics(provider);
CREATE INDEX idx_usage_created ON usage_metrics(created_at);
CREATE INDEX idx_usage_account_created ON usage_metrics(account_id, created_at);
`)
			if err != nil {
				return StatusFailed, err
			}
			return StatusExecuted, nil
		},
		Down: func(db *sql.DB) error {
			_, err := db.Exec(`
DROP INDEX IF EXISTS idx_usage_account;
DROP INDEX IF EXISTS idx_usage_provider;
DROP INDEX IF EXISTS idx_usage_created;
DROP INDEX IF EXISTS idx_usage_account_created;
`)
			return err
		},
	},
}
