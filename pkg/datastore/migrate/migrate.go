// Package migrate applies the datastore schema through ordered, idempotent
// steps. Each step checks whether its target object already exists and
// reports executed or skipped; a second run over the same file yields all
// skipped.
package migrate

import (
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
)

// Status is the outcome of one migration step.
type Status string

const (
	StatusExecuted Status = "executed"
	StatusSkipped  Status = "skipped"
	StatusFailed   Status = "failed"
)

// Migration is one named schema step. Name carries a sortable timestamp
// prefix; steps run in lexicographic name order.
type Migration struct {
	Name string
	Up   func(db *sql.DB) (Status, error)
	Down func(db *sql.DB) error
}

// Result records one step's outcome within a run.
type Result struct {
	Name   string
	Status Status
	Err    error
}

// RunAll applies every registered migration in order, stopping at the first
// failure. The returned slice holds one entry per attempted step.
func RunAll(db *sql.DB, logger *slog.Logger) []Result {
	if logger == nil {
		logger = slog.Default()
	}
	migrations := registry()
	results := make([]Result, 0, len(migrations))
	for _, m := range migrations {
		status, err := m.Up(db)
		if err != nil {
			status = StatusFailed
		}
		results = append(results, Result{Name: m.Name, Status: status, Err: err})
		if err != nil {
			logger.Error("migration failed", "name", m.Name, "error", err)
			return results
		}
		logger.Info("migration", "name", m.Name, "status", status)
	}
	return results
}

// Rollback runs the Down step of the named migration.
func Rollback(db *sql.DB, name string) error {
	for _, m := range registry() {
		if m.Name == name {
			return m.Down(db)
		}
	}
	return fmt.Errorf("unknown migration %q", name)
}

// Failed reports whether any entry in a run failed.
func Failed(results []Result) bool {
	for _, r := range results {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

func registry() []Migration {
	migrations := append([]Migration(nil), all...)
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Name < migrations[j].Name })
	return migrations
}

// tableExists reports whether a table of the given name exists.
func tableExists(db *sql.DB, name string) (bool, error) {
	return rowExists(db, `SELECT 1 FROM sqlite_master WHERE type='table' AND name=?`, name)
}

// columnExists reports whether the table carries the named column.
func columnExists(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return false, err
	}
	defer rows.Close()
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// indexExists reports whether an index of the given name exists.
func indexExists(db *sql.DB, name string) (bool, error) {
	return rowExists(db, `SELECT 1 FROM sqlite_master WHERE type='index' AND name=?`, name)
}

// triggerExists reports whether a trigger of the given name exists.
func triggerExists(db *sql.DB, name string) (bool, error) {
	return rowExists(db, `SELECT 1 FROM sqlite_master WHERE type='trigger' AND name=?`, name)
}

// tableIsEmpty reports whether the table has no rows.
func tableIsEmpty(db *sql.DB, table string) (bool, error) {
	exists, err := rowExists(db, fmt.Sprintf("SELECT 1 FROM %q LIMIT 1", table))
	return !exists, err
}

// rowExists reports whether the query yields at least one row.
func rowExists(db *sql.DB, query string, args ...any) (bool, error) {
	var one int
	err := db.QueryRow(query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
