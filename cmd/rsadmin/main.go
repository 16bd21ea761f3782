// Command rsadmin manages accounts and API keys directly against the
// datastore's SQLite file. Run it while the datastore process is stopped,
// or point it at the same DB_PATH; the single-writer pool serializes access.
//
// Usage:
//
//	rsadmin create-account -email you@example.com [-plan Pro]
//	rsadmin create-key -account <account-id> [-label "staging"] [-ttl-days 90]
//	rsadmin revoke-key -key <plaintext-key>
//	rsadmin credits -account <account-id>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/config"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/migrate"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/repo"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/store"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	if err := run(os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "rsadmin: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rsadmin <create-account|create-key|revoke-key|credits> [flags]")
}

func run(command string, args []string) error {
	cfg, err := config.LoadDatastore(context.Background())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	st, err := store.Open(cfg.DBPath, cfg.EncryptionKey)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if results := migrate.RunAll(st.DB(), nil); migrate.Failed(results) {
		return fmt.Errorf("migrations failed")
	}
	accounts := repo.NewAccounts(st.DB())

	switch command {
	case "create-account":
		return createAccount(accounts, args)
	case "create-key":
		return createKey(accounts, args)
	case "revoke-key":
		return revokeKey(accounts, args)
	case "credits":
		return credits(accounts, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func createAccount(accounts *repo.Accounts, args []string) error {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	email := fs.String("email", "", "account email (required)")
	plan := fs.String("plan", "Free", "plan name: Free, Pro, or Enterprise")
	_ = fs.Parse(args)
	if *email == "" {
		return fmt.Errorf("-email is required")
	}

	acc, err := accounts.CreateAccount(*email, *plan, nil, nil)
	if err != nil {
		return err
	}
	fmt.Printf("account %s created (%s, plan %s, tokens %d, topup %d)\n",
		acc.ID, acc.Email, acc.PlanName, acc.TokenRemaining, acc.TopupRemaining)
	return nil
}

func createKey(accounts *repo.Accounts, args []string) error {
	fs := flag.NewFlagSet("create-key", flag.ExitOnError)
	account := fs.String("account", "", "account id (required)")
	label := fs.String("label", "", "key label")
	ttlDays := fs.Int("ttl-days", 0, "days until the key expires, 0 for no expiry")
	_ = fs.Parse(args)
	if *account == "" {
		return fmt.Errorf("-account is required")
	}

	var expiresAt *int64
	if *ttlDays > 0 {
		exp := time.Now().Add(time.Duration(*ttlDays) * 24 * time.Hour).UnixMilli()
		expiresAt = &exp
	}
	key, plaintext, err := accounts.CreateApiKey(*account, *label, expiresAt)
	if err != nil {
		return err
	}
	fmt.Printf("key created for account %s (%s)\n", key.AccountID, key.KeyIndicator)
	fmt.Printf("store this now, it is not recoverable:\n%s\n", plaintext)
	return nil
}

func revokeKey(accounts *repo.Accounts, args []string) error {
	fs := flag.NewFlagSet("revoke-key", flag.ExitOnError)
	plainKey := fs.String("key", "", "plaintext key to revoke (required)")
	_ = fs.Parse(args)
	if *plainKey == "" {
		return fmt.Errorf("-key is required")
	}

	revoked, err := accounts.RevokeApiKey(repo.HashKey(*plainKey))
	if err != nil {
		return err
	}
	if !revoked {
		return fmt.Errorf("no such key")
	}
	fmt.Println("key revoked")
	return nil
}

func credits(accounts *repo.Accounts, args []string) error {
	fs := flag.NewFlagSet("credits", flag.ExitOnError)
	account := fs.String("account", "", "account id (required)")
	_ = fs.Parse(args)
	if *account == "" {
		return fmt.Errorf("-account is required")
	}

	balance, err := accounts.GetCredits(*account)
	if err != nil {
		return err
	}
	fmt.Printf("%d\n", balance)
	return nil
}
