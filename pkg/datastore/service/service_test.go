package service

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"
	_ "modernc.org/sqlite"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/migrate"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/repo"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/protocol"
)

type fixture struct {
	db       *sql.DB
	accounts *repo.Accounts
	sessions *repo.Sessions
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "rs.db") + "?_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	if migrate.Failed(migrate.RunAll(db, nil)) {
		t.Fatal("migrations failed")
	}
	accounts := repo.NewAccounts(db)
	sessions := repo.NewSessions(db)
	return &fixture{
		db:       db,
		accounts: accounts,
		sessions: sessions,
		svc:      New(accounts, repo.NewUsage(db), sessions, nil, nil),
	}
}

func (f *fixture) provision(t *testing.T, tokens, topup int64) (accountID, plainKey string) {
	t.Helper()
	acc, err := f.accounts.CreateAccount("u@x.io", "Free", &tokens, &topup)
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	_, plain, err := f.accounts.CreateApiKey(acc.ID, "test", nil)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	return acc.ID, plain
}

func TestValidateAndLoad_InvalidAuth(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.ValidateAndLoad("rslive_v1_"+strings.Repeat("0", 48), "S1")
	var be *BusinessError
	if !errors.As(err, &be) || be.Name != "INVALID_AUTH" {
		t.Fatalf("want INVALID_AUTH, got %v", err)
	}
}

func TestValidateAndLoad_ExpiredKeyIsInvalidAuth(t *testing.T) {
	f := newFixture(t)
	acc, _ := f.accounts.CreateAccount("u@x.io", "", nil, nil)
	past := time.Now().Add(-time.Hour).UnixMilli()
	_, plain, err := f.accounts.CreateApiKey(acc.ID, "", &past)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	if _, err := f.svc.ValidateAndLoad(plain, "S1"); !errors.Is(err, ErrInvalidAuth) {
		t.Fatalf("want INVALID_AUTH, got %v", err)
	}
}

func TestValidateAndLoad_NoCredits(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 0, 0)
	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if !errors.Is(err, ErrNoCredits) {
		t.Fatalf("want NO_CREDITS, got %v", err)
	}
	// The refusal still identifies the account and its balance.
	if out.AccountID != accID || out.Credits != 0 {
		t.Fatalf("no-credits outcome: %+v", out)
	}
}

func TestHandler_NoCreditsFrameCarriesBalance(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, -5, 0)
	h := NewHandler(f.svc)

	fields, err := h.Handle(protocol.Request{
		ID:   "c1",
		Type: protocol.TypeValidateAndLoad,
		Args: []string{plain, "S1"},
	})
	if !errors.Is(err, ErrNoCredits) {
		t.Fatalf("want NO_CREDITS, got %v", err)
	}
	if len(fields) != 2 || fields[0] != accID || fields[1] != "-5" {
		t.Fatalf("error fields = %v", fields)
	}
}

func TestValidateAndLoad_FreshSessionEmptyData(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 1000, 0)

	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.AccountID != accID || out.Credits != 1000 || out.SessionData != "" {
		t.Fatalf("fresh session outcome: %+v", out)
	}
}

func TestValidateAndLoad_TouchesKeyLastUsed(t *testing.T) {
	f := newFixture(t)
	_, plain := f.provision(t, 1000, 0)

	if _, err := f.svc.ValidateAndLoad(plain, "S1"); err != nil {
		t.Fatalf("load: %v", err)
	}
	var lastUsed sql.NullInt64
	if err := f.db.QueryRow(`SELECT last_used_at FROM api_keys WHERE key_hash=?`, repo.HashKey(plain)).Scan(&lastUsed); err != nil {
		t.Fatalf("read last_used_at: %v", err)
	}
	if !lastUsed.Valid {
		t.Fatal("last_used_at not recorded")
	}
}

func TestValidateAndLoad_InjectsConversation(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 1000, 0)

	session := `{"type":"session.update","session":{"type":"realtime","instructions":"Be helpful"}}`
	if err := f.sessions.UpsertSession(accID, "S1", session); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := f.sessions.AppendConversation(accID, "S1", "user:hi\nagent:hello"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := `{"type":"session.update","session":{"type":"realtime","instructions":"Be helpful\n\nHere is the previous conversation that happened which should be continued now:\nuser:hi\nagent:hello"}}`
	if out.SessionData != want {
		t.Fatalf("injected payload:\n got %s\nwant %s", out.SessionData, want)
	}
	instructions := gjson.Get(out.SessionData, "session.instructions").String()
	if !strings.HasSuffix(instructions, "user:hi\nagent:hello") {
		t.Fatalf("instructions do not carry the conversation: %q", instructions)
	}
}

func TestValidateAndLoad_SessionWithoutConversation(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 1000, 0)
	session := `{"type":"session.update","session":{"instructions":"Be helpful"}}`
	if err := f.sessions.UpsertSession(accID, "S1", session); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.SessionData != session {
		t.Fatalf("payload changed without conversation: %q", out.SessionData)
	}
}

func TestValidateAndLoad_SyntheticSessionFromConversationOnly(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 1000, 0)
	if err := f.sessions.AppendConversation(accID, "S1", "user:hi"); err != nil {
		t.Fatalf("append: %v", err)
	}

	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gjson.Get(out.SessionData, "type").String() != "session.update" {
		t.Fatalf("synthetic envelope type: %s", out.SessionData)
	}
	instructions := gjson.Get(out.SessionData, "session.instructions").String()
	if !strings.HasSuffix(instructions, "user:hi") {
		t.Fatalf("synthetic instructions: %q", instructions)
	}
}

type fakeSummarizer struct {
	got    chan string
	target chan int
	out    string
	err    error
}

func (s *fakeSummarizer) Summarize(_ context.Context, conversation string, targetChars int) (string, error) {
	s.got <- conversation
	s.target <- targetChars
	return s.out, s.err
}

func TestValidateAndLoad_OversizeConversationTruncatesAndSummarizes(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 1000, 0)

	// 97-char lines so the truncation cut lands mid-line.
	line := strings.Repeat("x", 96) + "\n"
	conv := strings.Repeat(line, 413)
	if err := f.sessions.AppendConversation(accID, "S1", conv); err != nil {
		t.Fatalf("append: %v", err)
	}

	summarizer := &fakeSummarizer{got: make(chan string, 1), target: make(chan int, 1), out: "condensed"}
	f.svc.Summarizer = summarizer

	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	instructions := gjson.Get(out.SessionData, "session.instructions").String()
	idx := strings.Index(instructions, "[...earlier context omitted...]\n")
	if idx < 0 {
		t.Fatalf("truncation marker missing: %q", instructions[:80])
	}
	kept := instructions[idx+len("[...earlier context omitted...]\n"):]
	if len(kept) >= ThresholdChars {
		t.Fatalf("kept %d chars, want < %d", len(kept), ThresholdChars)
	}
	// The partial leading line is dropped, so the kept text starts on a
	// full line.
	if !strings.HasPrefix(kept, line) {
		t.Fatalf("kept text does not start on a line boundary: %q", kept[:120])
	}

	if sent := <-summarizer.got; sent != conv {
		t.Fatalf("summarizer received %d chars, want full %d", len(sent), len(conv))
	}
	if target := <-summarizer.target; target != 24000 {
		t.Fatalf("summary target = %d, want 24000", target)
	}

	f.svc.Wait()
	var data string
	if err := f.db.QueryRow(`SELECT data FROM sessions WHERE account_id=? AND session_id=? AND kind='CONV'`,
		accID, "S1").Scan(&data); err != nil {
		t.Fatalf("read conv: %v", err)
	}
	if data != "condensed" {
		t.Fatalf("conversation not overwritten by summary: %d chars", len(data))
	}
}

func TestValidateAndLoad_SummarizerFailureKeepsServing(t *testing.T) {
	f := newFixture(t)
	accID, plain := f.provision(t, 1000, 0)
	conv := strings.Repeat("a", ThresholdChars+100)
	if err := f.sessions.AppendConversation(accID, "S1", conv); err != nil {
		t.Fatalf("append: %v", err)
	}
	summarizer := &fakeSummarizer{
		got:    make(chan string, 1),
		target: make(chan int, 1),
		err:    errors.New("llm down"),
	}
	f.svc.Summarizer = summarizer

	out, err := f.svc.ValidateAndLoad(plain, "S1")
	if err != nil {
		t.Fatalf("load should succeed despite summarizer failure: %v", err)
	}
	if out.SessionData == "" {
		t.Fatal("truncated payload still expected")
	}
	<-summarizer.got
	<-summarizer.target
	f.svc.Wait()

	var data string
	if err := f.db.QueryRow(`SELECT data FROM sessions WHERE account_id=? AND session_id=? AND kind='CONV'`,
		accID, "S1").Scan(&data); err != nil {
		t.Fatalf("read conv: %v", err)
	}
	if data != conv {
		t.Fatal("failed summarization must leave the transcript untouched")
	}
}

func TestSaveSession_TransformsUpdatedEcho(t *testing.T) {
	f := newFixture(t)
	accID, _ := f.provision(t, 1000, 0)

	raw := `{"type":"session.updated","event_id":"ev1","session":{"object":"realtime.session","id":"sess_123","expires_at":1756000000,"model":"gpt-4o-realtime-preview","instructions":"Be helpful","temperature":null,"turn_detection":{"type":"server_vad","threshold":null}}}`
	f.svc.SaveSession(accID, "S1", raw)

	var data string
	if err := f.db.QueryRow(`SELECT data FROM sessions WHERE account_id=? AND session_id=? AND kind='SESSION'`,
		accID, "S1").Scan(&data); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if gjson.Get(data, "type").String() != "session.update" {
		t.Fatalf("envelope type: %s", data)
	}
	for _, gone := range []string{"session.object", "session.id", "session.expires_at", "session.temperature", "session.turn_detection.threshold"} {
		if gjson.Get(data, gone).Exists() {
			t.Fatalf("field %s should be stripped: %s", gone, data)
		}
	}
	if gjson.Get(data, "session.instructions").String() != "Be helpful" {
		t.Fatalf("instructions lost: %s", data)
	}
	if gjson.Get(data, "session.turn_detection.type").String() != "server_vad" {
		t.Fatalf("nested field lost: %s", data)
	}
}

func TestSaveSession_NonUpdatedEventStoredVerbatim(t *testing.T) {
	f := newFixture(t)
	accID, _ := f.provision(t, 1000, 0)

	raw := `{"type":"session.update","session":{"instructions":"x"}}`
	f.svc.SaveSession(accID, "S1", raw)

	var data string
	if err := f.db.QueryRow(`SELECT data FROM sessions WHERE account_id=? AND session_id=? AND kind='SESSION'`,
		accID, "S1").Scan(&data); err != nil {
		t.Fatalf("read session: %v", err)
	}
	if data != raw {
		t.Fatalf("payload altered: %q", data)
	}
}

func TestUpdateUsage_SwallowsFailure(t *testing.T) {
	f := newFixture(t)
	// Unknown account: must log, not panic, not error out.
	f.svc.UpdateUsage("ghost", "S1", "OPENAI", 1, 1)
}
