// Package service implements the datastore's business operations on top of
// the repositories: key validation with session replay assembly, usage
// recording, session persistence, and conversation growth control.
package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/repo"
	"github.com/apuravchauhan/realtime-switch-v2/pkg/datastore/summarize"
)

// BusinessError is an operation failure whose name travels on the wire and
// drives the gateway's client-facing status.
type BusinessError struct {
	Name string
}

func (e *BusinessError) Error() string    { return e.Name }
func (e *BusinessError) WireName() string { return e.Name }

var (
	ErrInvalidAuth = &BusinessError{Name: "INVALID_AUTH"}
	ErrNoCredits   = &BusinessError{Name: "NO_CREDITS"}
)

// LoadOutcome is a successful ValidateAndLoad result.
type LoadOutcome struct {
	AccountID   string
	SessionData string
	Credits     int64
}

// Service wires the repositories, the optional summarizer, and the logger.
type Service struct {
	Accounts   *repo.Accounts
	Usage      *repo.Usage
	Sessions   *repo.Sessions
	Summarizer summarize.Summarizer
	Logger     *slog.Logger

	background sync.WaitGroup
}

// New builds a Service. Summarizer may be nil, in which case oversized
// conversations are truncated for the request but never condensed.
func New(accounts *repo.Accounts, usage *repo.Usage, sessions *repo.Sessions, summarizer summarize.Summarizer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Accounts:   accounts,
		Usage:      usage,
		Sessions:   sessions,
		Summarizer: summarizer,
		Logger:     logger,
	}
}

// ValidateAndLoad resolves an API key and session id into the replay
// payload for a new client connection. An unknown or expired key fails with
// INVALID_AUTH; an exhausted balance fails with NO_CREDITS, still carrying
// the account id and the (non-positive) balance for the caller to report.
func (s *Service) ValidateAndLoad(apiKey, sessionID string) (LoadOutcome, error) {
	res, err := s.Sessions.LoadSessionByKeyAndId(apiKey, sessionID)
	if err != nil {
		return LoadOutcome{}, err
	}
	if res == nil {
		return LoadOutcome{}, ErrInvalidAuth
	}
	if err := s.Accounts.TouchApiKey(res.KeyHash); err != nil {
		s.Logger.Warn("touch api key failed", "error", err)
	}

	credits := res.TokenRemaining + res.TopupRemaining
	if credits <= 0 {
		return LoadOutcome{AccountID: res.AccountID, Credits: credits}, ErrNoCredits
	}
	out := LoadOutcome{AccountID: res.AccountID, Credits: credits}

	conv := res.ConvData
	if res.HasConv && len(conv) > ThresholdChars {
		s.scheduleSummarization(res.AccountID, sessionID, conv)
		conv = truncateConversation(conv)
	}

	switch {
	case res.HasSession && res.HasConv && conv != "":
		out.SessionData = injectConversation(res.SessionData, conv)
	case res.HasSession:
		out.SessionData = res.SessionData
	case res.HasConv && conv != "":
		out.SessionData = syntheticSession(conv)
	}
	return out, nil
}

// GetCredits returns the combined balance for an account.
func (s *Service) GetCredits(accountID string) (int64, error) {
	return s.Accounts.GetCredits(accountID)
}

// UpdateUsage records a usage batch. Fire-and-forget: failures log only.
func (s *Service) UpdateUsage(accountID, sessionID, provider string, inputTokens, outputTokens int64) {
	if err := s.Usage.InsertUsage(accountID, sessionID, provider, inputTokens, outputTokens); err != nil {
		s.Logger.Error("usage insert failed",
			"account_id", accountID, "session_id", sessionID, "error", err)
	}
}

// SaveSession persists an upstream session event. A session.updated echo is
// rewritten into the session.update form the upstream accepts on replay:
// server-only fields dropped, null values removed, envelope retyped.
func (s *Service) SaveSession(accountID, sessionID, rawEvent string) {
	payload := rawEvent
	if parsed := gjson.Parse(rawEvent); parsed.Get("type").String() == "session.updated" && parsed.Get("session").Exists() {
		payload = transformSessionEvent(parsed.Get("session"))
	}
	if err := s.Sessions.UpsertSession(accountID, sessionID, payload); err != nil {
		s.Logger.Error("session save failed",
			"account_id", accountID, "session_id", sessionID, "error", err)
	}
}

// AppendConversation extends the stored transcript. Fire-and-forget.
func (s *Service) AppendConversation(accountID, sessionID, blob string) {
	if err := s.Sessions.AppendConversation(accountID, sessionID, blob); err != nil {
		s.Logger.Error("conversation append failed",
			"account_id", accountID, "session_id", sessionID, "error", err)
	}
}

// Wait blocks until background summarizations finish. Used on shutdown and
// in tests.
func (s *Service) Wait() { s.background.Wait() }

// scheduleSummarization condenses an oversized transcript off the request
// path. Best-effort: the session keeps serving on any failure.
func (s *Service) scheduleSummarization(accountID, sessionID, conv string) {
	if s.Summarizer == nil {
		return
	}
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		summary, err := s.Summarizer.Summarize(context.Background(), conv, summarize.DefaultTargetChars)
		if err != nil {
			s.Logger.Warn("summarization failed",
				"account_id", accountID, "session_id", sessionID, "error", err)
			return
		}
		if err := s.Sessions.OverwriteConversation(accountID, sessionID, summary); err != nil {
			s.Logger.Error("summary write failed",
				"account_id", accountID, "session_id", sessionID, "error", err)
		}
	}()
}

// transformSessionEvent rebuilds a session.updated echo as a session.update
// request payload.
func transformSessionEvent(session gjson.Result) string {
	cleaned := stripNulls(session)
	for _, field := range []string{"object", "id", "expires_at"} {
		cleaned, _ = sjson.Delete(cleaned, field)
	}
	out := `{"type":"session.update","session":` + cleaned + `}`
	return out
}

// stripNulls walks a JSON value and drops null-valued object fields at
// every depth.
func stripNulls(v gjson.Result) string {
	switch {
	case v.IsObject():
		out := "{}"
		v.ForEach(func(key, value gjson.Result) bool {
			if value.Type == gjson.Null {
				return true
			}
			out, _ = sjson.SetRaw(out, key.String(), stripNulls(value))
			return true
		})
		return out
	case v.IsArray():
		out := "[]"
		v.ForEach(func(_, value gjson.Result) bool {
			out, _ = sjson.SetRaw(out, "-1", stripNulls(value))
			return true
		})
		return out
	default:
		return v.Raw
	}
}
