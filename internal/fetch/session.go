package fetch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/rs/zerolog"
)

// SessionManager creates and tears down daemon sessions.
type SessionManager struct {
	client *Client
	logger zerolog.Logger
}

// NewSessionManager creates a SessionManager issuing requests through client.
func NewSessionManager(logger zerolog.Logger, client *Client) *SessionManager {
	return &SessionManager{
		client: client,
		logger: logger.With().Str("component", "fetch-sessions").Logger(),
	}
}

// Create opens a new session.
func (m *SessionManager) Create(ctx context.Context) (Session, error) {
	var s Session
	err := m.client.Do(ctx, http.MethodPost, "session", struct{}{}, &s)
	if err == nil && (s.ID == "" || s.Token == "") {
		err = newError(ErrInvalidSession, "fetch-service returned a session without id or token")
	}
	sessionEventsTotal.WithLabelValues("create", resultLabel(err)).Inc()
	if err != nil {
		return Session{}, err
	}

	m.logger.Info().Object("session", s).Msg("created fetch-service session")
	return s, nil
}

// Teardown revokes the session token, captures the session report, then
// deletes the session and its resources, in that order. The report is read
// before deletion so it reflects the final session state. The first failing
// step stops the teardown and is returned as a *TeardownError.
func (m *SessionManager) Teardown(ctx context.Context, s Session) (json.RawMessage, error) {
	report, err := m.teardown(ctx, s)
	sessionEventsTotal.WithLabelValues("teardown", resultLabel(err)).Inc()
	if err != nil {
		m.logger.Warn().Err(err).Object("session", s).Msg("fetch-service session teardown failed")
		return nil, err
	}

	m.logger.Info().Object("session", s).Int("report_bytes", len(report)).Msg("tore down fetch-service session")
	return report, nil
}

func (m *SessionManager) teardown(ctx context.Context, s Session) (json.RawMessage, error) {
	if s.ID == "" {
		return nil, newError(ErrInvalidSession, "cannot tear down a session without an id")
	}
	id := url.PathEscape(s.ID)
	base := "session/" + id

	step := func(name TeardownStep, err error) error {
		if err == nil {
			return nil
		}
		return &TeardownError{Step: name, SessionID: s.ID, Err: err}
	}

	revoke := map[string]string{"token": s.Token}
	if err := step(StepRevokeToken, m.client.Do(ctx, http.MethodDelete, base+"/token", revoke, nil)); err != nil {
		return nil, err
	}

	var report json.RawMessage
	if err := step(StepReport, m.client.Do(ctx, http.MethodGet, base, struct{}{}, &report)); err != nil {
		return nil, err
	}

	if err := step(StepDeleteSession, m.client.Do(ctx, http.MethodDelete, base, nil, nil)); err != nil {
		return nil, err
	}

	if err := step(StepDeleteResources, m.client.Do(ctx, http.MethodDelete, "resources/"+id, nil, nil)); err != nil {
		return nil, err
	}

	return report, nil
}
