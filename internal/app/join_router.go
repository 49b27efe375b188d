package app

import (
	"context"
	"errors"
	"log/slog"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/metrics"
)

// JoinRouter resolves a typed code to a live session or a collaborative
// authoring session.
type JoinRouter struct {
	sessions *SessionService
	live     SessionStore
	collab   CollabStore
	log      *slog.Logger
}

func NewJoinRouter(sessions *SessionService, live SessionStore, collab CollabStore, log *slog.Logger) *JoinRouter {
	if log == nil {
		log = slog.Default()
	}
	return &JoinRouter{sessions: sessions, live: live, collab: collab, log: log}
}

// Join looks the code up among live sessions first, then open collaborative
// sessions. Only a waiting live session creates a participant.
func (r *JoinRouter) Join(ctx context.Context, rawCode, displayName string) (domain.JoinResult, error) {
	code, err := domain.NormalizeCode(rawCode)
	if err != nil {
		metrics.Joins.WithLabelValues("unknown", "invalid").Inc()
		return domain.JoinResult{}, err
	}
	name, err := domain.NormalizeName(displayName)
	if err != nil {
		metrics.Joins.WithLabelValues("unknown", "invalid").Inc()
		return domain.JoinResult{}, err
	}

	session, err := r.live.FindSessionByCode(ctx, code)
	switch {
	case err == nil:
		return r.joinLive(ctx, session, name)
	case !errors.Is(err, domain.ErrSessionNotFound):
		return domain.JoinResult{}, err
	}

	if r.collab != nil {
		collab, err := r.collab.FindOpenCollabByCode(ctx, code)
		switch {
		case err == nil:
			metrics.Joins.WithLabelValues(string(domain.JoinCollab), "ok").Inc()
			return domain.JoinResult{Mode: domain.JoinCollab, CollabSessionID: collab.ID}, nil
		case !errors.Is(err, domain.ErrCollabNotFound):
			return domain.JoinResult{}, err
		}
	}

	metrics.Joins.WithLabelValues("unknown", "not_found").Inc()
	return domain.JoinResult{}, domain.ErrInvalidCode
}

func (r *JoinRouter) joinLive(ctx context.Context, session domain.Session, name string) (domain.JoinResult, error) {
	if session.Status != domain.StatusWaiting {
		metrics.Joins.WithLabelValues(string(domain.JoinLive), "started").Inc()
		return domain.JoinResult{}, domain.ErrSessionStarted
	}
	participant, err := r.sessions.Join(ctx, session.ID, name)
	if err != nil {
		// The session may have started between lookup and insert.
		metrics.Joins.WithLabelValues(string(domain.JoinLive), domain.KindOf(err).String()).Inc()
		return domain.JoinResult{}, err
	}
	metrics.Joins.WithLabelValues(string(domain.JoinLive), "ok").Inc()
	r.log.Info("participant joined", "session_id", session.ID, "participant_id", participant.ID)
	return domain.JoinResult{Mode: domain.JoinLive, SessionID: session.ID, Participant: &participant}, nil
}
