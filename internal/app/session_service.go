package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/metrics"
)

const defaultSubscriberBuffer = 16

// SessionService drives live sessions. All shared state lives in the stores;
// the service keeps nothing between calls.
type SessionService struct {
	store    LiveStore
	quizzes  QuizRepository
	broker   Broker
	codes    *JoinCodes
	policy   ScoringPolicy
	revealTo domain.Status
	events   EventPublisher
	log      *slog.Logger
	now      func() time.Time
	buffer   int
}

// Option customizes a SessionService.
type Option func(*SessionService)

func WithEvents(p EventPublisher) Option {
	return func(s *SessionService) { s.events = p }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *SessionService) { s.log = l }
}

// WithClock is used by tests for deterministic timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *SessionService) { s.now = now }
}

func WithJoinCodes(c *JoinCodes) Option {
	return func(s *SessionService) { s.codes = c }
}

// WithRevealPhase selects the phase entered when a question closes:
// domain.StatusQuestionResult (default) or domain.StatusLeaderboard.
func WithRevealPhase(status domain.Status) Option {
	return func(s *SessionService) { s.revealTo = status }
}

func WithSubscriberBuffer(n int) Option {
	return func(s *SessionService) {
		if n > 0 {
			s.buffer = n
		}
	}
}

func NewSessionService(store LiveStore, quizzes QuizRepository, broker Broker, policy ScoringPolicy, opts ...Option) *SessionService {
	s := &SessionService{
		store:    store,
		quizzes:  quizzes,
		broker:   broker,
		policy:   policy,
		revealTo: domain.StatusQuestionResult,
		events:   nopEvents{},
		log:      slog.Default(),
		now:      time.Now,
		buffer:   defaultSubscriberBuffer,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.codes == nil {
		s.codes = NewJoinCodes(DefaultCodeLength, store, nil)
	}
	return s
}

// Policy returns the scoring policy, including the question duration clients count down.
func (s *SessionService) Policy() ScoringPolicy {
	return s.policy
}

// CreateSession starts a waiting session for a saved quiz with a fresh join code.
func (s *SessionService) CreateSession(ctx context.Context, quizID string) (domain.Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Session{}, err
	}
	if len(quiz.Questions) == 0 {
		return domain.Session{}, domain.Invalid("quiz", "has no questions")
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.Next(ctx)
		if err != nil {
			return domain.Session{}, err
		}
		session := domain.Session{
			ID:            uuid.NewString(),
			QuizID:        quiz.ID,
			JoinCode:      code,
			Status:        domain.StatusWaiting,
			QuestionIndex: domain.NoQuestion,
			Version:       1,
			CreatedAt:     s.now().UTC(),
		}
		err = s.store.CreateSession(ctx, session)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return domain.Session{}, fmt.Errorf("create session: %w", err)
		}
		s.log.Info("session created", "session_id", session.ID, "quiz_id", quiz.ID, "join_code", code)
		s.emit(ctx, "session.created", session)
		return session, nil
	}
	return domain.Session{}, domain.ErrJoinCodeTaken
}

// Join adds a participant to a waiting session.
func (s *SessionService) Join(ctx context.Context, sessionID, displayName string) (domain.Participant, error) {
	name, err := domain.NormalizeName(displayName)
	if err != nil {
		return domain.Participant{}, err
	}
	participant, session, err := s.store.AddParticipant(ctx, domain.Participant{
		ID:          uuid.NewString(),
		SessionID:   sessionID,
		DisplayName: name,
		JoinedAt:    s.now().UTC(),
	})
	if err != nil {
		return domain.Participant{}, err
	}
	s.publish(ctx, session)
	return participant, nil
}

// TransitionOption customizes a transition request.
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	expectIndex *int
}

// ExpectIndex makes a request a no-op unless the session is still on index.
// Clients pass the index they saw so retries cannot advance twice.
func ExpectIndex(index int) TransitionOption {
	return func(o *transitionOptions) { o.expectIndex = &index }
}

// StartSession moves a waiting session to its first question.
func (s *SessionService) StartSession(ctx context.Context, sessionID string, opts ...TransitionOption) (domain.Session, bool, error) {
	return s.apply(ctx, sessionID, domain.EventStart, opts)
}

// Advance starts the next question, or finishes the session after the last one.
func (s *SessionService) Advance(ctx context.Context, sessionID string, opts ...TransitionOption) (domain.Session, bool, error) {
	return s.apply(ctx, sessionID, domain.EventAdvance, opts)
}

// RevealResult closes the active question.
func (s *SessionService) RevealResult(ctx context.Context, sessionID string, opts ...TransitionOption) (domain.Session, bool, error) {
	return s.apply(ctx, sessionID, domain.EventReveal, opts)
}

// ShowLeaderboard moves from the question result to the standings.
func (s *SessionService) ShowLeaderboard(ctx context.Context, sessionID string, opts ...TransitionOption) (domain.Session, bool, error) {
	return s.apply(ctx, sessionID, domain.EventLeaderboard, opts)
}

// apply runs one compare-and-set transition. applied=false with a nil error
// means another request got there first; the caller observes the winner's
// state through the returned session and the fan-out.
func (s *SessionService) apply(ctx context.Context, sessionID string, event domain.Event, opts []TransitionOption) (domain.Session, bool, error) {
	var o transitionOptions
	for _, opt := range opts {
		opt(&o)
	}

	current, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, false, err
	}
	if (o.expectIndex != nil && current.QuestionIndex != *o.expectIndex) || domain.Settled(current, event) {
		metrics.Transitions.WithLabelValues(string(event), "noop").Inc()
		return current, false, nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, current.QuizID)
	if err != nil {
		return current, false, err
	}
	plan, err := domain.Plan(current, event, len(quiz.Questions), s.now(), s.revealTo)
	if err != nil {
		metrics.Transitions.WithLabelValues(string(event), "rejected").Inc()
		return current, false, err
	}

	next, err := s.store.Transition(ctx, sessionID, plan)
	if errors.Is(err, domain.ErrTransitionConflict) {
		metrics.Transitions.WithLabelValues(string(event), "noop").Inc()
		s.log.Debug("transition lost race", "session_id", sessionID, "event", event)
		latest, getErr := s.store.GetSession(ctx, sessionID)
		if getErr != nil {
			return current, false, nil
		}
		return latest, false, nil
	}
	if err != nil {
		return current, false, fmt.Errorf("%s session: %w", event, err)
	}

	metrics.Transitions.WithLabelValues(string(event), "applied").Inc()
	s.log.Info("session transitioned",
		"session_id", sessionID,
		"event", event,
		"from", plan.From,
		"to", next.Status,
		"question_index", next.QuestionIndex,
	)
	s.publishSnapshot(ctx, domain.NewSnapshot(next, quiz, s.policy.QuestionDuration))
	if next.Status == domain.StatusFinished {
		s.emit(ctx, "session.finished", next)
	}
	return next, true, nil
}

// SubmitAnswer scores a participant's answer to the current question.
// Late and duplicate submissions are soft rejections: Accepted=false, nil error.
func (s *SessionService) SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.SubmitResult, error) {
	if sub.OptionIndex < 0 {
		return domain.SubmitResult{}, domain.Invalid("optionIndex", "must not be negative")
	}
	session, err := s.store.GetSession(ctx, sub.SessionID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	participant, err := s.store.GetParticipant(ctx, sub.ParticipantID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if participant.SessionID != session.ID {
		return domain.SubmitResult{}, domain.ErrParticipantNotFound
	}
	if session.Status != domain.StatusActive || session.QuestionIndex != sub.QuestionIndex {
		metrics.Answers.WithLabelValues(domain.RejectLate).Inc()
		return domain.SubmitResult{Reason: domain.RejectLate}, nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.SubmitResult{}, err
	}
	if sub.QuestionIndex < 0 || sub.QuestionIndex >= len(quiz.Questions) {
		return domain.SubmitResult{}, domain.Invalid("questionIndex", "out of range")
	}
	question := quiz.Questions[sub.QuestionIndex]
	if sub.OptionIndex >= len(question.Options) {
		return domain.SubmitResult{}, domain.Invalid("optionIndex", fmt.Sprintf("%d out of range for %d options", sub.OptionIndex, len(question.Options)))
	}

	now := s.now()
	var elapsed time.Duration
	if session.QuestionStartedAt != nil {
		elapsed = now.Sub(*session.QuestionStartedAt)
	}
	correct := sub.OptionIndex == question.CorrectIndex
	answer := domain.Answer{
		SessionID:     session.ID,
		ParticipantID: participant.ID,
		QuestionIndex: sub.QuestionIndex,
		OptionIndex:   sub.OptionIndex,
		Correct:       correct,
		ScoreAwarded:  s.policy.Award(correct, elapsed),
		SubmittedAt:   now.UTC(),
	}

	stored, err := s.store.RecordAnswer(ctx, answer)
	switch {
	case errors.Is(err, domain.ErrDuplicateAnswer):
		metrics.Answers.WithLabelValues(domain.RejectDuplicate).Inc()
		return domain.SubmitResult{
			Reason:       domain.RejectDuplicate,
			Correct:      stored.Correct,
			ScoreAwarded: stored.ScoreAwarded,
		}, nil
	case errors.Is(err, domain.ErrLateAnswer):
		metrics.Answers.WithLabelValues(domain.RejectLate).Inc()
		return domain.SubmitResult{Reason: domain.RejectLate}, nil
	case err != nil:
		return domain.SubmitResult{}, fmt.Errorf("record answer: %w", err)
	}

	outcome := "incorrect"
	if stored.Correct {
		outcome = "correct"
	}
	metrics.Answers.WithLabelValues(outcome).Inc()
	s.emit(ctx, "answer.recorded", stored)
	return domain.SubmitResult{Accepted: true, Correct: stored.Correct, ScoreAwarded: stored.ScoreAwarded}, nil
}

// Snapshot returns the current subscriber view of a session.
func (s *SessionService) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.NewSnapshot(session, quiz, s.policy.QuestionDuration), nil
}

// Subscribe returns a channel that receives snapshots of a session, starting
// with the current one. Snapshots arrive in commit order; a snapshot that is
// not newer than the last one delivered is dropped.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	in, stop, err := s.broker.Subscribe(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	// Read the current state after subscribing so no commit falls in between.
	initial, err := s.Snapshot(ctx, sessionID)
	if err != nil {
		stop()
		return nil, nil, err
	}

	out := make(chan domain.Snapshot, s.buffer)
	done := make(chan struct{})
	metrics.Subscriptions.Inc()

	go func() {
		defer close(out)
		defer metrics.Subscriptions.Dec()

		last := int64(-1)
		deliver := func(snap domain.Snapshot) bool {
			if snap.Session.Version <= last {
				return true
			}
			last = snap.Session.Version
			select {
			case out <- snap:
				return true
			case <-done:
				return false
			}
		}

		if !deliver(initial) {
			return
		}
		for {
			select {
			case snap, ok := <-in:
				if !ok {
					return
				}
				if !deliver(snap) {
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			stop()
		})
	}
	return out, cancel, nil
}

// Leaderboard ranks participants by score, ties broken by join order.
func (s *SessionService) Leaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return domain.Rank(participants), nil
}

// Results returns the post-game analysis of a session.
func (s *SessionService) Results(ctx context.Context, sessionID string) (domain.SessionResults, error) {
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	participants, err := s.store.ListParticipants(ctx, sessionID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	answers, err := s.store.ListAnswers(ctx, sessionID)
	if err != nil {
		return domain.SessionResults{}, err
	}
	return domain.SessionResults{
		Session:     session,
		Quiz:        quiz,
		Leaderboard: domain.Rank(participants),
		Questions:   domain.Tally(quiz, answers),
	}, nil
}

// ListFinished returns finished sessions, newest first.
func (s *SessionService) ListFinished(ctx context.Context, limit int) ([]domain.Session, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListFinished(ctx, limit)
}

func (s *SessionService) publish(ctx context.Context, session domain.Session) {
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		s.log.Warn("snapshot skipped", "session_id", session.ID, "error", err)
		return
	}
	s.publishSnapshot(ctx, domain.NewSnapshot(session, quiz, s.policy.QuestionDuration))
}

func (s *SessionService) publishSnapshot(ctx context.Context, snap domain.Snapshot) {
	if err := s.broker.Publish(ctx, snap); err != nil {
		// Subscribers resync from the next snapshot or on reconnect.
		s.log.Warn("publish snapshot failed", "session_id", snap.Session.ID, "version", snap.Session.Version, "error", err)
	}
}

func (s *SessionService) emit(ctx context.Context, eventType string, payload any) {
	if err := s.events.Publish(ctx, eventType, payload); err != nil {
		s.log.Warn("publish event failed", "event", eventType, "error", err)
	}
}
