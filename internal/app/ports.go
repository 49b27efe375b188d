package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// SessionStore is the durable record of each session's phase.
type SessionStore interface {
	// CreateSession stores a new session. It fails with domain.ErrJoinCodeTaken
	// when another non-finished session holds the same join code.
	CreateSession(ctx context.Context, session domain.Session) error
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	// FindSessionByCode only considers sessions that are not finished.
	FindSessionByCode(ctx context.Context, code string) (domain.Session, error)
	// Transition applies t only if the session is still in t.From at
	// t.FromIndex, otherwise it returns domain.ErrTransitionConflict.
	// Reaching finished releases the join code.
	Transition(ctx context.Context, sessionID string, t domain.Transition) (domain.Session, error)
	ListFinished(ctx context.Context, limit int) ([]domain.Session, error)
}

// ParticipantRegistry stores participants and their running scores.
type ParticipantRegistry interface {
	// AddParticipant inserts p only while the session is waiting, assigning its
	// join sequence and bumping the session version in the same step.
	AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, domain.Session, error)
	GetParticipant(ctx context.Context, participantID string) (domain.Participant, error)
	// ListParticipants returns participants in join order.
	ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error)
}

// AnswerLedger is the append-only answer record.
type AnswerLedger interface {
	// RecordAnswer inserts a and adds a.ScoreAwarded to the participant in one
	// atomic step, guarded on the session still being active on
	// a.QuestionIndex (domain.ErrLateAnswer otherwise). When the participant
	// already answered, it returns the stored answer with domain.ErrDuplicateAnswer.
	RecordAnswer(ctx context.Context, a domain.Answer) (domain.Answer, error)
	ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error)
}

// LiveStore groups the stores that must share one consistency boundary.
type LiveStore interface {
	SessionStore
	ParticipantRegistry
	AnswerLedger
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// QuizStore persists authored quizzes.
type QuizStore interface {
	QuizRepository
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
	// ListQuizzes returns quizzes of authorID newest first; an empty authorID
	// lists anonymous quizzes.
	ListQuizzes(ctx context.Context, authorID string) ([]domain.Quiz, error)
}

// CollabStore persists collaborative authoring sessions and their submissions.
type CollabStore interface {
	CreateCollab(ctx context.Context, c domain.CollabSession) error
	GetCollab(ctx context.Context, collabID string) (domain.CollabSession, error)
	FindOpenCollabByCode(ctx context.Context, code string) (domain.CollabSession, error)
	// AddSubmission assigns the submission sequence; fails with
	// domain.ErrCollabClosed unless the session is open.
	AddSubmission(ctx context.Context, sub domain.SubmittedQuestion) (domain.SubmittedQuestion, error)
	ListSubmissions(ctx context.Context, collabID string) ([]domain.SubmittedQuestion, error)
	SetSubmissionStatus(ctx context.Context, collabID, submissionID string, status domain.SubmissionStatus) (domain.SubmittedQuestion, error)
	// FinalizeCollab saves quiz and closes the session atomically.
	FinalizeCollab(ctx context.Context, collabID string, quiz domain.Quiz) (domain.CollabSession, error)
}

// Broker fans session snapshots out to subscribers of a session.
type Broker interface {
	Publish(ctx context.Context, snapshot domain.Snapshot) error
	// Subscribe returns a channel of snapshots for sessionID. The channel is
	// closed when cancel is called or the subscriber falls too far behind.
	Subscribe(ctx context.Context, sessionID string) (<-chan domain.Snapshot, func(), error)
}

// EventPublisher emits domain events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, eventType string, payload any) error
}

// Generator is the external quiz-content collaborator.
type Generator interface {
	Generate(ctx context.Context, sourceText string, count int) ([]domain.Question, error)
}

type nopEvents struct{}

func (nopEvents) Publish(context.Context, string, any) error { return nil }
