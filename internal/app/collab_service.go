package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"live-quiz-service/internal/domain"
)

const collabTitleSuffix = " (student-made)"

// CollabService runs collaborative authoring: students propose questions, the
// host moderates them, and approved ones become a new quiz.
type CollabService struct {
	store CollabStore
	codes *JoinCodes
	log   *slog.Logger
	now   func() time.Time
}

func NewCollabService(store CollabStore, codes *JoinCodes, log *slog.Logger) *CollabService {
	if log == nil {
		log = slog.Default()
	}
	return &CollabService{store: store, codes: codes, log: log, now: time.Now}
}

// Create opens a collaborative session with its own join code.
func (s *CollabService) Create(ctx context.Context, title, authorID string) (domain.CollabSession, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return domain.CollabSession{}, domain.Invalid("title", "must not be empty")
	}
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code, err := s.codes.Next(ctx)
		if err != nil {
			return domain.CollabSession{}, err
		}
		c := domain.CollabSession{
			ID:        uuid.NewString(),
			Title:     title,
			AuthorID:  strings.TrimSpace(authorID),
			JoinCode:  code,
			Status:    domain.CollabOpen,
			CreatedAt: s.now().UTC(),
		}
		err = s.store.CreateCollab(ctx, c)
		if errors.Is(err, domain.ErrJoinCodeTaken) {
			continue
		}
		if err != nil {
			return domain.CollabSession{}, fmt.Errorf("create collab session: %w", err)
		}
		s.log.Info("collab session created", "collab_id", c.ID, "join_code", code)
		return c, nil
	}
	return domain.CollabSession{}, domain.ErrJoinCodeTaken
}

func (s *CollabService) Get(ctx context.Context, collabID string) (domain.CollabSession, error) {
	return s.store.GetCollab(ctx, collabID)
}

// SubmitQuestion records a student's question as pending.
func (s *CollabService) SubmitQuestion(ctx context.Context, collabID, studentName string, q domain.Question) (domain.SubmittedQuestion, error) {
	name, err := domain.NormalizeName(studentName)
	if err != nil {
		return domain.SubmittedQuestion{}, err
	}
	if err := q.Validate(); err != nil {
		return domain.SubmittedQuestion{}, err
	}
	return s.store.AddSubmission(ctx, domain.SubmittedQuestion{
		ID:              uuid.NewString(),
		CollabSessionID: collabID,
		StudentName:     name,
		Question:        q,
		Status:          domain.SubmissionPending,
		CreatedAt:       s.now().UTC(),
	})
}

func (s *CollabService) ListSubmissions(ctx context.Context, collabID string) ([]domain.SubmittedQuestion, error) {
	if _, err := s.store.GetCollab(ctx, collabID); err != nil {
		return nil, err
	}
	return s.store.ListSubmissions(ctx, collabID)
}

// Moderate approves or rejects a submission while the session is open.
func (s *CollabService) Moderate(ctx context.Context, collabID, submissionID string, status domain.SubmissionStatus) (domain.SubmittedQuestion, error) {
	if status != domain.SubmissionApproved && status != domain.SubmissionRejected {
		return domain.SubmittedQuestion{}, domain.Invalid("status", "must be approved or rejected")
	}
	return s.store.SetSubmissionStatus(ctx, collabID, submissionID, status)
}

// Finalize compiles approved submissions, in submission order, into a new
// quiz and closes the session.
func (s *CollabService) Finalize(ctx context.Context, collabID string) (domain.Quiz, error) {
	c, err := s.store.GetCollab(ctx, collabID)
	if err != nil {
		return domain.Quiz{}, err
	}
	if c.Status != domain.CollabOpen {
		return domain.Quiz{}, domain.ErrCollabClosed
	}
	subs, err := s.store.ListSubmissions(ctx, collabID)
	if err != nil {
		return domain.Quiz{}, err
	}

	var questions []domain.Question
	for _, sub := range subs {
		if sub.Status == domain.SubmissionApproved {
			questions = append(questions, sub.Question)
		}
	}
	if len(questions) == 0 {
		return domain.Quiz{}, domain.Invalid("submissions", "no approved questions to build a quiz from")
	}

	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		Title:     c.Title + collabTitleSuffix,
		AuthorID:  c.AuthorID,
		Questions: questions,
		CreatedAt: s.now().UTC(),
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if _, err := s.store.FinalizeCollab(ctx, collabID, quiz); err != nil {
		return domain.Quiz{}, err
	}
	s.log.Info("collab session finalized", "collab_id", collabID, "quiz_id", quiz.ID, "questions", len(questions))
	return quiz, nil
}
