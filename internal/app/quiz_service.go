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
	"live-quiz-service/internal/metrics"
)

const (
	DefaultGeneratedQuestions = 5
	maxGeneratedQuestions     = 20
)

// QuizDraft is an unsaved quiz.
type QuizDraft struct {
	Title     string            `json:"title"`
	AuthorID  string            `json:"authorId,omitempty"`
	Questions []domain.Question `json:"questions"`
}

// QuizService contains the quiz authoring use cases.
type QuizService struct {
	quizzes   QuizStore
	generator Generator
	events    EventPublisher
	log       *slog.Logger
	now       func() time.Time
}

func NewQuizService(quizzes QuizStore, generator Generator, events EventPublisher, log *slog.Logger) *QuizService {
	if events == nil {
		events = nopEvents{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &QuizService{quizzes: quizzes, generator: generator, events: events, log: log, now: time.Now}
}

// Create validates and saves a quiz.
func (s *QuizService) Create(ctx context.Context, draft QuizDraft) (domain.Quiz, error) {
	quiz := domain.Quiz{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(draft.Title),
		AuthorID:  strings.TrimSpace(draft.AuthorID),
		Questions: draft.Questions,
		CreatedAt: s.now().UTC(),
	}
	if err := quiz.Validate(); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.quizzes.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, fmt.Errorf("save quiz: %w", err)
	}
	s.log.Info("quiz created", "quiz_id", quiz.ID, "questions", len(quiz.Questions))
	if err := s.events.Publish(ctx, "quiz.created", quiz); err != nil {
		s.log.Warn("publish event failed", "event", "quiz.created", "error", err)
	}
	return quiz, nil
}

func (s *QuizService) Get(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

func (s *QuizService) List(ctx context.Context, authorID string) ([]domain.Quiz, error) {
	return s.quizzes.ListQuizzes(ctx, strings.TrimSpace(authorID))
}

// Copy saves another author's quiz under authorID.
func (s *QuizService) Copy(ctx context.Context, quizID, authorID string) (domain.Quiz, error) {
	original, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Quiz{}, err
	}
	authorID = strings.TrimSpace(authorID)
	if authorID != "" && original.AuthorID == authorID {
		return domain.Quiz{}, domain.Invalid("quizId", "cannot copy your own quiz")
	}
	return s.Create(ctx, QuizDraft{
		Title:     original.Title + " (copy)",
		AuthorID:  authorID,
		Questions: append([]domain.Question(nil), original.Questions...),
	})
}

// Generate asks the content generator for questions about sourceText and saves
// them as a new quiz. Nothing is saved unless every question is valid.
func (s *QuizService) Generate(ctx context.Context, title, sourceText string, count int, authorID string) (domain.Quiz, error) {
	if s.generator == nil {
		return domain.Quiz{}, domain.ErrGeneratorUnavailable
	}
	if strings.TrimSpace(sourceText) == "" {
		return domain.Quiz{}, domain.Invalid("sourceText", "must not be empty")
	}
	if strings.TrimSpace(title) == "" {
		return domain.Quiz{}, domain.Invalid("title", "must not be empty")
	}
	if count <= 0 {
		count = DefaultGeneratedQuestions
	}
	if count > maxGeneratedQuestions {
		return domain.Quiz{}, domain.Invalid("count", fmt.Sprintf("must be at most %d", maxGeneratedQuestions))
	}

	started := time.Now()
	questions, err := s.generator.Generate(ctx, sourceText, count)
	metrics.GeneratorDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.GeneratorCalls.WithLabelValues(domain.KindOf(err).String()).Inc()
		s.log.Warn("quiz generation failed", "error", err)
		if !errors.Is(err, domain.ErrCollaborator) {
			err = fmt.Errorf("%w: %v", domain.ErrGeneratorUnavailable, err)
		}
		return domain.Quiz{}, err
	}

	quiz, err := s.Create(ctx, QuizDraft{Title: title, AuthorID: authorID, Questions: questions})
	if errors.Is(err, domain.ErrValidation) {
		metrics.GeneratorCalls.WithLabelValues("malformed").Inc()
		return domain.Quiz{}, fmt.Errorf("%w: %v", domain.ErrMalformedOutput, err)
	}
	if err != nil {
		return domain.Quiz{}, err
	}
	metrics.GeneratorCalls.WithLabelValues("ok").Inc()
	return quiz, nil
}
