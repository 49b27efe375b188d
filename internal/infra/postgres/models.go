package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes"`

	ID        string      `bun:"id,pk"`
	Title     string      `bun:"title"`
	AuthorID  string      `bun:"author_id"`
	Data      domain.Quiz `bun:"data,type:jsonb"`
	CreatedAt time.Time   `bun:"created_at"`
}

type sessionRow struct {
	bun.BaseModel `bun:"table:quiz_sessions"`

	ID                string     `bun:"id,pk"`
	QuizID            string     `bun:"quiz_id"`
	JoinCode          string     `bun:"join_code"`
	Status            string     `bun:"status"`
	QuestionIndex     int        `bun:"question_index"`
	QuestionStartedAt *time.Time `bun:"question_started_at"`
	ParticipantCount  int        `bun:"participant_count"`
	Version           int64      `bun:"version"`
	CreatedAt         time.Time  `bun:"created_at"`
}

func newSessionRow(s domain.Session) *sessionRow {
	return &sessionRow{
		ID:                s.ID,
		QuizID:            s.QuizID,
		JoinCode:          s.JoinCode,
		Status:            string(s.Status),
		QuestionIndex:     s.QuestionIndex,
		QuestionStartedAt: s.QuestionStartedAt,
		ParticipantCount:  s.ParticipantCount,
		Version:           s.Version,
		CreatedAt:         s.CreatedAt,
	}
}

func (r *sessionRow) domain() domain.Session {
	return domain.Session{
		ID:                r.ID,
		QuizID:            r.QuizID,
		JoinCode:          r.JoinCode,
		Status:            domain.Status(r.Status),
		QuestionIndex:     r.QuestionIndex,
		QuestionStartedAt: r.QuestionStartedAt,
		ParticipantCount:  r.ParticipantCount,
		Version:           r.Version,
		CreatedAt:         r.CreatedAt,
	}
}

type participantRow struct {
	bun.BaseModel `bun:"table:session_participants"`

	ID          string    `bun:"id,pk"`
	SessionID   string    `bun:"session_id"`
	DisplayName string    `bun:"display_name"`
	Score       int       `bun:"score"`
	Seq         int64     `bun:"seq,scanonly"`
	JoinedAt    time.Time `bun:"joined_at"`
}

func (r *participantRow) domain() domain.Participant {
	return domain.Participant{
		ID:          r.ID,
		SessionID:   r.SessionID,
		DisplayName: r.DisplayName,
		Score:       r.Score,
		Seq:         r.Seq,
		JoinedAt:    r.JoinedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:participant_answers"`

	ID            int64     `bun:"id,pk,autoincrement"`
	SessionID     string    `bun:"session_id"`
	ParticipantID string    `bun:"participant_id"`
	QuestionIndex int       `bun:"question_index"`
	OptionIndex   int       `bun:"option_index"`
	Correct       bool      `bun:"is_correct"`
	ScoreAwarded  int       `bun:"score_awarded"`
	SubmittedAt   time.Time `bun:"submitted_at"`
}

func (r *answerRow) domain() domain.Answer {
	return domain.Answer{
		SessionID:     r.SessionID,
		ParticipantID: r.ParticipantID,
		QuestionIndex: r.QuestionIndex,
		OptionIndex:   r.OptionIndex,
		Correct:       r.Correct,
		ScoreAwarded:  r.ScoreAwarded,
		SubmittedAt:   r.SubmittedAt,
	}
}

type collabRow struct {
	bun.BaseModel `bun:"table:collaborative_sessions"`

	ID        string    `bun:"id,pk"`
	Title     string    `bun:"title"`
	AuthorID  string    `bun:"author_id"`
	JoinCode  string    `bun:"join_code"`
	Status    string    `bun:"status"`
	QuizID    *string   `bun:"quiz_id"`
	CreatedAt time.Time `bun:"created_at"`
}

func (r *collabRow) domain() domain.CollabSession {
	c := domain.CollabSession{
		ID:        r.ID,
		Title:     r.Title,
		AuthorID:  r.AuthorID,
		JoinCode:  r.JoinCode,
		Status:    domain.CollabStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
	if r.QuizID != nil {
		c.QuizID = *r.QuizID
	}
	return c
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submitted_questions"`

	ID              string          `bun:"id,pk"`
	CollabSessionID string          `bun:"collab_session_id"`
	StudentName     string          `bun:"student_name"`
	Question        domain.Question `bun:"question,type:jsonb"`
	Status          string          `bun:"status"`
	Seq             int64           `bun:"seq,scanonly"`
	CreatedAt       time.Time       `bun:"created_at"`
}

func (r *submissionRow) domain() domain.SubmittedQuestion {
	return domain.SubmittedQuestion{
		ID:              r.ID,
		CollabSessionID: r.CollabSessionID,
		StudentName:     r.StudentName,
		Question:        r.Question,
		Status:          domain.SubmissionStatus(r.Status),
		Seq:             r.Seq,
		CreatedAt:       r.CreatedAt,
	}
}
