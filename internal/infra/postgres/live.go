package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := s.db.NewInsert().Model(newSessionRow(session)).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	return getSession(ctx, s.db, sessionID, "")
}

func getSession(ctx context.Context, db bun.IDB, sessionID, lock string) (domain.Session, error) {
	row := new(sessionRow)
	q := db.NewSelect().Model(row).Where("id = ?", sessionID)
	if lock != "" {
		q = q.For(lock)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("select session: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) FindSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).
		Where("join_code = ?", code).
		Where("status <> ?", string(domain.StatusFinished)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("find session by code: %w", err)
	}
	return row.domain(), nil
}

// Transition is a single conditional UPDATE; zero rows means another writer
// moved the session first.
func (s *Store) Transition(ctx context.Context, sessionID string, t domain.Transition) (domain.Session, error) {
	row := new(sessionRow)
	q := s.db.NewUpdate().Model(row).
		Set("status = ?", string(t.To)).
		Set("question_index = ?", t.ToIndex).
		Set("version = version + 1").
		Where("id = ?", sessionID).
		Where("status = ?", string(t.From)).
		Where("question_index = ?", t.FromIndex)
	if t.StartedAt != nil {
		q = q.Set("question_started_at = ?", *t.StartedAt)
	}
	err := q.Returning("*").Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		current, getErr := s.GetSession(ctx, sessionID)
		if getErr != nil {
			return domain.Session{}, getErr
		}
		return current, domain.ErrTransitionConflict
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("update session: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) ListFinished(ctx context.Context, limit int) ([]domain.Session, error) {
	var rows []sessionRow
	err := s.db.NewSelect().Model(&rows).
		Where("status = ?", string(domain.StatusFinished)).
		Order("created_at DESC", "id").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list finished sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}

// AddParticipant bumps the session row first; the row lock it takes makes a
// concurrent start wait until the participant is committed.
func (s *Store) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, domain.Session, error) {
	var session domain.Session
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		row := new(sessionRow)
		err := tx.NewUpdate().Model(row).
			Set("participant_count = participant_count + 1").
			Set("version = version + 1").
			Where("id = ?", p.SessionID).
			Where("status = ?", string(domain.StatusWaiting)).
			Returning("*").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			current, getErr := getSession(ctx, tx, p.SessionID, "")
			switch {
			case getErr != nil:
				return getErr
			case current.Status.Terminal():
				return domain.ErrSessionFinished
			default:
				return domain.ErrSessionStarted
			}
		}
		if err != nil {
			return fmt.Errorf("update session: %w", err)
		}
		session = row.domain()

		p.Score = 0
		return tx.NewRaw(
			`INSERT INTO session_participants (id, session_id, display_name, score, joined_at)
			 VALUES (?, ?, ?, 0, ?) RETURNING seq`,
			p.ID, p.SessionID, p.DisplayName, p.JoinedAt,
		).Scan(ctx, &p.Seq)
	})
	if err != nil {
		return domain.Participant{}, domain.Session{}, err
	}
	return p, session, nil
}

func (s *Store) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	row := new(participantRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", participantID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	if err != nil {
		return domain.Participant{}, fmt.Errorf("select participant: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	var rows []participantRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("seq").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	out := make([]domain.Participant, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}

// RecordAnswer holds a share lock on the session row, so no transition can
// close the question between the phase check and the insert.
func (s *Store) RecordAnswer(ctx context.Context, a domain.Answer) (domain.Answer, error) {
	var existing domain.Answer
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		session, err := getSession(ctx, tx, a.SessionID, "SHARE")
		if err != nil {
			return err
		}
		var owner string
		err = tx.NewSelect().Model((*participantRow)(nil)).
			Column("session_id").
			Where("id = ?", a.ParticipantID).
			Scan(ctx, &owner)
		if errors.Is(err, sql.ErrNoRows) || (err == nil && owner != a.SessionID) {
			return domain.ErrParticipantNotFound
		}
		if err != nil {
			return fmt.Errorf("select participant: %w", err)
		}

		found, answered, err := findAnswer(ctx, tx, a.ParticipantID, a.QuestionIndex)
		if err != nil {
			return err
		}
		if answered {
			existing = found
			return domain.ErrDuplicateAnswer
		}
		if session.Status != domain.StatusActive || session.QuestionIndex != a.QuestionIndex {
			return domain.ErrLateAnswer
		}

		res, err := tx.NewInsert().Model(&answerRow{
			SessionID:     a.SessionID,
			ParticipantID: a.ParticipantID,
			QuestionIndex: a.QuestionIndex,
			OptionIndex:   a.OptionIndex,
			Correct:       a.Correct,
			ScoreAwarded:  a.ScoreAwarded,
			SubmittedAt:   a.SubmittedAt,
		}).On("CONFLICT (participant_id, question_index) DO NOTHING").Exec(ctx)
		if err != nil {
			return fmt.Errorf("insert answer: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// A concurrent submission committed first.
			existing, _, err = findAnswer(ctx, tx, a.ParticipantID, a.QuestionIndex)
			if err != nil {
				return err
			}
			return domain.ErrDuplicateAnswer
		}

		_, err = tx.NewUpdate().Model((*participantRow)(nil)).
			Set("score = score + ?", a.ScoreAwarded).
			Where("id = ?", a.ParticipantID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("update score: %w", err)
		}
		return nil
	})
	if errors.Is(err, domain.ErrDuplicateAnswer) {
		return existing, err
	}
	if err != nil {
		return domain.Answer{}, err
	}
	return a, nil
}

func findAnswer(ctx context.Context, db bun.IDB, participantID string, questionIndex int) (domain.Answer, bool, error) {
	row := new(answerRow)
	err := db.NewSelect().Model(row).
		Where("participant_id = ?", participantID).
		Where("question_index = ?", questionIndex).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Answer{}, false, nil
	}
	if err != nil {
		return domain.Answer{}, false, fmt.Errorf("select answer: %w", err)
	}
	return row.domain(), true, nil
}

func (s *Store) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	var rows []answerRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("id").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}
