package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

func (s *Store) CreateCollab(ctx context.Context, c domain.CollabSession) error {
	row := &collabRow{
		ID:        c.ID,
		Title:     c.Title,
		AuthorID:  c.AuthorID,
		JoinCode:  c.JoinCode,
		Status:    string(c.Status),
		CreatedAt: c.CreatedAt,
	}
	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return fmt.Errorf("insert collab session: %w", err)
	}
	return nil
}

func (s *Store) GetCollab(ctx context.Context, collabID string) (domain.CollabSession, error) {
	return getCollab(ctx, s.db, collabID, "")
}

func getCollab(ctx context.Context, db bun.IDB, collabID, lock string) (domain.CollabSession, error) {
	row := new(collabRow)
	q := db.NewSelect().Model(row).Where("id = ?", collabID)
	if lock != "" {
		q = q.For(lock)
	}
	err := q.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CollabSession{}, domain.ErrCollabNotFound
	}
	if err != nil {
		return domain.CollabSession{}, fmt.Errorf("select collab session: %w", err)
	}
	return row.domain(), nil
}

func (s *Store) FindOpenCollabByCode(ctx context.Context, code string) (domain.CollabSession, error) {
	row := new(collabRow)
	err := s.db.NewSelect().Model(row).
		Where("join_code = ?", code).
		Where("status = ?", string(domain.CollabOpen)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CollabSession{}, domain.ErrCollabNotFound
	}
	if err != nil {
		return domain.CollabSession{}, fmt.Errorf("find collab by code: %w", err)
	}
	return row.domain(), nil
}

// openCollab locks the collab row for the rest of tx and checks it is open.
func openCollab(ctx context.Context, tx bun.Tx, collabID, lock string) error {
	c, err := getCollab(ctx, tx, collabID, lock)
	if err != nil {
		return err
	}
	if c.Status != domain.CollabOpen {
		return domain.ErrCollabClosed
	}
	return nil
}

func (s *Store) AddSubmission(ctx context.Context, sub domain.SubmittedQuestion) (domain.SubmittedQuestion, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := openCollab(ctx, tx, sub.CollabSessionID, "SHARE"); err != nil {
			return err
		}
		row := &submissionRow{
			ID:              sub.ID,
			CollabSessionID: sub.CollabSessionID,
			StudentName:     sub.StudentName,
			Question:        sub.Question,
			Status:          string(sub.Status),
			CreatedAt:       sub.CreatedAt,
		}
		return tx.NewInsert().Model(row).Returning("seq").Scan(ctx, &sub.Seq)
	})
	if err != nil {
		return domain.SubmittedQuestion{}, err
	}
	return sub, nil
}

func (s *Store) ListSubmissions(ctx context.Context, collabID string) ([]domain.SubmittedQuestion, error) {
	var rows []submissionRow
	err := s.db.NewSelect().Model(&rows).
		Where("collab_session_id = ?", collabID).
		Order("seq").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	out := make([]domain.SubmittedQuestion, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].domain())
	}
	return out, nil
}

func (s *Store) SetSubmissionStatus(ctx context.Context, collabID, submissionID string, status domain.SubmissionStatus) (domain.SubmittedQuestion, error) {
	row := new(submissionRow)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := openCollab(ctx, tx, collabID, "SHARE"); err != nil {
			return err
		}
		err := tx.NewUpdate().Model(row).
			Set("status = ?", string(status)).
			Where("id = ?", submissionID).
			Where("collab_session_id = ?", collabID).
			Returning("*").
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ErrSubmissionNotFound
		}
		return err
	})
	if err != nil {
		return domain.SubmittedQuestion{}, err
	}
	return row.domain(), nil
}

// FinalizeCollab saves the compiled quiz and closes the session in one
// transaction; the exclusive lock makes a second finalize see it closed.
func (s *Store) FinalizeCollab(ctx context.Context, collabID string, quiz domain.Quiz) (domain.CollabSession, error) {
	row := new(collabRow)
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := openCollab(ctx, tx, collabID, "UPDATE"); err != nil {
			return err
		}
		if err := saveQuiz(ctx, tx, quiz); err != nil {
			return err
		}
		return tx.NewUpdate().Model(row).
			Set("status = ?", string(domain.CollabClosed)).
			Set("quiz_id = ?", quiz.ID).
			Where("id = ?", collabID).
			Returning("*").
			Scan(ctx)
	})
	if err != nil {
		return domain.CollabSession{}, err
	}
	return row.domain(), nil
}
