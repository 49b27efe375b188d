package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

//go:embed 0001_init.sql
var initSchemaSQL string

var Migrations = migrate.NewMigrations()

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, initSchemaSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.ExecContext(ctx, `
DROP TABLE IF EXISTS submitted_questions;
DROP TABLE IF EXISTS collaborative_sessions;
DROP TABLE IF EXISTS participant_answers;
DROP TABLE IF EXISTS session_participants;
DROP TABLE IF EXISTS quiz_sessions;
DROP TABLE IF EXISTS quizzes;`)
			return err
		},
	)
}
