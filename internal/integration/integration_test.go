package integration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun/migrate"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	pgmigrations "live-quiz-service/internal/infra/postgres/migrations"
	infraredis "live-quiz-service/internal/infra/redis"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestPostgresSessionEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	store := migrated(t, ctx, pgURL)

	quizzes := app.NewQuizService(store, nil, nil, quiet)
	quiz, err := quizzes.Create(ctx, app.QuizDraft{Title: "Integration", Questions: sampleQuestions()})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	codes := app.NewJoinCodes(app.DefaultCodeLength, store, store)
	service := app.NewSessionService(store, memory.NewQuizCache(store, time.Minute), memory.NewBroker(16, quiet),
		app.DefaultScoringPolicy(), app.WithJoinCodes(codes), app.WithLogger(quiet))

	session, err := service.CreateSession(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	alice, err := service.Join(ctx, session.ID, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	bob, err := service.Join(ctx, session.ID, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}

	var applied atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := service.StartSession(ctx, session.ID)
			if err != nil {
				t.Errorf("losing start must be a no-op: %v", err)
			}
			if ok {
				applied.Add(1)
			}
		}()
	}
	wg.Wait()
	if applied.Load() != 1 {
		t.Fatalf("expected exactly one start applied, got %d", applied.Load())
	}

	var accepted atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := service.SubmitAnswer(ctx, domain.Submission{SessionID: session.ID, ParticipantID: alice.ID, QuestionIndex: 0, OptionIndex: 1})
			if err == nil && res.Accepted {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	if accepted.Load() != 1 {
		t.Fatalf("expected exactly one accepted answer, got %d", accepted.Load())
	}

	// Straight at the store so every insert races inside its own transaction.
	var recorded, duplicates atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(option int) {
			defer wg.Done()
			stored, err := store.RecordAnswer(ctx, domain.Answer{
				SessionID:     session.ID,
				ParticipantID: bob.ID,
				QuestionIndex: 0,
				OptionIndex:   option % 2,
				Correct:       option%2 == 1,
				ScoreAwarded:  100 * (option % 2),
				SubmittedAt:   time.Now().UTC(),
			})
			switch {
			case err == nil:
				recorded.Add(1)
			case errors.Is(err, domain.ErrDuplicateAnswer):
				if stored.ParticipantID != bob.ID || stored.QuestionIndex != 0 {
					t.Errorf("duplicate must echo the stored answer, got %+v", stored)
				}
				duplicates.Add(1)
			default:
				t.Errorf("record answer: %v", err)
			}
		}(i)
	}
	wg.Wait()
	if recorded.Load() != 1 || duplicates.Load() != 15 {
		t.Fatalf("expected one recorded and 15 duplicates, got %d and %d", recorded.Load(), duplicates.Load())
	}
	bobAnswers, err := store.ListAnswers(ctx, session.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	var bobRows, bobAward int
	for _, a := range bobAnswers {
		if a.ParticipantID == bob.ID {
			bobRows++
			bobAward = a.ScoreAwarded
		}
	}
	scored, err := store.GetParticipant(ctx, bob.ID)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if bobRows != 1 || scored.Score != bobAward {
		t.Fatalf("expected one ledger row matching score, got %d rows score %d award %d", bobRows, scored.Score, bobAward)
	}

	if _, _, err := service.RevealResult(ctx, session.ID); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	if _, _, err := service.Advance(ctx, session.ID); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, _, err := service.RevealResult(ctx, session.ID); err != nil {
		t.Fatalf("reveal: %v", err)
	}
	final, _, err := service.Advance(ctx, session.ID)
	if err != nil || final.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %+v %v", final, err)
	}

	results, err := service.Results(ctx, session.ID)
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	answers, err := store.ListAnswers(ctx, session.ID)
	if err != nil {
		t.Fatalf("list answers: %v", err)
	}
	ledger := 0
	for _, a := range answers {
		if a.ParticipantID == alice.ID {
			ledger += a.ScoreAwarded
		}
	}
	if results.Leaderboard[0].ParticipantID != alice.ID || results.Leaderboard[0].Score != ledger {
		t.Fatalf("score %d must equal ledger sum %d", results.Leaderboard[0].Score, ledger)
	}

	if _, err := store.FindSessionByCode(ctx, session.JoinCode); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected code released after finish, got %v", err)
	}
	finished, err := service.ListFinished(ctx, 10)
	if err != nil || len(finished) != 1 {
		t.Fatalf("expected one finished session, got %d %v", len(finished), err)
	}
}

func TestRedisLiveStoreWithPostgresQuizzes(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	store := migrated(t, ctx, pgURL)
	quiz, err := app.NewQuizService(store, nil, nil, quiet).Create(ctx, app.QuizDraft{Title: "Redis run", Questions: sampleQuestions()})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("redis url: %v", err)
	}
	client := goredis.NewClient(opts)
	defer client.Close()

	live := infraredis.NewLiveStore(client, 5*time.Minute)
	service := app.NewSessionService(live,
		infraredis.NewQuizCache(client, postgres.NewQuizLoader(pool), 5*time.Minute),
		infraredis.NewBroker(client, 16, quiet),
		app.DefaultScoringPolicy(), app.WithLogger(quiet))

	session, err := service.CreateSession(ctx, quiz.ID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	updates, cancel, err := service.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	bob, err := service.Join(ctx, session.ID, "Bob")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, _, err := service.StartSession(ctx, session.ID); err != nil {
		t.Fatalf("start: %v", err)
	}
	res, err := service.SubmitAnswer(ctx, domain.Submission{SessionID: session.ID, ParticipantID: bob.ID, QuestionIndex: 0, OptionIndex: 1})
	if err != nil || !res.Accepted || !res.Correct {
		t.Fatalf("submit: %+v %v", res, err)
	}

	last := int64(0)
	deadline := time.After(10 * time.Second)
	for {
		select {
		case snap, ok := <-updates:
			if !ok {
				t.Fatalf("subscription closed early")
			}
			if snap.Session.Version <= last {
				t.Fatalf("snapshots out of order: %d after %d", snap.Session.Version, last)
			}
			last = snap.Session.Version
			if snap.Session.Status == domain.StatusActive {
				board, err := service.Leaderboard(ctx, session.ID)
				if err != nil || len(board) != 1 || board[0].Score != res.ScoreAwarded {
					t.Fatalf("unexpected leaderboard: %+v %v", board, err)
				}
				return
			}
		case <-deadline:
			t.Fatalf("no active snapshot received, last version %d", last)
		}
	}
}

func migrated(t *testing.T, ctx context.Context, dsn string) *postgres.Store {
	t.Helper()
	db := postgres.Open(dsn)
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return postgres.NewStore(db)
}

func sampleQuestions() []domain.Question {
	return []domain.Question{
		{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
		{Prompt: "Capital of Italy?", Options: []string{"Rome", "Milan"}, CorrectIndex: 0},
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
