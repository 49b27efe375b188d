package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/events"
	"live-quiz-service/internal/generator"
	"live-quiz-service/internal/hosttoken"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisinfra "live-quiz-service/internal/infra/redis"
	"live-quiz-service/internal/logging"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backends are the stores selected by store.driver.
type backends struct {
	live    app.LiveStore
	quizzes app.QuizStore
	collab  app.CollabStore
	loader  memory.QuizLoader
	broker  app.Broker
	redis   *goredis.Client
	closers []func()
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizCache app.QuizRepository
	if b.redis != nil {
		quizCache = redisinfra.NewQuizCache(b.redis, b.loader, quizTTL)
	} else {
		quizCache = memory.NewQuizCache(b.loader, quizTTL)
	}

	publisher := openEvents(cfg, log)
	if closer, ok := publisher.(interface{ Close() }); ok {
		defer closer.Close()
	}

	policy := app.ScoringPolicy{
		BasePoints:       cfg.Game.BasePoints,
		TimeBonus:        cfg.Game.TimeBonus,
		MinPoints:        cfg.Game.MinPoints,
		QuestionDuration: config.TTLDuration(cfg.Game.QuestionDuration, 30*time.Second),
	}
	reveal := domain.StatusQuestionResult
	if cfg.Game.RevealMode == config.RevealLeaderboard {
		reveal = domain.StatusLeaderboard
	}

	codes := app.NewJoinCodes(cfg.Game.JoinCodeLength, b.live, b.collab)
	sessions := app.NewSessionService(b.live, quizCache, b.broker, policy,
		app.WithJoinCodes(codes),
		app.WithEvents(publisher),
		app.WithLogger(log),
		app.WithRevealPhase(reveal),
		app.WithSubscriberBuffer(cfg.Game.SubscriberBuffer),
	)

	var gen app.Generator
	if cfg.Generator.BaseURL != "" {
		gen = generator.New(generator.Config{
			BaseURL: cfg.Generator.BaseURL,
			APIKey:  cfg.Generator.APIKey,
			Model:   cfg.Generator.Model,
			Timeout: config.TTLDuration(cfg.Generator.Timeout, time.Minute),
		}, log)
	} else {
		log.Warn("generator.base_url not set, quiz generation disabled")
	}

	secret := cfg.Auth.Secret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		log.Warn("auth.secret not set, using a per-process secret; tokens will not survive restarts")
	}

	api := &transport.API{
		Quizzes:       app.NewQuizService(b.quizzes, gen, publisher, log),
		Sessions:      sessions,
		Collab:        app.NewCollabService(b.collab, codes, log),
		Join:          app.NewJoinRouter(sessions, b.live, b.collab, log),
		Tokens:        hosttoken.NewIssuer(secret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour)),
		Log:           log,
		GenerateCount: cfg.Generator.QuestionCount,
	}

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(api, cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting quiz service", "port", finalPort, "store", cfg.Store.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openBackends(ctx context.Context, cfg config.Config, log *slog.Logger) (*backends, error) {
	b := &backends{}

	if cfg.Redis.Addr != "" {
		b.redis = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		b.closers = append(b.closers, func() { _ = b.redis.Close() })
		if err := b.redis.Ping(ctx).Err(); err != nil {
			b.close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	// Quizzes and collaborative sessions are durable in Postgres when it is
	// configured, otherwise they live in process next to a seeded sample quiz.
	var store *postgres.Store
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		b.closers = append(b.closers, func() { _ = db.Close() })
		store = postgres.NewStore(db)
		b.quizzes, b.collab = store, store

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			b.close()
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		b.loader = postgres.NewQuizLoader(pool)
	} else {
		catalog := memory.NewCatalog(sampleQuizzes()...)
		b.quizzes, b.collab, b.loader = catalog, catalog, catalog
	}

	buffer := cfg.Game.SubscriberBuffer
	switch cfg.Store.Driver {
	case config.DriverRedis:
		b.live = redisinfra.NewLiveStore(b.redis, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	case config.DriverPostgres:
		b.live = store
	default:
		b.live = memory.NewLiveStore()
	}

	if b.redis != nil && cfg.Store.Driver != config.DriverMemory {
		b.broker = redisinfra.NewBroker(b.redis, buffer, log)
	} else {
		b.broker = memory.NewBroker(buffer, log)
	}
	return b, nil
}

func openEvents(cfg config.Config, log *slog.Logger) app.EventPublisher {
	if cfg.Events.AMQPURL == "" {
		return events.NewLogPublisher(log)
	}
	publisher, err := events.NewAMQPPublisher(cfg.Events.AMQPURL, cfg.Events.Exchange, log)
	if err != nil {
		log.Warn("amqp unavailable, logging events instead", "error", err)
		return events.NewLogPublisher(log)
	}
	return publisher
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// sampleQuizzes seeds the in-process catalog so a fresh checkout has
// something to host.
func sampleQuizzes() []domain.Quiz {
	return []domain.Quiz{
		{
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{Prompt: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
				{Prompt: "Which planet is closest to the sun?", Options: []string{"Venus", "Mercury", "Mars"}, CorrectIndex: 1},
				{Prompt: "How many sides does a hexagon have?", Options: []string{"5", "6", "8"}, CorrectIndex: 1},
			},
			CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
}
