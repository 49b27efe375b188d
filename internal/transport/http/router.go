package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/hosttoken"
	"live-quiz-service/internal/metrics"
)

// API holds the use cases exposed over HTTP and the websocket.
type API struct {
	Quizzes  *app.QuizService
	Sessions *app.SessionService
	Collab   *app.CollabService
	Join     *app.JoinRouter
	Tokens   *hosttoken.Issuer
	Log      *slog.Logger

	// GenerateCount is used when a generate request does not name a count.
	GenerateCount int
}

// NewRouter wires REST routes, the websocket endpoint, health and metrics.
func NewRouter(api *API, allowedOrigins []string) http.Handler {
	if api.Log == nil {
		api.Log = slog.Default()
	}
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	ws := NewWSHandler(api.Sessions, api.Tokens, allowedOrigins, api.Log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", metrics.Handler())
	r.Get("/ws", ws.ServeWS)

	r.Route("/api", func(r chi.Router) {
		r.Post("/join", api.join)

		r.Route("/quizzes", func(r chi.Router) {
			r.Post("/", api.createQuiz)
			r.Get("/", api.listQuizzes)
			r.Post("/generate", api.generateQuiz)
			r.Get("/{quizID}", api.getQuiz)
			r.Post("/{quizID}/copy", api.copyQuiz)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", api.createSession)
			r.Get("/", api.listSessions)
			r.Get("/{sessionID}", api.getSession)
			r.Post("/{sessionID}/start", api.transition(api.Sessions.StartSession))
			r.Post("/{sessionID}/advance", api.transition(api.Sessions.Advance))
			r.Post("/{sessionID}/reveal", api.transition(api.Sessions.RevealResult))
			r.Post("/{sessionID}/leaderboard", api.transition(api.Sessions.ShowLeaderboard))
			r.Get("/{sessionID}/leaderboard", api.leaderboard)
			r.Post("/{sessionID}/answers", api.submitAnswer)
			r.Get("/{sessionID}/results", api.results)
		})

		r.Route("/collab", func(r chi.Router) {
			r.Post("/", api.createCollab)
			r.Get("/{collabID}", api.getCollab)
			r.Get("/{collabID}/submissions", api.listSubmissions)
			r.Post("/{collabID}/submissions", api.submitQuestion)
			r.Post("/{collabID}/submissions/{submissionID}/moderate", api.moderate)
			r.Post("/{collabID}/finalize", api.finalizeCollab)
		})
	})
	return r
}
