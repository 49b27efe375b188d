package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type createQuizRequest struct {
	Title     string            `json:"title"`
	AuthorID  string            `json:"authorId"`
	Questions []domain.Question `json:"questions"`
}

func (a *API) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	quiz, err := a.Quizzes.Create(r.Context(), app.QuizDraft{
		Title:     req.Title,
		AuthorID:  req.AuthorID,
		Questions: req.Questions,
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (a *API) listQuizzes(w http.ResponseWriter, r *http.Request) {
	quizzes, err := a.Quizzes.List(r.Context(), r.URL.Query().Get("authorId"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if quizzes == nil {
		quizzes = []domain.Quiz{}
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (a *API) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := a.Quizzes.Get(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

type generateQuizRequest struct {
	Title      string `json:"title"`
	SourceText string `json:"sourceText"`
	Count      int    `json:"count"`
	AuthorID   string `json:"authorId"`
}

func (a *API) generateQuiz(w http.ResponseWriter, r *http.Request) {
	var req generateQuizRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if req.Count == 0 {
		req.Count = a.GenerateCount
	}
	quiz, err := a.Quizzes.Generate(r.Context(), req.Title, req.SourceText, req.Count, req.AuthorID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}

func (a *API) copyQuiz(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AuthorID string `json:"authorId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	quiz, err := a.Quizzes.Copy(r.Context(), chi.URLParam(r, "quizID"), req.AuthorID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}
