package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hosttoken"
)

type createCollabResponse struct {
	Collab    domain.CollabSession `json:"collab"`
	HostToken string               `json:"hostToken"`
}

func (a *API) createCollab(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Title    string `json:"title"`
		AuthorID string `json:"authorId"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	c, err := a.Collab.Create(r.Context(), req.Title, req.AuthorID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	token, err := a.Tokens.Issue(c.ID, "", hosttoken.RoleCollabHost)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createCollabResponse{Collab: c, HostToken: token})
}

func (a *API) getCollab(w http.ResponseWriter, r *http.Request) {
	c, err := a.Collab.Get(r.Context(), chi.URLParam(r, "collabID"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (a *API) submitQuestion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StudentName string          `json:"studentName"`
		Question    domain.Question `json:"question"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	sub, err := a.Collab.SubmitQuestion(r.Context(), chi.URLParam(r, "collabID"), req.StudentName, req.Question)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

func (a *API) listSubmissions(w http.ResponseWriter, r *http.Request) {
	collabID := chi.URLParam(r, "collabID")
	if _, err := a.Tokens.Verify(bearer(r), collabID, hosttoken.RoleCollabHost); err != nil {
		writeError(w, a.Log, err)
		return
	}
	subs, err := a.Collab.ListSubmissions(r.Context(), collabID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if subs == nil {
		subs = []domain.SubmittedQuestion{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (a *API) moderate(w http.ResponseWriter, r *http.Request) {
	collabID := chi.URLParam(r, "collabID")
	if _, err := a.Tokens.Verify(bearer(r), collabID, hosttoken.RoleCollabHost); err != nil {
		writeError(w, a.Log, err)
		return
	}
	var req struct {
		Status domain.SubmissionStatus `json:"status"`
	}
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	sub, err := a.Collab.Moderate(r.Context(), collabID, chi.URLParam(r, "submissionID"), req.Status)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (a *API) finalizeCollab(w http.ResponseWriter, r *http.Request) {
	collabID := chi.URLParam(r, "collabID")
	if _, err := a.Tokens.Verify(bearer(r), collabID, hosttoken.RoleCollabHost); err != nil {
		writeError(w, a.Log, err)
		return
	}
	quiz, err := a.Collab.Finalize(r.Context(), collabID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quiz)
}
