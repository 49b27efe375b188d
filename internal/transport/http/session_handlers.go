package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hosttoken"
)

type createSessionRequest struct {
	QuizID string `json:"quizId"`
}

type createSessionResponse struct {
	Session   domain.Session `json:"session"`
	HostToken string         `json:"hostToken"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	if req.QuizID == "" {
		writeError(w, a.Log, domain.Invalid("quizId", "required"))
		return
	}
	session, err := a.Sessions.CreateSession(r.Context(), req.QuizID)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	token, err := a.Tokens.Issue(session.ID, "", hosttoken.RoleHost)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{Session: session, HostToken: token})
}

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if status := q.Get("status"); status != "" && status != string(domain.StatusFinished) {
		writeError(w, a.Log, domain.Invalid("status", "only finished sessions can be listed"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))
	sessions, err := a.Sessions.ListFinished(r.Context(), limit)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	if sessions == nil {
		sessions = []domain.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request) {
	snap, err := a.Sessions.Snapshot(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type transitionFunc func(ctx context.Context, sessionID string, opts ...app.TransitionOption) (domain.Session, bool, error)

type transitionRequest struct {
	// ExpectIndex is the question index the host last saw.
	ExpectIndex *int `json:"expectIndex"`
}

type transitionResponse struct {
	Session domain.Session `json:"session"`
	Applied bool           `json:"applied"`
}

// transition wraps a host command. A lost race answers 200 with applied=false
// and the state that won.
func (a *API) transition(fn transitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")
		if _, err := a.Tokens.Verify(bearer(r), sessionID, hosttoken.RoleHost); err != nil {
			writeError(w, a.Log, err)
			return
		}
		var req transitionRequest
		if err := decode(r, &req); err != nil {
			writeError(w, a.Log, err)
			return
		}
		var opts []app.TransitionOption
		if req.ExpectIndex != nil {
			opts = append(opts, app.ExpectIndex(*req.ExpectIndex))
		}
		session, applied, err := fn(r.Context(), sessionID, opts...)
		if err != nil {
			writeError(w, a.Log, err)
			return
		}
		writeJSON(w, http.StatusOK, transitionResponse{Session: session, Applied: applied})
	}
}

func (a *API) leaderboard(w http.ResponseWriter, r *http.Request) {
	entries, err := a.Sessions.Leaderboard(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type answerRequest struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

// submitAnswer scores an answer for the participant named by the player token.
func (a *API) submitAnswer(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	claims, err := a.Tokens.Verify(bearer(r), sessionID, hosttoken.RolePlayer)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	var req answerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	result, err := a.Sessions.SubmitAnswer(r.Context(), domain.Submission{
		SessionID:     sessionID,
		ParticipantID: claims.Subject,
		QuestionIndex: req.QuestionIndex,
		OptionIndex:   req.OptionIndex,
	})
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) results(w http.ResponseWriter, r *http.Request) {
	results, err := a.Sessions.Results(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type joinRequest struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type joinResponse struct {
	domain.JoinResult
	Token string `json:"token,omitempty"`
}

// join resolves a code. Live joins receive a player token; collaborative
// codes only route the client to the submission form.
func (a *API) join(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decode(r, &req); err != nil {
		writeError(w, a.Log, err)
		return
	}
	result, err := a.Join.Join(r.Context(), req.Code, req.Name)
	if err != nil {
		writeError(w, a.Log, err)
		return
	}
	resp := joinResponse{JoinResult: result}
	if result.Mode == domain.JoinLive && result.Participant != nil {
		resp.Token, err = a.Tokens.Issue(result.SessionID, result.Participant.ID, hosttoken.RolePlayer)
		if err != nil {
			writeError(w, a.Log, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
