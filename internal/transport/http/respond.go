package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hosttoken"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps an error to its HTTP status and client-facing kind.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, hosttoken.ErrInvalidToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, hosttoken.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	kind := domain.KindOf(err)
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound, kind.String()
	case domain.KindInvalidPhase, domain.KindDuplicate:
		return http.StatusConflict, kind.String()
	case domain.KindValidation:
		return http.StatusBadRequest, kind.String()
	case domain.KindCollaborator:
		return http.StatusBadGateway, kind.String()
	default:
		return http.StatusInternalServerError, kind.String()
	}
}

func writeError(w http.ResponseWriter, log *slog.Logger, err error) {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return domain.Invalid("body", "malformed JSON")
	}
	return nil
}

// bearer extracts the token from "Authorization: Bearer <token>", falling
// back to the token query parameter used by websocket clients.
func bearer(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return r.URL.Query().Get("token")
}
