package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hosttoken"
)

const wsWriteTimeout = 10 * time.Second

// WSHandler serves one session subscription per connection. Players send
// answers over it and hosts drive the session phase.
type WSHandler struct {
	sessions *app.SessionService
	tokens   *hosttoken.Issuer
	log      *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(sessions *app.SessionService, tokens *hosttoken.Issuer, allowedOrigins []string, log *slog.Logger) *WSHandler {
	if log == nil {
		log = slog.Default()
	}
	anyOrigin := len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*")
	return &WSHandler{
		sessions: sessions,
		tokens:   tokens,
		log:      log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return anyOrigin || origin == "" || slices.Contains(allowedOrigins, origin)
			},
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	OptionIndex   int `json:"optionIndex"`
}

type commandPayload struct {
	ExpectIndex *int `json:"expectIndex"`
}

type answerResult struct {
	QuestionIndex int `json:"questionIndex"`
	domain.SubmitResult
}

type ackPayload struct {
	Command string         `json:"command"`
	Applied bool           `json:"applied"`
	Session domain.Session `json:"session"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`

	// last closes the connection once written.
	last bool
}

type errorPayload struct {
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

// ServeWS upgrades GET /ws?sessionId=&token= and streams session snapshots.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		http.Error(w, "missing sessionId", http.StatusBadRequest)
		return
	}
	claims, err := h.tokens.Verify(bearer(r), sessionID, hosttoken.RoleHost, hosttoken.RolePlayer)
	if err != nil {
		status, _ := statusFor(err)
		http.Error(w, err.Error(), status)
		return
	}

	ctx, cancelCtx := context.WithCancel(r.Context())
	defer cancelCtx()

	updates, unsubscribe, err := h.sessions.Subscribe(ctx, sessionID)
	if err != nil {
		status, _ := statusFor(err)
		http.Error(w, err.Error(), status)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "session_id", sessionID, "error", err)
		return
	}
	defer conn.Close()
	log := h.log.With("session_id", sessionID, "role", claims.Role)

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// The writer is the only goroutine that writes to conn.
	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(msg); err != nil {
				log.Debug("ws write failed", "error", err)
				conn.Close()
				return
			}
			if msg.last {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "resubscribe"),
					time.Now().Add(time.Second))
				conn.Close()
				return
			}
		}
	}()

	push := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-writerDone:
			return false
		case <-closeSignals:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		for {
			select {
			case snap, ok := <-updates:
				if !ok {
					// Evicted for falling behind; the client reconnects and
					// starts again from a fresh snapshot.
					push(outboundMessage{Type: "error", Payload: errorPayload{Message: "subscription dropped, reconnect"}, last: true})
					return
				}
				if !push(outboundMessage{Type: "snapshot", Payload: snap}) {
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if !push(h.handle(ctx, claims, inbound)) {
			break
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(ctx context.Context, claims hosttoken.Claims, in inboundMessage) outboundMessage {
	switch in.Type {
	case "answer":
		if claims.Role != hosttoken.RolePlayer {
			return errorMessage(hosttoken.ErrForbidden)
		}
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return errorMessage(domain.Invalid("payload", "invalid answer payload"))
		}
		result, err := h.sessions.SubmitAnswer(ctx, domain.Submission{
			SessionID:     claims.SessionID,
			ParticipantID: claims.Subject,
			QuestionIndex: payload.QuestionIndex,
			OptionIndex:   payload.OptionIndex,
		})
		if err != nil {
			h.logFailure(claims, in.Type, err)
			return errorMessage(err)
		}
		return outboundMessage{Type: "answerResult", Payload: answerResult{QuestionIndex: payload.QuestionIndex, SubmitResult: result}}

	case "start", "advance", "reveal", "leaderboard":
		if claims.Role != hosttoken.RoleHost {
			return errorMessage(hosttoken.ErrForbidden)
		}
		var payload commandPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				return errorMessage(domain.Invalid("payload", "invalid command payload"))
			}
		}
		var opts []app.TransitionOption
		if payload.ExpectIndex != nil {
			opts = append(opts, app.ExpectIndex(*payload.ExpectIndex))
		}
		session, applied, err := h.command(in.Type)(ctx, claims.SessionID, opts...)
		if err != nil {
			h.logFailure(claims, in.Type, err)
			return errorMessage(err)
		}
		return outboundMessage{Type: "ack", Payload: ackPayload{Command: in.Type, Applied: applied, Session: session}}

	default:
		return errorMessage(domain.Invalid("type", "unsupported message type"))
	}
}

func (h *WSHandler) command(name string) transitionFunc {
	switch name {
	case "start":
		return h.sessions.StartSession
	case "advance":
		return h.sessions.Advance
	case "reveal":
		return h.sessions.RevealResult
	default:
		return h.sessions.ShowLeaderboard
	}
}

func (h *WSHandler) logFailure(claims hosttoken.Claims, command string, err error) {
	if domain.KindOf(err) == domain.KindInternal {
		h.log.Error("ws command failed", "session_id", claims.SessionID, "command", command, "error", err)
	}
}

func errorMessage(err error) outboundMessage {
	status, kind := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	return outboundMessage{Type: "error", Payload: errorPayload{Message: msg, Kind: kind}}
}
