package http

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/hosttoken"
	"live-quiz-service/internal/infra/memory"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	catalog := memory.NewCatalog(domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{Prompt: "2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1},
			{Prompt: "3 * 3?", Options: []string{"6", "9"}, CorrectIndex: 1},
		},
	})
	live := memory.NewLiveStore()
	codes := app.NewJoinCodes(app.DefaultCodeLength, live, catalog)
	sessions := app.NewSessionService(
		live,
		memory.NewQuizCache(catalog, time.Minute),
		memory.NewBroker(16, log),
		app.DefaultScoringPolicy(),
		app.WithJoinCodes(codes),
		app.WithLogger(log),
	)
	api := &API{
		Quizzes:  app.NewQuizService(catalog, nil, nil, log),
		Sessions: sessions,
		Collab:   app.NewCollabService(catalog, codes, log),
		Join:     app.NewJoinRouter(sessions, live, catalog, log),
		Tokens:   hosttoken.NewIssuer("test-secret", time.Hour),
		Log:      log,
	}
	server := httptest.NewServer(NewRouter(api, nil))
	t.Cleanup(server.Close)
	return server
}

// call sends a JSON request and decodes the response body into out when non-nil.
func call(t *testing.T, server *httptest.Server, method, path, token string, body any, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type testSession struct {
	created   createSessionResponse
	alice     joinResponse
	bob       joinResponse
	hostToken string
}

func startGame(t *testing.T, server *httptest.Server) testSession {
	t.Helper()
	var ts testSession
	if code := call(t, server, http.MethodPost, "/api/sessions", "", map[string]string{"quizId": "quiz-1"}, &ts.created); code != http.StatusCreated {
		t.Fatalf("create session: status %d", code)
	}
	ts.hostToken = ts.created.HostToken
	if code := call(t, server, http.MethodPost, "/api/join", "", map[string]string{"code": " " + ts.created.Session.JoinCode + " ", "name": "Alice"}, &ts.alice); code != http.StatusOK {
		t.Fatalf("join alice: status %d", code)
	}
	if code := call(t, server, http.MethodPost, "/api/join", "", map[string]string{"code": ts.created.Session.JoinCode, "name": "Bob"}, &ts.bob); code != http.StatusOK {
		t.Fatalf("join bob: status %d", code)
	}
	if ts.alice.Mode != domain.JoinLive || ts.alice.Token == "" || ts.alice.Participant == nil {
		t.Fatalf("unexpected join result: %+v", ts.alice)
	}
	return ts
}

func TestSessionFlowOverREST(t *testing.T) {
	server := newTestServer(t)
	ts := startGame(t, server)
	base := "/api/sessions/" + ts.created.Session.ID

	var started transitionResponse
	if code := call(t, server, http.MethodPost, base+"/start", ts.hostToken, nil, &started); code != http.StatusOK || !started.Applied {
		t.Fatalf("start: status %d applied %v", code, started.Applied)
	}
	var retry transitionResponse
	call(t, server, http.MethodPost, base+"/advance", ts.hostToken, map[string]int{"expectIndex": -1}, &retry)
	if retry.Applied || retry.Session.QuestionIndex != 0 {
		t.Fatalf("stale retry must be a no-op, got %+v", retry)
	}

	var first domain.SubmitResult
	if code := call(t, server, http.MethodPost, base+"/answers", ts.alice.Token, answerRequest{QuestionIndex: 0, OptionIndex: 1}, &first); code != http.StatusOK {
		t.Fatalf("answer: status %d", code)
	}
	if !first.Accepted || !first.Correct || first.ScoreAwarded != 1000 {
		t.Fatalf("unexpected answer result: %+v", first)
	}
	var dup domain.SubmitResult
	call(t, server, http.MethodPost, base+"/answers", ts.alice.Token, answerRequest{QuestionIndex: 0, OptionIndex: 0}, &dup)
	if dup.Accepted || dup.Reason != domain.RejectDuplicate || dup.ScoreAwarded != 1000 {
		t.Fatalf("expected duplicate rejection carrying the first answer, got %+v", dup)
	}
	call(t, server, http.MethodPost, base+"/answers", ts.bob.Token, answerRequest{QuestionIndex: 0, OptionIndex: 0}, nil)

	call(t, server, http.MethodPost, base+"/reveal", ts.hostToken, nil, nil)
	var late domain.SubmitResult
	call(t, server, http.MethodPost, base+"/answers", ts.bob.Token, answerRequest{QuestionIndex: 0, OptionIndex: 1}, &late)
	if late.Accepted || late.Reason != domain.RejectLate {
		t.Fatalf("expected late rejection, got %+v", late)
	}

	var snap domain.Snapshot
	call(t, server, http.MethodGet, base, "", nil, &snap)
	if snap.Session.Status != domain.StatusQuestionResult || snap.Question == nil || snap.Question.CorrectIndex != 1 {
		t.Fatalf("unexpected snapshot after reveal: %+v", snap)
	}

	call(t, server, http.MethodPost, base+"/advance", ts.hostToken, nil, nil)
	call(t, server, http.MethodPost, base+"/reveal", ts.hostToken, nil, nil)
	var finished transitionResponse
	call(t, server, http.MethodPost, base+"/advance", ts.hostToken, nil, &finished)
	if finished.Session.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", finished.Session.Status)
	}

	var board []domain.LeaderboardEntry
	call(t, server, http.MethodGet, base+"/leaderboard", "", nil, &board)
	if len(board) != 2 || board[0].DisplayName != "Alice" || board[0].Score != 1000 || board[1].Score != 0 {
		t.Fatalf("unexpected leaderboard: %+v", board)
	}

	var results domain.SessionResults
	call(t, server, http.MethodGet, base+"/results", "", nil, &results)
	if len(results.Questions) != 2 || results.Questions[0].Answered != 2 || results.Questions[0].CorrectCount != 1 {
		t.Fatalf("unexpected results: %+v", results.Questions)
	}

	var history []domain.Session
	call(t, server, http.MethodGet, "/api/sessions?status=finished", "", nil, &history)
	if len(history) != 1 || history[0].ID != ts.created.Session.ID {
		t.Fatalf("unexpected finished list: %+v", history)
	}

	var again errorBody
	if code := call(t, server, http.MethodPost, "/api/join", "", map[string]string{"code": ts.created.Session.JoinCode, "name": "Carol"}, &again); code != http.StatusNotFound {
		t.Fatalf("finished session code must be released, got %d %+v", code, again)
	}
}

func TestHostCommandsRequireHostToken(t *testing.T) {
	server := newTestServer(t)
	ts := startGame(t, server)
	base := "/api/sessions/" + ts.created.Session.ID

	if code := call(t, server, http.MethodPost, base+"/start", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", code)
	}
	if code := call(t, server, http.MethodPost, base+"/start", ts.alice.Token, nil, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for player token, got %d", code)
	}
	if code := call(t, server, http.MethodPost, base+"/answers", ts.hostToken, answerRequest{}, nil); code != http.StatusForbidden {
		t.Fatalf("expected 403 for host answering, got %d", code)
	}
}

func TestErrorKindsMapToStatus(t *testing.T) {
	server := newTestServer(t)
	ts := startGame(t, server)
	base := "/api/sessions/" + ts.created.Session.ID

	var body errorBody
	if code := call(t, server, http.MethodPost, base+"/reveal", ts.hostToken, nil, &body); code != http.StatusConflict || body.Kind != "invalid_phase" {
		t.Fatalf("expected 409 invalid_phase, got %d %+v", code, body)
	}
	if code := call(t, server, http.MethodGet, "/api/sessions/missing", "", nil, &body); code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", code)
	}
	if code := call(t, server, http.MethodPost, "/api/join", "", map[string]string{"code": "!!", "name": "x"}, &body); code != http.StatusBadRequest || body.Kind != "validation" {
		t.Fatalf("expected 400 validation, got %d %+v", code, body)
	}
	if code := call(t, server, http.MethodPost, "/api/quizzes/generate", "", generateQuizRequest{Title: "t", SourceText: "text"}, &body); code != http.StatusBadGateway {
		t.Fatalf("expected 502 without a generator, got %d", code)
	}

	call(t, server, http.MethodPost, base+"/start", ts.hostToken, nil, nil)
	if code := call(t, server, http.MethodPost, "/api/join", "", map[string]string{"code": ts.created.Session.JoinCode, "name": "Late"}, &body); code != http.StatusConflict {
		t.Fatalf("expected 409 joining a started session, got %d", code)
	}
	if code := call(t, server, http.MethodPost, base+"/answers", ts.alice.Token, answerRequest{QuestionIndex: 0, OptionIndex: 7}, &body); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range option, got %d", code)
	}
}

func TestQuizAndCollabEndpoints(t *testing.T) {
	server := newTestServer(t)

	var quiz domain.Quiz
	draft := createQuizRequest{
		Title:     "Capitals",
		AuthorID:  "author-1",
		Questions: []domain.Question{{Prompt: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectIndex: 0}},
	}
	if code := call(t, server, http.MethodPost, "/api/quizzes", "", draft, &quiz); code != http.StatusCreated || quiz.ID == "" {
		t.Fatalf("create quiz: status %d %+v", code, quiz)
	}
	var invalid errorBody
	draft.Questions[0].CorrectIndex = 5
	if code := call(t, server, http.MethodPost, "/api/quizzes", "", draft, &invalid); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad correct index, got %d", code)
	}
	var mine []domain.Quiz
	call(t, server, http.MethodGet, "/api/quizzes?authorId=author-1", "", nil, &mine)
	if len(mine) != 1 || mine[0].ID != quiz.ID {
		t.Fatalf("unexpected list: %+v", mine)
	}
	var copied domain.Quiz
	if code := call(t, server, http.MethodPost, "/api/quizzes/"+quiz.ID+"/copy", "", map[string]string{"authorId": "author-2"}, &copied); code != http.StatusCreated || copied.AuthorID != "author-2" {
		t.Fatalf("copy: status %d %+v", code, copied)
	}

	var collab createCollabResponse
	if code := call(t, server, http.MethodPost, "/api/collab", "", map[string]string{"title": "Class questions"}, &collab); code != http.StatusCreated {
		t.Fatalf("create collab: status %d", code)
	}
	var routed joinResponse
	call(t, server, http.MethodPost, "/api/join", "", map[string]string{"code": collab.Collab.JoinCode, "name": "Dana"}, &routed)
	if routed.Mode != domain.JoinCollab || routed.CollabSessionID != collab.Collab.ID || routed.Token != "" {
		t.Fatalf("expected collab routing without a token, got %+v", routed)
	}

	collabBase := "/api/collab/" + collab.Collab.ID
	var sub domain.SubmittedQuestion
	question := domain.Question{Prompt: "Largest planet?", Options: []string{"Mars", "Jupiter"}, CorrectIndex: 1}
	if code := call(t, server, http.MethodPost, collabBase+"/submissions", "", map[string]any{"studentName": "Dana", "question": question}, &sub); code != http.StatusCreated {
		t.Fatalf("submit: status %d", code)
	}
	if code := call(t, server, http.MethodGet, collabBase+"/submissions", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("expected 401 listing without host token, got %d", code)
	}
	call(t, server, http.MethodPost, collabBase+"/submissions/"+sub.ID+"/moderate", collab.HostToken, map[string]string{"status": "approved"}, nil)

	var final domain.Quiz
	if code := call(t, server, http.MethodPost, collabBase+"/finalize", collab.HostToken, nil, &final); code != http.StatusCreated {
		t.Fatalf("finalize: status %d", code)
	}
	if final.Title != "Class questions (student-made)" || len(final.Questions) != 1 {
		t.Fatalf("unexpected finalized quiz: %+v", final)
	}
	var closed errorBody
	if code := call(t, server, http.MethodPost, collabBase+"/submissions", "", map[string]any{"studentName": "Eve", "question": question}, &closed); code != http.StatusConflict {
		t.Fatalf("expected 409 submitting to closed session, got %d", code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: %v %v", resp, err)
	}
	resp.Body.Close()
	resp, err = http.Get(server.URL + "/metrics")
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: %v %v", resp, err)
	}
	resp.Body.Close()
}
