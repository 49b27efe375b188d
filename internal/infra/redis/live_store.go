package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// LiveStore keeps live session state in Redis so any instance can serve any
// session. Every check-then-write runs as a Lua script.
//
// Keys:
//
//	quiz:session:{id}               hash   session fields, version, participant_seq
//	quiz:session:{id}:roster        list   participant ids in join order
//	quiz:session:{id}:answers       hash   {participantID}:{questionIndex} -> answer json
//	quiz:session:{id}:ledger        list   answer fields in commit order
//	quiz:participant:{id}           hash   participant fields and running score
//	quiz:code:{code}                string session id, held while not finished
//	quiz:sessions:finished          zset   finished session ids by creation time
type LiveStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewLiveStore returns a store whose keys expire ttl after the last write
// touching them; a zero ttl keeps them forever.
func NewLiveStore(client *redis.Client, ttl time.Duration) *LiveStore {
	return &LiveStore{client: client, ttl: ttl}
}

func sessionKey(id string) string     { return "quiz:session:" + id }
func rosterKey(id string) string      { return "quiz:session:" + id + ":roster" }
func answersKey(id string) string     { return "quiz:session:" + id + ":answers" }
func ledgerKey(id string) string      { return "quiz:session:" + id + ":ledger" }
func participantKey(id string) string { return "quiz:participant:" + id }
func codeKey(code string) string      { return "quiz:code:" + code }

const finishedKey = "quiz:sessions:finished"

func answerField(participantID string, questionIndex int) string {
	return participantID + ":" + strconv.Itoa(questionIndex)
}

func (s *LiveStore) ttlSeconds() int64 {
	return int64(s.ttl / time.Second)
}

func (s *LiveStore) CreateSession(ctx context.Context, session domain.Session) error {
	args := []interface{}{session.ID, s.ttlSeconds()}
	args = append(args, encodeSession(session)...)
	res, err := createSessionScript.Run(ctx, s.client,
		[]string{codeKey(session.JoinCode), sessionKey(session.ID)}, args...).Int64()
	if err != nil {
		return fmt.Errorf("redis create session: %w", err)
	}
	if res == 0 {
		return domain.ErrJoinCodeTaken
	}
	return nil
}

func (s *LiveStore) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	fields, err := s.client.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis get session: %w", err)
	}
	if len(fields) == 0 {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return decodeSession(fields)
}

func (s *LiveStore) FindSessionByCode(ctx context.Context, code string) (domain.Session, error) {
	id, err := s.client.Get(ctx, codeKey(code)).Result()
	if isNil(err) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis find session: %w", err)
	}
	session, err := s.GetSession(ctx, id)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status.Terminal() {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *LiveStore) Transition(ctx context.Context, sessionID string, t domain.Transition) (domain.Session, error) {
	current, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !t.Matches(current) {
		return current, domain.ErrTransitionConflict
	}

	startedAt := ""
	if t.StartedAt != nil {
		startedAt = formatTime(*t.StartedAt)
	}
	res, err := transitionScript.Run(ctx, s.client,
		[]string{sessionKey(sessionID), codeKey(current.JoinCode), finishedKey},
		string(t.From), t.FromIndex, string(t.To), t.ToIndex, startedAt,
		sessionID, current.CreatedAt.UnixMilli(), s.ttlSeconds(),
	).Result()
	if err != nil {
		return domain.Session{}, fmt.Errorf("redis transition: %w", err)
	}
	switch v := res.(type) {
	case int64:
		if v < 0 {
			return domain.Session{}, domain.ErrSessionNotFound
		}
		latest, err := s.GetSession(ctx, sessionID)
		if err != nil {
			return domain.Session{}, err
		}
		return latest, domain.ErrTransitionConflict
	case []interface{}:
		return decodeSession(pairs(v))
	}
	return domain.Session{}, fmt.Errorf("redis transition: unexpected reply %T", res)
}

func (s *LiveStore) ListFinished(ctx context.Context, limit int) ([]domain.Session, error) {
	ids, err := s.client.ZRevRange(ctx, finishedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list finished: %w", err)
	}
	out := make([]domain.Session, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if errors.Is(err, domain.ErrSessionNotFound) {
			// expired
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	return out, nil
}

func (s *LiveStore) AddParticipant(ctx context.Context, p domain.Participant) (domain.Participant, domain.Session, error) {
	res, err := addParticipantScript.Run(ctx, s.client,
		[]string{sessionKey(p.SessionID), participantKey(p.ID), rosterKey(p.SessionID)},
		p.ID, p.SessionID, p.DisplayName, formatTime(p.JoinedAt), s.ttlSeconds(),
	).Result()
	if err != nil {
		return domain.Participant{}, domain.Session{}, fmt.Errorf("redis add participant: %w", err)
	}
	switch v := res.(type) {
	case int64:
		switch v {
		case -1:
			return domain.Participant{}, domain.Session{}, domain.ErrSessionNotFound
		case -2:
			return domain.Participant{}, domain.Session{}, domain.ErrSessionFinished
		default:
			return domain.Participant{}, domain.Session{}, domain.ErrSessionStarted
		}
	case []interface{}:
		fields := pairs(v)
		session, err := decodeSession(fields)
		if err != nil {
			return domain.Participant{}, domain.Session{}, err
		}
		seq, _ := strconv.ParseInt(fields["participant_seq"], 10, 64)
		p.Seq = seq
		p.Score = 0
		return p, session, nil
	}
	return domain.Participant{}, domain.Session{}, fmt.Errorf("redis add participant: unexpected reply %T", res)
}

func (s *LiveStore) GetParticipant(ctx context.Context, participantID string) (domain.Participant, error) {
	fields, err := s.client.HGetAll(ctx, participantKey(participantID)).Result()
	if err != nil {
		return domain.Participant{}, fmt.Errorf("redis get participant: %w", err)
	}
	if len(fields) == 0 {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return decodeParticipant(fields)
}

func (s *LiveStore) ListParticipants(ctx context.Context, sessionID string) ([]domain.Participant, error) {
	ids, err := s.client.LRange(ctx, rosterKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list participants: %w", err)
	}
	if len(ids) == 0 {
		return []domain.Participant{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, participantKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis list participants: %w", err)
	}

	out := make([]domain.Participant, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		p, err := decodeParticipant(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *LiveStore) RecordAnswer(ctx context.Context, a domain.Answer) (domain.Answer, error) {
	payload, err := json.Marshal(a)
	if err != nil {
		return domain.Answer{}, err
	}
	res, err := recordAnswerScript.Run(ctx, s.client,
		[]string{sessionKey(a.SessionID), answersKey(a.SessionID), ledgerKey(a.SessionID), participantKey(a.ParticipantID)},
		answerField(a.ParticipantID, a.QuestionIndex), payload, a.QuestionIndex, a.ScoreAwarded, a.SessionID, s.ttlSeconds(),
	).Slice()
	if err != nil {
		return domain.Answer{}, fmt.Errorf("redis record answer: %w", err)
	}
	code, _ := res[0].(int64)
	switch code {
	case 1:
		return a, nil
	case 0:
		var existing domain.Answer
		raw, _ := res[1].(string)
		if err := json.Unmarshal([]byte(raw), &existing); err != nil {
			return domain.Answer{}, fmt.Errorf("redis decode answer: %w", err)
		}
		return existing, domain.ErrDuplicateAnswer
	case -1:
		return domain.Answer{}, domain.ErrLateAnswer
	default:
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
}

func (s *LiveStore) ListAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	fields, err := s.client.LRange(ctx, ledgerKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list answers: %w", err)
	}
	if len(fields) == 0 {
		return []domain.Answer{}, nil
	}
	raw, err := s.client.HMGet(ctx, answersKey(sessionID), fields...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list answers: %w", err)
	}
	out := make([]domain.Answer, 0, len(raw))
	for _, item := range raw {
		str, ok := item.(string)
		if !ok {
			continue
		}
		var a domain.Answer
		if err := json.Unmarshal([]byte(str), &a); err != nil {
			return nil, fmt.Errorf("redis decode answer: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

func encodeSession(s domain.Session) []interface{} {
	started := ""
	if s.QuestionStartedAt != nil {
		started = formatTime(*s.QuestionStartedAt)
	}
	return []interface{}{
		"id", s.ID,
		"quiz_id", s.QuizID,
		"join_code", s.JoinCode,
		"status", string(s.Status),
		"question_index", s.QuestionIndex,
		"question_started_at", started,
		"participant_count", s.ParticipantCount,
		"version", s.Version,
		"created_at", formatTime(s.CreatedAt),
	}
}

func decodeSession(f map[string]string) (domain.Session, error) {
	s := domain.Session{
		ID:       f["id"],
		QuizID:   f["quiz_id"],
		JoinCode: f["join_code"],
		Status:   domain.Status(f["status"]),
	}
	var err error
	if s.QuestionIndex, err = strconv.Atoi(f["question_index"]); err != nil {
		return domain.Session{}, fmt.Errorf("redis decode session %s: %w", s.ID, err)
	}
	s.ParticipantCount, _ = strconv.Atoi(f["participant_count"])
	if s.Version, err = strconv.ParseInt(f["version"], 10, 64); err != nil {
		return domain.Session{}, fmt.Errorf("redis decode session %s: %w", s.ID, err)
	}
	if s.CreatedAt, err = parseTime(f["created_at"]); err != nil {
		return domain.Session{}, fmt.Errorf("redis decode session %s: %w", s.ID, err)
	}
	if raw := f["question_started_at"]; raw != "" {
		started, err := parseTime(raw)
		if err != nil {
			return domain.Session{}, fmt.Errorf("redis decode session %s: %w", s.ID, err)
		}
		s.QuestionStartedAt = &started
	}
	return s, nil
}

func decodeParticipant(f map[string]string) (domain.Participant, error) {
	p := domain.Participant{
		ID:          f["id"],
		SessionID:   f["session_id"],
		DisplayName: f["name"],
	}
	var err error
	if p.Score, err = strconv.Atoi(f["score"]); err != nil {
		return domain.Participant{}, fmt.Errorf("redis decode participant %s: %w", p.ID, err)
	}
	p.Seq, _ = strconv.ParseInt(f["seq"], 10, 64)
	if p.JoinedAt, err = parseTime(f["joined_at"]); err != nil {
		return domain.Participant{}, fmt.Errorf("redis decode participant %s: %w", p.ID, err)
	}
	return p, nil
}

// pairs turns an HGETALL script reply into a map.
func pairs(reply []interface{}) map[string]string {
	out := make(map[string]string, len(reply)/2)
	for i := 0; i+1 < len(reply); i += 2 {
		k, _ := reply[i].(string)
		v, _ := reply[i+1].(string)
		out[k] = v
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, raw)
}
