package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

type answerKey struct {
	participantID string
	questionIndex int
}

// LiveStore keeps sessions, participants and the answer ledger in process.
// One mutex covers all three so every check-then-write is atomic.
type LiveStore struct {
	mu           sync.RWMutex
	sessions     map[string]domain.Session
	codes        map[string]string // join code -> session id, non-finished only
	participants map[string]domain.Participant
	roster       map[string][]string // session id -> participant ids in join order
	answers      map[answerKey]domain.Answer
	ledger       map[string][]answerKey // session id -> answers in commit order
	seq          int64
}

func NewLiveStore() *LiveStore {
	return &LiveStore{
		sessions:     make(map[string]domain.Session),
		codes:        make(map[string]string),
		participants: make(map[string]domain.Participant),
		roster:       make(map[string][]string),
		answers:      make(map[answerKey]domain.Answer),
		ledger:       make(map[string][]answerKey),
	}
}

func (s *LiveStore) CreateSession(_ context.Context, session domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.codes[session.JoinCode]; ok {
		return domain.ErrJoinCodeTaken
	}
	s.sessions[session.ID] = session
	if !session.Status.Terminal() {
		s.codes[session.JoinCode] = session.ID
	}
	return nil
}

func (s *LiveStore) GetSession(_ context.Context, sessionID string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *LiveStore) FindSessionByCode(_ context.Context, code string) (domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.codes[code]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	return s.sessions[id], nil
}

func (s *LiveStore) Transition(_ context.Context, sessionID string, t domain.Transition) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if !t.Matches(session) {
		return session, domain.ErrTransitionConflict
	}
	session = t.Apply(session)
	s.sessions[sessionID] = session
	if session.Status.Terminal() {
		delete(s.codes, session.JoinCode)
	}
	return session, nil
}

func (s *LiveStore) ListFinished(_ context.Context, limit int) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Session
	for _, session := range s.sessions {
		if session.Status == domain.StatusFinished {
			out = append(out, session)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *LiveStore) AddParticipant(_ context.Context, p domain.Participant) (domain.Participant, domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[p.SessionID]
	if !ok {
		return domain.Participant{}, domain.Session{}, domain.ErrSessionNotFound
	}
	switch {
	case session.Status.Terminal():
		return domain.Participant{}, session, domain.ErrSessionFinished
	case session.Status != domain.StatusWaiting:
		return domain.Participant{}, session, domain.ErrSessionStarted
	}

	s.seq++
	p.Seq = s.seq
	p.Score = 0
	s.participants[p.ID] = p
	s.roster[p.SessionID] = append(s.roster[p.SessionID], p.ID)

	session.ParticipantCount++
	session.Version++
	s.sessions[session.ID] = session
	return p, session, nil
}

func (s *LiveStore) GetParticipant(_ context.Context, participantID string) (domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantID]
	if !ok {
		return domain.Participant{}, domain.ErrParticipantNotFound
	}
	return p, nil
}

func (s *LiveStore) ListParticipants(_ context.Context, sessionID string) ([]domain.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.roster[sessionID]
	out := make([]domain.Participant, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.participants[id])
	}
	return out, nil
}

func (s *LiveStore) RecordAnswer(_ context.Context, a domain.Answer) (domain.Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[a.SessionID]
	if !ok {
		return domain.Answer{}, domain.ErrSessionNotFound
	}
	p, ok := s.participants[a.ParticipantID]
	if !ok || p.SessionID != a.SessionID {
		return domain.Answer{}, domain.ErrParticipantNotFound
	}
	key := answerKey{participantID: a.ParticipantID, questionIndex: a.QuestionIndex}
	if existing, ok := s.answers[key]; ok {
		return existing, domain.ErrDuplicateAnswer
	}
	if session.Status != domain.StatusActive || session.QuestionIndex != a.QuestionIndex {
		return domain.Answer{}, domain.ErrLateAnswer
	}

	s.answers[key] = a
	s.ledger[a.SessionID] = append(s.ledger[a.SessionID], key)
	p.Score += a.ScoreAwarded
	s.participants[p.ID] = p
	return a, nil
}

func (s *LiveStore) ListAnswers(_ context.Context, sessionID string) ([]domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := s.ledger[sessionID]
	out := make([]domain.Answer, 0, len(keys))
	for _, key := range keys {
		out = append(out, s.answers[key])
	}
	return out, nil
}
