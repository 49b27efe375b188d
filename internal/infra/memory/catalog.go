package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// Catalog stores authored quizzes and collaborative sessions in process.
// It also serves as the QuizLoader behind a QuizCache in memory mode.
type Catalog struct {
	mu          sync.RWMutex
	quizzes     map[string]domain.Quiz
	collabs     map[string]domain.CollabSession
	collabCodes map[string]string // join code -> collab id, open only
	submissions map[string][]domain.SubmittedQuestion
	seq         int64
}

func NewCatalog(seed ...domain.Quiz) *Catalog {
	c := &Catalog{
		quizzes:     make(map[string]domain.Quiz),
		collabs:     make(map[string]domain.CollabSession),
		collabCodes: make(map[string]string),
		submissions: make(map[string][]domain.SubmittedQuestion),
	}
	for _, q := range seed {
		c.quizzes[q.ID] = q
	}
	return c
}

func (c *Catalog) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return c.GetQuiz(ctx, quizID)
}

func (c *Catalog) GetQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	quiz, ok := c.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return quiz, nil
}

func (c *Catalog) SaveQuiz(_ context.Context, quiz domain.Quiz) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quizzes[quiz.ID] = quiz
	return nil
}

func (c *Catalog) ListQuizzes(_ context.Context, authorID string) ([]domain.Quiz, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Quiz
	for _, q := range c.quizzes {
		if q.AuthorID == authorID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (c *Catalog) CreateCollab(_ context.Context, collab domain.CollabSession) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.collabCodes[collab.JoinCode]; ok {
		return domain.ErrJoinCodeTaken
	}
	c.collabs[collab.ID] = collab
	if collab.Status == domain.CollabOpen {
		c.collabCodes[collab.JoinCode] = collab.ID
	}
	return nil
}

func (c *Catalog) GetCollab(_ context.Context, collabID string) (domain.CollabSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	collab, ok := c.collabs[collabID]
	if !ok {
		return domain.CollabSession{}, domain.ErrCollabNotFound
	}
	return collab, nil
}

func (c *Catalog) FindOpenCollabByCode(_ context.Context, code string) (domain.CollabSession, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.collabCodes[code]
	if !ok {
		return domain.CollabSession{}, domain.ErrCollabNotFound
	}
	return c.collabs[id], nil
}

func (c *Catalog) AddSubmission(_ context.Context, sub domain.SubmittedQuestion) (domain.SubmittedQuestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	collab, ok := c.collabs[sub.CollabSessionID]
	if !ok {
		return domain.SubmittedQuestion{}, domain.ErrCollabNotFound
	}
	if collab.Status != domain.CollabOpen {
		return domain.SubmittedQuestion{}, domain.ErrCollabClosed
	}
	c.seq++
	sub.Seq = c.seq
	c.submissions[collab.ID] = append(c.submissions[collab.ID], sub)
	return sub, nil
}

func (c *Catalog) ListSubmissions(_ context.Context, collabID string) ([]domain.SubmittedQuestion, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.SubmittedQuestion(nil), c.submissions[collabID]...), nil
}

func (c *Catalog) SetSubmissionStatus(_ context.Context, collabID, submissionID string, status domain.SubmissionStatus) (domain.SubmittedQuestion, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	collab, ok := c.collabs[collabID]
	if !ok {
		return domain.SubmittedQuestion{}, domain.ErrCollabNotFound
	}
	if collab.Status != domain.CollabOpen {
		return domain.SubmittedQuestion{}, domain.ErrCollabClosed
	}
	subs := c.submissions[collabID]
	for i := range subs {
		if subs[i].ID == submissionID {
			subs[i].Status = status
			return subs[i], nil
		}
	}
	return domain.SubmittedQuestion{}, domain.ErrSubmissionNotFound
}

func (c *Catalog) FinalizeCollab(_ context.Context, collabID string, quiz domain.Quiz) (domain.CollabSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	collab, ok := c.collabs[collabID]
	if !ok {
		return domain.CollabSession{}, domain.ErrCollabNotFound
	}
	if collab.Status != domain.CollabOpen {
		return domain.CollabSession{}, domain.ErrCollabClosed
	}
	c.quizzes[quiz.ID] = quiz
	collab.Status = domain.CollabClosed
	collab.QuizID = quiz.ID
	c.collabs[collabID] = collab
	delete(c.collabCodes, collab.JoinCode)
	return collab, nil
}
