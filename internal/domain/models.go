package domain

import "time"

// Status is the phase a live session is in.
type Status string

const (
	StatusWaiting        Status = "waiting"
	StatusActive         Status = "active"
	StatusQuestionResult Status = "question_result"
	StatusLeaderboard    Status = "leaderboard"
	StatusFinished       Status = "finished"
)

// Terminal reports whether no further transitions are accepted.
func (s Status) Terminal() bool {
	return s == StatusFinished
}

// Reviewing reports whether the current question is being reviewed.
func (s Status) Reviewing() bool {
	return s == StatusQuestionResult || s == StatusLeaderboard
}

// NoQuestion is the question index of a session that has not started.
const NoQuestion = -1

// Question models an MCQ question with exactly one correct option.
type Question struct {
	Prompt       string   `json:"questionText"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctAnswerIndex"`
}

// Quiz is an ordered, immutable collection of questions.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	AuthorID  string     `json:"authorId,omitempty"` // empty for anonymous authorship
	Questions []Question `json:"questions"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Session is one live run of a quiz.
type Session struct {
	ID                string     `json:"id"`
	QuizID            string     `json:"quizId"`
	JoinCode          string     `json:"joinCode"`
	Status            Status     `json:"status"`
	QuestionIndex     int        `json:"currentQuestionIndex"`
	QuestionStartedAt *time.Time `json:"questionStartedAt,omitempty"`
	ParticipantCount  int        `json:"participantCount"`
	// Version increases by one on every committed mutation of the session.
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// Participant is a student's membership and running score in one session.
type Participant struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	Seq         int64     `json:"seq"` // join order within the session
	JoinedAt    time.Time `json:"joinedAt"`
}

// Answer is an append-only ledger entry for one participant and question.
type Answer struct {
	SessionID     string    `json:"sessionId"`
	ParticipantID string    `json:"participantId"`
	QuestionIndex int       `json:"questionIndex"`
	OptionIndex   int       `json:"selectedOptionIndex"`
	Correct       bool      `json:"isCorrect"`
	ScoreAwarded  int       `json:"scoreAwarded"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// Submission models the scoring signal from clients.
type Submission struct {
	SessionID     string
	ParticipantID string
	QuestionIndex int
	OptionIndex   int
}

// Rejection reasons for soft-rejected submissions.
const (
	RejectLate      = "late"
	RejectDuplicate = "duplicate"
)

// SubmitResult summarizes the outcome of a submission.
// A soft rejection has Accepted=false; for duplicates Correct and ScoreAwarded
// describe the answer that was recorded first.
type SubmitResult struct {
	Accepted     bool   `json:"accepted"`
	Reason       string `json:"reason,omitempty"`
	Correct      bool   `json:"correct"`
	ScoreAwarded int    `json:"scoreAwarded"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	DisplayName   string `json:"name"`
	Score         int    `json:"score"`
}

// PublicQuestion is the question as clients may see it. CorrectIndex is -1
// while answers are still being accepted.
type PublicQuestion struct {
	Index        int      `json:"index"`
	Prompt       string   `json:"questionText"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correctAnswerIndex"`
}

// Snapshot is the state pushed to every subscriber of a session.
type Snapshot struct {
	Session       Session         `json:"session"`
	QuestionCount int             `json:"questionCount"`
	Question      *PublicQuestion `json:"question,omitempty"`
	Deadline      *time.Time      `json:"deadline,omitempty"`
}

// QuestionStats aggregates answers to one question.
type QuestionStats struct {
	Index        int    `json:"index"`
	Prompt       string `json:"questionText"`
	CorrectIndex int    `json:"correctAnswerIndex"`
	OptionCounts []int  `json:"optionCounts"`
	Answered     int    `json:"answered"`
	CorrectCount int    `json:"correctCount"`
}

// SessionResults is the post-game analysis of a session.
type SessionResults struct {
	Session     Session            `json:"session"`
	Quiz        Quiz               `json:"quiz"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
	Questions   []QuestionStats    `json:"questions"`
}

// JoinMode tells the client which flow a join code belongs to.
type JoinMode string

const (
	JoinLive   JoinMode = "live"
	JoinCollab JoinMode = "collab"
)

// JoinResult is the outcome of resolving a join code.
type JoinResult struct {
	Mode            JoinMode     `json:"mode"`
	SessionID       string       `json:"sessionId"`
	Participant     *Participant `json:"participant,omitempty"`
	CollabSessionID string       `json:"collabSessionId,omitempty"`
}

// CollabStatus is the state of a collaborative authoring session.
type CollabStatus string

const (
	CollabOpen   CollabStatus = "open"
	CollabClosed CollabStatus = "closed"
)

// CollabSession gathers student-written questions for a future quiz.
type CollabSession struct {
	ID        string       `json:"id"`
	Title     string       `json:"title"`
	AuthorID  string       `json:"authorId,omitempty"`
	JoinCode  string       `json:"joinCode"`
	Status    CollabStatus `json:"status"`
	QuizID    string       `json:"quizId,omitempty"` // set once finalized
	CreatedAt time.Time    `json:"createdAt"`
}

// SubmissionStatus is the moderation state of a submitted question.
type SubmissionStatus string

const (
	SubmissionPending  SubmissionStatus = "pending"
	SubmissionApproved SubmissionStatus = "approved"
	SubmissionRejected SubmissionStatus = "rejected"
)

// SubmittedQuestion is a question proposed by a student.
type SubmittedQuestion struct {
	ID              string           `json:"id"`
	CollabSessionID string           `json:"collabSessionId"`
	StudentName     string           `json:"studentName"`
	Question        Question         `json:"question"`
	Status          SubmissionStatus `json:"status"`
	Seq             int64            `json:"seq"`
	CreatedAt       time.Time        `json:"createdAt"`
}
