package domain

import (
	"fmt"
	"time"
)

// Event is a command that moves a session through its phases.
type Event string

const (
	EventStart       Event = "start"
	EventAdvance     Event = "advance"
	EventReveal      Event = "reveal"
	EventLeaderboard Event = "leaderboard"
)

// Transition is a compare-and-set request: stores apply it only if the session
// is still in From at FromIndex.
type Transition struct {
	From      Status
	FromIndex int
	To        Status
	ToIndex   int
	// StartedAt is written to question_started_at when non-nil.
	StartedAt *time.Time
}

// Plan computes the transition for event from the current session state.
// revealTo selects the phase entered when a question closes.
func Plan(s Session, event Event, questionCount int, now time.Time, revealTo Status) (Transition, error) {
	if s.Status.Terminal() {
		return Transition{}, ErrSessionFinished
	}
	t := Transition{From: s.Status, FromIndex: s.QuestionIndex}

	switch event {
	case EventStart:
		if s.Status != StatusWaiting {
			return Transition{}, ErrSessionStarted
		}
		return t.activate(0, now), nil

	case EventAdvance:
		switch {
		case s.Status == StatusWaiting:
			return t.activate(0, now), nil
		case s.Status.Reviewing():
			next := s.QuestionIndex + 1
			if next >= questionCount {
				t.To = StatusFinished
				t.ToIndex = s.QuestionIndex
				return t, nil
			}
			return t.activate(next, now), nil
		}

	case EventReveal:
		if s.Status == StatusActive {
			if revealTo != StatusLeaderboard {
				revealTo = StatusQuestionResult
			}
			t.To = revealTo
			t.ToIndex = s.QuestionIndex
			return t, nil
		}

	case EventLeaderboard:
		if s.Status == StatusQuestionResult {
			t.To = StatusLeaderboard
			t.ToIndex = s.QuestionIndex
			return t, nil
		}

	default:
		return Transition{}, Invalid("event", fmt.Sprintf("unknown event %q", event))
	}
	return Transition{}, fmt.Errorf("%w: cannot %s while %s", ErrInvalidPhase, event, s.Status)
}

// Settled reports whether the session already moved past what event would
// do, as happens to the requests that lose a race to the same command.
// Settled events are no-ops rather than errors.
func Settled(s Session, event Event) bool {
	switch event {
	case EventStart:
		return s.Status == StatusActive || s.Status.Reviewing()
	case EventAdvance:
		return s.Status == StatusActive
	case EventReveal:
		return s.Status.Reviewing()
	case EventLeaderboard:
		return s.Status == StatusLeaderboard
	}
	return false
}

func (t Transition) activate(index int, now time.Time) Transition {
	started := now.UTC()
	t.To = StatusActive
	t.ToIndex = index
	t.StartedAt = &started
	return t
}

// Apply returns s with t applied. Stores use it after their compare succeeds.
func (t Transition) Apply(s Session) Session {
	s.Status = t.To
	s.QuestionIndex = t.ToIndex
	if t.StartedAt != nil {
		started := *t.StartedAt
		s.QuestionStartedAt = &started
	}
	s.Version++
	return s
}

// Matches reports whether s is still in the state t expects.
func (t Transition) Matches(s Session) bool {
	return s.Status == t.From && s.QuestionIndex == t.FromIndex
}
