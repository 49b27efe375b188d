package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPlanTransitions(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	at := func(status Status, index int) Session {
		return Session{Status: status, QuestionIndex: index, Version: 3}
	}
	cases := []struct {
		name    string
		from    Session
		event   Event
		reveal  Status
		want    Status
		index   int
		err     error
		stamped bool
	}{
		{name: "start", from: at(StatusWaiting, NoQuestion), event: EventStart, want: StatusActive, index: 0, stamped: true},
		{name: "advance from waiting", from: at(StatusWaiting, NoQuestion), event: EventAdvance, want: StatusActive, index: 0, stamped: true},
		{name: "reveal", from: at(StatusActive, 0), event: EventReveal, want: StatusQuestionResult, index: 0},
		{name: "reveal to leaderboard", from: at(StatusActive, 0), event: EventReveal, reveal: StatusLeaderboard, want: StatusLeaderboard, index: 0},
		{name: "leaderboard", from: at(StatusQuestionResult, 1), event: EventLeaderboard, want: StatusLeaderboard, index: 1},
		{name: "next question", from: at(StatusQuestionResult, 0), event: EventAdvance, want: StatusActive, index: 1, stamped: true},
		{name: "next from leaderboard", from: at(StatusLeaderboard, 0), event: EventAdvance, want: StatusActive, index: 1, stamped: true},
		{name: "finish after last", from: at(StatusLeaderboard, 2), event: EventAdvance, want: StatusFinished, index: 2},
		{name: "start twice", from: at(StatusActive, 0), event: EventStart, err: ErrSessionStarted},
		{name: "advance while active", from: at(StatusActive, 0), event: EventAdvance, err: ErrInvalidPhase},
		{name: "reveal while waiting", from: at(StatusWaiting, NoQuestion), event: EventReveal, err: ErrInvalidPhase},
		{name: "leaderboard while active", from: at(StatusActive, 0), event: EventLeaderboard, err: ErrInvalidPhase},
		{name: "anything after finish", from: at(StatusFinished, 2), event: EventAdvance, err: ErrSessionFinished},
		{name: "unknown event", from: at(StatusActive, 0), event: Event("rewind"), err: ErrValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := Plan(tc.from, tc.event, 3, now, tc.reveal)
			if tc.err != nil {
				if !errors.Is(err, tc.err) {
					t.Fatalf("expected %v, got %v", tc.err, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("plan: %v", err)
			}
			if plan.From != tc.from.Status || plan.FromIndex != tc.from.QuestionIndex {
				t.Fatalf("plan must compare against the current state: %+v", plan)
			}
			if plan.To != tc.want || plan.ToIndex != tc.index {
				t.Fatalf("expected %s/%d, got %s/%d", tc.want, tc.index, plan.To, plan.ToIndex)
			}
			if tc.stamped != (plan.StartedAt != nil) {
				t.Fatalf("question start stamp mismatch: %v", plan.StartedAt)
			}
		})
	}
}

func TestTransitionApplyAndMatches(t *testing.T) {
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	s := Session{Status: StatusQuestionResult, QuestionIndex: 0, Version: 5}
	plan, err := Plan(s, EventAdvance, 2, now, "")
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if !plan.Matches(s) {
		t.Fatalf("plan must match the state it was computed from")
	}
	next := plan.Apply(s)
	if next.Version != 6 || next.Status != StatusActive || next.QuestionIndex != 1 || !next.QuestionStartedAt.Equal(now) {
		t.Fatalf("unexpected applied session: %+v", next)
	}
	if plan.Matches(next) {
		t.Fatalf("a plan must not match once applied")
	}

	// Leaving a question keeps its start time for lateness checks and scoring.
	reveal, _ := Plan(next, EventReveal, 2, now.Add(time.Minute), "")
	if got := reveal.Apply(next); !got.QuestionStartedAt.Equal(now) {
		t.Fatalf("reveal must not restamp the question start, got %v", got.QuestionStartedAt)
	}
}

func TestSettledEvents(t *testing.T) {
	at := func(status Status, index int) Session {
		return Session{Status: status, QuestionIndex: index}
	}
	cases := []struct {
		name  string
		from  Session
		event Event
		want  bool
	}{
		{name: "start after start", from: at(StatusActive, 0), event: EventStart, want: true},
		{name: "start during review", from: at(StatusQuestionResult, 1), event: EventStart, want: true},
		{name: "advance while active", from: at(StatusActive, 1), event: EventAdvance, want: true},
		{name: "reveal after reveal", from: at(StatusQuestionResult, 0), event: EventReveal, want: true},
		{name: "reveal after leaderboard", from: at(StatusLeaderboard, 0), event: EventReveal, want: true},
		{name: "leaderboard twice", from: at(StatusLeaderboard, 0), event: EventLeaderboard, want: true},
		{name: "reveal while waiting", from: at(StatusWaiting, NoQuestion), event: EventReveal},
		{name: "leaderboard while active", from: at(StatusActive, 0), event: EventLeaderboard},
		{name: "advance from review", from: at(StatusQuestionResult, 0), event: EventAdvance},
		{name: "after finish", from: at(StatusFinished, 2), event: EventAdvance},
	}
	for _, tc := range cases {
		if got := Settled(tc.from, tc.event); got != tc.want {
			t.Fatalf("%s: expected settled=%v, got %v", tc.name, tc.want, got)
		}
	}
}
