package app

import "time"

// ScoringPolicy awards points for correct answers. The award depends only on
// the time elapsed since the question started.
type ScoringPolicy struct {
	BasePoints       int
	TimeBonus        int // extra points at zero elapsed time, decaying linearly to 0 at the deadline
	MinPoints        int // floor for a correct answer
	QuestionDuration time.Duration
}

// DefaultScoringPolicy is a flat 1000 points per correct answer on a 30s clock.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{BasePoints: 1000, QuestionDuration: 30 * time.Second}
}

// Award returns the score for an answer submitted elapsed after the question started.
func (p ScoringPolicy) Award(correct bool, elapsed time.Duration) int {
	if !correct {
		return 0
	}
	points := p.BasePoints
	if p.TimeBonus > 0 && p.QuestionDuration > 0 {
		remaining := p.QuestionDuration - elapsed
		if remaining < 0 {
			remaining = 0
		}
		if remaining > p.QuestionDuration {
			remaining = p.QuestionDuration
		}
		points += int(int64(p.TimeBonus) * int64(remaining) / int64(p.QuestionDuration))
	}
	if points < p.MinPoints {
		points = p.MinPoints
	}
	return points
}
