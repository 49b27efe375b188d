package domain

import (
	"sort"
	"time"
)

// NewSnapshot builds the subscriber view of a session.
func NewSnapshot(s Session, quiz Quiz, questionDuration time.Duration) Snapshot {
	snap := Snapshot{Session: s, QuestionCount: len(quiz.Questions)}
	if s.QuestionIndex < 0 || s.QuestionIndex >= len(quiz.Questions) || s.Status == StatusWaiting {
		return snap
	}

	q := quiz.Questions[s.QuestionIndex]
	public := &PublicQuestion{
		Index:        s.QuestionIndex,
		Prompt:       q.Prompt,
		Options:      append([]string(nil), q.Options...),
		CorrectIndex: -1,
	}
	if s.Status != StatusActive {
		public.CorrectIndex = q.CorrectIndex
	}
	snap.Question = public

	if s.Status == StatusActive && s.QuestionStartedAt != nil {
		deadline := s.QuestionStartedAt.Add(questionDuration)
		snap.Deadline = &deadline
	}
	return snap
}

// Rank orders participants by score descending, ties by join order.
func Rank(participants []Participant) []LeaderboardEntry {
	sorted := append([]Participant(nil), participants...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		return sorted[i].Seq < sorted[j].Seq
	})

	entries := make([]LeaderboardEntry, 0, len(sorted))
	for i, p := range sorted {
		rank := i + 1
		if i > 0 && p.Score == sorted[i-1].Score {
			rank = entries[i-1].Rank
		}
		entries = append(entries, LeaderboardEntry{
			Rank:          rank,
			ParticipantID: p.ID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
		})
	}
	return entries
}

// Tally computes per-question statistics from the answer ledger.
func Tally(quiz Quiz, answers []Answer) []QuestionStats {
	stats := make([]QuestionStats, len(quiz.Questions))
	for i, q := range quiz.Questions {
		stats[i] = QuestionStats{
			Index:        i,
			Prompt:       q.Prompt,
			CorrectIndex: q.CorrectIndex,
			OptionCounts: make([]int, len(q.Options)),
		}
	}
	for _, a := range answers {
		if a.QuestionIndex < 0 || a.QuestionIndex >= len(stats) {
			continue
		}
		st := &stats[a.QuestionIndex]
		st.Answered++
		if a.OptionIndex >= 0 && a.OptionIndex < len(st.OptionCounts) {
			st.OptionCounts[a.OptionIndex]++
		}
		if a.Correct {
			st.CorrectCount++
		}
	}
	return stats
}
