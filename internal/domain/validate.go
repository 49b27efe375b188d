package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinJoinCodeLength  = 4
	MaxJoinCodeLength  = 12
	MaxDisplayNameRune = 40
	MinOptions         = 2
)

// NormalizeCode trims and upper-cases a user-entered join code.
func NormalizeCode(raw string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if len(code) < MinJoinCodeLength || len(code) > MaxJoinCodeLength {
		return "", Invalid("code", fmt.Sprintf("must be %d to %d characters", MinJoinCodeLength, MaxJoinCodeLength))
	}
	for _, r := range code {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", Invalid("code", "must contain only letters and digits")
		}
	}
	return code, nil
}

// NormalizeName trims a display name and checks it is usable.
func NormalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" {
		return "", Invalid("name", "must not be empty")
	}
	if utf8.RuneCountInString(name) > MaxDisplayNameRune {
		return "", Invalid("name", fmt.Sprintf("must be at most %d characters", MaxDisplayNameRune))
	}
	return name, nil
}

// Validate checks the one-correct-option invariant.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Prompt) == "" {
		return Invalid("questionText", "must not be empty")
	}
	if len(q.Options) < MinOptions {
		return Invalid("options", fmt.Sprintf("need at least %d options", MinOptions))
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return Invalid("options", fmt.Sprintf("option %d is empty", i))
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return Invalid("correctAnswerIndex", fmt.Sprintf("%d out of range for %d options", q.CorrectIndex, len(q.Options)))
	}
	return nil
}

// Validate checks the quiz can be played.
func (q Quiz) Validate() error {
	if strings.TrimSpace(q.Title) == "" {
		return Invalid("title", "must not be empty")
	}
	if len(q.Questions) == 0 {
		return Invalid("questions", "quiz needs at least one question")
	}
	for i, question := range q.Questions {
		if err := question.Validate(); err != nil {
			return fmt.Errorf("question %d: %w", i, err)
		}
	}
	return nil
}
