package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionNotFound is returned when a quiz session does not exist.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrParticipantNotFound is returned when a participant is unknown or belongs to another session.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidCode is returned when a join code resolves to nothing.
	ErrInvalidCode = errors.New("invalid join code")
	// ErrCollabNotFound is returned for unknown collaborative sessions.
	ErrCollabNotFound = errors.New("collaborative session not found")
	// ErrSubmissionNotFound is returned for unknown submitted questions.
	ErrSubmissionNotFound = errors.New("submitted question not found")

	// ErrInvalidPhase is returned for a transition or action outside the allowed graph.
	ErrInvalidPhase = errors.New("action not allowed in current phase")
	// ErrSessionStarted is returned when joining a session that is no longer waiting.
	ErrSessionStarted = fmt.Errorf("%w: session already started", ErrInvalidPhase)
	// ErrSessionFinished is returned for any command against a finished session.
	ErrSessionFinished = fmt.Errorf("%w: session already finished", ErrInvalidPhase)
	// ErrLateAnswer is returned when the targeted question is no longer accepting answers.
	ErrLateAnswer = fmt.Errorf("%w: question no longer accepting answers", ErrInvalidPhase)
	// ErrCollabClosed is returned when a collaborative session no longer accepts changes.
	ErrCollabClosed = fmt.Errorf("%w: collaborative session closed", ErrInvalidPhase)

	// ErrDuplicateAnswer is returned when the participant already answered the question.
	ErrDuplicateAnswer = errors.New("answer already submitted")

	// ErrValidation marks input rejected before it reaches the state machine.
	ErrValidation = errors.New("validation failed")

	// ErrCollaborator marks failures of the external content generator.
	ErrCollaborator = errors.New("content generator failed")
	// ErrGeneratorUnavailable is returned when the generator cannot be reached or errors.
	ErrGeneratorUnavailable = fmt.Errorf("%w: generator unavailable, try again", ErrCollaborator)
	// ErrMalformedOutput is returned when generated content does not match the question shape.
	ErrMalformedOutput = fmt.Errorf("%w: generator returned malformed output, try again", ErrCollaborator)
	// ErrContentFiltered is returned when the generator refused the content.
	ErrContentFiltered = fmt.Errorf("%w: content was blocked by the safety filter, try different text", ErrCollaborator)

	// ErrTransitionConflict is returned by stores when a compare-and-set lost.
	ErrTransitionConflict = errors.New("session changed concurrently")
	// ErrJoinCodeTaken is returned by stores when a join code is held by another active session.
	ErrJoinCodeTaken = errors.New("join code already in use")
)

// ValidationError describes why an input was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// Kind classifies errors for callers.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindInvalidPhase
	KindDuplicate
	KindValidation
	KindCollaborator
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindInvalidPhase:
		return "invalid_phase"
	case KindDuplicate:
		return "duplicate"
	case KindValidation:
		return "validation"
	case KindCollaborator:
		return "collaborator"
	default:
		return "internal"
	}
}

// KindOf maps an error to its kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrSessionNotFound),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrQuizNotFound),
		errors.Is(err, ErrInvalidCode),
		errors.Is(err, ErrCollabNotFound),
		errors.Is(err, ErrSubmissionNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidPhase), errors.Is(err, ErrTransitionConflict):
		return KindInvalidPhase
	case errors.Is(err, ErrDuplicateAnswer):
		return KindDuplicate
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrCollaborator):
		return KindCollaborator
	default:
		return KindInternal
	}
}
