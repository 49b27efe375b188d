package app

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"

	"live-quiz-service/internal/domain"
)

// codeAlphabet leaves out 0/O and 1/I so codes survive being read aloud.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	DefaultCodeLength = 6
	maxCodeAttempts   = 8
)

// JoinCodes hands out codes that no live or open collaborative session holds.
// Stores still enforce uniqueness among live sessions; the lookups here only
// keep the two namespaces from shadowing each other.
type JoinCodes struct {
	length int
	live   SessionStore
	collab CollabStore
}

func NewJoinCodes(length int, live SessionStore, collab CollabStore) *JoinCodes {
	if length < domain.MinJoinCodeLength || length > domain.MaxJoinCodeLength {
		length = DefaultCodeLength
	}
	return &JoinCodes{length: length, live: live, collab: collab}
}

// Next returns a code that is currently free.
func (j *JoinCodes) Next(ctx context.Context) (string, error) {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := randomCode(j.length)
		if err != nil {
			return "", err
		}
		taken, err := j.taken(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", domain.ErrJoinCodeTaken
}

func (j *JoinCodes) taken(ctx context.Context, code string) (bool, error) {
	if j.live != nil {
		_, err := j.live.FindSessionByCode(ctx, code)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrSessionNotFound) {
			return false, err
		}
	}
	if j.collab != nil {
		_, err := j.collab.FindOpenCollabByCode(ctx, code)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, domain.ErrCollabNotFound) {
			return false, err
		}
	}
	return false, nil
}

func randomCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeAlphabet)))
	b := make([]byte, length)
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return string(b), nil
}
