package hosttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Role is what a token lets its bearer do within one session.
type Role string

const (
	RoleHost       Role = "host"
	RolePlayer     Role = "player"
	RoleCollabHost Role = "collab_host"
)

const issuer = "live-quiz-service"

var (
	ErrInvalidToken = errors.New("invalid session token")
	ErrForbidden    = errors.New("token does not grant this action")
)

// Claims bind a bearer to a session and a role. Subject is the participant
// id for players and empty for hosts.
type Claims struct {
	SessionID string `json:"sid"`
	Role      Role   `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and checks HS256 capability tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (i *Issuer) Issue(sessionID, subject string, role Role) (string, error) {
	now := i.now()
	claims := Claims{
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses raw and checks it was issued for sessionID with one of roles.
func (i *Issuer) Verify(raw, sessionID string, roles ...Role) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.SessionID != sessionID {
		return Claims{}, ErrForbidden
	}
	for _, role := range roles {
		if claims.Role == role {
			return claims, nil
		}
	}
	return Claims{}, ErrForbidden
}
