package telegram

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrBadToken = errors.New("invalid session token")

const sessionTTL = 24 * time.Hour

type sessionClaims struct {
	UserID   int64  `json:"uid"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Sessions mints and verifies short-lived JWTs handed out after a successful
// initData verification, so the client does not replay initData per request.
type Sessions struct {
	secret []byte
	now    func() time.Time
}

func NewSessions(secret string) *Sessions {
	return &Sessions{secret: []byte(secret), now: time.Now}
}

func (s *Sessions) Mint(user AuthUser) (string, error) {
	now := s.now()
	claims := sessionClaims{
		UserID:   user.ID,
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(sessionTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the user id carried by a valid token.
func (s *Sessions) Verify(token string) (int64, error) {
	var claims sessionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil || !parsed.Valid || claims.UserID == 0 {
		return 0, ErrBadToken
	}
	return claims.UserID, nil
}
