package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// RoleAdmin is the only role a session can carry.
const RoleAdmin = "admin"

// Claims holds the admin session claims.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// SessionService issues and validates admin session tokens.
type SessionService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewSessionService creates a session service. An empty secret disables sessions.
func NewSessionService(secret string, expireHours int) *SessionService {
	if expireHours <= 0 {
		expireHours = 12
	}
	return &SessionService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Enabled reports whether a signing secret is configured.
func (s *SessionService) Enabled() bool { return len(s.secret) > 0 }

// Generate creates a new admin session token and returns it with its expiry.
func (s *SessionService) Generate() (string, time.Time, error) {
	if !s.Enabled() {
		return "", time.Time{}, ErrInvalidToken
	}
	now := s.now()
	expires := now.Add(time.Duration(s.expireHours) * time.Hour)
	claims := Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   RoleAdmin,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Validate parses and validates a session token, returning claims or error.
func (s *SessionService) Validate(tokenString string) (*Claims, error) {
	if !s.Enabled() {
		return nil, ErrInvalidToken
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Role != RoleAdmin {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
