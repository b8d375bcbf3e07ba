// Package auth issues and checks room join tokens.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/VoiceMesh/internal/domain"
)

var (
	ErrTokenMissing  = errors.New("token required")
	ErrTokenInvalid  = errors.New("invalid token")
	ErrTokenMismatch = errors.New("token not valid for this room")
)

// RoomClaims binds a token to one room and, optionally, one participant.
type RoomClaims struct {
	Room string `json:"room"`
	User string `json:"user_id,omitempty"`
	jwt.RegisteredClaims
}

type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func NewTokens(secret string, ttl time.Duration) *Tokens {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Issue signs an HS256 token for room. An empty user admits any participant.
func (t *Tokens) Issue(room domain.RoomID, user domain.ParticipantID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(t.ttl)
	claims := RoomClaims{
		Room: string(room),
		User: string(user),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, expiry and that the token admits user into room.
func (t *Tokens) Verify(token string, room domain.RoomID, user domain.ParticipantID) error {
	if token == "" {
		return ErrTokenMissing
	}
	parsed, err := jwt.ParseWithClaims(token, &RoomClaims{}, func(tk *jwt.Token) (interface{}, error) {
		if _, ok := tk.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tk.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	claims, ok := parsed.Claims.(*RoomClaims)
	if !ok || !parsed.Valid {
		return ErrTokenInvalid
	}
	if claims.Room != string(room) {
		return ErrTokenMismatch
	}
	if claims.User != "" && claims.User != string(user) {
		return ErrTokenMismatch
	}
	return nil
}
