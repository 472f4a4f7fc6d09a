package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"github.com/golang-jwt/jwt/v5"
	"github.com/katoapp/agrimarket/internal/access"
	"time"
)

// Claims carries the actor identity the API needs for authorization.
// Issuing tokens (login, registration, verification) happens elsewhere.
type Claims struct {
	UserID   string `json:"user_id"`
	Role     string `json:"role"`
	Subrole  string `json:"subrole,omitempty"`
	Verified bool   `json:"verified"`
	jwt.RegisteredClaims
}

const DefaultExpiry = 24 * time.Hour

// GenerateToken signs an HS256 token for a with a random JTI.
func GenerateToken(secret string, a access.Actor, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultExpiry
	}
	jti, err := generateJTI()
	if err != nil {
		return "", fmt.Errorf("generating JTI: %w", err)
	}

	now := time.Now()
	claims := Claims{
		UserID:   a.ID,
		Role:     string(a.Role),
		Subrole:  string(a.Subrole),
		Verified: a.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   a.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a JWT, returning the claims.
func ValidateToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// Actor converts validated claims into a policy actor. Unknown roles or a
// broken subrole pairing are rejected here rather than at each check.
func (c *Claims) Actor() (access.Actor, error) {
	role, err := access.ParseRole(c.Role)
	if err != nil {
		return access.Actor{}, err
	}
	sub, err := access.ParseSubrole(c.Subrole)
	if err != nil {
		return access.Actor{}, err
	}
	a := access.Actor{ID: c.UserID, Role: role, Subrole: sub, Verified: c.Verified}
	if err := a.Validate(); err != nil {
		return access.Actor{}, err
	}
	return a, nil
}

func generateJTI() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
