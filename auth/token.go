// Package auth verifies the JWT presented during the websocket
// handshake and maps its claims to the connection's identity. The
// coordinator trusts the issuing platform: role and id come from the
// token, never from the client payloads.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"telecare/domain"
)

// CustomClaims defines the structure of the data stored inside the JWT.
type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier validates handshake tokens against the shared HS256 secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// GenerateToken creates a signed JWT for an identity. Used by tests and
// by the token issuing side of the platform.
func (v *Verifier) GenerateToken(identity domain.Identity, duration time.Duration) (string, error) {
	now := time.Now()
	claims := &CustomClaims{
		UserID: identity.ID,
		Role:   string(identity.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "telecare",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// VerifyToken parses and validates the signature and expiration of a JWT
// string and returns the authenticated identity.
func (v *Verifier) VerifyToken(tokenString string) (domain.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return domain.Identity{}, err
	}

	claims, ok := token.Claims.(*CustomClaims)
	if !ok || !token.Valid {
		return domain.Identity{}, jwt.ErrSignatureInvalid
	}
	return domain.NewIdentity(domain.Role(claims.Role), claims.UserID)
}
