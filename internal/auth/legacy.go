package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/printworks/jobtrack/internal/model"
)

const legacyIssuer = "jobtrack-api"

// LegacyClaims represents HMAC-signed tokens issued by jobctl or the dev login
type LegacyClaims struct {
	UserID     string           `json:"userId"`
	Name       string           `json:"name,omitempty"`
	Role       model.Role       `json:"role"`
	Department model.Department `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts the claims into the identity the engine authorizes against
func (c *LegacyClaims) Actor() model.Actor {
	return model.Actor{ID: c.UserID, Name: c.Name, Role: c.Role, Department: c.Department}
}

// ValidateLegacyToken validates a token using HMAC signing
func ValidateLegacyToken(tokenString, secret string) (*LegacyClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &LegacyClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*LegacyClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if !claims.Role.Valid() {
		return nil, jwt.ErrTokenInvalidClaims
	}

	return claims, nil
}

// IssueLegacyToken signs an HMAC token for the given actor. A zero ttl issues
// a token without expiry.
func IssueLegacyToken(actor model.Actor, secret string, ttl time.Duration) (string, error) {
	claims := LegacyClaims{
		UserID:     actor.ID,
		Name:       actor.Name,
		Role:       actor.Role,
		Department: actor.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   legacyIssuer,
			Subject:  actor.ID,
			IssuedAt: jwt.NewNumericDate(time.Now()),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
