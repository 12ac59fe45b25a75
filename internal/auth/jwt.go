// Package auth issues and verifies the session tokens carried in the
// x-auth-token header, and resolves them into a caller identity for the
// request handlers.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/mnuddindev/koishi/pkg/utils"
)

const (
	issuer   = "koishi"
	tokenTTL = 24 * time.Hour
)

var signingKey []byte

// Init sets the signing secret. Must be called once at startup before any
// token is generated or verified.
func Init(secret string) {
	signingKey = []byte(secret)
}

// Claims is the payload of a session token.
type Claims struct {
	UserID  uuid.UUID `json:"user_id"`
	Email   string    `json:"email"`
	IsAdmin bool      `json:"is_admin"`
	jwt.RegisteredClaims
}

// GenerateToken mints a signed session token for the given account.
func GenerateToken(userID uuid.UUID, email string, isAdmin bool) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:  userID,
		Email:   email,
		IsAdmin: isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(signingKey)
	if err != nil {
		return "", utils.WrapError(err, utils.ErrInternalServerError.Code, "Failed to sign token")
	}
	return signed, nil
}

// VerifyToken parses and validates a session token.
func VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, utils.NewError(utils.ErrUnauthorized.Code, "Unexpected signing method")
		}
		return signingKey, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, utils.NewError(utils.ErrUnauthorized.Code, "Invalid or expired token")
	}
	return claims, nil
}
