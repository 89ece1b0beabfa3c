package testhelpers

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestSecret is the HS256 secret used by handler and auth tests.
const TestSecret = "test-secret"

// GenerateTestJWT signs an HS256 token for userID that expires in an hour.
func GenerateTestJWT(secret, userID, email string) string {
	return sign(secret, userID, email, time.Now().Add(time.Hour))
}

// GenerateExpiredTestJWT signs a token that expired a minute ago.
func GenerateExpiredTestJWT(secret, userID string) string {
	return sign(secret, userID, "", time.Now().Add(-time.Minute))
}

// GenerateTestJWTWithBearer returns token with "Bearer " prefix for Authorization header.
func GenerateTestJWTWithBearer(secret, userID, email string) string {
	return "Bearer " + GenerateTestJWT(secret, userID, email)
}

func sign(secret, userID, email string, expiresAt time.Time) string {
	claims := jwt.MapClaims{
		"id":  userID,
		"sub": userID,
		"iat": time.Now().Add(-2 * time.Hour).Unix(),
		"exp": expiresAt.Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		panic(err)
	}
	return token
}
