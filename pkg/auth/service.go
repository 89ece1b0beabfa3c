package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

var (
	// ErrMissingToken is returned when the request carries no bearer token.
	ErrMissingToken = errors.New("missing authorization token")
	// ErrInvalidToken is returned when the token fails verification.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// AuthService validates bearer tokens on incoming requests.
type AuthService interface {
	// ValidateRequest extracts and validates the bearer token.
	// Returns ErrMissingToken when no token is present and an error wrapping
	// ErrInvalidToken when verification fails.
	ValidateRequest(r *http.Request) (*Claims, string, error)

	// ValidateToken verifies a raw token string.
	ValidateToken(tokenString string) (*Claims, error)
}

type authService struct {
	secret     []byte
	jwksClient JWKSClientInterface
	logger     *zap.Logger
}

// NewAuthService creates an AuthService. secret signs HS256 tokens; jwksClient
// may be nil, in which case RS256 tokens are rejected.
func NewAuthService(secret string, jwksClient JWKSClientInterface, logger *zap.Logger) AuthService {
	return &authService{
		secret:     []byte(secret),
		jwksClient: jwksClient,
		logger:     logger.Named("auth"),
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	token := bearerToken(r)
	if token == "" {
		return nil, "", ErrMissingToken
	}

	claims, err := s.ValidateToken(token)
	if err != nil {
		s.logger.Debug("Token validation failed",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil, "", err
	}
	return claims, token, nil
}

func (s *authService) ValidateToken(tokenString string) (*Claims, error) {
	alg, err := tokenAlgorithm(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if alg != jwt.SigningMethodHS256.Alg() {
		if s.jwksClient == nil {
			return nil, fmt.Errorf("%w: unexpected signing method %s", ErrInvalidToken, alg)
		}
		claims, err := s.jwksClient.ValidateToken(tokenString)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
		return claims, nil
	}

	if len(s.secret) == 0 {
		return nil, fmt.Errorf("%w: no signing secret configured", ErrInvalidToken)
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// bearerToken returns the token from "Authorization: Bearer <token>", or "".
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func tokenAlgorithm(tokenString string) (string, error) {
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return "", err
	}
	alg, _ := token.Header["alg"].(string)
	return alg, nil
}

var _ AuthService = (*authService)(nil)
