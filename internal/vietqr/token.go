package vietqr

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dangtnh/coworkhub-platform/pkg/logging"
)

// TokenPurpose tags webhook tokens so they cannot be replayed against an
// unrelated integration.
const TokenPurpose = "vietqr_webhook"

var (
	// ErrUnauthenticated indicates missing or invalid partner credentials.
	ErrUnauthenticated = errors.New("vietqr: invalid partner credentials")

	// ErrMisconfigured indicates the server-side secret or partner
	// credentials are absent. Logged distinctly, but callers return the
	// same opaque denial as ErrUnauthenticated.
	ErrMisconfigured = errors.New("vietqr: token service misconfigured")

	// ErrExpired indicates a token past its expiry.
	ErrExpired = errors.New("vietqr: token expired")

	// ErrInvalidToken indicates a malformed token, bad signature, or a
	// purpose tag that does not match the webhook capability.
	ErrInvalidToken = errors.New("vietqr: invalid token")
)

// TokenClaims carries the partner identity and purpose tag.
type TokenClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies short-lived bearer tokens for the VietQR
// partner. Stateless: the token only bridges the partner's token-fetch step
// to its immediately following notification call.
type TokenService struct {
	username string
	password string
	secret   []byte
	ttl      time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

// NewTokenService creates a token service backed by static partner credentials.
func NewTokenService(username, password, secret string, ttl time.Duration, logger *logging.Logger) *TokenService {
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &TokenService{
		username: username,
		password: password,
		secret:   []byte(secret),
		ttl:      ttl,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// TTL returns the configured token lifetime.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}

// Issue validates the partner's Basic-Auth credentials and returns a signed
// bearer token. Credential mismatch and missing server configuration are
// distinguished for logging but both map to an opaque denial at the edge.
func (s *TokenService) Issue(username, password string) (string, error) {
	if len(s.secret) == 0 {
		s.logger.Error("token issuance refused: webhook token secret not configured")
		return "", ErrMisconfigured
	}
	if s.username == "" || s.password == "" {
		s.logger.Error("token issuance refused: partner credentials not configured")
		return "", ErrMisconfigured
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(password), []byte(s.password)) == 1
	if !userOK || !passOK {
		s.logger.Warn("token issuance denied: credential mismatch", "username", username)
		return "", ErrUnauthenticated
	}

	issuedAt := s.now()
	claims := TokenClaims{
		Purpose: TokenPurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("vietqr: sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, expiry and purpose, returning the partner subject.
func (s *TokenService) Verify(tokenString string) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMisconfigured
	}
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", ErrExpired
		}
		return "", ErrInvalidToken
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Purpose != TokenPurpose {
		s.logger.Warn("token rejected: purpose mismatch", "purpose", claims.Purpose)
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
