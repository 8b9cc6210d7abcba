package utils

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/cppla/challengehub/config"
)

// ParticipantClaims identify the caller of participant and admin endpoints.
// Tokens are minted by the identity service; the engine only verifies them.
type ParticipantClaims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Participant returns the numeric user id, falling back to a numeric subject.
func (c *ParticipantClaims) Participant() (uint, bool) {
	if c.UserID != 0 {
		return c.UserID, true
	}
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

// TokenVerifier checks HS256 participant tokens against the shared secret and,
// when configured, the expected issuer and audience.
type TokenVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewTokenVerifier(secret, issuer, audience string) *TokenVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30 * time.Second),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}
	return &TokenVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

// NewTokenVerifierFromConfig builds a verifier from the loaded application config.
func NewTokenVerifierFromConfig() *TokenVerifier {
	cfg := config.Get()
	return NewTokenVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)
}

// Verify validates a token and returns its claims. Tokens without a participant id are rejected.
func (v *TokenVerifier) Verify(tokenStr string) (*ParticipantClaims, error) {
	parsed, err := v.parser.ParseWithClaims(tokenStr, &ParticipantClaims{}, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*ParticipantClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	id, ok := claims.Participant()
	if !ok {
		return nil, errors.New("token carries no participant id")
	}
	claims.UserID = id
	return claims, nil
}
