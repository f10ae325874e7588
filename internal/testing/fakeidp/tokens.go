package fakeidp

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// createAccessToken mints an HS256 access token for subject.
func (s *Server) createAccessToken(subject string, issuedAt time.Time, expiresIn time.Duration) (string, error) {
	claims := jwtlib.MapClaims{
		"iss":       s.URL,                          // The issuer of the token
		"sub":       subject,                        // The user the token was issued to
		"client_id": s.ClientID,                     // The OAuth2 client that requested the token
		"scope":     "openid profile",               // OAuth2 scopes granted to this token
		"iat":       issuedAt.Unix(),                // Issued At: the time at which the token was issued
		"exp":       issuedAt.Add(expiresIn).Unix(), // Expiry: when the token will expire
		"jti":       uuid.New().String(),            // Unique token ID so every issued token differs
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signed, nil
}

// subjectOf verifies an access token minted by this provider.
func (s *Server) subjectOf(raw string) (string, error) {
	token, err := jwtlib.Parse(raw, func(t *jwtlib.Token) (interface{}, error) {
		return s.signingKey, nil
	}, jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}), jwtlib.WithTimeFunc(s.now))
	if err != nil {
		return "", err
	}
	return token.Claims.GetSubject()
}

func randomToken() string {
	b := make([]byte, 32) // 256 bits
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)
}
