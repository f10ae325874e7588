package exchange

import (
	"time"

	"github.com/bob-park/on-time-session/oauthmodel"
)

// TokenResult is the outcome of a successful token grant.
type TokenResult struct {
	AccessToken  string
	RefreshToken string // empty when the provider did not issue one
	IDToken      string
	ExpiresIn    time.Duration
	IssuedAt     time.Time
}

// ExpiresAt is the absolute expiry of the access token. It is always derived
// from IssuedAt and ExpiresIn so a suspended process resumes without drift.
func (r TokenResult) ExpiresAt() time.Time {
	return r.IssuedAt.Add(r.ExpiresIn)
}

// Identity is the signed-in user as reported by the userinfo endpoint.
type Identity struct {
	SubjectID string
	UserID    string // login id, also the path key of the On Time user API
	Username  string
	Role      oauthmodel.Role
}

// AuthRequest is everything the interactive login step needs to start, and
// the verifier it must hand back to ExchangeCode.
type AuthRequest struct {
	URL          string
	State        string
	CodeVerifier string
}

// Endpoints are the identity provider URLs used by the client.
type Endpoints struct {
	AuthURL       string
	TokenURL      string
	RevocationURL string
	UserInfoURL   string
}
