package oauthmodel

import (
	"net/url"
	"strings"
)

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the form body sent to the /oauth2/token endpoint.
type TokenRequest struct {
	GrantType GrantType

	// ClientID identifies the On Time app registration.
	// Required: Yes, in the body or through HTTP Basic auth
	ClientID string

	// ClientSecret is the secret credential of the app registration.
	// Security: Never log or expose this value
	ClientSecret string

	// RedirectURI must match the one used in the authorization request.
	// Required: Yes (only for authorization_code grant)
	// Example: "ontime://callback"
	RedirectURI string

	// Code is the authorization code received from the authorization endpoint.
	// Required: Yes (only for authorization_code grant)
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	// Validation: Server compares SHA256(code_verifier) with stored code_challenge
	CodeVerifier string

	// RefreshToken is used to obtain new access tokens without re-authentication.
	// Required: Yes (only for refresh_token grant)
	RefreshToken string
}

// ParseTokenRequest reads a token request from a form body. Credentials sent
// with HTTP Basic auth are passed in as user and password and win over the body.
func ParseTokenRequest(form url.Values, user, password string) (TokenRequest, error) {
	req := TokenRequest{
		GrantType:    GrantType(form.Get("grant_type")),
		ClientID:     form.Get("client_id"),
		ClientSecret: form.Get("client_secret"),
		RedirectURI:  form.Get("redirect_uri"),
		Code:         form.Get("code"),
		CodeVerifier: form.Get("code_verifier"),
		RefreshToken: form.Get("refresh_token"),
	}
	if user != "" {
		req.ClientID = user
		req.ClientSecret = password
	}

	if strings.TrimSpace(req.ClientID) == "" {
		return req, ErrMissingClientID
	}

	switch req.GrantType {
	case AuthorizationCodeGrant:
		if req.Code == "" {
			return req, ErrMissingCode
		}
	case RefreshTokenGrant:
		if req.RefreshToken == "" {
			return req, ErrMissingRefreshToken
		}
	default:
		return req, ErrUnsupportedGrantType
	}
	return req, nil
}
