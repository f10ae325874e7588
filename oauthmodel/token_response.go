package oauthmodel

// TokenResponse represents the response from an OAuth2 token request.
// This is the standard OAuth2 token endpoint response format as defined in RFC 6749.
type TokenResponse struct {
	// AccessToken is the bearer token used to access the On Time API.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	// Lifespan: Short-lived (typically 1 hour)
	AccessToken *string `json:"access_token,omitempty"`

	// IdToken is the OpenID Connect ID token.
	// Only present: When "openid" scope was requested
	IdToken *string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type,omitempty"`

	// ExpiresIn is the lifetime in seconds of the access token, counted from IssuedAt.
	// Example: 3600
	ExpiresIn int `json:"expires_in,omitempty"`

	// IssuedAt is the unix time, in seconds, at which the provider issued the token.
	// Not part of RFC 6749; some providers send it. When absent the client falls
	// back to the access token's "iat" claim, then to the time of receipt.
	IssuedAt *int64 `json:"issued_at,omitempty"`

	// RefreshToken is an opaque token used to obtain new access tokens.
	// Usage: Send to /oauth2/token with grant_type=refresh_token
	// Security: Must be stored encrypted, may rotate on each use
	RefreshToken *string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions.
	// Example: "openid profile"
	Scope string `json:"scope,omitempty"`
}

// ErrorResponse is the RFC 6749 §5.2 error body.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}
