package oauthmodel

// GrantType represents the OAuth 2.0 grant type used at the token endpoint.
// Determines what credentials are required to obtain tokens.
type GrantType string

const (
	// AuthorizationCodeGrant exchanges an authorization code for tokens.
	// Used in: interactive login, after the browser redirect back to the app
	// Token request includes: code, client_id, client_secret, redirect_uri, code_verifier
	// Returns: access_token, refresh_token (if offline access was granted), id_token
	AuthorizationCodeGrant GrantType = "authorization_code"

	// RefreshTokenGrant exchanges a refresh token for new tokens.
	// Used in: background renewal before the access token expires
	// Token request includes: refresh_token, client_id, client_secret
	// Returns: new access_token, optionally a rotated refresh_token
	RefreshTokenGrant GrantType = "refresh_token"
)

// CodeMethodType represents the PKCE (Proof Key for Code Exchange) challenge method.
type CodeMethodType string

const (
	// CodeMethodTypeS256 indicates SHA-256 hashing is used for the code challenge.
	// Client sends: code_challenge = BASE64URL(SHA256(code_verifier))
	// Server validates: SHA256(provided code_verifier) == stored code_challenge
	CodeMethodTypeS256 CodeMethodType = "S256"
)

// TokenTypeHint tells the revocation endpoint which kind of token is sent (RFC 7009).
type TokenTypeHint string

const (
	AccessTokenHint  TokenTypeHint = "access_token"
	RefreshTokenHint TokenTypeHint = "refresh_token"
)

// Endpoint paths relative to the authorization server base URL.
const (
	AuthorizePath = "/oauth2/authorize"
	TokenPath     = "/oauth2/token"
	RevokePath    = "/oauth2/revoke"
	UserInfoPath  = "/userinfo"
	DiscoveryPath = "/.well-known/openid-configuration"
)
