package config

import "strings"

const (
	authServerVar   = "AUTHORIZATION_SERVER"
	authIssuerVar   = "AUTHORIZATION_ISSUER"
	clientIDVar     = "AUTHORIZATION_CLIENT_ID"
	clientSecretVar = "AUTHORIZATION_CLIENT_SECRET"
	redirectURIVar  = "AUTHORIZATION_REDIRECT_URI"
	scopesVar       = "AUTHORIZATION_SCOPES"
)

type OAuthConfig interface {
	GetAuthorizationServer() string
	GetIssuer() string
	GetClientID() string
	GetClientSecret() string
	GetRedirectURI() string
	GetScopes() []string
}

type OAuth struct {
	source
}

var _ OAuthConfig = OAuth{}

// GetAuthorizationServer returns the identity provider base URL. The token,
// authorize, revoke and userinfo endpoints live under it.
func (o OAuth) GetAuthorizationServer() string {
	return strings.TrimRight(o.get(authServerVar, "http://localhost:9000"), "/")
}

// GetIssuer returns the OIDC issuer used for endpoint discovery. Empty disables discovery.
func (o OAuth) GetIssuer() string {
	return o.get(authIssuerVar, "")
}

func (o OAuth) GetClientID() string {
	return o.get(clientIDVar, "")
}

func (o OAuth) GetClientSecret() string {
	return o.get(clientSecretVar, "")
}

func (o OAuth) GetRedirectURI() string {
	return o.get(redirectURIVar, "ontime://callback")
}

func (o OAuth) GetScopes() []string {
	return strings.Fields(strings.ReplaceAll(o.get(scopesVar, "openid profile"), ",", " "))
}
