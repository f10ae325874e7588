// Package exchange is a stateless client for the identity provider's OAuth2
// endpoints: authorization-code and refresh-token grants, userinfo and
// revocation.
package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/bob-park/on-time-session/internal/config"
	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/oauthmodel"
	"github.com/coreos/go-oidc/v3/oidc"
	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// Config identifies the app registration at the identity provider.
type Config struct {
	AuthorizationServer string // base URL, endpoints are fixed paths under it
	Issuer              string // when set, endpoints come from OIDC discovery instead
	ClientID            string
	ClientSecret        string
	RedirectURI         string
	Scopes              []string
}

// ConfigFrom builds a Config from the application configuration.
func ConfigFrom(c config.OAuthConfig) Config {
	return Config{
		AuthorizationServer: c.GetAuthorizationServer(),
		Issuer:              c.GetIssuer(),
		ClientID:            c.GetClientID(),
		ClientSecret:        c.GetClientSecret(),
		RedirectURI:         c.GetRedirectURI(),
		Scopes:              c.GetScopes(),
	}
}

// Client talks to the authorization server on behalf of the app.
type Client struct {
	oauth      *oauth2.Config
	endpoints  Endpoints
	httpClient *http.Client
	nowFunc    func() time.Time
	logger     zerolog.Logger

	identityGroup singleflight.Group
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithNowFunc sets the clock used to stamp tokens whose issue time the
// provider did not report.
func WithNowFunc(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.nowFunc = now
	}
}

func WithLogger(logger zerolog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client. With cfg.Issuer set it performs OIDC discovery, so
// ctx bounds that request.
func New(ctx context.Context, cfg Config, options ...ClientOption) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" {
		return nil, fmt.Errorf("%w: client id is required", apperrors.ErrInvalidRequest)
	}

	c := &Client{
		httpClient: http.DefaultClient,
		nowFunc:    time.Now,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	endpoints, err := c.resolveEndpoints(ctx, cfg)
	if err != nil {
		return nil, err
	}
	c.endpoints = endpoints

	c.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   endpoints.AuthURL,
			TokenURL:  endpoints.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	return c, nil
}

func (c *Client) resolveEndpoints(ctx context.Context, cfg Config) (Endpoints, error) {
	if cfg.Issuer == "" {
		base := strings.TrimRight(cfg.AuthorizationServer, "/")
		if base == "" {
			return Endpoints{}, fmt.Errorf("%w: authorization server or issuer is required", apperrors.ErrInvalidRequest)
		}
		return Endpoints{
			AuthURL:       base + oauthmodel.AuthorizePath,
			TokenURL:      base + oauthmodel.TokenPath,
			RevocationURL: base + oauthmodel.RevokePath,
			UserInfoURL:   base + oauthmodel.UserInfoPath,
		}, nil
	}

	provider, err := oidc.NewProvider(oidc.ClientContext(ctx, c.httpClient), cfg.Issuer)
	if err != nil {
		return Endpoints{}, classify(OpDiscovery, err)
	}

	var extra struct {
		RevocationURL string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&extra); err != nil {
		return Endpoints{}, classify(OpDiscovery, err)
	}

	endpoint := provider.Endpoint()
	c.logger.Debug().Str("issuer", cfg.Issuer).Str("token_endpoint", endpoint.TokenURL).Msg("Discovered identity provider endpoints")

	return Endpoints{
		AuthURL:       endpoint.AuthURL,
		TokenURL:      endpoint.TokenURL,
		RevocationURL: extra.RevocationURL,
		UserInfoURL:   provider.UserInfoEndpoint(),
	}, nil
}

// Endpoints returns the resolved provider URLs.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// AuthorizationRequest prepares an authorization-code request with a fresh
// state value and an S256 PKCE challenge.
func (c *Client) AuthorizationRequest() AuthRequest {
	state := uuid.NewString()
	verifier := oauth2.GenerateVerifier()
	return AuthRequest{
		URL:          c.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier)),
		State:        state,
		CodeVerifier: verifier,
	}
}

// ExchangeCode redeems an authorization code. Codes are single use, so a
// failure is returned as is and never retried.
func (c *Client) ExchangeCode(ctx context.Context, code, codeVerifier string) (TokenResult, error) {
	if code == "" {
		return TokenResult{}, &apperrors.ExchangeError{Op: OpExchangeCode, Err: apperrors.ErrInvalidRequest}
	}

	tok, err := c.oauth.Exchange(c.clientContext(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return TokenResult{}, classify(OpExchangeCode, err)
	}
	return c.tokenResult(tok, ""), nil
}

// Refresh redeems a refresh token. A rejection means the token is expired or
// revoked; callers must not retry it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (TokenResult, error) {
	if refreshToken == "" {
		return TokenResult{}, &apperrors.ExchangeError{Op: OpRefresh, Err: apperrors.ErrInvalidRequest}
	}

	tok, err := c.oauth.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return TokenResult{}, classify(OpRefresh, err)
	}
	return c.tokenResult(tok, refreshToken), nil
}

// Revoke asks the provider to invalidate token (RFC 7009). Providers without
// a revocation endpoint make this a no-op.
func (c *Client) Revoke(ctx context.Context, token string, hint oauthmodel.TokenTypeHint) error {
	if c.endpoints.RevocationURL == "" || token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", string(hint))
	form.Set("client_id", c.oauth.ClientID)
	if c.oauth.ClientSecret != "" {
		form.Set("client_secret", c.oauth.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.RevocationURL, strings.NewReader(form.Encode()))
	if err != nil {
		return classify(OpRevoke, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classify(OpRevoke, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apperrors.ExchangeError{Op: OpRevoke, StatusCode: resp.StatusCode, Code: errorCode(resp)}
	}
	return nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// tokenResult converts a token response. previousRefresh is kept when the
// provider does not rotate refresh tokens.
func (c *Client) tokenResult(tok *oauth2.Token, previousRefresh string) TokenResult {
	receivedAt := c.nowFunc()

	result := TokenResult{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    time.Duration(expiresInSeconds(tok)) * time.Second,
		IssuedAt:     c.issuedAt(tok, receivedAt),
	}
	if result.RefreshToken == "" {
		result.RefreshToken = previousRefresh
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		result.IDToken = idToken
	}
	return result
}

// issuedAt prefers the provider's issued_at field, then the access token's
// iat claim, then the time the response arrived.
func (c *Client) issuedAt(tok *oauth2.Token, receivedAt time.Time) time.Time {
	if secs, ok := numeric(tok.Extra("issued_at")); ok && secs > 0 {
		return time.Unix(secs, 0)
	}

	parsed, _, err := jwtlib.NewParser().ParseUnverified(tok.AccessToken, jwtlib.MapClaims{})
	if err == nil {
		if iat, err := parsed.Claims.GetIssuedAt(); err == nil && iat != nil {
			return iat.Time
		}
	}
	return receivedAt
}

func expiresInSeconds(tok *oauth2.Token) int64 {
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	if secs, ok := numeric(tok.Extra("expires_in")); ok {
		return secs
	}
	return 0
}

// numeric reads a JSON number or form-encoded string from a token response field.
func numeric(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	}
	return 0, false
}
