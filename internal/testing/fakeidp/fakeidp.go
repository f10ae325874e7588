// Package fakeidp is an in-process OAuth2/OIDC identity provider for tests.
// It speaks the same token, userinfo, revocation and discovery endpoints as
// the On Time authorization server and lets tests script its failures.
package fakeidp

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bob-park/on-time-session/internal/utils"
	"github.com/bob-park/on-time-session/oauthmodel"
)

const (
	DefaultClientID     = "ontime-app"
	DefaultClientSecret = "ontime-secret"
	DefaultRedirectURI  = "ontime://callback"
	DefaultSubject      = "user-1"
)

// Endpoint names accepted by Calls.
const (
	EndpointToken     = "token"
	EndpointRefresh   = "refresh"
	EndpointUserInfo  = "userinfo"
	EndpointRevoke    = "revoke"
	EndpointDiscovery = "discovery"
)

type failure struct {
	status int
	code   string
}

type Server struct {
	*httptest.Server

	ClientID     string
	ClientSecret string
	RedirectURI  string

	signingKey []byte
	now        func() time.Time

	mu            sync.Mutex
	expiresIn     time.Duration
	sendIssuedAt  bool
	omitRefresh   bool
	codes         map[string]string // code -> expected verifier
	refreshTokens map[string]string // refresh token -> subject
	revokedAccess map[string]bool
	users         map[string]oauthmodel.UserProfile
	calls         map[string]int
	revoked       []string
	refreshFail   *failure
	userinfoFail  *failure
	rejectNext    int
	refreshGate   chan struct{}
	refreshSeen   chan struct{}
}

type Option func(*Server)

// WithNowFunc sets the provider clock used for iat, exp and issued_at.
func WithNowFunc(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithExpiresIn sets the access token lifetime reported in expires_in.
func WithExpiresIn(d time.Duration) Option {
	return func(s *Server) {
		s.expiresIn = d
	}
}

// WithIssuedAt makes token responses carry an explicit issued_at field.
func WithIssuedAt() Option {
	return func(s *Server) {
		s.sendIssuedAt = true
	}
}

// WithoutRefreshRotation makes refresh responses omit refresh_token.
func WithoutRefreshRotation() Option {
	return func(s *Server) {
		s.omitRefresh = true
	}
}

// New starts a provider that is shut down when the test ends.
func New(t testing.TB, options ...Option) *Server {
	t.Helper()

	s := &Server{
		ClientID:      DefaultClientID,
		ClientSecret:  DefaultClientSecret,
		RedirectURI:   DefaultRedirectURI,
		signingKey:    []byte("fakeidp-signing-key"),
		now:           time.Now,
		expiresIn:     time.Hour,
		codes:         make(map[string]string),
		refreshTokens: make(map[string]string),
		revokedAccess: make(map[string]bool),
		users: map[string]oauthmodel.UserProfile{
			DefaultSubject: {ID: "1", UserID: "hong", Username: "Hong Gildong", Role: oauthmodel.RoleUser},
		},
		calls:       make(map[string]int),
		refreshSeen: make(chan struct{}, 64),
	}
	for _, opt := range options {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+oauthmodel.TokenPath, s.handleToken)
	mux.HandleFunc("GET "+oauthmodel.UserInfoPath, s.handleUserInfo)
	mux.HandleFunc("POST "+oauthmodel.RevokePath, s.handleRevoke)
	mux.HandleFunc("GET "+oauthmodel.DiscoveryPath, s.handleDiscovery)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// IssueCode registers an authorization code bound to a PKCE verifier, as the
// interactive login step would.
func (s *Server) IssueCode(verifier string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	code := randomToken()
	s.codes[code] = verifier
	return code
}

// IssueRefreshToken returns a refresh token valid for the default user.
func (s *Server) IssueRefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rt := randomToken()
	s.refreshTokens[rt] = DefaultSubject
	return rt
}

// IssueAccessToken returns an access token valid for the default user.
func (s *Server) IssueAccessToken() string {
	at, err := s.createAccessToken(DefaultSubject, s.now(), s.expiresIn)
	if err != nil {
		panic(err)
	}
	return at
}

// SetExpiresIn changes the lifetime of tokens issued from now on.
func (s *Server) SetExpiresIn(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiresIn = d
}

// FailRefresh makes every refresh grant fail with the given status and OAuth2
// error code until cleared with status 0.
func (s *Server) FailRefresh(status int, code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		s.refreshFail = nil
		return
	}
	s.refreshFail = &failure{status: status, code: code}
}

// FailUserInfo makes userinfo fail with status until cleared with status 0.
func (s *Server) FailUserInfo(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		s.userinfoFail = nil
		return
	}
	s.userinfoFail = &failure{status: status, code: oauthmodel.ErrorInvalidToken}
}

// RejectNextUserInfo makes the next userinfo request fail with 401 whatever
// token it carries.
func (s *Server) RejectNextUserInfo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext++
}

// RevokeAccessToken makes userinfo reject at with 401.
func (s *Server) RevokeAccessToken(at string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revokedAccess[at] = true
}

// BlockRefresh holds refresh grants until the returned release func is called.
func (s *Server) BlockRefresh() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.refreshGate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.refreshGate == gate {
				s.refreshGate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// RefreshArrived receives once per refresh grant reaching the provider.
func (s *Server) RefreshArrived() <-chan struct{} {
	return s.refreshSeen
}

// Calls returns how many requests an endpoint has served.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// TotalCalls returns the number of requests served by all endpoints.
func (s *Server) TotalCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.calls {
		total += n
	}
	return total
}

// Revoked returns the tokens posted to the revocation endpoint.
func (s *Server) Revoked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.revoked...)
}

func (s *Server) count(endpoint string) {
	s.mu.Lock()
	s.calls[endpoint]++
	s.mu.Unlock()
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	s.count(EndpointToken)

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, oauthmodel.ErrorInvalidRequest)
		return
	}
	user, password, _ := r.BasicAuth()
	req, err := oauthmodel.ParseTokenRequest(r.PostForm, user, password)
	if err != nil {
		writeError(w, http.StatusBadRequest, oauthmodel.ErrorCode(err))
		return
	}
	if req.ClientID != s.ClientID || req.ClientSecret != s.ClientSecret {
		writeError(w, http.StatusUnauthorized, oauthmodel.ErrorInvalidClient)
		return
	}

	switch req.GrantType {
	case oauthmodel.AuthorizationCodeGrant:
		s.exchangeCode(w, req)
	case oauthmodel.RefreshTokenGrant:
		s.refresh(w, r, req)
	}
}

func (s *Server) exchangeCode(w http.ResponseWriter, req oauthmodel.TokenRequest) {
	s.mu.Lock()
	verifier, ok := s.codes[req.Code]
	delete(s.codes, req.Code) // codes are single use
	s.mu.Unlock()

	if !ok || verifier != req.CodeVerifier || req.RedirectURI != s.RedirectURI {
		writeError(w, http.StatusBadRequest, oauthmodel.ErrorInvalidGrant)
		return
	}
	s.writeTokens(w, DefaultSubject, true)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request, req oauthmodel.TokenRequest) {
	s.count(EndpointRefresh)
	select {
	case s.refreshSeen <- struct{}{}:
	default:
	}

	s.mu.Lock()
	gate := s.refreshGate
	s.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-r.Context().Done():
			return
		}
	}

	s.mu.Lock()
	fail := s.refreshFail
	subject, ok := s.refreshTokens[req.RefreshToken]
	rotate := !s.omitRefresh
	if ok && fail == nil && rotate {
		delete(s.refreshTokens, req.RefreshToken)
	}
	s.mu.Unlock()

	if fail != nil {
		writeError(w, fail.status, fail.code)
		return
	}
	if !ok {
		writeError(w, http.StatusBadRequest, oauthmodel.ErrorInvalidGrant)
		return
	}
	s.writeTokens(w, subject, rotate)
}

func (s *Server) writeTokens(w http.ResponseWriter, subject string, withRefresh bool) {
	s.mu.Lock()
	expiresIn := s.expiresIn
	sendIssuedAt := s.sendIssuedAt
	s.mu.Unlock()

	issuedAt := s.now()
	at, err := s.createAccessToken(subject, issuedAt, expiresIn)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error")
		return
	}

	resp := oauthmodel.TokenResponse{
		AccessToken: utils.Ptr(at),
		TokenType:   "Bearer",
		ExpiresIn:   int(expiresIn.Seconds()),
		Scope:       "openid profile",
	}
	if sendIssuedAt {
		resp.IssuedAt = utils.Ptr(issuedAt.Unix())
	}
	if withRefresh {
		rt := randomToken()
		s.mu.Lock()
		s.refreshTokens[rt] = subject
		s.mu.Unlock()
		resp.RefreshToken = utils.Ptr(rt)
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleUserInfo(w http.ResponseWriter, r *http.Request) {
	s.count(EndpointUserInfo)

	raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || raw == "" {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, oauthmodel.ErrorInvalidToken)
		return
	}

	s.mu.Lock()
	fail := s.userinfoFail
	revoked := s.revokedAccess[raw]
	if s.rejectNext > 0 {
		s.rejectNext--
		revoked = true
	}
	s.mu.Unlock()

	if fail != nil {
		writeError(w, fail.status, fail.code)
		return
	}

	subject, err := s.subjectOf(raw)
	if err != nil || revoked {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		writeError(w, http.StatusUnauthorized, oauthmodel.ErrorInvalidToken)
		return
	}

	s.mu.Lock()
	profile := s.users[subject]
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, oauthmodel.UserInfo{Sub: subject, Profile: &profile})
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	s.count(EndpointRevoke)

	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, oauthmodel.ErrorInvalidRequest)
		return
	}
	token := r.PostForm.Get("token")

	s.mu.Lock()
	s.revoked = append(s.revoked, token)
	delete(s.refreshTokens, token)
	s.revokedAccess[token] = true
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	s.count(EndpointDiscovery)

	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                s.URL,
		"authorization_endpoint":                s.URL + oauthmodel.AuthorizePath,
		"token_endpoint":                        s.URL + oauthmodel.TokenPath,
		"userinfo_endpoint":                     s.URL + oauthmodel.UserInfoPath,
		"revocation_endpoint":                   s.URL + oauthmodel.RevokePath,
		"jwks_uri":                              s.URL + "/oauth2/jwks",
		"response_types_supported":              []string{"code"},
		"subject_types_supported":               []string{"public"},
		"id_token_signing_alg_values_supported": []string{"RS256"},
	})
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, oauthmodel.ErrorResponse{Error: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
