package oauthmodel

import "errors"

var (
	ErrMissingClientID      = errors.New("missing client id")
	ErrMissingCode          = errors.New("missing authorization code")
	ErrMissingRefreshToken  = errors.New("missing refresh token")
	ErrUnsupportedGrantType = errors.New("unsupported grant type")
)

// OAuth2 error codes (RFC 6749 §5.2).
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorInvalidToken         = "invalid_token"
)

// ErrorCode maps a request validation error onto its OAuth2 error code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedGrantType):
		return ErrorUnsupportedGrantType
	case errors.Is(err, ErrMissingClientID):
		return ErrorInvalidClient
	default:
		return ErrorInvalidRequest
	}
}
