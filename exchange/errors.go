package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/oauthmodel"
	"golang.org/x/oauth2"
)

// Operation names carried by ExchangeError.Op.
const (
	OpExchangeCode = "exchange_code"
	OpRefresh      = "refresh"
	OpUserInfo     = "userinfo"
	OpRevoke       = "revoke"
	OpDiscovery    = "discovery"
)

// classify turns a failed provider call into an *ExchangeError. Provider
// rejections and malformed bodies only match ErrAuthExchange; requests that
// never completed also match ErrNetwork.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var exErr *apperrors.ExchangeError
	if errors.As(err, &exErr) {
		return err
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		exErr = &apperrors.ExchangeError{Op: op, StatusCode: status, Code: retrieveErr.ErrorCode}
		if retrieveErr.ErrorDescription != "" {
			exErr.Err = errors.New(retrieveErr.ErrorDescription)
		}
		return exErr
	}

	if isTransportError(err) {
		return &apperrors.ExchangeError{Op: op, Err: fmt.Errorf("%w: %v", apperrors.ErrNetwork, err)}
	}

	return &apperrors.ExchangeError{Op: op, Err: err}
}

func isTransportError(err error) bool {
	var urlErr *url.Error
	var netErr net.Error
	return errors.As(err, &urlErr) ||
		errors.As(err, &netErr) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

// errorCode reads the OAuth2 error code from a failed response body.
func errorCode(resp *http.Response) string {
	var body oauthmodel.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&body); err != nil {
		return ""
	}
	return body.Error
}
