// Package devicereg registers the device push token with the On Time API so
// the user receives attendance notifications, and removes it again on logout.
package devicereg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Platform is the push provider the token belongs to.
type Platform string

const (
	PlatformIOS     Platform = "IOS"
	PlatformAndroid Platform = "ANDROID"
)

// ParsePlatform accepts the platform names case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	switch Platform(strings.ToUpper(strings.TrimSpace(s))) {
	case PlatformIOS:
		return PlatformIOS, nil
	case PlatformAndroid:
		return PlatformAndroid, nil
	}
	return "", fmt.Errorf("%w: unknown platform %q", apperrors.ErrInvalidRequest, s)
}

type registerRequest struct {
	Type    Platform        `json:"type"`
	Options registerOptions `json:"options"`
}

type registerOptions struct {
	Token string `json:"token"`
}

// Client calls the On Time notification API.
type Client struct {
	apiHost    string
	httpClient *http.Client
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient sets the client whose transport carries the requests. The
// bearer token is layered on top of it.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API at apiHost. Every request is authorized
// with the current token of src, read per request.
func New(apiHost string, src oauth2.TokenSource, options ...Option) *Client {
	c := &Client{
		apiHost:    strings.TrimRight(apiHost, "/"),
		httpClient: http.DefaultClient,
		logger:     log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.httpClient = &http.Client{
		Transport: &oauth2.Transport{Source: src, Base: base},
		Timeout:   c.httpClient.Timeout,
	}
	return c
}

// Register records pushToken for userID and returns the registration id the
// API assigned to it.
func (c *Client) Register(ctx context.Context, userID string, platform Platform, pushToken string) (string, error) {
	if userID == "" || pushToken == "" {
		return "", fmt.Errorf("%w: user id and push token are required", apperrors.ErrInvalidRequest)
	}

	body, err := json.Marshal(registerRequest{Type: platform, Options: registerOptions{Token: pushToken}})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.notificationURL(userID), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("register device: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("register device", resp); err != nil {
		return "", err
	}

	id, err := decodeID(resp.Body)
	if err != nil {
		return "", fmt.Errorf("register device: %w", err)
	}
	c.logger.Debug().Str("user_id", userID).Str("platform", string(platform)).Str("registration_id", id).Msg("Device registered")
	return id, nil
}

// Deregister removes a registration. A registration the API no longer knows
// is treated as removed.
func (c *Client) Deregister(ctx context.Context, userID, registrationID string) error {
	if userID == "" || registrationID == "" {
		return fmt.Errorf("%w: user id and registration id are required", apperrors.ErrInvalidRequest)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.notificationURL(userID)+"/"+url.PathEscape(registrationID), nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deregister device: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	return checkStatus("deregister device", resp)
}

func (c *Client) notificationURL(userID string) string {
	return c.apiHost + "/api/v1/users/" + url.PathEscape(userID) + "/notification"
}

func checkStatus(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		return nil
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w", op, apperrors.ErrUnauthorized)
	}
	return fmt.Errorf("%s: unexpected status %d", op, resp.StatusCode)
}

// decodeID reads {"id": ...}; the API renders ids as numbers or strings
// depending on version.
func decodeID(r io.Reader) (string, error) {
	var body struct {
		ID any `json:"id"`
	}
	dec := json.NewDecoder(io.LimitReader(r, 1<<16))
	dec.UseNumber()
	if err := dec.Decode(&body); err != nil {
		return "", err
	}

	switch id := body.ID.(type) {
	case json.Number:
		return id.String(), nil
	case string:
		if id != "" {
			return id, nil
		}
	}
	return "", apperrors.New("response has no registration id")
}
