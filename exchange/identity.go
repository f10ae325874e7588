package exchange

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	apperrors "github.com/bob-park/on-time-session/internal/errors"
	"github.com/bob-park/on-time-session/internal/utils"
	"github.com/bob-park/on-time-session/oauthmodel"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

const identityTimeout = 30 * time.Second

// userInfoResponse adds the Spring-style authorities claim some provider
// versions send instead of role.
type userInfoResponse struct {
	oauthmodel.UserInfo
	Authorities []any `json:"authorities,omitempty"`
}

// FetchIdentity returns the user the access token belongs to. Concurrent
// calls for the same token share one request. A 401 yields an error matching
// ErrUnauthorized so the caller can refresh once and retry.
func (c *Client) FetchIdentity(ctx context.Context, accessToken string) (Identity, error) {
	if accessToken == "" {
		return Identity{}, &apperrors.ExchangeError{Op: OpUserInfo, Err: apperrors.ErrInvalidRequest}
	}
	if c.endpoints.UserInfoURL == "" {
		return Identity{}, &apperrors.ExchangeError{Op: OpUserInfo, Err: errors.New("provider has no userinfo endpoint")}
	}

	// The shared request must outlive any one caller giving up.
	ch := c.identityGroup.DoChan(accessToken, func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), identityTimeout)
		defer cancel()
		return c.fetchIdentity(fetchCtx, accessToken)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return Identity{}, res.Err
		}
		return res.Val.(Identity), nil
	case <-ctx.Done():
		return Identity{}, classify(OpUserInfo, ctx.Err())
	}
}

func (c *Client) fetchIdentity(ctx context.Context, accessToken string) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.UserInfoURL, nil)
	if err != nil {
		return Identity{}, classify(OpUserInfo, err)
	}
	req.Header.Set("Accept", "application/json")

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	resp, err := oauth2.NewClient(c.clientContext(ctx), src).Do(req)
	if err != nil {
		return Identity{}, classify(OpUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Identity{}, &apperrors.ExchangeError{Op: OpUserInfo, StatusCode: resp.StatusCode, Code: errorCode(resp)}
	}

	var info userInfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&info); err != nil {
		return Identity{}, &apperrors.ExchangeError{Op: OpUserInfo, StatusCode: resp.StatusCode, Err: errors.Wrap(err, "decode userinfo")}
	}
	return identityFrom(info), nil
}

func identityFrom(info userInfoResponse) Identity {
	profile := utils.Value(info.Profile)

	id := Identity{
		SubjectID: info.Sub,
		UserID:    profile.UserID,
		Username:  profile.Username,
		Role:      profile.Role,
	}
	if id.UserID == "" {
		id.UserID = info.PreferredUsername
	}
	if id.Username == "" {
		id.Username = id.UserID
	}
	if id.Role == "" {
		id.Role = info.Role
	}
	if id.Role == "" {
		if authorities := utils.ToStringSlice(info.Authorities); len(authorities) > 0 {
			id.Role = oauthmodel.Role(authorities[0])
		}
	}
	return id
}
