package oauthmodel

// Role is the On Time authorization role of a user.
type Role string

const (
	RoleAdmin   Role = "ROLE_ADMIN"
	RoleManager Role = "ROLE_MANAGER"
	RoleUser    Role = "ROLE_USER"
)

// UserInfo is the body of GET /userinfo. The provider nests the On Time user
// under "profile" rather than using the OIDC profile URL claim.
type UserInfo struct {
	Sub     string       `json:"sub"`
	Profile *UserProfile `json:"profile,omitempty"`

	// Standard OIDC claims, used when no profile object is present.
	PreferredUsername string `json:"preferred_username,omitempty"`
	Role              Role   `json:"role,omitempty"`
}

type UserProfile struct {
	ID       string `json:"id"`       // internal numeric id rendered as a string
	UserID   string `json:"userId"`   // login id
	Username string `json:"username"` // display name
	Role     Role   `json:"role"`
}
