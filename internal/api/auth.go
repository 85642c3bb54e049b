package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/on-cure/oncare/internal/errors"
)

// LoginRequest represents a login request
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the sign-up form. Email, Password, FirstName, LastName
// and DateOfBirth are required.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	Avatar      string `json:"avatar,omitempty"`
	Nickname    string `json:"nickname,omitempty"`
	AboutMe     string `json:"about_me,omitempty"`
	Role        string `json:"role,omitempty"`
}

// Validate checks required fields before a round trip to the backend.
func (r RegisterRequest) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"email", r.Email},
		{"password", r.Password},
		{"first_name", r.FirstName},
		{"last_name", r.LastName},
		{"date_of_birth", r.DateOfBirth},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return errors.FieldRequired(f.name)
		}
	}
	if !strings.Contains(r.Email, "@") {
		return errors.New(errors.ErrCodeFieldRequired, "email must be a valid address")
	}
	return nil
}

// RegisterResponse is returned on successful sign-up.
type RegisterResponse struct {
	Message         string `json:"message"`
	UserID          int    `json:"user_id"`
	HederaAccountID string `json:"hedera_account_id,omitempty"`
}

// GetSession returns the user owning the current session cookie. A 401
// surfaces as an ErrCodeUnauthorized error; a 2xx body without a user as
// ErrCodeMalformedUser.
func (c *Client) GetSession(ctx context.Context) (*User, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/auth/session", "/api/auth/session", nil)
	if err != nil {
		return nil, err
	}
	if err := parseResponse(resp, nil); err != nil {
		return nil, err
	}

	payload, err := DecodeUserPayload(resp.body)
	if err != nil {
		return nil, err
	}
	switch payload.Shape {
	case ShapeDirect, ShapeNested:
		return payload.User, nil
	case ShapeMalformed:
		return nil, errors.MalformedUser("session response has no user id")
	default:
		return nil, errors.MalformedUser("unknown payload shape")
	}
}

// Login authenticates with email and password. On success the backend sets
// the session cookie in the client's jar. The returned payload may be
// ShapeMalformed; interpreting that is left to the caller.
func (c *Client) Login(ctx context.Context, email, password string) (UserPayload, error) {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/login", "/api/auth/login", LoginRequest{
		Email:    email,
		Password: password,
	})
	if err != nil {
		return UserPayload{}, err
	}
	if err := parseResponse(resp, nil); err != nil {
		return UserPayload{}, err
	}
	return DecodeUserPayload(resp.body)
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/auth/register", "/api/auth/register", req)
	if err != nil {
		return nil, err
	}

	var out RegisterResponse
	if err := parseResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout ends the backend session. The backend clears the cookie on
// success.
func (c *Client) Logout(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/api/auth/logout", "/api/auth/logout", nil)
	if err != nil {
		return err
	}
	return parseResponse(resp, nil)
}
