package api

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/on-cure/oncare/internal/errors"
)

// User is an onCare account as returned by the backend.
type User struct {
	ID                 int        `json:"id"`
	Email              string     `json:"email"`
	FirstName          string     `json:"first_name"`
	LastName           string     `json:"last_name"`
	DateOfBirth        string     `json:"date_of_birth,omitempty"`
	Avatar             string     `json:"avatar,omitempty"`
	Nickname           string     `json:"nickname,omitempty"`
	AboutMe            string     `json:"about_me,omitempty"`
	Role               string     `json:"role,omitempty"`
	VerificationStatus string     `json:"verification_status,omitempty"`
	VerifiedAt         *time.Time `json:"verified_at,omitempty"`
	IsPublic           bool       `json:"is_public"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DisplayName prefers the nickname, then the full name, then the email.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Email
}

// Verified reports whether the account passed role verification.
func (u *User) Verified() bool {
	return u.VerificationStatus == "verified"
}

// PayloadShape says where a user record was found in a response body.
type PayloadShape int

const (
	// ShapeMalformed means the body carried no user identity.
	ShapeMalformed PayloadShape = iota
	// ShapeDirect is a bare user object with a top-level id.
	ShapeDirect
	// ShapeNested is an envelope with the user under "user".
	ShapeNested
)

// String returns the shape name used in logs.
func (s PayloadShape) String() string {
	switch s {
	case ShapeDirect:
		return "direct"
	case ShapeNested:
		return "nested"
	default:
		return "malformed"
	}
}

// UserPayload is a decoded user-bearing response. User is nil exactly when
// Shape is ShapeMalformed.
type UserPayload struct {
	Shape PayloadShape
	User  *User
}

// OK reports whether the payload carried a user.
func (p UserPayload) OK() bool {
	return p.Shape != ShapeMalformed
}

// DecodeUserPayload normalizes the two user shapes the backend produces:
// {"id": ...} and {"user": {"id": ...}}. A body that is valid JSON but has
// neither shape decodes to ShapeMalformed without error. A user id of 0
// counts as missing.
func DecodeUserPayload(data []byte) (UserPayload, error) {
	var head struct {
		ID   json.RawMessage `json:"id"`
		User json.RawMessage `json:"user"`
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		if json.Valid(trimmed) {
			return UserPayload{Shape: ShapeMalformed}, nil
		}
		return UserPayload{}, errors.DecodeFailed("user payload", jsonError(trimmed))
	}
	if err := json.Unmarshal(trimmed, &head); err != nil {
		return UserPayload{}, errors.DecodeFailed("user payload", err)
	}

	if present(head.ID) {
		var u User
		if err := json.Unmarshal(trimmed, &u); err != nil {
			return UserPayload{}, errors.DecodeFailed("user payload", err)
		}
		if u.ID != 0 {
			return UserPayload{Shape: ShapeDirect, User: &u}, nil
		}
	}

	if present(head.User) {
		var u User
		if err := json.Unmarshal(head.User, &u); err == nil && u.ID != 0 {
			return UserPayload{Shape: ShapeNested, User: &u}, nil
		}
	}

	return UserPayload{Shape: ShapeMalformed}, nil
}

func present(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

func jsonError(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	return nil
}
