package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-cure/oncare/internal/errors"
)

func TestDecodeUserPayload(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantShape PayloadShape
		wantID    int
		wantErr   bool
	}{
		{
			name:      "direct user",
			body:      `{"id": 7, "email": "amina@example.com", "first_name": "Amina"}`,
			wantShape: ShapeDirect,
			wantID:    7,
		},
		{
			name:      "nested user",
			body:      `{"user": {"id": 9, "email": "otieno@example.com"}, "message": "ok"}`,
			wantShape: ShapeNested,
			wantID:    9,
		},
		{
			name:      "top-level id wins over nested user",
			body:      `{"id": 3, "user": {"id": 4}}`,
			wantShape: ShapeDirect,
			wantID:    3,
		},
		{
			name:      "zero id falls through to nested",
			body:      `{"id": 0, "user": {"id": 4}}`,
			wantShape: ShapeNested,
			wantID:    4,
		},
		{
			name:      "message only",
			body:      `{"message": "Login successful"}`,
			wantShape: ShapeMalformed,
		},
		{
			name:      "null user",
			body:      `{"user": null}`,
			wantShape: ShapeMalformed,
		},
		{
			name:      "nested user without id",
			body:      `{"user": {"email": "x@example.com"}}`,
			wantShape: ShapeMalformed,
		},
		{
			name:      "json array",
			body:      `[1, 2]`,
			wantShape: ShapeMalformed,
		},
		{
			name:      "json null",
			body:      `null`,
			wantShape: ShapeMalformed,
		},
		{
			name:    "empty body",
			body:    ``,
			wantErr: true,
		},
		{
			name:    "truncated json",
			body:    `{"id": 7,`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload, err := DecodeUserPayload([]byte(tt.body))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.HasCode(err, errors.ErrCodeDecode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantShape, payload.Shape)
			assert.Equal(t, tt.wantShape != ShapeMalformed, payload.OK())
			if tt.wantShape == ShapeMalformed {
				assert.Nil(t, payload.User)
				return
			}
			require.NotNil(t, payload.User)
			assert.Equal(t, tt.wantID, payload.User.ID)
		})
	}
}

func TestPayloadShapeString(t *testing.T) {
	assert.Equal(t, "direct", ShapeDirect.String())
	assert.Equal(t, "nested", ShapeNested.String())
	assert.Equal(t, "malformed", ShapeMalformed.String())
}

func TestUserDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user User
		want string
	}{
		{"nickname", User{Nickname: "Mama Care", FirstName: "Wanjiru", LastName: "K"}, "Mama Care"},
		{"full name", User{FirstName: "Wanjiru", LastName: "Kamau"}, "Wanjiru Kamau"},
		{"first only", User{FirstName: "Wanjiru"}, "Wanjiru"},
		{"email fallback", User{Email: "w@example.com"}, "w@example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.DisplayName())
		})
	}
}

func TestUserVerified(t *testing.T) {
	assert.True(t, (&User{VerificationStatus: "verified"}).Verified())
	assert.False(t, (&User{VerificationStatus: "pending"}).Verified())
}
