package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotAuthenticated, "not logged in")

	if err.Code != ErrCodeNotAuthenticated {
		t.Errorf("expected code %s, got %s", ErrCodeNotAuthenticated, err.Code)
	}
	if err.Message != "not logged in" {
		t.Errorf("expected message 'not logged in', got '%s'", err.Message)
	}
	if err.Cause != nil {
		t.Errorf("expected nil cause, got %v", err.Cause)
	}
}

func TestWrap(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCodeNetwork, "could not reach backend", cause)

	if err.Cause != cause {
		t.Errorf("expected cause to be set")
	}
	if !errors.Is(err, cause) {
		t.Errorf("Wrap should support errors.Is")
	}
}

func TestErrorFormatting(t *testing.T) {
	tests := []struct {
		name     string
		err      *OnCareError
		contains []string
		excludes []string
	}{
		{
			name:     "simple error",
			err:      New(ErrCodeDecode, "bad body"),
			contains: []string{"[API-003] bad body"},
			excludes: []string{"Suggestions:", "Documentation:"},
		},
		{
			name:     "error with cause",
			err:      Wrap(ErrCodeFileReadFailed, "read failed", fmt.Errorf("permission denied")),
			contains: []string{"[IO-001] read failed: permission denied"},
		},
		{
			name: "error with suggestions and docs",
			err: New(ErrCodeConfigInvalid, "bad url").
				WithSuggestions("first", "second").
				WithDocs("https://oncare.example/docs"),
			contains: []string{"Suggestions:", "• first", "• second", "Documentation: https://oncare.example/docs"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, want := range tt.contains {
				if !strings.Contains(msg, want) {
					t.Errorf("expected %q in %q", want, msg)
				}
			}
			for _, unwanted := range tt.excludes {
				if strings.Contains(msg, unwanted) {
					t.Errorf("did not expect %q in %q", unwanted, msg)
				}
			}
		})
	}
}

func TestHasCodeThroughWrapping(t *testing.T) {
	base := NotAuthenticated()
	wrapped := fmt.Errorf("feed: %w", base)

	if !HasCode(wrapped, ErrCodeNotAuthenticated) {
		t.Error("HasCode should see through fmt.Errorf wrapping")
	}
	if HasCode(wrapped, ErrCodeUnauthorized) {
		t.Error("HasCode matched the wrong code")
	}
	if CodeOf(wrapped) != ErrCodeNotAuthenticated {
		t.Errorf("CodeOf = %q", CodeOf(wrapped))
	}
	if CodeOf(fmt.Errorf("plain")) != "" {
		t.Error("CodeOf should be empty for uncoded errors")
	}
}

func TestStatusError(t *testing.T) {
	tests := []struct {
		status   int
		message  string
		wantCode ErrorCode
		wantMsg  string
	}{
		{http.StatusUnauthorized, "Invalid email or password", ErrCodeUnauthorized, "Invalid email or password"},
		{http.StatusForbidden, "", ErrCodeUnauthorized, "Forbidden"},
		{http.StatusBadRequest, "Email already exists", ErrCodeStatus, "Email already exists"},
		{http.StatusInternalServerError, "", ErrCodeStatus, "Internal Server Error"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := StatusError(tt.status, tt.message)
			if err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", err.Code, tt.wantCode)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("message = %q, want %q", err.Message, tt.wantMsg)
			}
			if StatusOf(fmt.Errorf("wrapped: %w", err)) != tt.status {
				t.Errorf("StatusOf lost the status")
			}
		})
	}
}

func TestIsUnauthorized(t *testing.T) {
	if !IsUnauthorized(Unauthorized(nil)) {
		t.Error("Unauthorized() should be unauthorized")
	}
	if !IsUnauthorized(StatusError(http.StatusUnauthorized, "")) {
		t.Error("401 status error should be unauthorized")
	}
	if IsUnauthorized(StatusError(http.StatusNotFound, "")) {
		t.Error("404 should not be unauthorized")
	}
	if IsUnauthorized(nil) {
		t.Error("nil should not be unauthorized")
	}
}

func TestCodeFamily(t *testing.T) {
	tests := map[ErrorCode]string{
		ErrCodeSessionUnavailable: "SESSION",
		ErrCodeContractViolation:  "API",
		ErrCodeTimeout:            "NET",
		ErrCodeChannelDial:        "CHANNEL",
		ErrCodeInvalidAmount:      "WALLET",
	}
	for code, want := range tests {
		if got := code.Family(); got != want {
			t.Errorf("%s.Family() = %q, want %q", code, got, want)
		}
	}
}

func TestConstructorsCarrySuggestions(t *testing.T) {
	tests := []struct {
		name string
		err  *OnCareError
		code ErrorCode
	}{
		{"not authenticated", NotAuthenticated(), ErrCodeNotAuthenticated},
		{"unauthorized", Unauthorized(nil), ErrCodeUnauthorized},
		{"network", NetworkFailure("http://localhost:8080", fmt.Errorf("refused")), ErrCodeNetwork},
		{"contract", ContractViolation("GET /api/auth/session", fmt.Errorf("missing id")), ErrCodeContractViolation},
		{"file write", FileWrite("/tmp/x", fmt.Errorf("denied")), ErrCodeFileWriteFailed},
		{"config", ConfigInvalid("api.base_url", "empty"), ErrCodeConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.code)
			}
			if len(tt.err.Suggestions) == 0 {
				t.Error("expected at least one suggestion")
			}
		})
	}
}

func TestErrorsAs(t *testing.T) {
	err := fmt.Errorf("outer: %w", ChannelDial("ws://localhost:8080/ws", fmt.Errorf("bad handshake")))

	var ocErr *OnCareError
	if !errors.As(err, &ocErr) {
		t.Fatal("errors.As should find the OnCareError")
	}
	if ocErr.Code != ErrCodeChannelDial {
		t.Errorf("code = %s", ocErr.Code)
	}
}
