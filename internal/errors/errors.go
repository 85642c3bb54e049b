package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorCode represents a unique error identifier
type ErrorCode string

// Error categories
const (
	// Session errors (SESSION-001 to SESSION-099)
	ErrCodeSessionUnavailable ErrorCode = "SESSION-001"
	ErrCodeNotAuthenticated   ErrorCode = "SESSION-002"
	ErrCodeMalformedUser      ErrorCode = "SESSION-003"

	// API errors (API-001 to API-099)
	ErrCodeRequestFailed     ErrorCode = "API-001"
	ErrCodeUnauthorized      ErrorCode = "API-002"
	ErrCodeDecode            ErrorCode = "API-003"
	ErrCodeContractViolation ErrorCode = "API-004"
	ErrCodeStatus            ErrorCode = "API-005"

	// Network errors (NET-001 to NET-099)
	ErrCodeNetwork ErrorCode = "NET-001"
	ErrCodeTimeout ErrorCode = "NET-002"

	// Realtime channel errors (CHANNEL-001 to CHANNEL-099)
	ErrCodeChannelDial   ErrorCode = "CHANNEL-001"
	ErrCodeChannelClosed ErrorCode = "CHANNEL-002"

	// Configuration errors (CONFIG-001 to CONFIG-099)
	ErrCodeConfigInvalid ErrorCode = "CONFIG-001"
	ErrCodeConfigLoad    ErrorCode = "CONFIG-002"

	// File I/O errors (IO-001 to IO-099)
	ErrCodeFileReadFailed  ErrorCode = "IO-001"
	ErrCodeFileWriteFailed ErrorCode = "IO-002"

	// Input validation errors (VALIDATION-001 to VALIDATION-099)
	ErrCodeFieldRequired ErrorCode = "VALIDATION-001"

	// Wallet errors (WALLET-001 to WALLET-099)
	ErrCodeInvalidAmount    ErrorCode = "WALLET-001"
	ErrCodeInvalidRecipient ErrorCode = "WALLET-002"
)

// Family returns the prefix of the code, e.g. "API" for "API-002".
func (c ErrorCode) Family() string {
	family, _, _ := strings.Cut(string(c), "-")
	return family
}

// OnCareError is an error with a stable code, optional remediation hints and,
// for backend failures, the HTTP status that produced it.
type OnCareError struct {
	Code        ErrorCode
	Message     string
	Suggestions []string
	DocsURL     string
	Status      int
	Cause       error
}

// Error implements the error interface
func (e *OnCareError) Error() string {
	var b strings.Builder

	fmt.Fprintf(&b, "[%s] %s", e.Code, e.Message)
	if e.Cause != nil {
		fmt.Fprintf(&b, ": %v", e.Cause)
	}

	if len(e.Suggestions) > 0 {
		b.WriteString("\n\nSuggestions:")
		for _, suggestion := range e.Suggestions {
			fmt.Fprintf(&b, "\n  • %s", suggestion)
		}
	}

	if e.DocsURL != "" {
		fmt.Fprintf(&b, "\n\nDocumentation: %s", e.DocsURL)
	}

	return b.String()
}

// Unwrap implements error unwrapping for errors.Is and errors.As
func (e *OnCareError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *OnCareError with the same code, so
// sentinel-style comparisons work: errors.Is(err, errors.New(code, "")).
func (e *OnCareError) Is(target error) bool {
	t, ok := target.(*OnCareError)
	return ok && t.Code == e.Code
}

// New creates a new OnCareError
func New(code ErrorCode, message string) *OnCareError {
	return &OnCareError{Code: code, Message: message}
}

// Wrap creates a new OnCareError wrapping an existing error
func Wrap(code ErrorCode, message string, cause error) *OnCareError {
	return &OnCareError{Code: code, Message: message, Cause: cause}
}

// WithSuggestion adds a suggestion to the error
func (e *OnCareError) WithSuggestion(suggestion string) *OnCareError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// WithSuggestions adds multiple suggestions to the error
func (e *OnCareError) WithSuggestions(suggestions ...string) *OnCareError {
	e.Suggestions = append(e.Suggestions, suggestions...)
	return e
}

// WithDocs adds a documentation URL to the error
func (e *OnCareError) WithDocs(url string) *OnCareError {
	e.DocsURL = url
	return e
}

// WithStatus records the HTTP status of the response that caused the error.
func (e *OnCareError) WithStatus(status int) *OnCareError {
	e.Status = status
	return e
}

// CodeOf returns the code of the first OnCareError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var ocErr *OnCareError
	if errors.As(err, &ocErr) {
		return ocErr.Code
	}
	return ""
}

// HasCode reports whether any error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	return errors.Is(err, &OnCareError{Code: code})
}

// StatusOf returns the HTTP status recorded on err, or 0.
func StatusOf(err error) int {
	var ocErr *OnCareError
	if errors.As(err, &ocErr) {
		return ocErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err means the backend rejected the session.
func IsUnauthorized(err error) bool {
	return HasCode(err, ErrCodeUnauthorized) || StatusOf(err) == http.StatusUnauthorized
}

// SessionUnavailable reports a session check that could not complete.
func SessionUnavailable(cause error) *OnCareError {
	return Wrap(ErrCodeSessionUnavailable, "session check failed", cause)
}

// NotAuthenticated is returned when a protected operation runs without a user.
func NotAuthenticated() *OnCareError {
	return New(ErrCodeNotAuthenticated, "not logged in").
		WithSuggestion("Log in with: oncare auth login")
}

// MalformedUser reports a 2xx response whose body is not a user record.
func MalformedUser(detail string) *OnCareError {
	return New(ErrCodeMalformedUser, "response did not contain a user: "+detail)
}

// Unauthorized wraps a 401/403 from the backend.
func Unauthorized(cause error) *OnCareError {
	return Wrap(ErrCodeUnauthorized, "request was not authorized", cause).
		WithStatus(http.StatusUnauthorized).
		WithSuggestions(
			"Your session may have expired",
			"Log in again with: oncare auth login",
		)
}

// StatusError wraps a non-2xx response with the backend's message.
func StatusError(status int, message string) *OnCareError {
	if message == "" {
		message = http.StatusText(status)
	}
	code := ErrCodeStatus
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		code = ErrCodeUnauthorized
	}
	return New(code, message).WithStatus(status)
}

// DecodeFailed reports a response body that could not be decoded.
func DecodeFailed(what string, cause error) *OnCareError {
	return Wrap(ErrCodeDecode, "failed to decode "+what, cause)
}

// ContractViolation reports a response that does not match the API contract.
func ContractViolation(operation string, cause error) *OnCareError {
	return Wrap(ErrCodeContractViolation, "response for "+operation+" violates the API contract", cause).
		WithSuggestion("Disable contract validation with api.validate_contract: false if the backend is newer than this client")
}

// NetworkFailure reports a transport-level failure talking to baseURL.
func NetworkFailure(baseURL string, cause error) *OnCareError {
	return Wrap(ErrCodeNetwork, "could not reach "+baseURL, cause).
		WithSuggestions(
			"Check that the onCare backend is running",
			"Set the backend address with ONCARE_API_URL or --api-url",
		)
}

// Timeout reports an operation that exceeded its deadline.
func Timeout(operation string, cause error) *OnCareError {
	return Wrap(ErrCodeTimeout, operation+" timed out", cause)
}

// ChannelDial reports a failed realtime connection attempt.
func ChannelDial(url string, cause error) *OnCareError {
	return Wrap(ErrCodeChannelDial, "could not open realtime channel to "+url, cause)
}

// FieldRequired reports a missing required input field.
func FieldRequired(field string) *OnCareError {
	return New(ErrCodeFieldRequired, field+" is required")
}

// FileRead reports a failure reading path.
func FileRead(path string, cause error) *OnCareError {
	return Wrap(ErrCodeFileReadFailed, "failed to read "+path, cause)
}

// FileWrite reports a failure writing path.
func FileWrite(path string, cause error) *OnCareError {
	return Wrap(ErrCodeFileWriteFailed, "failed to write "+path, cause).
		WithSuggestion("Check permissions on the onCare home directory")
}

// ConfigInvalid reports an invalid configuration value.
func ConfigInvalid(key, detail string) *OnCareError {
	return New(ErrCodeConfigInvalid, fmt.Sprintf("invalid %s: %s", key, detail)).
		WithSuggestion("Inspect the active configuration with: oncare config view")
}
