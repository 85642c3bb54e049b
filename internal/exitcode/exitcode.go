package exitcode

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/on-cure/oncare/internal/errors"
)

// Exit codes for consistent error handling across the CLI
const (
	Success      = 0
	GeneralError = 1
	// UsageError indicates invalid command usage (bad flags, missing args, etc.)
	UsageError = 2
	// AuthError indicates there is no session or the backend rejected it
	AuthError = 3
	// NetworkError indicates the backend or realtime channel was unreachable
	NetworkError = 4
	// ContractError indicates the backend answered with an unexpected shape
	ContractError = 5
	// Interrupted follows the shell convention for SIGINT
	Interrupted = 130
)

// Exit terminates the program with the given exit code
func Exit(code int) {
	os.Exit(code)
}

// ExitWithError prints err to stderr and exits with the matching code.
func ExitWithError(err error) {
	Exit(Report(os.Stderr, err))
}

// Report writes err to w, followed by the exit code class when it is more
// specific than a general error, and returns the code.
func Report(w io.Writer, err error) int {
	code := DetermineExitCode(err)
	fmt.Fprintf(w, "Error: %v\n", err)
	if code != GeneralError {
		fmt.Fprintf(w, "(exit %d: %s)\n", code, GetExitCodeDescription(code))
	}
	return code
}

// DetermineExitCode maps err to an exit code. Coded errors are classified by
// their code family; anything else falls back to message heuristics.
func DetermineExitCode(err error) int {
	if err == nil {
		return Success
	}

	if stderrors.Is(err, context.Canceled) {
		return Interrupted
	}

	if code := errors.CodeOf(err); code != "" {
		switch code {
		case errors.ErrCodeNotAuthenticated, errors.ErrCodeUnauthorized:
			return AuthError
		case errors.ErrCodeMalformedUser, errors.ErrCodeContractViolation, errors.ErrCodeDecode:
			return ContractError
		case errors.ErrCodeFieldRequired, errors.ErrCodeInvalidAmount, errors.ErrCodeInvalidRecipient:
			return UsageError
		}
		switch code.Family() {
		case "NET", "CHANNEL":
			return NetworkError
		case "SESSION":
			return AuthError
		}
		return GeneralError
	}

	errMsg := strings.ToLower(err.Error())

	if strings.Contains(errMsg, "unauthorized") || strings.Contains(errMsg, "not logged in") {
		return AuthError
	}

	if strings.Contains(errMsg, "connection refused") || strings.Contains(errMsg, "no such host") {
		return NetworkError
	}
	if strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "unreachable") {
		return NetworkError
	}

	if strings.Contains(errMsg, "unknown flag") || strings.Contains(errMsg, "unknown command") {
		return UsageError
	}
	if strings.Contains(errMsg, "required flag") || strings.Contains(errMsg, "accepts ") {
		return UsageError
	}

	return GeneralError
}

// GetExitCodeDescription returns a human-readable description of an exit code
func GetExitCodeDescription(code int) string {
	switch code {
	case Success:
		return "Success"
	case GeneralError:
		return "General error"
	case UsageError:
		return "Usage error (invalid flags or arguments)"
	case AuthError:
		return "Authentication error"
	case NetworkError:
		return "Network error"
	case ContractError:
		return "Unexpected response from the backend"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown error"
	}
}
