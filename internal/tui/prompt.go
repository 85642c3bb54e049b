package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/on-cure/oncare/internal/api"
)

// Credentials are collected by PromptForCredentials.
type Credentials struct {
	Email    string
	Password string
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

// PromptForCredentials asks for email and password. A non-empty email is
// used as the default.
func PromptForCredentials(email string) (Credentials, error) {
	c := Credentials{Email: email}
	if err := newLoginForm((*loginFields)(&c)).WithShowHelp(true).Run(); err != nil {
		return Credentials{}, fmt.Errorf("prompt failed: %w", err)
	}
	return c, nil
}

// PromptForRegistration fills in the missing required fields of req.
func PromptForRegistration(req *api.RegisterRequest) error {
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("First name").Value(&req.FirstName).Validate(required("first name")),
			huh.NewInput().Title("Last name").Value(&req.LastName).Validate(required("last name")),
			huh.NewInput().Title("Email").Value(&req.Email).Validate(required("email")),
			huh.NewInput().Title("Password").EchoMode(huh.EchoModePassword).Value(&req.Password).Validate(required("password")),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Date of birth").
				Description("YYYY-MM-DD").
				Value(&req.DateOfBirth).
				Validate(required("date of birth")),
			huh.NewInput().Title("Nickname").Description("Optional").Value(&req.Nickname),
			huh.NewText().Title("About me").Description("Optional").Value(&req.AboutMe),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("prompt failed: %w", err)
	}
	return nil
}

// PromptForConfirmation displays a yes/no confirmation prompt
func PromptForConfirmation(message string, defaultValue bool) (bool, error) {
	confirmed := defaultValue

	confirm := huh.NewConfirm().
		Title(message).
		Value(&confirmed)

	if err := huh.NewForm(huh.NewGroup(confirm)).Run(); err != nil {
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return confirmed, nil
}

// IsInteractive returns true if stdin is a terminal (not piped)
func IsInteractive() bool {
	fileInfo, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// ShouldPrompt returns true if prompts should be shown based on environment
// Prompts are disabled in CI environments or when stdin is not a terminal
func ShouldPrompt() bool {
	for _, envVar := range []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"} {
		if os.Getenv(envVar) != "" {
			return false
		}
	}
	return IsInteractive()
}
