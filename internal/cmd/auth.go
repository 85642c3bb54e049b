package cmd

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/tui"
)

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Log in, log out and inspect the current session",
}

var authFlags struct {
	email    string
	password string
	json     bool
	register api.RegisterRequest
}

var authLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session cookie",
	Long: `Log in to onCare. The session cookie is kept in the client home so later
commands reuse it.

The password is read from --password, then $ONCARE_PASSWORD, then an
interactive prompt.`,
	RunE: runAuthLogin,
}

var authLogoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "End the session and forget the stored cookie",
	RunE:  runAuthLogout,
}

var authRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Create a new account",
	RunE:  runAuthRegister,
}

var authStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show who is logged in",
	RunE:  runAuthStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(authLoginCmd, authLogoutCmd, authRegisterCmd, authStatusCmd)

	authLoginCmd.Flags().StringVar(&authFlags.email, "email", "", "account email")
	authLoginCmd.Flags().StringVar(&authFlags.password, "password", "", "account password")

	rf := authRegisterCmd.Flags()
	rf.StringVar(&authFlags.register.Email, "email", "", "account email")
	rf.StringVar(&authFlags.register.Password, "password", "", "account password")
	rf.StringVar(&authFlags.register.FirstName, "first-name", "", "first name")
	rf.StringVar(&authFlags.register.LastName, "last-name", "", "last name")
	rf.StringVar(&authFlags.register.DateOfBirth, "date-of-birth", "", "date of birth (YYYY-MM-DD)")
	rf.StringVar(&authFlags.register.Nickname, "nickname", "", "nickname")
	rf.StringVar(&authFlags.register.AboutMe, "about", "", "short bio")
	rf.StringVar(&authFlags.register.Role, "role", "", "community role")

	authStatusCmd.Flags().BoolVar(&authFlags.json, "json", false, "print the session as JSON")
}

func runAuthLogin(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()

	email, password := authFlags.email, authFlags.password
	if password == "" {
		password = os.Getenv("ONCARE_PASSWORD")
	}
	if email == "" || password == "" {
		if !tui.ShouldPrompt() {
			return errors.FieldRequired("email and password").
				WithSuggestion("Pass --email and --password, or set ONCARE_PASSWORD")
		}
		creds, err := tui.PromptForCredentials(email)
		if err != nil {
			return err
		}
		email, password = creds.Email, creds.Password
	}

	ok, err := a.Session.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if !ok {
		return errors.MalformedUser("login response carried no user").
			WithSuggestion("The backend accepted the request but returned no account; try again")
	}

	u := a.Session.User()
	printf(cmd, "Logged in as %s <%s>\n", u.DisplayName(), u.Email)
	if nav, ok := a.Nav.Last(); ok {
		a.Logger.Debug("landing", "route", nav.URL())
	}
	return nil
}

func runAuthLogout(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()

	a.Session.Initialize(ctx)
	wasLoggedIn := a.Session.Snapshot().Authenticated()

	err := a.Session.Logout(ctx)
	if clearErr := a.Jar.Clear(); clearErr != nil {
		return clearErr
	}
	if err != nil {
		// Local state is gone either way; surface the backend failure.
		a.Logger.WithError(err).Warn("backend logout failed")
		return err
	}

	if wasLoggedIn {
		printf(cmd, "Logged out\n")
	} else {
		printf(cmd, "No active session\n")
	}
	return nil
}

func runAuthRegister(cmd *cobra.Command, _ []string) error {
	a := app()
	req := authFlags.register

	if req.Validate() != nil && tui.ShouldPrompt() {
		if err := tui.PromptForRegistration(&req); err != nil {
			return err
		}
	}

	resp, err := a.Session.Register(cmd.Context(), req)
	if err != nil {
		return err
	}

	printf(cmd, "Registration successful. Please log in.\n")
	if resp.UserID != 0 {
		printf(cmd, "  User ID: %d\n", resp.UserID)
	}
	if resp.HederaAccountID != "" {
		printf(cmd, "  Wallet account: %s\n", resp.HederaAccountID)
	}
	return nil
}

type statusOutput struct {
	State         string    `json:"state"`
	Authenticated bool      `json:"authenticated"`
	User          *api.User `json:"user,omitempty"`
}

func runAuthStatus(cmd *cobra.Command, _ []string) error {
	a := app()
	snap := a.Session.Initialize(cmd.Context())

	if authFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(statusOutput{
			State:         snap.State.String(),
			Authenticated: snap.Authenticated(),
			User:          snap.User,
		})
	}

	if !snap.Authenticated() {
		printf(cmd, "Not logged in\n")
		return nil
	}
	u := snap.User
	printf(cmd, "Logged in as %s <%s>\n", u.DisplayName(), u.Email)
	printf(cmd, "  User ID: %d\n", u.ID)
	if u.Role != "" {
		printf(cmd, "  Role:    %s\n", u.Role)
	}
	if u.Verified() {
		printf(cmd, "  Verified\n")
	}
	return nil
}
