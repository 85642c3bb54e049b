package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/api/apitest"
	"github.com/on-cure/oncare/internal/config"
	"github.com/on-cure/oncare/internal/errors"
	"github.com/on-cure/oncare/internal/log"
	"github.com/on-cure/oncare/internal/session"
	"github.com/on-cure/oncare/internal/version"
)

const (
	testEmail    = "amani@example.com"
	testPassword = "s3cret-pass"
)

func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// testEnv points the client at a fresh home directory and fake backend.
func testEnv(t *testing.T) (*apitest.Server, string) {
	t.Helper()
	srv := apitest.NewServer()
	t.Cleanup(srv.Close)

	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)
	t.Setenv("ONCARE_API_URL", srv.URL)
	t.Setenv("ONCARE_LOG_LEVEL", "error")
	t.Setenv("ONCARE_WALLET_LATENCY", "false")
	t.Setenv("ONCARE_PASSWORD", "")
	t.Setenv("CI", "true")
	return srv, home
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(context.Background(), t, args...)
}

func executeContext(ctx context.Context, t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := ExecuteContext(ctx)
	return out.String(), err
}

func login(t *testing.T) {
	t.Helper()
	out, err := execute(t, "auth", "login", "--email", testEmail, "--password", testPassword)
	require.NoError(t, err)
	require.Contains(t, out, "Logged in as")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "oncare "+version.Version+"\n", out)

	out, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestVersionDoesNotBuildApp(t *testing.T) {
	t.Setenv("ONCARE_API_URL", "not a url")
	_, err := execute(t, "version")
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestConfigInitPathAndView(t *testing.T) {
	_, home := testEnv(t)

	out, err := execute(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)

	out, err = execute(t, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	_, err = os.Stat(config.Path(home))
	require.NoError(t, err)

	_, err = execute(t, "config", "init")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))

	_, err = execute(t, "config", "init", "--force")
	require.NoError(t, err)

	out, err = execute(t, "config", "view")
	require.NoError(t, err)
	assert.Contains(t, out, "base_url:")
	assert.Contains(t, out, "landing: /feed")
}

func TestInvalidConfigFailsBeforeRunning(t *testing.T) {
	testEnv(t)
	t.Setenv("ONCARE_API_URL", "ftp://example.com")

	_, err := execute(t, "auth", "status")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestAuthLoginStatusLogout(t *testing.T) {
	srv, home := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")

	out, err := execute(t, "auth", "status")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)

	login(t)
	_, err = os.Stat(config.CookiePath(home))
	require.NoError(t, err, "session cookie is persisted")

	out, err = execute(t, "auth", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Amani Otieno <"+testEmail+">")

	out, err = execute(t, "auth", "status", "--json")
	require.NoError(t, err)
	var status statusOutput
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Authenticated)
	assert.Equal(t, "authenticated", status.State)
	require.NotNil(t, status.User)
	assert.Equal(t, testEmail, status.User.Email)

	out, err = execute(t, "auth", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)
	assert.Equal(t, 0, srv.ActiveSessions())

	out, err = execute(t, "auth", "status")
	require.NoError(t, err)
	assert.Equal(t, "Not logged in\n", out)
}

func TestAuthLoginRejected(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")

	_, err := execute(t, "auth", "login", "--email", testEmail, "--password", "wrong")
	require.Error(t, err)
	assert.True(t, errors.IsUnauthorized(err))
}

func TestAuthLoginWithoutCredentialsInCI(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "auth", "login", "--email", testEmail)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFieldRequired))
}

func TestAuthLoginMalformedResponse(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	srv.SetLoginShape(apitest.LoginMalformed)

	_, err := execute(t, "auth", "login", "--email", testEmail, "--password", testPassword)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeMalformedUser))
}

func TestAuthLogoutWithoutSession(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "auth", "logout")
	require.NoError(t, err)
	assert.Equal(t, "No active session\n", out)
}

func TestAuthLogoutTwice(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	login(t)

	out, err := execute(t, "auth", "logout")
	require.NoError(t, err)
	assert.Equal(t, "Logged out\n", out)

	out, err = execute(t, "auth", "logout")
	require.NoError(t, err)
	assert.Equal(t, "No active session\n", out)
	assert.Zero(t, srv.ActiveSessions())
}

func TestAuthRegister(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "auth", "register",
		"--email", "neema@example.com",
		"--password", "pa55word",
		"--first-name", "Neema",
		"--last-name", "Wafula",
		"--date-of-birth", "1988-04-12",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Registration successful. Please log in.")

	out, err = execute(t, "auth", "login", "--email", "neema@example.com", "--password", "pa55word")
	require.NoError(t, err)
	assert.Contains(t, out, "Logged in as Neema Wafula")
}

func TestAuthRegisterMissingFields(t *testing.T) {
	testEnv(t)

	_, err := execute(t, "auth", "register", "--email", "neema@example.com")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFieldRequired))
}

func TestGuardedCommandsRequireLogin(t *testing.T) {
	testEnv(t)

	for _, args := range [][]string{
		{"notifications", "list"},
		{"notifications", "unread"},
		{"profile", "show"},
		{"wallet", "balance"},
	} {
		t.Run(args[0]+"_"+args[1], func(t *testing.T) {
			_, err := execute(t, args...)
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))
			assert.Contains(t, err.Error(), "oncare auth login")
		})
	}
}

func TestNotificationsCommands(t *testing.T) {
	srv, _ := testEnv(t)
	u := srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	first := srv.AddNotification(u.ID, api.NotificationFollow, "Baraka started following you")
	srv.AddNotification(u.ID, api.NotificationLike, "Zawadi liked your post")
	login(t)

	out, err := execute(t, "notifications", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "Baraka started following you")
	assert.Contains(t, out, "Zawadi liked your post")

	out, err = execute(t, "notifications", "unread")
	require.NoError(t, err)
	assert.Equal(t, "2\n", out)

	_, err = execute(t, "notifications", "read", "abc")
	require.Error(t, err)

	out, err = execute(t, "notifications", "read", itoa(first.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "Marked notification")

	out, err = execute(t, "notifications", "list", "--unread", "--json")
	require.NoError(t, err)
	var items []api.Notification
	require.NoError(t, json.Unmarshal([]byte(out), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "Zawadi liked your post", items[0].Message)

	_, err = execute(t, "notifications", "read-all")
	require.NoError(t, err)
	out, err = execute(t, "notifications", "unread")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestNotificationsWatch(t *testing.T) {
	srv, _ := testEnv(t)
	u := srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	login(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	type result struct {
		out string
		err error
	}
	done := make(chan result, 1)
	go func() {
		out, err := executeContext(ctx, t, "notifications", "watch", "--count", "1")
		done <- result{out, err}
	}()

	require.Eventually(t, func() bool { return srv.Connections(u.ID) == 1 }, 5*time.Second, 20*time.Millisecond)
	srv.AddNotification(u.ID, api.NotificationFollow, "Baraka started following you")

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Contains(t, r.out, "Watching notifications for Amani Otieno")
		assert.Contains(t, r.out, "Baraka started following you")
	case <-ctx.Done():
		t.Fatal("watch did not finish")
	}
	require.Eventually(t, func() bool { return srv.Connections(u.ID) == 0 }, 5*time.Second, 20*time.Millisecond)
}

func TestNotificationsWatchWithoutChannel(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	login(t)
	t.Setenv("ONCARE_WS_URL", "ws://127.0.0.1:1/ws")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := executeContext(ctx, t, "notifications", "watch")
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.HasCode(err, errors.ErrCodeChannelDial))
		assert.Contains(t, err.Error(), "realtime channel unavailable")
	case <-ctx.Done():
		t.Fatal("watch blocked without a realtime channel")
	}
}

func TestNotificationsWatchDisabled(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	t.Setenv("ONCARE_REALTIME_ENABLED", "false")
	login(t)

	_, err := execute(t, "notifications", "watch")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestProfileCommands(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	other := srv.AddUser("baraka@example.com", "pw", "Baraka", "Mwangi")
	login(t)

	out, err := execute(t, "profile", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Amani Otieno")

	out, err = execute(t, "profile", "follow", itoa(other.ID))
	require.NoError(t, err)
	assert.Contains(t, out, "Followed user")

	out, err = execute(t, "profile", "show", itoa(other.ID), "--json")
	require.NoError(t, err)
	var p profileOutput
	require.NoError(t, json.Unmarshal([]byte(out), &p))
	require.NotNil(t, p.User)
	assert.Equal(t, other.ID, p.User.ID)
	require.NotNil(t, p.Following)
	assert.Equal(t, 1, p.Following.Followers)

	_, err = execute(t, "profile", "unfollow", itoa(other.ID))
	require.NoError(t, err)
}

func TestFeedCommands(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	other := srv.AddUser("baraka@example.com", "pw", "Baraka", "Mwangi")
	srv.AddPost(other.ID, "Support group meets Thursday", api.PrivacyPublic)

	_, err := execute(t, "feed")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotAuthenticated))

	login(t)

	out, err := execute(t, "feed")
	require.NoError(t, err)
	assert.Contains(t, out, "Baraka Mwangi")
	assert.Contains(t, out, "Support group meets Thursday")

	out, err = execute(t, "feed", "post", "Feeling", "hopeful", "--privacy", "almost_private")
	require.NoError(t, err)
	assert.Contains(t, out, "(almost_private)")

	out, err = execute(t, "feed", "--json", "--limit", "5")
	require.NoError(t, err)
	var posts []api.Post
	require.NoError(t, json.Unmarshal([]byte(out), &posts))
	require.Len(t, posts, 2)
	assert.Equal(t, "Feeling hopeful", posts[0].Content)

	_, err = execute(t, "feed", "post", "hi", "--privacy", "friends")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeFieldRequired))

	out, err = execute(t, "feed", "--page", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "No posts")
}

func TestWalletCommands(t *testing.T) {
	srv, _ := testEnv(t)
	u := srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	login(t)

	out, err := execute(t, "wallet", "balance")
	require.NoError(t, err)
	assert.Contains(t, out, "HBAR")

	_, err = execute(t, "wallet", "tip", "7")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidAmount))

	_, err = execute(t, "wallet", "tip", itoa(u.ID), "--amount", "1")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidRecipient))

	out, err = execute(t, "wallet", "tip", "7", "--amount", "100", "--ksh", "--message", "Pole sana")
	require.NoError(t, err)
	assert.Contains(t, out, "Sent 2.0000 HBAR (KSH 100.00) to user 7")
	assert.Contains(t, out, "tip_")

	out, err = execute(t, "wallet", "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "DESCRIPTION")
	assert.Contains(t, out, "--page 2")
}

func TestWalletTransfers(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	login(t)

	out, err := execute(t, "wallet", "deposit", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "Account deposit: 10.0000 HBAR (KSH 500.00)")
	assert.Contains(t, out, "deposit_")

	out, err = execute(t, "wallet", "withdraw", "250", "--ksh")
	require.NoError(t, err)
	assert.Contains(t, out, "Account withdrawal: 5.0000 HBAR (KSH 250.00)")

	_, err = execute(t, "wallet", "withdraw", "0")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidAmount))

	_, err = execute(t, "wallet", "deposit", "lots")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidAmount))

	out, err = execute(t, "wallet", "rate")
	require.NoError(t, err)
	assert.Contains(t, out, "1 HBAR = 50.00 KSH")
	assert.Contains(t, out, "1 KSH = 0.0200 HBAR")
}

func TestRecordingNavigator(t *testing.T) {
	nav := &recordingNavigator{logger: log.Discard()}
	_, ok := nav.Last()
	assert.False(t, ok)

	nav.Navigate(session.Navigation{Path: "/login", Mode: session.NavigateReplace})
	nav.Navigate(session.Navigation{Path: "/feed", Mode: session.NavigateFull})
	last, ok := nav.Last()
	require.True(t, ok)
	assert.Equal(t, "/feed", last.Path)
	assert.Equal(t, session.NavigateFull, last.Mode)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func TestDoctor(t *testing.T) {
	srv, _ := testEnv(t)
	srv.AddUser(testEmail, testPassword, "Amani", "Otieno")
	login(t)

	out, err := execute(t, "doctor", "--json")
	require.NoError(t, err)
	var res struct {
		Status string                     `json:"status"`
		Checks map[string]json.RawMessage `json:"checks"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "healthy", res.Status)
	assert.Len(t, res.Checks, 4)
}

func TestDoctorUnreachableBackend(t *testing.T) {
	srv, _ := testEnv(t)
	srv.Close()

	out, err := execute(t, "doctor")
	require.Error(t, err)
	assert.Contains(t, out, "backend")
	assert.Contains(t, out, "unhealthy")
}
