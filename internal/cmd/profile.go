package cmd

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/api"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "View profiles and manage follows",
}

var profileFlags struct {
	json bool
}

var profileShowCmd = &cobra.Command{
	Use:   "show [user-id]",
	Short: "Show a profile (defaults to your own)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runProfileShow,
}

var profileFollowCmd = &cobra.Command{
	Use:   "follow <user-id>",
	Short: "Follow a user or send a follow request",
	Args:  cobra.ExactArgs(1),
	RunE:  userAction("Followed user %d\n", (*api.Client).Follow),
}

var profileUnfollowCmd = &cobra.Command{
	Use:   "unfollow <user-id>",
	Short: "Stop following a user",
	Args:  cobra.ExactArgs(1),
	RunE:  userAction("Unfollowed user %d\n", (*api.Client).Unfollow),
}

var profileAcceptCmd = &cobra.Command{
	Use:   "accept <user-id>",
	Short: "Accept a pending follow request",
	Args:  cobra.ExactArgs(1),
	RunE:  userAction("Accepted follow request from user %d\n", (*api.Client).AcceptFollowRequest),
}

var profileCancelCmd = &cobra.Command{
	Use:   "cancel <user-id>",
	Short: "Cancel a follow request you sent",
	Args:  cobra.ExactArgs(1),
	RunE:  userAction("Cancelled follow request to user %d\n", (*api.Client).CancelFollowRequest),
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd, profileFollowCmd, profileUnfollowCmd, profileAcceptCmd, profileCancelCmd)
	profileShowCmd.Flags().BoolVar(&profileFlags.json, "json", false, "print as JSON")
}

type profileOutput struct {
	User      *api.User         `json:"user"`
	Following *api.FollowCounts `json:"follow_counts,omitempty"`
}

func runProfileShow(cmd *cobra.Command, args []string) error {
	a := app()
	ctx := cmd.Context()
	me, err := a.RequireUser(ctx)
	if err != nil {
		return err
	}

	id := me.ID
	if len(args) == 1 {
		if id, err = parseID(args[0]); err != nil {
			return err
		}
	}

	user, err := a.Client.GetProfile(ctx, id)
	if err != nil {
		return a.checkSession(err)
	}
	counts, err := a.Client.FollowCounts(ctx, id)
	if err != nil {
		a.Logger.WithError(err).Debug("follow counts unavailable", "user_id", id)
		counts = nil
	}

	if profileFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(profileOutput{User: user, Following: counts})
	}

	printf(cmd, "%s\n", user.DisplayName())
	printf(cmd, "  ID:    %d\n", user.ID)
	if user.Email != "" {
		printf(cmd, "  Email: %s\n", user.Email)
	}
	if user.Role != "" {
		role := user.Role
		if user.Verified() {
			role += " (verified)"
		}
		printf(cmd, "  Role:  %s\n", role)
	}
	if user.AboutMe != "" {
		printf(cmd, "  About: %s\n", user.AboutMe)
	}
	if counts != nil {
		printf(cmd, "  %d followers, %d following\n", counts.Followers, counts.Following)
	}
	return nil
}

func userAction(done string, action func(*api.Client, context.Context, int) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a := app()
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if _, err := a.RequireUser(ctx); err != nil {
			return err
		}
		if err := action(a.Client, ctx, id); err != nil {
			return a.checkSession(err)
		}
		printf(cmd, done, id)
		return nil
	}
}
