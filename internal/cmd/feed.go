package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/on-cure/oncare/internal/api"
)

var feedFlags struct {
	page    int
	limit   int
	privacy string
	json    bool
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Show posts from the community feed",
	Long: `Show the posts you can see, newest first: public posts, your own, and
followers-only posts from people you follow.`,
	RunE: runFeedList,
}

var feedPostCmd = &cobra.Command{
	Use:   "post <text>...",
	Short: "Publish a post",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFeedPost,
}

func init() {
	rootCmd.AddCommand(feedCmd)
	feedCmd.AddCommand(feedPostCmd)

	ff := feedCmd.Flags()
	ff.IntVar(&feedFlags.page, "page", 1, "page number")
	ff.IntVar(&feedFlags.limit, "limit", 10, "posts per page")
	ff.BoolVar(&feedFlags.json, "json", false, "print as JSON")

	pf := feedPostCmd.Flags()
	pf.StringVar(&feedFlags.privacy, "privacy", api.PrivacyPublic, "audience: public, almost_private or private")
	pf.BoolVar(&feedFlags.json, "json", false, "print the created post as JSON")
}

func runFeedList(cmd *cobra.Command, _ []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}

	posts, err := a.Client.ListPosts(ctx, feedFlags.page, feedFlags.limit)
	if err != nil {
		return a.checkSession(err)
	}

	if feedFlags.json {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(posts)
	}
	if len(posts) == 0 {
		printf(cmd, "No posts\n")
		return nil
	}
	for _, p := range posts {
		writePost(cmd.OutOrStdout(), p)
	}
	return nil
}

func runFeedPost(cmd *cobra.Command, args []string) error {
	a := app()
	ctx := cmd.Context()
	if _, err := a.RequireUser(ctx); err != nil {
		return err
	}

	post, err := a.Client.CreatePost(ctx, api.NewPost{
		Content: strings.Join(args, " "),
		Privacy: feedFlags.privacy,
	})
	if err != nil {
		return a.checkSession(err)
	}
	if feedFlags.json {
		return json.NewEncoder(cmd.OutOrStdout()).Encode(post)
	}
	printf(cmd, "Posted %d (%s)\n", post.ID, post.Privacy)
	return nil
}

func writePost(w io.Writer, p api.Post) {
	when := ""
	if !p.CreatedAt.IsZero() {
		when = p.CreatedAt.Local().Format("2006-01-02 15:04")
	}
	fmt.Fprintf(w, "%5d  %s  %s", p.ID, p.Author(), when)
	if p.Privacy != api.PrivacyPublic {
		fmt.Fprintf(w, "  [%s]", p.Privacy)
	}
	fmt.Fprintf(w, "\n       %s\n       +%d -%d\n", p.Content, p.LikeCount, p.DislikeCount)
}
