package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/on-cure/oncare/internal/api"
	"github.com/on-cure/oncare/internal/guard"
	"github.com/on-cure/oncare/internal/realtime"
)

// View renders the TUI (required by Bubble Tea)
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var body string
	switch m.route {
	case RouteLogin:
		body = m.renderLogin()
	case RouteFeed:
		g, _ := guardFor(RouteFeed)
		body = m.guarded(g, m.renderFeed)
	case RouteNotifications:
		g, _ := guardFor(RouteNotifications)
		body = m.guarded(g, m.renderNotifications)
	default:
		body = m.styles.Muted.Render("Page not found: " + m.route)
	}

	var b strings.Builder
	b.WriteString(m.styles.Title.Render("onCare"))
	b.WriteString("\n")
	b.WriteString(body)
	if m.lastErr != "" && m.route != RouteLogin {
		b.WriteString("\n\n")
		b.WriteString(m.styles.Error.Render("Error: ") + m.lastErr)
	}
	if m.route != RouteLogin {
		b.WriteString("\n")
		b.WriteString(m.renderHelpLine())
	}
	return b.String()
}

// guarded renders through g. The loading placeholder gets the spinner.
func (m Model) guarded(g guard.Guard, children func(*api.User) string) string {
	out := g.View(m.snap, children)
	if out == guard.LoadingText {
		return m.spinner.View() + " " + m.styles.Muted.Render(out)
	}
	if out == guard.RedirectingText {
		return m.styles.Muted.Render(out)
	}
	return out
}

func (m Model) renderLogin() string {
	var b strings.Builder

	if m.query.Get("registered") == "true" {
		b.WriteString(m.styles.Success.Render("Registration successful. Please log in."))
		b.WriteString("\n\n")
	}
	if m.loginErr != "" {
		b.WriteString(m.styles.Error.Render(m.loginErr))
		b.WriteString("\n\n")
	}
	if m.loggingIn {
		b.WriteString(m.spinner.View() + " " + m.styles.Muted.Render("Signing in..."))
		return b.String()
	}
	if m.form != nil {
		b.WriteString(m.form.View())
	}
	b.WriteString("\n")
	b.WriteString(m.styles.Help.Render("enter submit • esc quit"))
	return b.String()
}

func (m Model) renderFeed(u *api.User) string {
	var b strings.Builder

	header := m.styles.Subtitle.Render("Welcome back, ") + m.styles.Status.Render(u.DisplayName())
	if u.Verified() {
		header += " " + m.styles.Success.Render("✓ verified")
	}
	b.WriteString(header)
	b.WriteString("\n")

	var stats []string
	if m.counts != nil {
		stats = append(stats,
			fmt.Sprintf("%d connections", m.counts.Connections()),
			fmt.Sprintf("%d followers", m.counts.Followers),
			fmt.Sprintf("%d following", m.counts.Following),
		)
	}
	if m.balance != nil {
		stats = append(stats, fmt.Sprintf("%.0f HBAR (KSH %.0f)", m.balance.HBAR, m.balance.KSH))
	}
	if len(stats) > 0 {
		b.WriteString(m.styles.Muted.Render(strings.Join(stats, " · ")))
		b.WriteString("\n")
	}
	if m.profile != nil && m.profile.AboutMe != "" {
		b.WriteString("\n")
		b.WriteString(m.profile.AboutMe)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	live := m.styles.Muted.Render("○ live updates off")
	if m.snap.ChannelOpen {
		live = m.styles.Success.Render("● live")
	}
	b.WriteString(live)
	b.WriteString("\n")

	if len(m.live) == 0 {
		b.WriteString(m.styles.Muted.Render("Nothing new yet."))
		b.WriteString("\n")
	}
	for _, msg := range m.live {
		b.WriteString(m.renderLive(msg))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if len(m.posts) == 0 {
		b.WriteString(m.styles.Muted.Render("No posts in your feed."))
	}
	for _, p := range m.posts {
		b.WriteString(m.renderPost(p))
		b.WriteString("\n")
	}
	return m.styles.Border.Render(strings.TrimRight(b.String(), "\n"))
}

func (m Model) renderPost(p api.Post) string {
	meta := p.CreatedAt.Local().Format("Jan 2 15:04")
	if p.Privacy != api.PrivacyPublic {
		meta += " · " + p.Privacy
	}
	head := m.styles.Status.Render(p.Author()) + " " + m.styles.Muted.Render(meta)
	counts := m.styles.Muted.Render(fmt.Sprintf("▲ %d  ▼ %d", p.LikeCount, p.DislikeCount))
	return head + "\n" + p.Content + "\n" + counts
}

func (m Model) renderLive(msg realtime.Message) string {
	stamp := m.styles.Muted.Render(msg.ReceivedAt.Format(time.Kitchen))
	if n, err := msg.Notification(); err == nil {
		return stamp + " " + n.Message
	}
	return stamp + " " + m.styles.Muted.Render(msg.Type)
}

func (m Model) renderNotifications(_ *api.User) string {
	var b strings.Builder
	b.WriteString(m.styles.Subtitle.Render("Notifications"))
	b.WriteString("\n\n")

	if !m.loaded && len(m.notifications) == 0 {
		b.WriteString(m.styles.Muted.Render("Loading..."))
		return b.String()
	}
	if len(m.notifications) == 0 {
		b.WriteString(m.styles.Muted.Render("You're all caught up."))
		return b.String()
	}

	for i, n := range m.notifications {
		cursor := "  "
		if i == m.selected {
			cursor = m.styles.Selected.Render("> ")
		}
		text := n.Message
		if !n.IsRead {
			text = m.styles.Unread.Render("• " + text)
		} else {
			text = m.styles.Muted.Render("  " + text)
		}
		if n.Actionable() {
			text += " " + m.styles.Warning.Render("[action needed]")
		}
		b.WriteString(cursor + text + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderHelpLine() string {
	bindings := []struct{ key, desc string }{
		{"f", "feed"},
		{"n", "notifications"},
		{"r", "refresh"},
		{"o", "log out"},
		{"q", "quit"},
	}
	if m.route == RouteNotifications {
		bindings = append(bindings[:3], append([]struct{ key, desc string }{{"a", "mark all read"}}, bindings[3:]...)...)
	}

	parts := make([]string, 0, len(bindings))
	for _, kb := range bindings {
		parts = append(parts, m.styles.Key.Render(kb.key)+" "+m.styles.KeyDesc.Render(kb.desc))
	}
	return m.styles.Help.Render(strings.Join(parts, "  "))
}
