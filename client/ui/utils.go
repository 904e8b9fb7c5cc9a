package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/rivo/tview"

	"chatsync/models"
)

// formatLastSeen formats the last seen time for display
func formatLastSeen(t, now time.Time) string {
	if t.IsZero() {
		return ""
	}

	diff := now.Sub(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 min ago"
		}
		return fmt.Sprintf("%d min ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 30*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("Jan 2, 2006")
	}
}

// statusIcon renders the delivery state of an outgoing message.
func statusIcon(m models.Message) string {
	switch {
	case m.Local && m.Status == models.StatusSent:
		return "[gray]○[-]"
	case m.Status == models.StatusSeen:
		return "[green]✓✓[-]"
	case m.Status == models.StatusDelivered:
		return "[gray]✓✓[-]"
	default:
		return "[gray]✓[-]"
	}
}

// messageText renders the body of m, pointing media entries at the backend.
func messageText(m models.Message, baseURL string) string {
	switch m.Kind {
	case models.KindImage, models.KindFile:
		icon := "📎"
		if m.Kind == models.KindImage {
			icon = "🖼"
		}
		url := m.MediaURL
		if strings.HasPrefix(url, "/") {
			url = strings.TrimRight(baseURL, "/") + url
		}
		if url == "" {
			return fmt.Sprintf("%s %s", icon, escape(m.Body))
		}
		return fmt.Sprintf("%s %s [gray]%s[-]", icon, escape(m.Body), escape(url))
	default:
		return escape(m.Body)
	}
}

// escape neutralizes tview color tags in user supplied text.
func escape(s string) string {
	return tview.Escape(s)
}
