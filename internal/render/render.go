// Package render formats ledger data as HTML for chat messages.
package render

import (
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"
)

// DateLayout is how expiry dates are shown to operators and users.
const DateLayout = "02-01-2006"

func Date(t time.Time) string { return t.Format(DateLayout) }

// UserMention links to a user's profile.
func UserMention(id int64, name string) string {
	if name == "" {
		name = "Unknown"
	}
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, id, html.EscapeString(name))
}

// ChannelMention links to a private channel or group by its internal id.
func ChannelMention(id int64, name string) string {
	s := strconv.FormatInt(id, 10)
	s = strings.TrimPrefix(s, "-100")
	s = strings.TrimPrefix(s, "-")
	return fmt.Sprintf(`<a href="https://t.me/c/%s">%s</a>`, s, html.EscapeString(name))
}

// Code formats a value as inline monospace.
func Code(s string) string { return "<code>" + html.EscapeString(s) + "</code>" }

func Bold(s string) string { return "<b>" + html.EscapeString(s) + "</b>" }
