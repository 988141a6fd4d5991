// Package gateway is the boundary to the messaging platform.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMissingAdminRights means the bot lacks the privilege the call needs.
	ErrMissingAdminRights = errors.New("bot lacks admin rights")
	// ErrPeerUnreachable means the platform does not know the chat or user yet.
	ErrPeerUnreachable = errors.New("peer unreachable")
)

// RateLimitedError asks the caller to retry after RetryAfter.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// Button is one inline action under a message. A button with URL opens the
// link instead of sending Data back.
type Button struct {
	Text string
	Data string
	URL  string
}

// Keyboard is rows of inline buttons.
type Keyboard [][]Button

// MemberStatus is a user's standing in a chat.
type MemberStatus struct {
	Status             string // creator, administrator, member, left, kicked
	CanRestrictMembers bool
	CanInviteUsers     bool
}

// Operational reports whether the bot can both ban members and manage invite links.
func (m MemberStatus) Operational() bool {
	if m.Status == "creator" {
		return true
	}
	return m.Status == "administrator" && m.CanRestrictMembers && m.CanInviteUsers
}

// ChatAdmin reports whether the member administers the chat.
func (m MemberStatus) ChatAdmin() bool {
	return m.Status == "creator" || m.Status == "administrator"
}

// Gateway is every platform call the reconcilers and flows make.
type Gateway interface {
	SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	ApproveJoinRequest(ctx context.Context, chatID, userID int64) error
	BanMember(ctx context.Context, chatID, userID int64) error
	UnbanMember(ctx context.Context, chatID, userID int64) error
	CreateInviteLink(ctx context.Context, chatID int64) (string, error)
	RevokeInviteLink(ctx context.Context, chatID int64, link string) error
	BotMember(ctx context.Context, chatID int64) (MemberStatus, error)
	ChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error)
}

// MaxMessageLen is the platform's limit on one text message, in characters.
const MaxMessageLen = 4096

// SendLong sends text split into messages of at most MaxMessageLen characters,
// breaking on line boundaries. The keyboard is attached to the last part.
func SendLong(ctx context.Context, g Gateway, chatID int64, text string, kb Keyboard) error {
	parts := SplitMessage(text, MaxMessageLen)
	for i, p := range parts {
		var k Keyboard
		if i == len(parts)-1 {
			k = kb
		}
		if err := g.SendMessage(ctx, chatID, p, k); err != nil {
			return err
		}
	}
	return nil
}

// SplitMessage breaks text into chunks of at most limit characters. Chunks end
// on a newline where possible; a single overlong line is hard-split.
func SplitMessage(text string, limit int) []string {
	if len([]rune(text)) <= limit {
		return []string{text}
	}
	var (
		out []string
		cur strings.Builder
		n   int
	)
	flush := func() {
		if n > 0 {
			out = append(out, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			n = 0
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		r := []rune(line)
		if n+len(r) > limit {
			flush()
		}
		for len(r) > limit {
			out = append(out, string(r[:limit]))
			r = r[limit:]
		}
		cur.WriteString(string(r))
		n += len(r)
	}
	flush()
	return out
}

// Describe turns a gateway error into operator-facing text.
func Describe(err error) string {
	var rl *RateLimitedError
	switch {
	case errors.Is(err, ErrMissingAdminRights):
		return "Bot should be admin with ban and invite rights; kick and unban manually"
	case errors.Is(err, ErrPeerUnreachable):
		return "Let there be some interaction in the channel so the bot can reach it"
	case errors.As(err, &rl):
		return "Telegram is throttling requests, try again later"
	default:
		return err.Error()
	}
}
