package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/models"
	"github.com/lojf/subgate/internal/render"
)

// ChannelState classifies whether the bot can act in a channel.
type ChannelState int

const (
	StateOperational ChannelState = iota
	StateAdminRightsNeeded
	StateNeedsInteraction
	StateError
)

func (s ChannelState) String() string {
	switch s {
	case StateOperational:
		return "✅ Working Properly"
	case StateAdminRightsNeeded:
		return "⚠️ Admin Rights Needed"
	case StateNeedsInteraction:
		return "🗣 Needs Interaction"
	default:
		return "❌ Error checking status"
	}
}

// ChannelStatus is one channel's check result.
type ChannelStatus struct {
	Channel models.Channel
	State   ChannelState
	Err     error
}

// StatusChecker asks the platform about the bot's standing in channels.
type StatusChecker struct {
	gw  gateway.Gateway
	log zerolog.Logger
}

func NewStatusChecker(gw gateway.Gateway, logger zerolog.Logger) *StatusChecker {
	return &StatusChecker{gw: gw, log: logger.With().Str("component", "status").Logger()}
}

// Check classifies every channel. Rate limits are absorbed by the gateway.
func (c *StatusChecker) Check(ctx context.Context, channels []models.Channel) []ChannelStatus {
	out := make([]ChannelStatus, 0, len(channels))
	for _, ch := range channels {
		st := ChannelStatus{Channel: ch}
		m, err := c.gw.BotMember(ctx, ch.ID)
		switch {
		case err == nil && m.Operational():
			st.State = StateOperational
		case err == nil, errors.Is(err, gateway.ErrMissingAdminRights):
			st.State = StateAdminRightsNeeded
		case errors.Is(err, gateway.ErrPeerUnreachable):
			st.State = StateNeedsInteraction
		default:
			st.State = StateError
			c.log.Error().Err(err).Int64("channel_id", ch.ID).Msg("checking channel status")
		}
		st.Err = err
		out = append(out, st)
	}
	return out
}

// AllOperational reports whether every status is operational.
func AllOperational(statuses []ChannelStatus) bool {
	for _, s := range statuses {
		if s.State != StateOperational {
			return false
		}
	}
	return true
}

// FormatStatusReport renders statuses, adding remediation steps when any channel has issues.
func FormatStatusReport(statuses []ChannelStatus) string {
	var b strings.Builder
	b.WriteString("All Channels Status Report 📝\n")
	if len(statuses) == 0 {
		b.WriteString("No channels connected yet.\n")
		return b.String()
	}
	for _, s := range statuses {
		fmt.Fprintf(&b, "%s: %s", render.ChannelMention(s.Channel.ID, s.Channel.Name), s.State)
		if s.State == StateError && s.Err != nil {
			fmt.Fprintf(&b, ": %s", s.Err)
		}
		b.WriteString("\n")
	}
	if !AllOperational(statuses) {
		b.WriteString(instructions)
	}
	return b.String()
}

const instructions = `
⚠️ <b>Attention required:</b> at least one channel is not working properly.

⚠️ For channels marked "Admin Rights Needed":
  • Open the channel or group settings
  • Go to Administrators
  • Add the bot as admin with: Add members, Ban users, Invite users via link

🗣 For channels marked "Needs Interaction":
  • React to any message in the channel
  • If that doesn't work, post a message, sticker or GIF
  • Or forward one message to the channel

✅ Channels marked "Working Properly" need no action.
`
