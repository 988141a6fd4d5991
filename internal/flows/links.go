package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/state"
)

// StartDeleteLinks opens a conversation that revokes invite links of a channel.
func (c *Controller) StartDeleteLinks(ctx context.Context, adminID, channelID int64) error {
	if err := c.ledger.Authorize(ctx, adminID, channelID); err != nil {
		return err
	}
	ch, err := c.ledger.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	c.state.Set(adminID, state.DeleteLinksPayload{ChannelID: ch.ID, ChannelName: ch.Name})

	current := "none"
	if ch.InviteLink != nil {
		current = *ch.InviteLink
	}
	return c.reply(ctx, adminID, fmt.Sprintf(
		"Send the invite links of %s to revoke, one per line.\nCurrent bot link: %s\nSend <b>done</b> or <b>stop</b> to finish.",
		render.Bold(ch.Name), current))
}

// HandleDeleteLinks revokes each link and reports per link.
func (c *Controller) HandleDeleteLinks(ctx context.Context, adminID int64, text string) (bool, error) {
	p, ok := state.Lookup[state.DeleteLinksPayload](c.state, adminID)
	if !ok {
		return false, nil
	}

	var stored string
	if ch, err := c.ledger.Channel(ctx, p.ChannelID); err == nil && ch.InviteLink != nil {
		stored = *ch.InviteLink
	}

	var results []string
	finish := false
	for _, line := range strings.Split(text, "\n") {
		link := strings.TrimSpace(line)
		if link == "" {
			continue
		}
		if isFinish(link) {
			finish = true
			break
		}
		if err := c.gw.RevokeInviteLink(ctx, p.ChannelID, link); err != nil {
			results = append(results, fmt.Sprintf("❌ %s: %s", link, gateway.Describe(err)))
			continue
		}
		if link == stored {
			if err := c.ledger.SetInviteLink(ctx, p.ChannelID, nil); err != nil {
				c.log.Error().Err(err).Int64("channel_id", p.ChannelID).Msg("clearing stored link")
			}
		}
		results = append(results, fmt.Sprintf("✅ %s revoked", link))
	}

	if len(results) > 0 {
		if err := c.reply(ctx, adminID, strings.Join(results, "\n")); err != nil {
			return true, err
		}
	}
	if finish {
		c.state.Delete(state.CategoryDeleteLinks, adminID)
		return true, c.reply(ctx, adminID, "Finished revoking links.")
	}
	return true, nil
}
