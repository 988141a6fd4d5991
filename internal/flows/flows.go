// Package flows drives multi-turn operator conversations: bulk renewals,
// single-subscription edits and invite-link cleanup.
package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/reconcile"
	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
	"github.com/lojf/subgate/internal/state"
)

const defaultDuration = "30d"

// Controller owns the conversation lifecycle for every operator.
type Controller struct {
	ledger *services.Ledger
	gw     gateway.Gateway
	state  *state.Store
	log    zerolog.Logger
}

func New(ledger *services.Ledger, gw gateway.Gateway, store *state.Store, logger zerolog.Logger) *Controller {
	return &Controller{
		ledger: ledger,
		gw:     gw,
		state:  store,
		log:    logger.With().Str("component", "flows").Logger(),
	}
}

// HandleText routes free text to whichever conversation adminID has open.
// It reports false when none is open.
func (c *Controller) HandleText(ctx context.Context, adminID int64, text string) (bool, error) {
	for _, h := range []func(context.Context, int64, string) (bool, error){
		c.HandleSingle, c.HandleBulk, c.HandleDeleteLinks,
	} {
		handled, err := h(ctx, adminID, text)
		if handled || err != nil {
			return handled, err
		}
	}
	return false, nil
}

// UpdateOne applies a duration to one subscription immediately.
func (c *Controller) UpdateOne(ctx context.Context, adminID, userID, channelID int64, durationText string) error {
	if err := c.ledger.Authorize(ctx, adminID, channelID); err != nil {
		return err
	}
	if strings.TrimSpace(durationText) == "" {
		durationText = defaultDuration
	}
	d, err := services.ParseDuration(durationText)
	if err != nil {
		return c.reply(ctx, adminID, fmt.Sprintf("Error updating user %d: %s", userID, err))
	}
	name := fmt.Sprintf("user %d", userID)
	if u, err := c.ledger.User(ctx, userID); err == nil {
		name = u.FullName
	}
	line, _ := c.apply(ctx, userID, channelID, name, d, false)
	return c.reply(ctx, adminID, line)
}

// apply executes d against one subscription and returns an operator-facing
// result line. Kick revokes on the platform before touching the ledger.
func (c *Controller) apply(ctx context.Context, userID, channelID int64, name string, d services.Duration, fromGrant bool) (string, error) {
	who := render.UserMention(userID, name)
	if d.Kind == services.DurationKick {
		if err := reconcile.Revoke(ctx, c.gw, channelID, userID); err != nil {
			c.log.Warn().Err(err).Int64("user_id", userID).Int64("channel_id", channelID).Msg("kick failed")
			return fmt.Sprintf("❌ Error kicking %s: %s", who, gateway.Describe(err)), err
		}
		if _, err := c.ledger.RemoveSubscription(ctx, userID, channelID); err != nil {
			return fmt.Sprintf("❌ %s was kicked but the ledger was not updated: %s", who, err), err
		}
		return fmt.Sprintf("🚫 %s removed from the channel", who), nil
	}

	apply := c.ledger.ApplyDuration
	if fromGrant {
		apply = c.ledger.ApplyDurationFromGrant
	}
	v, err := apply(ctx, userID, channelID, d)
	if err != nil {
		return fmt.Sprintf("❌ Error updating user %s: %s", who, err), err
	}
	return fmt.Sprintf("✅ %s now expires on %s", who, render.Date(v.ExpiryDate)), nil
}

func (c *Controller) reply(ctx context.Context, adminID int64, text string) error {
	return gateway.SendLong(ctx, c.gw, adminID, text, nil)
}

func isFinish(line string) bool {
	switch strings.ToLower(line) {
	case "done", "stop":
		return true
	}
	return false
}

// FormatSubscribers renders a numbered subscriber list.
func FormatSubscribers(channelID int64, channelName string, subs []services.SubscriptionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Subscribers of %s (%d)\n", render.ChannelMention(channelID, channelName), len(subs))
	if len(subs) == 0 {
		b.WriteString("\nNo subscribers yet.\n")
		return b.String()
	}
	for i, s := range subs {
		fmt.Fprintf(&b, "\nUser #%d\nName: %s\nExpiry: %s\n",
			i+1, render.UserMention(s.UserID, s.FullName), render.Date(s.ExpiryDate))
	}
	return b.String()
}
