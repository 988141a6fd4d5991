package flows

import (
	"context"
	"fmt"
	"strings"

	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
	"github.com/lojf/subgate/internal/state"
)

// StartSingle opens a single-update conversation for one subscription. With
// fromGrant, relative durations count from the grant date.
func (c *Controller) StartSingle(ctx context.Context, adminID, userID, channelID int64, fromGrant bool) error {
	if err := c.ledger.Authorize(ctx, adminID, channelID); err != nil {
		return err
	}
	sub, err := c.ledger.Subscription(ctx, userID, channelID)
	if err != nil {
		return err
	}
	c.state.Set(adminID, state.SingleUpdatePayload{UserID: userID, ChannelID: channelID, ReplacesDefault: fromGrant})

	return c.reply(ctx, adminID, fmt.Sprintf(
		"Editing %s in %s (expires %s).\nSend a duration such as <code>7d</code>, <code>2 w</code>, <code>23-11-2026</code> or <code>kick</code>. Send <b>cancel</b> to abort.",
		render.UserMention(sub.UserID, sub.FullName), render.Bold(sub.ChannelName), render.Date(sub.ExpiryDate)))
}

// HandleSingle applies one duration. Invalid input keeps the conversation open.
func (c *Controller) HandleSingle(ctx context.Context, adminID int64, text string) (bool, error) {
	p, ok := state.Lookup[state.SingleUpdatePayload](c.state, adminID)
	if !ok {
		return false, nil
	}

	input := strings.TrimSpace(text)
	if isFinish(input) && (c.state.Has(state.CategoryBulkUpdate, adminID) || c.state.Has(state.CategoryDeleteLinks, adminID)) {
		return false, nil
	}
	if strings.EqualFold(input, "cancel") {
		c.state.Delete(state.CategorySingleUpdate, adminID)
		return true, c.reply(ctx, adminID, "Cancelled, nothing changed.")
	}
	if n := len(strings.Fields(input)); n == 0 || n > 2 {
		return true, c.reply(ctx, adminID, "Invalid format. Send one duration, e.g. <code>7d</code>, or <b>cancel</b>.")
	}
	d, err := services.ParseDuration(input)
	if err != nil {
		return true, c.reply(ctx, adminID, fmt.Sprintf("%s. Try again or send <b>cancel</b>.", err))
	}

	name := fmt.Sprintf("user %d", p.UserID)
	if u, err := c.ledger.User(ctx, p.UserID); err == nil {
		name = u.FullName
	}
	line, err := c.apply(ctx, p.UserID, p.ChannelID, name, d, p.ReplacesDefault)
	if err == nil {
		c.state.Delete(state.CategorySingleUpdate, adminID)
	}
	return true, c.reply(ctx, adminID, line)
}
