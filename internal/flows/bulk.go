package flows

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
	"github.com/lojf/subgate/internal/state"
)

const bulkHelp = `Send one line per user: <code>&lt;index&gt; [duration]</code>

<code>9 3d</code>  extend user #9 by 3 days
<code>1 2y</code>  extend user #1 by 2 years
<code>3 2 w</code>  extend user #3 by 2 weeks
<code>5 23-11-2026</code>  set user #5 to expire on that date
<code>4 kick</code>  remove user #4 now

A line without a duration adds 30d. Units: d, w, m (30 days), y (365 days).
Send <b>done</b> or <b>stop</b> to finish.`

// StartBulk snapshots the channel's subscribers and opens a bulk-update conversation.
func (c *Controller) StartBulk(ctx context.Context, adminID, channelID int64) error {
	if err := c.ledger.Authorize(ctx, adminID, channelID); err != nil {
		return err
	}
	ch, err := c.ledger.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	subs, err := c.ledger.ChannelSubscriptions(ctx, channelID)
	if err != nil {
		return err
	}

	rows := make([]state.SubscriberRow, 0, len(subs))
	for i, s := range subs {
		rows = append(rows, state.SubscriberRow{Index: i + 1, UserID: s.UserID, FullName: s.FullName, ExpiryDate: s.ExpiryDate})
	}
	c.state.Set(adminID, state.BulkUpdatePayload{ChannelID: ch.ID, ChannelName: ch.Name, Rows: rows})
	c.log.Info().Int64("admin_id", adminID).Int64("channel_id", channelID).Int("rows", len(rows)).Msg("bulk update started")

	if err := c.reply(ctx, adminID, FormatSubscribers(ch.ID, ch.Name, subs)); err != nil {
		return err
	}
	return c.reply(ctx, adminID, bulkHelp)
}

// HandleBulk applies each line of text to the snapshot. Bad lines produce an
// error line and never stop the rest of the batch.
func (c *Controller) HandleBulk(ctx context.Context, adminID int64, text string) (bool, error) {
	p, ok := state.Lookup[state.BulkUpdatePayload](c.state, adminID)
	if !ok {
		return false, nil
	}

	var results []string
	finish := false
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if isFinish(line) {
			finish = true
			break
		}
		results = append(results, c.bulkLine(ctx, &p, line))
	}

	if len(results) > 0 {
		if err := c.reply(ctx, adminID, strings.Join(results, "\n")); err != nil {
			return true, err
		}
	}
	if !finish {
		c.state.Set(adminID, p)
		return true, nil
	}

	c.state.Delete(state.CategoryBulkUpdate, adminID)
	subs, err := c.ledger.ChannelSubscriptions(ctx, p.ChannelID)
	if err != nil {
		return true, err
	}
	return true, c.reply(ctx, adminID, FormatSubscribers(p.ChannelID, p.ChannelName, subs))
}

// bulkLine applies one line and marks kicked rows so later lines cannot
// resurrect them.
func (c *Controller) bulkLine(ctx context.Context, p *state.BulkUpdatePayload, line string) string {
	parts := strings.Fields(line)
	idx, err := strconv.Atoi(parts[0])
	if err != nil {
		return fmt.Sprintf("Invalid index '%s'.", parts[0])
	}
	row, ok := p.Row(idx)
	if !ok {
		return fmt.Sprintf("Index '%d' is out of range.", idx)
	}
	if row.Removed {
		return fmt.Sprintf("User #%d %s was already removed.", idx, render.UserMention(row.UserID, row.FullName))
	}

	var durationText string
	switch len(parts) {
	case 1:
		durationText = defaultDuration
	case 2:
		durationText = parts[1]
	case 3:
		durationText = parts[1] + parts[2]
	default:
		return fmt.Sprintf("Invalid format in line: %s", line)
	}

	d, err := services.ParseDuration(durationText)
	if err != nil {
		return fmt.Sprintf("Error updating user #%d %s: %s", idx, render.UserMention(row.UserID, row.FullName), err)
	}
	result, err := c.apply(ctx, row.UserID, p.ChannelID, row.FullName, d, false)
	if err == nil && d.Kind == services.DurationKick {
		p.Rows[idx-1].Removed = true
	}
	return fmt.Sprintf("#%d %s", idx, result)
}
