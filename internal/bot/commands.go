package bot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/reconcile"
	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
)

const operatorHelp = `<b>Admin commands</b>
/adduser - issue a one-time access code for a channel
/showchannels - list your channels and their invite links
/addchannel - add me to a new channel or group
/showusers - list a channel's subscribers
/updatesubscriptions - renew, shorten or remove subscribers in bulk
/updateuser &lt;user_id&gt; [duration] - change one subscription
/deletelinks - revoke invite links of a channel
/regenlink - replace the bot's invite link of a channel
/removechannel - forget a channel and its subscribers
/status - check the bot's rights in your channels
/cleanusers - remove expired subscribers now
/about - what this bot does

Durations: <code>7d</code>, <code>2w</code>, <code>3m</code>, <code>1y</code>, <code>23-11-2026</code> or <code>kick</code>.
To connect a channel, make me an admin there and post /connect in it.`

const about = `<b>About</b>
I manage paid access to Telegram channels and groups.

• Admins hand out one-time access codes and I answer them with an invite link.
• I approve join requests from users with an active subscription.
• Subscriptions can be renewed, shortened or removed one by one or in bulk.
• Expired subscribers are removed every day and admins get a report.`

const userHelp = `Hi! Send me the access code you got from the channel admin, for example <code>/code 1a2b3c4d</code>.
I will reply with an invite link. Request to join with it and you will be let in.`

// looksLikeCode matches a bare verification code sent without a command.
var looksLikeCode = regexp.MustCompile(`^[0-9a-fA-F]{8}$`)

func (d *Dispatcher) onPrivate(ctx context.Context, m *tgbotapi.Message) {
	if m.From == nil {
		return
	}
	from := m.From
	text := strings.TrimSpace(m.Text)

	if !m.IsCommand() {
		if d.isOperator(ctx, from.ID) {
			handled, err := d.flows.HandleText(ctx, from.ID, text)
			if err != nil {
				d.fail(ctx, from.ID, err)
			}
			if handled || err != nil {
				return
			}
		}
		if looksLikeCode.MatchString(text) {
			d.claim(ctx, from, text)
			return
		}
		d.send(ctx, from.ID, "Send /help to see what I can do.", nil)
		return
	}

	args := strings.TrimSpace(m.CommandArguments())
	switch cmd := m.Command(); cmd {
	case "start":
		if args != "" {
			d.claim(ctx, from, args)
			return
		}
		if d.isOperator(ctx, from.ID) {
			d.send(ctx, from.ID, operatorHelp, nil)
			return
		}
		d.send(ctx, from.ID, userHelp, nil)
	case "help":
		if d.isOperator(ctx, from.ID) {
			d.send(ctx, from.ID, operatorHelp, nil)
			return
		}
		d.send(ctx, from.ID, userHelp, nil)
	case "code", "verify":
		d.claim(ctx, from, args)
	case "about":
		d.send(ctx, from.ID, about, nil)
	case "addchannel":
		d.addChannel(ctx, from.ID)
	default:
		if !d.isOperator(ctx, from.ID) {
			d.send(ctx, from.ID, userHelp, nil)
			return
		}
		d.fail(ctx, from.ID, d.operatorCommand(ctx, from.ID, cmd, args))
	}
}

func (d *Dispatcher) operatorCommand(ctx context.Context, adminID int64, cmd, args string) error {
	switch cmd {
	case "adduser":
		return d.pickChannel(ctx, adminID, actionIssueCode, "Which channel should the code grant access to?")
	case "showchannels":
		return d.showChannels(ctx, adminID)
	case "showusers":
		return d.pickChannel(ctx, adminID, actionShowUsers, "Whose subscribers do you want to see?")
	case "updatesubscriptions":
		return d.pickChannel(ctx, adminID, actionBulkUpdate, "Which channel do you want to update?")
	case "deletelinks":
		return d.pickChannel(ctx, adminID, actionDeleteLinks, "Which channel's links do you want to revoke?")
	case "regenlink":
		return d.pickChannel(ctx, adminID, actionRegenLink, "Which channel needs a new invite link?")
	case "removechannel":
		return d.pickChannel(ctx, adminID, actionRemoveChannel, "Which channel do you want to remove?")
	case "updateuser":
		return d.updateUser(ctx, adminID, args)
	case "status":
		return d.statusReport(ctx, adminID)
	case "cleanusers":
		return d.manualSweep(ctx, adminID)
	default:
		d.send(ctx, adminID, "Unknown command. Send /help for the list.", nil)
		return nil
	}
}

// addChannel offers deep links that open Telegram's "add bot as admin"
// screen with the rights the bot needs already ticked.
func (d *Dispatcher) addChannel(ctx context.Context, userID int64) {
	steps := "Add me as an admin with the rights to ban users and invite users via link, then post /connect in the chat."
	if d.username == "" {
		d.send(ctx, userID, steps, nil)
		return
	}
	base := "https://t.me/" + d.username
	kb := gateway.Keyboard{
		{{Text: "Add me to a channel", URL: base + "?startchannel&admin=post_messages+restrict_members+invite_users"}},
		{{Text: "Add me to a group", URL: base + "?startgroup&admin=restrict_members+invite_users"}},
	}
	d.send(ctx, userID, steps, kb)
}

func (d *Dispatcher) showChannels(ctx context.Context, adminID int64) error {
	channels, err := d.ledger.ChannelsForAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	if len(channels) == 0 {
		d.send(ctx, adminID, "You have no connected channels yet. Send /addchannel to add one.", nil)
		return nil
	}
	var b strings.Builder
	b.WriteString("<b>Your channels</b>\n")
	for i, ch := range channels {
		link := "no invite link"
		if ch.InviteLink != nil {
			link = *ch.InviteLink
		}
		fmt.Fprintf(&b, "\n%d. %s\n%s\n", i+1, render.ChannelMention(ch.ID, ch.Name), link)
	}
	d.send(ctx, adminID, b.String(), nil)
	return nil
}

func (d *Dispatcher) updateUser(ctx context.Context, adminID int64, args string) error {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		d.send(ctx, adminID, "Usage: /updateuser &lt;user_id&gt; [duration]", nil)
		return nil
	}
	userID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		d.send(ctx, adminID, fmt.Sprintf("Invalid user id %s.", render.Code(fields[0])), nil)
		return nil
	}
	durationText := "30d"
	if len(fields) > 1 {
		durationText = strings.Join(fields[1:], "")
	}
	dur, err := services.ParseDuration(durationText)
	if err != nil {
		d.send(ctx, adminID, err.Error(), nil)
		return nil
	}

	channels, err := d.ledger.UserChannels(ctx, userID)
	if err != nil {
		return err
	}
	var kb gateway.Keyboard
	var only int64
	for _, ch := range channels {
		if d.ledger.Authorize(ctx, adminID, ch.ID) != nil {
			continue
		}
		only = ch.ID
		kb = append(kb, []gateway.Button{{
			Text: ch.Name,
			Data: fmt.Sprintf("%s:%d:%d:%s", actionUpdateUser, userID, ch.ID, dur),
		}})
	}
	switch len(kb) {
	case 0:
		d.send(ctx, adminID, fmt.Sprintf("User %d has no subscriptions in your channels.", userID), nil)
		return nil
	case 1:
		return d.flows.UpdateOne(ctx, adminID, userID, only, dur.String())
	default:
		d.send(ctx, adminID, fmt.Sprintf("User %d is in several of your channels. Which one?", userID), kb)
		return nil
	}
}

func (d *Dispatcher) statusReport(ctx context.Context, adminID int64) error {
	channels, err := d.ledger.ChannelsForAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	d.send(ctx, adminID, reconcile.FormatStatusReport(d.status.Check(ctx, channels)), nil)
	return nil
}

func (d *Dispatcher) manualSweep(ctx context.Context, adminID int64) error {
	d.send(ctx, adminID, "Removing expired subscribers from your channels…", nil)
	res, err := d.sweeper.Run(ctx, reconcile.TriggerManual, adminID)
	if err != nil {
		return err
	}
	d.send(ctx, adminID, fmt.Sprintf("Cleanup finished.\nRemoved: %d\nExpiring soon: %d",
		res.Removed(), len(res.SoonToExpire)), nil)
	return nil
}
