package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lojf/subgate/internal/flows"
	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/reconcile"
	"github.com/lojf/subgate/internal/render"
)

// Callback data prefixes for channel pickers and confirmations.
const (
	actionIssueCode     = "code"
	actionShowUsers     = "show"
	actionBulkUpdate    = "bulk"
	actionDeleteLinks   = "links"
	actionRegenLink     = "regen"
	actionRemoveChannel = "remove"
	actionConfirmRemove = "rmyes"
	actionCancelRemove  = "rmno"
	actionUpdateUser    = "upd"
)

var errBadCallback = errors.New("malformed callback data")

// pickChannel asks adminID to choose one of their channels for action. With a
// single channel the choice is made for them.
func (d *Dispatcher) pickChannel(ctx context.Context, adminID int64, action, prompt string) error {
	channels, err := d.ledger.ChannelsForAdmin(ctx, adminID)
	if err != nil {
		return err
	}
	switch len(channels) {
	case 0:
		d.send(ctx, adminID, "No channels connected yet. Make me an admin in your channel and post /connect there.", nil)
		return nil
	case 1:
		return d.onPicked(ctx, adminID, action, channels[0].ID)
	}
	kb := make(gateway.Keyboard, 0, len(channels))
	for _, ch := range channels {
		kb = append(kb, []gateway.Button{{Text: ch.Name, Data: fmt.Sprintf("%s:%d", action, ch.ID)}})
	}
	d.send(ctx, adminID, prompt, kb)
	return nil
}

func (d *Dispatcher) onCallback(ctx context.Context, q *tgbotapi.CallbackQuery) {
	if err := d.gw.AnswerCallback(ctx, q.ID, ""); err != nil {
		d.log.Debug().Err(err).Msg("callback not answered")
	}
	if q.From == nil || !d.isOperator(ctx, q.From.ID) {
		return
	}
	adminID := q.From.ID
	d.fail(ctx, adminID, d.callback(ctx, adminID, q.Data))
}

func (d *Dispatcher) callback(ctx context.Context, adminID int64, data string) error {
	action, rest, _ := strings.Cut(data, ":")
	parts := strings.Split(rest, ":")

	switch action {
	case reconcile.ActionEditGrant, reconcile.ActionKickGrant, reconcile.ActionKeepGrant:
		if len(parts) != 2 {
			return errBadCallback
		}
		userID, channelID, err := parsePair(parts[0], parts[1])
		if err != nil {
			return err
		}
		switch action {
		case reconcile.ActionEditGrant:
			return d.flows.StartSingle(ctx, adminID, userID, channelID, true)
		case reconcile.ActionKickGrant:
			return d.flows.UpdateOne(ctx, adminID, userID, channelID, "kick")
		default:
			d.send(ctx, adminID, "Keeping the default duration.", nil)
			return nil
		}

	case actionUpdateUser:
		if len(parts) != 3 {
			return errBadCallback
		}
		userID, channelID, err := parsePair(parts[0], parts[1])
		if err != nil {
			return err
		}
		return d.flows.UpdateOne(ctx, adminID, userID, channelID, parts[2])
	}

	if len(parts) != 1 {
		return errBadCallback
	}
	channelID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return errBadCallback
	}
	return d.onPicked(ctx, adminID, action, channelID)
}

func parsePair(a, b string) (int64, int64, error) {
	x, err := strconv.ParseInt(a, 10, 64)
	if err != nil {
		return 0, 0, errBadCallback
	}
	y, err := strconv.ParseInt(b, 10, 64)
	if err != nil {
		return 0, 0, errBadCallback
	}
	return x, y, nil
}

func (d *Dispatcher) onPicked(ctx context.Context, adminID int64, action string, channelID int64) error {
	switch action {
	case actionBulkUpdate:
		return d.flows.StartBulk(ctx, adminID, channelID)
	case actionDeleteLinks:
		return d.flows.StartDeleteLinks(ctx, adminID, channelID)
	}

	if err := d.ledger.Authorize(ctx, adminID, channelID); err != nil {
		return err
	}
	switch action {
	case actionIssueCode:
		return d.issueCode(ctx, adminID, channelID)
	case actionShowUsers:
		ch, err := d.ledger.Channel(ctx, channelID)
		if err != nil {
			return err
		}
		subs, err := d.ledger.ChannelSubscriptions(ctx, channelID)
		if err != nil {
			return err
		}
		d.send(ctx, adminID, flows.FormatSubscribers(ch.ID, ch.Name, subs), nil)
		return nil
	case actionRegenLink:
		return d.regenLink(ctx, adminID, channelID)
	case actionRemoveChannel:
		ch, err := d.ledger.Channel(ctx, channelID)
		if err != nil {
			return err
		}
		d.send(ctx, adminID, fmt.Sprintf("Remove %s and all of its subscribers from the ledger? Members already in the channel stay there.",
			render.Bold(ch.Name)), gateway.Keyboard{{
			{Text: "Yes, remove", Data: fmt.Sprintf("%s:%d", actionConfirmRemove, channelID)},
			{Text: "No", Data: fmt.Sprintf("%s:%d", actionCancelRemove, channelID)},
		}})
		return nil
	case actionConfirmRemove:
		collected, err := d.ledger.DeleteChannel(ctx, channelID)
		if err != nil {
			return err
		}
		d.send(ctx, adminID, fmt.Sprintf("Channel removed. %d users without other subscriptions were forgotten.", collected), nil)
		return nil
	case actionCancelRemove:
		d.send(ctx, adminID, "Nothing removed.", nil)
		return nil
	default:
		return errBadCallback
	}
}

func (d *Dispatcher) issueCode(ctx context.Context, adminID, channelID int64) error {
	vc, err := d.ledger.IssueCode(ctx, adminID, channelID)
	if err != nil {
		return err
	}
	until := vc.ExpiresAt.In(d.ledger.Location()).Format("15:04")
	d.send(ctx, adminID, fmt.Sprintf("Give this code to the new subscriber. It works once, until %s:\n\n%s\n\nThey send it to me with /code.",
		until, render.Code(vc.Code)), nil)
	return nil
}

func (d *Dispatcher) regenLink(ctx context.Context, adminID, channelID int64) error {
	ch, err := d.ledger.Channel(ctx, channelID)
	if err != nil {
		return err
	}
	if ch.InviteLink != nil {
		if err := d.gw.RevokeInviteLink(ctx, channelID, *ch.InviteLink); err != nil {
			d.log.Warn().Err(err).Int64("channel_id", channelID).Msg("old invite link not revoked")
		}
	}
	link, err := d.gw.CreateInviteLink(ctx, channelID)
	if err != nil {
		return err
	}
	if err := d.ledger.SetInviteLink(ctx, channelID, &link); err != nil {
		return err
	}
	d.send(ctx, adminID, fmt.Sprintf("New invite link for %s:\n%s", render.Bold(ch.Name), link), nil)
	return nil
}
