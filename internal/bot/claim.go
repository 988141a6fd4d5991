package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
)

// inviteQR encodes an invite link so it can be scanned from another device.
func inviteQR(link string) ([]byte, error) {
	return qrcode.Encode(link, qrcode.Medium, 256)
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// claim redeems code for from and delivers the channel's invite link.
func (d *Dispatcher) claim(ctx context.Context, from *tgbotapi.User, code string) {
	code = strings.TrimSpace(code)
	if code == "" {
		d.send(ctx, from.ID, userHelp, nil)
		return
	}

	res, err := d.ledger.ClaimCode(ctx, services.ClaimRequest{
		UserID:   from.ID,
		Code:     code,
		Username: from.UserName,
		FullName: fullName(from),
	})
	switch {
	case errors.Is(err, services.ErrInvalidOrExpiredCode):
		d.metrics.RecordClaim("invalid")
		d.send(ctx, from.ID, explain(err), nil)
		return
	case err != nil:
		d.metrics.RecordClaim("error")
		d.fail(ctx, from.ID, err)
		return
	}

	ch, err := d.ledger.Channel(ctx, res.ChannelID)
	if err != nil {
		d.fail(ctx, from.ID, err)
		return
	}
	if !res.NewToChannel {
		d.metrics.RecordClaim("present")
		d.send(ctx, from.ID, fmt.Sprintf("You already have a subscription to %s.", render.Bold(ch.Name)), nil)
		return
	}
	d.metrics.RecordClaim("ok")

	link, err := d.inviteLink(ctx, ch.ID, ch.InviteLink)
	if err != nil {
		d.log.Error().Err(err).Int64("channel_id", ch.ID).Msg("no invite link for claimant")
		d.send(ctx, from.ID, "✅ Code accepted, but I could not get an invite link. Your admin has been told.", nil)
	} else {
		d.send(ctx, from.ID, fmt.Sprintf("✅ Code accepted. Request to join %s with this link and you will be let in:\n%s",
			render.Bold(ch.Name), link), nil)
		if png, err := inviteQR(link); err != nil {
			d.log.Warn().Err(err).Msg("qr encode")
		} else if err := d.gw.SendPhoto(ctx, from.ID, png, "Or scan this code"); err != nil {
			d.log.Warn().Err(err).Int64("chat_id", from.ID).Msg("qr not delivered")
		}
	}

	if res.AdminID != 0 {
		d.send(ctx, res.AdminID, fmt.Sprintf("%s verified for %s and will be admitted when they request to join.",
			render.UserMention(from.ID, services.SanitizeFullName(fullName(from))), render.ChannelMention(ch.ID, ch.Name)), nil)
	}
}

// inviteLink returns the stored link, creating and storing one when missing.
func (d *Dispatcher) inviteLink(ctx context.Context, channelID int64, stored *string) (string, error) {
	if stored != nil && *stored != "" {
		return *stored, nil
	}
	link, err := d.gw.CreateInviteLink(ctx, channelID)
	if err != nil {
		return "", err
	}
	return link, d.ledger.SetInviteLink(ctx, channelID, &link)
}
