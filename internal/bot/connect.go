package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
)

// isConnectCommand matches /connect and /start@<bot> posted in a channel or group.
func (d *Dispatcher) isConnectCommand(m *tgbotapi.Message) bool {
	if !m.IsCommand() {
		return false
	}
	_, at, addressed := strings.Cut(m.CommandWithAt(), "@")
	if addressed && d.username != "" && !strings.EqualFold(at, d.username) {
		return false
	}
	switch m.Command() {
	case "connect":
		return true
	case "start":
		return addressed
	}
	return false
}

// connector decides who may connect chat through m. Anonymous posts made
// as the chat itself are accepted without registering anyone. A named
// poster must be a configured admin or an admin of the chat, and is
// returned so they can be registered.
func (d *Dispatcher) connector(ctx context.Context, m *tgbotapi.Message) (adminID int64, ok bool, err error) {
	if m.SenderChat != nil {
		return 0, m.SenderChat.ID == m.Chat.ID, nil
	}
	if m.From == nil {
		return 0, m.Chat.IsChannel(), nil
	}
	if d.cfg.IsAdmin(m.From.ID) {
		return m.From.ID, true, nil
	}
	st, err := d.gw.ChatMember(ctx, m.Chat.ID, m.From.ID)
	if err != nil {
		return 0, false, err
	}
	if !st.ChatAdmin() {
		return 0, false, nil
	}
	return m.From.ID, true, nil
}

func (d *Dispatcher) onChatPost(ctx context.Context, m *tgbotapi.Message) {
	if !d.isConnectCommand(m) {
		return
	}
	if err := d.connect(ctx, m); err != nil {
		d.log.Warn().Err(err).Int64("chat_id", m.Chat.ID).Msg("connect failed")
		d.send(ctx, m.Chat.ID, "❌ Could not connect: "+explain(err), nil)
	}
}

// connect checks the bot's rights, replaces the invite link and records the
// chat. A named poster who is allowed to connect becomes the chat's admin.
func (d *Dispatcher) connect(ctx context.Context, m *tgbotapi.Message) error {
	chat := m.Chat
	adminID, ok, err := d.connector(ctx, m)
	if err != nil {
		return err
	}
	if !ok {
		d.log.Warn().Int64("chat_id", chat.ID).Msg("connect refused for non-admin poster")
		d.send(ctx, chat.ID, "⛔ Only admins of this chat can connect it.", nil)
		return nil
	}
	member, err := d.gw.BotMember(ctx, chat.ID)
	if err != nil {
		return err
	}
	if !member.Operational() {
		d.send(ctx, chat.ID, "⚠️ Make me an admin here with the rights to ban users and invite users via link, then send /connect again.", nil)
		return nil
	}

	if ch, err := d.ledger.Channel(ctx, chat.ID); err == nil && ch.InviteLink != nil {
		if err := d.gw.RevokeInviteLink(ctx, chat.ID, *ch.InviteLink); err != nil {
			d.log.Warn().Err(err).Int64("chat_id", chat.ID).Msg("old invite link not revoked")
		}
	}
	link, err := d.gw.CreateInviteLink(ctx, chat.ID)
	if err != nil {
		return err
	}

	ch, err := d.ledger.ConnectChannel(ctx, services.ChannelInfo{
		ID:        chat.ID,
		Name:      chat.Title,
		IsChannel: chat.IsChannel(),
	}, link, adminID)
	if err != nil {
		return err
	}

	d.send(ctx, chat.ID, fmt.Sprintf("✅ %s is connected. Admins can now hand out access codes with /adduser in a private chat with me.",
		render.Bold(ch.Name)), nil)
	if adminID != 0 {
		d.send(ctx, adminID, fmt.Sprintf("You are now an admin of %s. Send /help to see what you can do.",
			render.ChannelMention(ch.ID, ch.Name)), nil)
	}
	return nil
}
