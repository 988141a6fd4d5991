package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

var allowedUpdates = []string{"message", "channel_post", "callback_query", "chat_join_request"}

// Telegram implements Gateway over the Bot API. Every call is paced by a
// limiter and retried transparently while the platform reports flood waits.
type Telegram struct {
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	observe RetryObserver
	log     zerolog.Logger
}

func NewTelegram(token string, rps float64, logger zerolog.Logger, observe RetryObserver) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram: connect: %w", err)
	}
	if rps <= 0 {
		rps = 25
	}
	t := &Telegram{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		observe: observe,
		log:     logger.With().Str("component", "gateway").Logger(),
	}
	t.log.Info().Str("bot", api.Self.UserName).Int64("bot_id", api.Self.ID).Msg("authorized")
	return t, nil
}

// Self returns the bot's own id and username.
func (t *Telegram) Self() (int64, string) {
	return t.api.Self.ID, t.api.Self.UserName
}

// Updates starts long polling. The channel closes after ctx is cancelled.
func (t *Telegram) Updates(ctx context.Context) tgbotapi.UpdatesChannel {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates
	ch := t.api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		t.api.StopReceivingUpdates()
	}()
	return ch
}

// SetWebhook registers link as the update endpoint. An empty link removes
// the webhook so long polling can be used.
func (t *Telegram) SetWebhook(ctx context.Context, link string) error {
	if link == "" {
		return t.do(ctx, "deleteWebhook", func() error {
			_, err := t.api.Request(tgbotapi.DeleteWebhookConfig{})
			return err
		})
	}
	wh, err := tgbotapi.NewWebhook(link)
	if err != nil {
		return fmt.Errorf("telegram: webhook url: %w", err)
	}
	wh.AllowedUpdates = allowedUpdates
	return t.do(ctx, "setWebhook", func() error {
		_, err := t.api.Request(wh)
		return err
	})
}

func (t *Telegram) do(ctx context.Context, method string, fn func() error) error {
	return withFloodWait(ctx, method, t.observe, func(ctx context.Context) error {
		if err := t.limiter.Wait(ctx); err != nil {
			return err
		}
		err := classify(fn())
		var rl *RateLimitedError
		if errors.As(err, &rl) {
			t.log.Warn().Str("method", method).Dur("retry_after", rl.RetryAfter).Msg("flood wait")
		}
		return err
	})
}

func (t *Telegram) SendMessage(ctx context.Context, chatID int64, text string, kb Keyboard) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if len(kb) > 0 {
		msg.ReplyMarkup = inlineKeyboard(kb)
	}
	return t.do(ctx, "sendMessage", func() error {
		_, err := t.api.Send(msg)
		return err
	})
}

func (t *Telegram) SendPhoto(ctx context.Context, chatID int64, png []byte, caption string) error {
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileBytes{Name: "invite.png", Bytes: png})
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeHTML
	return t.do(ctx, "sendPhoto", func() error {
		_, err := t.api.Send(photo)
		return err
	})
}

func (t *Telegram) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return t.do(ctx, "answerCallbackQuery", func() error {
		_, err := t.api.Request(tgbotapi.NewCallback(callbackID, text))
		return err
	})
}

func (t *Telegram) ApproveJoinRequest(ctx context.Context, chatID, userID int64) error {
	cfg := tgbotapi.ApproveChatJoinRequestConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		UserID:     userID,
	}
	return t.do(ctx, "approveChatJoinRequest", func() error {
		_, err := t.api.Request(cfg)
		return err
	})
}

func (t *Telegram) BanMember(ctx context.Context, chatID, userID int64) error {
	cfg := tgbotapi.BanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
	}
	return t.do(ctx, "banChatMember", func() error {
		_, err := t.api.Request(cfg)
		return err
	})
}

func (t *Telegram) UnbanMember(ctx context.Context, chatID, userID int64) error {
	cfg := tgbotapi.UnbanChatMemberConfig{
		ChatMemberConfig: tgbotapi.ChatMemberConfig{ChatID: chatID, UserID: userID},
		OnlyIfBanned:     true,
	}
	return t.do(ctx, "unbanChatMember", func() error {
		_, err := t.api.Request(cfg)
		return err
	})
}

// CreateInviteLink creates a link that files join requests instead of admitting directly.
func (t *Telegram) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	cfg := tgbotapi.CreateChatInviteLinkConfig{
		ChatConfig:         tgbotapi.ChatConfig{ChatID: chatID},
		CreatesJoinRequest: true,
	}
	var link tgbotapi.ChatInviteLink
	err := t.do(ctx, "createChatInviteLink", func() error {
		resp, err := t.api.Request(cfg)
		if err != nil {
			return err
		}
		return json.Unmarshal(resp.Result, &link)
	})
	if err != nil {
		return "", err
	}
	return link.InviteLink, nil
}

func (t *Telegram) RevokeInviteLink(ctx context.Context, chatID int64, link string) error {
	cfg := tgbotapi.RevokeChatInviteLinkConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: chatID},
		InviteLink: link,
	}
	return t.do(ctx, "revokeChatInviteLink", func() error {
		_, err := t.api.Request(cfg)
		return err
	})
}

func (t *Telegram) BotMember(ctx context.Context, chatID int64) (MemberStatus, error) {
	return t.ChatMember(ctx, chatID, t.api.Self.ID)
}

func (t *Telegram) ChatMember(ctx context.Context, chatID, userID int64) (MemberStatus, error) {
	cfg := tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chatID, UserID: userID},
	}
	var m tgbotapi.ChatMember
	err := t.do(ctx, "getChatMember", func() error {
		var err error
		m, err = t.api.GetChatMember(cfg)
		return err
	})
	if err != nil {
		return MemberStatus{}, err
	}
	return MemberStatus{
		Status:             m.Status,
		CanRestrictMembers: m.CanRestrictMembers,
		CanInviteUsers:     m.CanInviteUsers,
	}, nil
}

func inlineKeyboard(kb Keyboard) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]tgbotapi.InlineKeyboardButton, 0, len(r))
		for _, b := range r {
			if b.URL != "" {
				row = append(row, tgbotapi.NewInlineKeyboardButtonURL(b.Text, b.URL))
				continue
			}
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, row)
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

var (
	adminRightsMarkers = []string{
		"not enough rights", "chat_admin_required", "need administrator rights",
		"have no rights", "bot is not a member", "bot was kicked", "not an administrator",
	}
	unreachableMarkers = []string{
		"chat not found", "peer_id_invalid", "user not found", "participant_id_invalid",
	}
)

// classify maps Bot API failures onto the gateway error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("telegram transport: %w", err)
	}
	if apiErr.Code == http.StatusTooManyRequests || apiErr.RetryAfter > 0 {
		return &RateLimitedError{RetryAfter: time.Duration(max(apiErr.RetryAfter, 1)) * time.Second}
	}
	msg := strings.ToLower(apiErr.Message)
	for _, m := range adminRightsMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", ErrMissingAdminRights, apiErr.Message)
		}
	}
	for _, m := range unreachableMarkers {
		if strings.Contains(msg, m) {
			return fmt.Errorf("%w: %s", ErrPeerUnreachable, apiErr.Message)
		}
	}
	return fmt.Errorf("telegram: %w", err)
}
