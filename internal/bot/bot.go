// Package bot turns Telegram updates into ledger operations and replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/lojf/subgate/internal/config"
	"github.com/lojf/subgate/internal/flows"
	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/metrics"
	"github.com/lojf/subgate/internal/reconcile"
	"github.com/lojf/subgate/internal/services"
)

// Deps are the collaborators a Dispatcher routes to.
type Deps struct {
	Config   *config.Config
	Ledger   *services.Ledger
	Gateway  gateway.Gateway
	Flows    *flows.Controller
	Join     *reconcile.Join
	Sweeper  *reconcile.Sweeper
	Status   *reconcile.StatusChecker
	Metrics  *metrics.Metrics
	Username string // bot username, without @
}

type Dispatcher struct {
	cfg      *config.Config
	ledger   *services.Ledger
	gw       gateway.Gateway
	flows    *flows.Controller
	join     *reconcile.Join
	sweeper  *reconcile.Sweeper
	status   *reconcile.StatusChecker
	metrics  *metrics.Metrics
	username string
	log      zerolog.Logger
}

func NewDispatcher(d Deps, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      d.Config,
		ledger:   d.Ledger,
		gw:       d.Gateway,
		flows:    d.Flows,
		join:     d.Join,
		sweeper:  d.Sweeper,
		status:   d.Status,
		metrics:  d.Metrics,
		username: d.Username,
		log:      logger.With().Str("component", "bot").Logger(),
	}
}

// Run handles updates one at a time until ctx is done or updates is closed.
func (d *Dispatcher) Run(ctx context.Context, updates <-chan tgbotapi.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-updates:
			if !ok {
				return
			}
			d.Handle(ctx, upd)
		}
	}
}

// Handle processes a single update. Failures are logged and, where a chat is
// known, reported back to it; they never escape.
func (d *Dispatcher) Handle(ctx context.Context, upd tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Int("update_id", upd.UpdateID).Msg("update handler panicked")
		}
	}()

	switch {
	case upd.ChatJoinRequest != nil:
		d.onJoinRequest(ctx, upd.ChatJoinRequest)
	case upd.CallbackQuery != nil:
		d.onCallback(ctx, upd.CallbackQuery)
	case upd.ChannelPost != nil:
		d.onChatPost(ctx, upd.ChannelPost)
	case upd.Message != nil && upd.Message.Chat != nil:
		if upd.Message.Chat.IsPrivate() {
			d.onPrivate(ctx, upd.Message)
		} else {
			d.onChatPost(ctx, upd.Message)
		}
	}
}

func (d *Dispatcher) onJoinRequest(ctx context.Context, r *tgbotapi.ChatJoinRequest) {
	req := reconcile.JoinRequest{ChannelID: r.Chat.ID, UserID: r.From.ID}
	if _, err := d.join.Handle(ctx, req); err != nil {
		d.log.Error().Err(err).Int64("user_id", req.UserID).Int64("channel_id", req.ChannelID).Msg("join request")
	}
}

// isOperator reports whether id may use operator commands: configured admins
// and anyone registered as a channel admin.
func (d *Dispatcher) isOperator(ctx context.Context, id int64) bool {
	if d.cfg.IsAdmin(id) {
		return true
	}
	ok, err := d.ledger.IsChannelAdmin(ctx, id)
	if err != nil {
		d.log.Error().Err(err).Int64("user_id", id).Msg("operator lookup")
	}
	return ok
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string, kb gateway.Keyboard) {
	if err := gateway.SendLong(ctx, d.gw, chatID, text, kb); err != nil {
		d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("reply not delivered")
	}
}

// fail reports err to chatID in operator terms.
func (d *Dispatcher) fail(ctx context.Context, chatID int64, err error) {
	if err == nil {
		return
	}
	d.log.Warn().Err(err).Int64("chat_id", chatID).Msg("command failed")
	d.send(ctx, chatID, "❌ "+explain(err), nil)
}

func explain(err error) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "You are not an admin of this channel."
	case errors.Is(err, services.ErrNotFound):
		return "Not found. It may have been removed already."
	case errors.Is(err, services.ErrInvalidOrExpiredCode):
		return "This code is invalid or has expired. Ask your admin for a new one."
	case errors.Is(err, services.ErrCodeSpaceExhausted):
		return "Could not issue a unique code right now, try again in a moment."
	case errors.Is(err, reconcile.ErrSweepInProgress):
		return "A cleanup is already running, try again when it has finished."
	case errors.Is(err, gateway.ErrMissingAdminRights), errors.Is(err, gateway.ErrPeerUnreachable):
		return gateway.Describe(err)
	default:
		return fmt.Sprintf("Something went wrong: %s", gateway.Describe(err))
	}
}
