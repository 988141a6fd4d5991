// Package reconcile brings platform membership in line with the ledger:
// join requests are admitted against grants, and expired grants are revoked.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/metrics"
	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
)

// Decision is what the join reconciler did with a request.
type Decision string

const (
	DecisionRejoin  Decision = "rejoin"
	DecisionGranted Decision = "granted"
	DecisionIgnored Decision = "ignored"
)

// JoinRequest is a user asking to enter a channel.
type JoinRequest struct {
	ChannelID int64
	UserID    int64
}

// Callback data prefixes attached to the admin's grant notice.
const (
	ActionEditGrant = "editsub"
	ActionKickGrant = "kicksub"
	ActionKeepGrant = "keepsub"
)

// GrantAction encodes callback data for an action on (userID, channelID).
func GrantAction(action string, userID, channelID int64) string {
	return fmt.Sprintf("%s:%d:%d", action, userID, channelID)
}

// Join admits users that hold a subscription or a pending request. It never
// approves anyone else.
type Join struct {
	ledger  *services.Ledger
	gw      gateway.Gateway
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewJoin(ledger *services.Ledger, gw gateway.Gateway, m *metrics.Metrics, logger zerolog.Logger) *Join {
	return &Join{
		ledger:  ledger,
		gw:      gw,
		metrics: m,
		log:     logger.With().Str("component", "join").Logger(),
	}
}

func (j *Join) Handle(ctx context.Context, req JoinRequest) (Decision, error) {
	log := j.log.With().Int64("user_id", req.UserID).Int64("channel_id", req.ChannelID).Logger()

	sub, err := j.ledger.Subscription(ctx, req.UserID, req.ChannelID)
	switch {
	case err == nil:
		if err := j.gw.ApproveJoinRequest(ctx, req.ChannelID, req.UserID); err != nil {
			return "", fmt.Errorf("approve rejoin: %w", err)
		}
		j.notify(ctx, req.UserID, fmt.Sprintf(
			"Welcome back to %s. Your subscription is active until %s.\nPlease don't leave us, your access is tied to this membership.",
			render.Bold(sub.ChannelName), render.Date(sub.ExpiryDate)), nil)
		j.metrics.RecordJoinDecision(string(DecisionRejoin))
		log.Info().Msg("rejoin approved")
		return DecisionRejoin, nil
	case !errors.Is(err, services.ErrNotFound):
		return "", err
	}

	if _, err := j.ledger.PendingRequest(ctx, req.UserID, req.ChannelID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			j.metrics.RecordJoinDecision(string(DecisionIgnored))
			log.Info().Msg("join request without grant left alone")
			return DecisionIgnored, nil
		}
		return "", err
	}

	if err := j.gw.ApproveJoinRequest(ctx, req.ChannelID, req.UserID); err != nil {
		return "", fmt.Errorf("approve pending: %w", err)
	}
	grant, err := j.ledger.GrantPending(ctx, req.UserID, req.ChannelID)
	if err != nil {
		log.Error().Err(err).Msg("user approved but grant not recorded")
		return "", err
	}
	j.metrics.RecordJoinDecision(string(DecisionGranted))

	s := grant.Subscription
	j.notify(ctx, req.UserID, fmt.Sprintf(
		"You have joined %s. Your subscription is valid until %s.",
		render.Bold(s.ChannelName), render.Date(s.ExpiryDate)), nil)
	j.notify(ctx, grant.AdminID, fmt.Sprintf(
		"%s joined %s with a %d-day subscription until %s.",
		render.UserMention(s.UserID, s.FullName), render.ChannelMention(s.ChannelID, s.ChannelName),
		j.ledger.DefaultGrantDays(), render.Date(s.ExpiryDate)),
		gateway.Keyboard{{
			{Text: "Edit duration", Data: GrantAction(ActionEditGrant, s.UserID, s.ChannelID)},
			{Text: "Remove user", Data: GrantAction(ActionKickGrant, s.UserID, s.ChannelID)},
		}, {
			{Text: "Keep as is", Data: GrantAction(ActionKeepGrant, s.UserID, s.ChannelID)},
		}})
	log.Info().Time("expiry", s.ExpiryDate).Msg("pending request granted")
	return DecisionGranted, nil
}

func (j *Join) notify(ctx context.Context, chatID int64, text string, kb gateway.Keyboard) {
	if err := j.gw.SendMessage(ctx, chatID, text, kb); err != nil {
		j.log.Warn().Err(err).Int64("chat_id", chatID).Msg("notification not delivered")
	}
}
