package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/metrics"
	"github.com/lojf/subgate/internal/models"
	"github.com/lojf/subgate/internal/render"
	"github.com/lojf/subgate/internal/services"
)

// ErrSweepInProgress is returned when a sweep is triggered while another runs.
var ErrSweepInProgress = errors.New("sweep already in progress")

// Trigger records what started a sweep.
type Trigger string

const (
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// ChannelReport is what one sweep did in one channel.
type ChannelReport struct {
	ChannelID   int64
	ChannelName string
	Removed     []services.SubscriptionView
	Errors      []string
}

// SweepResult summarises one sweep.
type SweepResult struct {
	RunID          string
	Statuses       []ChannelStatus
	SoonToExpire   []services.SubscriptionView
	Reports        []ChannelReport
	UsersCollected int64
}

// Removed counts revoked subscriptions across channels.
func (r *SweepResult) Removed() int {
	n := 0
	for _, c := range r.Reports {
		n += len(c.Removed)
	}
	return n
}

// Sweeper warns about soon-to-expire subscriptions and revokes expired ones.
// Only one sweep runs at a time.
type Sweeper struct {
	ledger     *services.Ledger
	gw         gateway.Gateway
	status     *StatusChecker
	recipients Recipients
	metrics    *metrics.Metrics
	windowDays int
	log        zerolog.Logger

	running atomic.Bool
}

func NewSweeper(ledger *services.Ledger, gw gateway.Gateway, status *StatusChecker, recipients Recipients,
	m *metrics.Metrics, windowDays int, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		ledger:     ledger,
		gw:         gw,
		status:     status,
		recipients: recipients,
		metrics:    m,
		windowDays: windowDays,
		log:        logger.With().Str("component", "sweep").Logger(),
	}
}

// Run performs one sweep. A non-zero adminID limits it to channels that admin manages.
func (s *Sweeper) Run(ctx context.Context, trigger Trigger, adminID int64) (*SweepResult, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordSweep(string(trigger), "busy", 0)
		return nil, ErrSweepInProgress
	}
	defer s.running.Store(false)

	start := time.Now()
	res := &SweepResult{RunID: uuid.NewString()}
	log := s.log.With().Str("run_id", res.RunID).Str("trigger", string(trigger)).Int64("admin_id", adminID).Logger()
	log.Info().Msg("sweep started")

	err := s.run(ctx, res, adminID, log)
	result := "ok"
	if err != nil {
		result = "error"
		log.Error().Err(err).Msg("sweep aborted")
	}
	s.metrics.RecordSweep(string(trigger), result, time.Since(start))
	log.Info().
		Int("soon_to_expire", len(res.SoonToExpire)).
		Int("removed", res.Removed()).
		Int64("users_collected", res.UsersCollected).
		Dur("took", time.Since(start)).
		Msg("sweep finished")
	return res, err
}

func (s *Sweeper) run(ctx context.Context, res *SweepResult, adminID int64, log zerolog.Logger) error {
	channels, err := s.channels(ctx, adminID)
	if err != nil {
		return fmt.Errorf("listing channels: %w", err)
	}
	inScope := make(map[int64]bool, len(channels))
	for _, ch := range channels {
		inScope[ch.ID] = true
	}

	res.Statuses = s.status.Check(ctx, channels)
	s.warnInoperable(ctx, res.Statuses, log)

	soon, err := s.ledger.SoonToExpire(ctx, s.windowDays)
	if err != nil {
		return fmt.Errorf("selecting soon-to-expire: %w", err)
	}
	res.SoonToExpire = filter(soon, inScope)
	for _, group := range groupByChannel(res.SoonToExpire) {
		s.tell(ctx, group[0].ChannelID, formatSoonNotice(group), log)
	}

	expired, err := s.ledger.Expired(ctx)
	if err != nil {
		return fmt.Errorf("selecting expired: %w", err)
	}
	for _, group := range groupByChannel(filter(expired, inScope)) {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep := s.revokeChannel(ctx, group, log)
		res.Reports = append(res.Reports, rep)
		s.tell(ctx, rep.ChannelID, formatRemovalReport(rep), log)
	}

	res.UsersCollected, err = s.ledger.RemoveOrphanUsers(ctx)
	if err != nil {
		return fmt.Errorf("collecting orphan users: %w", err)
	}
	return nil
}

func (s *Sweeper) channels(ctx context.Context, adminID int64) ([]models.Channel, error) {
	if adminID == 0 {
		return s.ledger.Channels(ctx)
	}
	return s.ledger.ChannelsForAdmin(ctx, adminID)
}

// warnInoperable sends each affected admin the status of their broken channels.
func (s *Sweeper) warnInoperable(ctx context.Context, statuses []ChannelStatus, log zerolog.Logger) {
	perAdmin := make(map[int64][]ChannelStatus)
	var order []int64
	for _, st := range statuses {
		if st.State == StateOperational {
			continue
		}
		ids, err := s.recipients.For(ctx, st.Channel.ID)
		if err != nil {
			log.Error().Err(err).Int64("channel_id", st.Channel.ID).Msg("resolving admins")
			continue
		}
		for _, id := range ids {
			if _, seen := perAdmin[id]; !seen {
				order = append(order, id)
			}
			perAdmin[id] = append(perAdmin[id], st)
		}
	}
	for _, id := range order {
		if err := gateway.SendLong(ctx, s.gw, id, FormatStatusReport(perAdmin[id]), nil); err != nil {
			log.Warn().Err(err).Int64("admin_id", id).Msg("status warning not delivered")
		}
	}
}

// revokeChannel removes every expired member of one channel. A row is deleted
// only after the platform confirmed the removal.
func (s *Sweeper) revokeChannel(ctx context.Context, group []services.SubscriptionView, log zerolog.Logger) ChannelReport {
	rep := ChannelReport{ChannelID: group[0].ChannelID, ChannelName: group[0].ChannelName}
	for _, sub := range group {
		if err := Revoke(ctx, s.gw, sub.ChannelID, sub.UserID); err != nil {
			s.metrics.RecordRevocation("gateway_error")
			log.Warn().Err(err).Int64("user_id", sub.UserID).Int64("channel_id", sub.ChannelID).Msg("revocation failed")
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %s",
				render.UserMention(sub.UserID, sub.FullName), gateway.Describe(err)))
			continue
		}
		if _, err := s.ledger.RemoveSubscription(ctx, sub.UserID, sub.ChannelID); err != nil {
			s.metrics.RecordRevocation("ledger_error")
			log.Error().Err(err).Int64("user_id", sub.UserID).Msg("removed on platform but ledger row kept")
			rep.Errors = append(rep.Errors, fmt.Sprintf("%s: removed from channel but not from the ledger: %s",
				render.UserMention(sub.UserID, sub.FullName), err))
			continue
		}
		s.metrics.RecordRevocation("ok")
		rep.Removed = append(rep.Removed, sub)
	}
	return rep
}

func (s *Sweeper) tell(ctx context.Context, channelID int64, text string, log zerolog.Logger) {
	ids, err := s.recipients.For(ctx, channelID)
	if err != nil {
		log.Error().Err(err).Int64("channel_id", channelID).Msg("resolving admins")
		return
	}
	for _, id := range ids {
		if err := gateway.SendLong(ctx, s.gw, id, text, nil); err != nil {
			log.Warn().Err(err).Int64("admin_id", id).Msg("report not delivered")
		}
	}
}

// Revoke removes a member without leaving a permanent ban: ban, then unban.
func Revoke(ctx context.Context, gw gateway.Gateway, channelID, userID int64) error {
	if err := gw.BanMember(ctx, channelID, userID); err != nil {
		return err
	}
	if err := gw.UnbanMember(ctx, channelID, userID); err != nil {
		return fmt.Errorf("banned but not unbanned, unban manually: %w", err)
	}
	return nil
}

func filter(vs []services.SubscriptionView, inScope map[int64]bool) []services.SubscriptionView {
	out := vs[:0:0]
	for _, v := range vs {
		if inScope[v.ChannelID] {
			out = append(out, v)
		}
	}
	return out
}

// groupByChannel splits views into runs of the same channel. Input is ordered by channel.
func groupByChannel(vs []services.SubscriptionView) [][]services.SubscriptionView {
	var out [][]services.SubscriptionView
	for i := 0; i < len(vs); {
		j := i
		for j < len(vs) && vs[j].ChannelID == vs[i].ChannelID {
			j++
		}
		out = append(out, vs[i:j])
		i = j
	}
	return out
}

func formatSoonNotice(group []services.SubscriptionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "⏰ Subscriptions expiring soon in %s:\n\n",
		render.ChannelMention(group[0].ChannelID, group[0].ChannelName))
	for _, v := range group {
		fmt.Fprintf(&b, "• %s until %s\n", render.UserMention(v.UserID, v.FullName), render.Date(v.ExpiryDate))
	}
	return b.String()
}

func formatRemovalReport(rep ChannelReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Sweep report for %s\n", render.ChannelMention(rep.ChannelID, rep.ChannelName))
	if len(rep.Removed) > 0 {
		b.WriteString("\nUsers that have been removed due to expired subscriptions:\n")
		for _, v := range rep.Removed {
			fmt.Fprintf(&b, "• %s (expired %s)\n", render.UserMention(v.UserID, v.FullName), render.Date(v.ExpiryDate))
		}
	}
	if len(rep.Errors) > 0 {
		b.WriteString("\nErrors occurred while removing users:\n")
		for _, e := range rep.Errors {
			fmt.Fprintf(&b, "• %s\n", e)
		}
	}
	return b.String()
}
