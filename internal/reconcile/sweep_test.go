package reconcile

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/gateway/gatewaytest"
	"github.com/lojf/subgate/internal/metrics"
	"github.com/lojf/subgate/internal/services"
)

func newTestSweeper(l *services.Ledger, gw gateway.Gateway, fallback ...int64) *Sweeper {
	return NewSweeper(l, gw, NewStatusChecker(gw, zerolog.Nop()),
		Recipients{Ledger: l, Fallback: fallback}, metrics.New(), 3, zerolog.Nop())
}

func TestSweep_RemovesExpiredAndIsIdempotent(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news", 7)
	seedSub(t, gdb, 1, -100, "Old", day(-3))
	seedSub(t, gdb, 2, -100, "Today", day(0))
	seedSub(t, gdb, 3, -100, "Soon", day(2))
	seedSub(t, gdb, 4, -100, "Later", day(20))
	gw := gatewaytest.New()
	s := newTestSweeper(l, gw)
	ctx := context.Background()

	res, err := s.Run(ctx, TriggerSchedule, 0)
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Reports, 1)
	assert.Equal(t, []int64{1, 2}, []int64{res.Reports[0].Removed[0].UserID, res.Reports[0].Removed[1].UserID})
	assert.Empty(t, res.Reports[0].Errors)
	require.Len(t, res.SoonToExpire, 1)
	assert.Equal(t, int64(3), res.SoonToExpire[0].UserID)
	assert.Zero(t, res.UsersCollected, "removals collect their own orphans")

	assert.Len(t, gw.Calls("BanMember"), 2)
	assert.Len(t, gw.Calls("UnbanMember"), 2)

	msgs := gw.Messages(7)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0], "expiring soon")
	assert.Contains(t, msgs[1], "Users that have been removed due to expired subscriptions")

	for _, id := range []int64{1, 2} {
		_, err := l.Subscription(ctx, id, -100)
		assert.ErrorIs(t, err, services.ErrNotFound)
		_, err = l.User(ctx, id)
		assert.ErrorIs(t, err, services.ErrNotFound)
	}

	gw.Reset()
	res, err = s.Run(ctx, TriggerManual, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Reports)
	assert.Empty(t, gw.Calls("BanMember"))
}

func TestSweep_FailedRevocationKeepsRow(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news", 7)
	seedChannel(t, gdb, -200, "chat", 7)
	seedSub(t, gdb, 1, -100, "Ok", day(-1))
	seedSub(t, gdb, 2, -100, "Stuck", day(-1))
	seedSub(t, gdb, 3, -200, "Other", day(-1))
	gw := gatewaytest.New()
	gw.FailOn("BanMember", -100, 2, gateway.ErrMissingAdminRights)
	gw.FailOn("UnbanMember", -200, 0, gateway.ErrPeerUnreachable)
	s := newTestSweeper(l, gw)
	ctx := context.Background()

	res, err := s.Run(ctx, TriggerSchedule, 0)
	require.NoError(t, err)
	require.Len(t, res.Reports, 2)

	var news, chat ChannelReport
	for _, r := range res.Reports {
		if r.ChannelID == -100 {
			news = r
		} else {
			chat = r
		}
	}
	require.Len(t, news.Removed, 1)
	assert.Equal(t, int64(1), news.Removed[0].UserID)
	require.Len(t, news.Errors, 1)
	assert.Contains(t, news.Errors[0], "Bot should be admin")
	assert.Empty(t, chat.Removed)
	require.Len(t, chat.Errors, 1)
	assert.Contains(t, chat.Errors[0], "interaction")

	_, err = l.Subscription(ctx, 2, -100)
	assert.NoError(t, err)
	_, err = l.Subscription(ctx, 3, -200)
	assert.NoError(t, err)

	var report string
	for _, m := range gw.Messages(7) {
		if strings.Contains(m, "Errors occurred while removing users") && strings.Contains(m, "news") {
			report = m
		}
	}
	assert.NotEmpty(t, report)
}

func TestSweep_WarnsAdminsOfInoperableChannels(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news", 7)
	seedChannel(t, gdb, -200, "fine", 8)
	gw := gatewaytest.New()
	gw.SetMember(-100, gateway.MemberStatus{Status: "member"})
	s := newTestSweeper(l, gw)

	res, err := s.Run(context.Background(), TriggerSchedule, 0)
	require.NoError(t, err)
	assert.False(t, AllOperational(res.Statuses))

	msgs := gw.Messages(7)
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Admin Rights Needed")
	assert.Contains(t, msgs[0], "Attention required")
	assert.Empty(t, gw.Messages(8))
}

func TestSweep_ManualScopeAndFallbackRecipients(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "mine", 7)
	seedChannel(t, gdb, -200, "theirs", 8)
	seedChannel(t, gdb, -300, "unowned")
	seedSub(t, gdb, 1, -100, "A", day(-1))
	seedSub(t, gdb, 2, -200, "B", day(-1))
	seedSub(t, gdb, 3, -300, "C", day(-1))
	gw := gatewaytest.New()
	s := newTestSweeper(l, gw, 99)

	res, err := s.Run(context.Background(), TriggerManual, 7)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Removed())

	_, err = l.Subscription(context.Background(), 2, -200)
	assert.NoError(t, err, "channel of another admin is out of scope")

	assert.Len(t, gw.Messages(7), 1)
	assert.Len(t, gw.Messages(99), 1, "unowned channel reports go to configured operators")
}

// blockingGateway parks the sweep inside its first platform call.
type blockingGateway struct {
	*gatewaytest.Fake
	entered chan struct{}
	release chan struct{}
}

func (b *blockingGateway) BotMember(ctx context.Context, chatID int64) (gateway.MemberStatus, error) {
	close(b.entered)
	<-b.release
	return b.Fake.BotMember(ctx, chatID)
}

func TestSweep_RejectsOverlappingRun(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news", 7)
	gw := &blockingGateway{Fake: gatewaytest.New(), entered: make(chan struct{}), release: make(chan struct{})}
	s := newTestSweeper(l, gw)

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), TriggerSchedule, 0)
		done <- err
	}()

	select {
	case <-gw.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first sweep never reached the gateway")
	}

	_, err := s.Run(context.Background(), TriggerManual, 7)
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(gw.release)
	require.NoError(t, <-done)
	assert.False(t, s.running.Load(), "run-lock released after the sweep")
}

func TestNextMidnight(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2026, 10, 18, 20, 0, 0, 0, time.UTC) // 03:00 on the 19th locally
	assert.Equal(t, time.Date(2026, 10, 20, 0, 0, 0, 0, loc), NextMidnight(now, loc))

	atMidnight := time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC), NextMidnight(atMidnight, time.UTC))
}

func TestFormatStatusReport(t *testing.T) {
	out := FormatStatusReport(nil)
	assert.Contains(t, out, "No channels")
	assert.NotContains(t, out, "Attention")
}
