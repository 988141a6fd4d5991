package reconcile

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lojf/subgate/internal/gateway"
	"github.com/lojf/subgate/internal/gateway/gatewaytest"
	"github.com/lojf/subgate/internal/metrics"
	"github.com/lojf/subgate/internal/models"
	"github.com/lojf/subgate/internal/services"
)

func TestJoin_NoGrantIsIgnored(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news")
	gw := gatewaytest.New()
	j := NewJoin(l, gw, metrics.New(), zerolog.Nop())

	d, err := j.Handle(context.Background(), JoinRequest{ChannelID: -100, UserID: 42})
	require.NoError(t, err)
	assert.Equal(t, DecisionIgnored, d)
	assert.Empty(t, gw.Calls("ApproveJoinRequest"))

	var n int64
	gdb.Model(&models.Subscription{}).Count(&n)
	assert.Zero(t, n)
}

func TestJoin_PendingIsGranted(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news")
	require.NoError(t, gdb.Create(&models.User{ID: 42, FullName: "Ann"}).Error)
	require.NoError(t, gdb.Create(&models.PendingRequest{UserID: 42, ChannelID: -100, AdminID: 7}).Error)
	gw := gatewaytest.New()
	j := NewJoin(l, gw, metrics.New(), zerolog.Nop())

	d, err := j.Handle(context.Background(), JoinRequest{ChannelID: -100, UserID: 42})
	require.NoError(t, err)
	assert.Equal(t, DecisionGranted, d)

	require.Len(t, gw.Calls("ApproveJoinRequest"), 1)

	var subs []models.Subscription
	require.NoError(t, gdb.Find(&subs).Error)
	require.Len(t, subs, 1)

	sub, err := l.Subscription(context.Background(), 42, -100)
	require.NoError(t, err)
	assert.Equal(t, day(30), sub.ExpiryDate)

	_, err = l.PendingRequest(context.Background(), 42, -100)
	assert.ErrorIs(t, err, services.ErrNotFound)

	sent := gw.Calls("SendMessage")
	require.Len(t, sent, 2)
	assert.Equal(t, int64(42), sent[0].ChatID)
	assert.Equal(t, int64(7), sent[1].ChatID)
	require.NotEmpty(t, sent[1].Keyboard)
	assert.Equal(t, "editsub:42:-100", sent[1].Keyboard[0][0].Data)
}

func TestJoin_ActiveSubscriptionRejoins(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news")
	seedSub(t, gdb, 42, -100, "Ann", day(10))
	gw := gatewaytest.New()
	j := NewJoin(l, gw, metrics.New(), zerolog.Nop())

	d, err := j.Handle(context.Background(), JoinRequest{ChannelID: -100, UserID: 42})
	require.NoError(t, err)
	assert.Equal(t, DecisionRejoin, d)
	assert.Len(t, gw.Calls("ApproveJoinRequest"), 1)
	assert.Len(t, gw.Messages(42), 1)

	sub, err := l.Subscription(context.Background(), 42, -100)
	require.NoError(t, err)
	assert.Equal(t, day(10), sub.ExpiryDate)
}

func TestJoin_ApprovalFailureKeepsPending(t *testing.T) {
	l, gdb := openTestLedger(t)
	seedChannel(t, gdb, -100, "news")
	require.NoError(t, gdb.Create(&models.User{ID: 42, FullName: "Ann"}).Error)
	require.NoError(t, gdb.Create(&models.PendingRequest{UserID: 42, ChannelID: -100, AdminID: 7}).Error)
	gw := gatewaytest.New()
	gw.FailOn("ApproveJoinRequest", -100, 0, gateway.ErrMissingAdminRights)
	j := NewJoin(l, gw, metrics.New(), zerolog.Nop())

	_, err := j.Handle(context.Background(), JoinRequest{ChannelID: -100, UserID: 42})
	assert.ErrorIs(t, err, gateway.ErrMissingAdminRights)

	_, err = l.PendingRequest(context.Background(), 42, -100)
	assert.NoError(t, err)
	_, err = l.Subscription(context.Background(), 42, -100)
	assert.ErrorIs(t, err, services.ErrNotFound)
}
