package gateway

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithFloodWait_RetriesUntilSuccess(t *testing.T) {
	attempts := 0
	var waits []time.Duration
	err := withFloodWait(context.Background(), "sendMessage",
		func(_ string, d time.Duration) { waits = append(waits, d) },
		func(ctx context.Context) error {
			attempts++
			if attempts < 4 {
				return &RateLimitedError{RetryAfter: time.Millisecond}
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 4, attempts)
	assert.Equal(t, []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}, waits)
}

func TestWithFloodWait_DoesNotRetryOtherErrors(t *testing.T) {
	attempts := 0
	err := withFloodWait(context.Background(), "banChatMember", nil, func(ctx context.Context) error {
		attempts++
		return ErrMissingAdminRights
	})
	assert.ErrorIs(t, err, ErrMissingAdminRights)
	assert.Equal(t, 1, attempts)
}

func TestWithFloodWait_HonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := withFloodWait(ctx, "sendMessage", nil, func(ctx context.Context) error {
		return &RateLimitedError{RetryAfter: time.Hour}
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClassify(t *testing.T) {
	apiErr := func(code int, msg string, retry int) error {
		return &tgbotapi.Error{Code: code, Message: msg, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: retry}}
	}

	var rl *RateLimitedError
	require.True(t, errors.As(classify(apiErr(429, "Too Many Requests: retry after 7", 7)), &rl))
	assert.Equal(t, 7*time.Second, rl.RetryAfter)

	assert.ErrorIs(t, classify(apiErr(400, "Bad Request: not enough rights to restrict/unrestrict chat member", 0)), ErrMissingAdminRights)
	assert.ErrorIs(t, classify(apiErr(400, "Bad Request: CHAT_ADMIN_REQUIRED", 0)), ErrMissingAdminRights)
	assert.ErrorIs(t, classify(apiErr(403, "Forbidden: bot was kicked from the channel chat", 0)), ErrMissingAdminRights)
	assert.ErrorIs(t, classify(apiErr(400, "Bad Request: chat not found", 0)), ErrPeerUnreachable)
	assert.ErrorIs(t, classify(apiErr(400, "Bad Request: PEER_ID_INVALID", 0)), ErrPeerUnreachable)

	other := classify(apiErr(400, "Bad Request: message is too long", 0))
	assert.NotErrorIs(t, other, ErrMissingAdminRights)
	assert.NotErrorIs(t, other, ErrPeerUnreachable)

	assert.ErrorContains(t, classify(errors.New("dial tcp: timeout")), "transport")
	assert.NoError(t, classify(nil))
}

func TestMemberStatus_Operational(t *testing.T) {
	assert.True(t, MemberStatus{Status: "creator"}.Operational())
	assert.True(t, MemberStatus{Status: "administrator", CanRestrictMembers: true, CanInviteUsers: true}.Operational())
	assert.False(t, MemberStatus{Status: "administrator", CanInviteUsers: true}.Operational())
	assert.False(t, MemberStatus{Status: "member"}.Operational())
}

func TestMemberStatus_ChatAdmin(t *testing.T) {
	assert.True(t, MemberStatus{Status: "creator"}.ChatAdmin())
	assert.True(t, MemberStatus{Status: "administrator"}.ChatAdmin())
	assert.False(t, MemberStatus{Status: "member"}.ChatAdmin())
	assert.False(t, MemberStatus{Status: "left"}.ChatAdmin())
}

func TestSplitMessage(t *testing.T) {
	assert.Equal(t, []string{"short"}, SplitMessage("short", 10))

	parts := SplitMessage("aaaa\nbbbb\ncccc\n", 10)
	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, parts)

	long := strings.Repeat("x", 25)
	parts = SplitMessage("hi\n"+long, 10)
	assert.Equal(t, []string{"hi", "xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, parts)

	for _, p := range SplitMessage(strings.Repeat("line of text\n", 1000), MaxMessageLen) {
		assert.LessOrEqual(t, len([]rune(p)), MaxMessageLen)
	}
}

func TestDescribe(t *testing.T) {
	assert.Contains(t, Describe(ErrMissingAdminRights), "admin")
	assert.Contains(t, Describe(ErrPeerUnreachable), "interaction")
	assert.Equal(t, "boom", Describe(errors.New("boom")))
}

func TestInlineKeyboard_URLButtons(t *testing.T) {
	m := inlineKeyboard(Keyboard{{
		{Text: "Add to channel", URL: "https://t.me/bot?startchannel"},
		{Text: "Pick", Data: "show:-100"},
	}})
	require.Len(t, m.InlineKeyboard, 1)
	row := m.InlineKeyboard[0]
	require.Len(t, row, 2)
	require.NotNil(t, row[0].URL)
	assert.Equal(t, "https://t.me/bot?startchannel", *row[0].URL)
	assert.Nil(t, row[0].CallbackData)
	require.NotNil(t, row[1].CallbackData)
	assert.Equal(t, "show:-100", *row[1].CallbackData)
}
