// Package gatewaytest provides a recording Gateway for tests.
package gatewaytest

import (
	"context"
	"fmt"
	"sync"

	"github.com/lojf/subgate/internal/gateway"
)

// Call is one recorded gateway invocation.
type Call struct {
	Method   string
	ChatID   int64
	UserID   int64
	Text     string
	Keyboard gateway.Keyboard
	Link     string
}

// Fake records calls and returns injected errors.
type Fake struct {
	mu     sync.Mutex
	calls  []Call
	errs   map[string]error
	member map[int64]gateway.MemberStatus
	users  map[[2]int64]gateway.MemberStatus
	links  int
}

func New() *Fake {
	return &Fake{
		errs:   make(map[string]error),
		member: make(map[int64]gateway.MemberStatus),
		users:  make(map[[2]int64]gateway.MemberStatus),
	}
}

// FailOn makes method fail with err. Zero chatID or userID match any value.
func (f *Fake) FailOn(method string, chatID, userID int64, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[errKey(method, chatID, userID)] = err
}

// SetMember sets the status BotMember reports for chatID. Unset chats report an operational admin.
func (f *Fake) SetMember(chatID int64, m gateway.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.member[chatID] = m
}

// SetChatMember sets the status ChatMember reports for userID in chatID.
// Unset users are plain members.
func (f *Fake) SetChatMember(chatID, userID int64, m gateway.MemberStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[[2]int64{chatID, userID}] = m
}

// Calls returns a copy of the recorded calls, optionally filtered by method.
func (f *Fake) Calls(method string) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if method == "" || c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Messages returns the texts sent to chatID.
func (f *Fake) Messages(chatID int64) []string {
	var out []string
	for _, c := range f.Calls("SendMessage") {
		if c.ChatID == chatID {
			out = append(out, c.Text)
		}
	}
	return out
}

// Reset forgets recorded calls but keeps injected errors.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func errKey(method string, chatID, userID int64) string {
	return fmt.Sprintf("%s:%d:%d", method, chatID, userID)
}

func (f *Fake) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	for _, k := range []string{
		errKey(c.Method, c.ChatID, c.UserID),
		errKey(c.Method, c.ChatID, 0),
		errKey(c.Method, 0, c.UserID),
		errKey(c.Method, 0, 0),
	} {
		if err, ok := f.errs[k]; ok {
			return err
		}
	}
	return nil
}

func (f *Fake) SendMessage(_ context.Context, chatID int64, text string, kb gateway.Keyboard) error {
	return f.record(Call{Method: "SendMessage", ChatID: chatID, Text: text, Keyboard: kb})
}

func (f *Fake) SendPhoto(_ context.Context, chatID int64, _ []byte, caption string) error {
	return f.record(Call{Method: "SendPhoto", ChatID: chatID, Text: caption})
}

func (f *Fake) AnswerCallback(_ context.Context, _ string, text string) error {
	return f.record(Call{Method: "AnswerCallback", Text: text})
}

func (f *Fake) ApproveJoinRequest(_ context.Context, chatID, userID int64) error {
	return f.record(Call{Method: "ApproveJoinRequest", ChatID: chatID, UserID: userID})
}

func (f *Fake) BanMember(_ context.Context, chatID, userID int64) error {
	return f.record(Call{Method: "BanMember", ChatID: chatID, UserID: userID})
}

func (f *Fake) UnbanMember(_ context.Context, chatID, userID int64) error {
	return f.record(Call{Method: "UnbanMember", ChatID: chatID, UserID: userID})
}

func (f *Fake) CreateInviteLink(_ context.Context, chatID int64) (string, error) {
	f.mu.Lock()
	f.links++
	link := fmt.Sprintf("https://t.me/+link%d", f.links)
	f.mu.Unlock()
	if err := f.record(Call{Method: "CreateInviteLink", ChatID: chatID, Link: link}); err != nil {
		return "", err
	}
	return link, nil
}

func (f *Fake) RevokeInviteLink(_ context.Context, chatID int64, link string) error {
	return f.record(Call{Method: "RevokeInviteLink", ChatID: chatID, Link: link})
}

func (f *Fake) BotMember(_ context.Context, chatID int64) (gateway.MemberStatus, error) {
	if err := f.record(Call{Method: "BotMember", ChatID: chatID}); err != nil {
		return gateway.MemberStatus{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.member[chatID]; ok {
		return m, nil
	}
	return gateway.MemberStatus{Status: "administrator", CanRestrictMembers: true, CanInviteUsers: true}, nil
}

func (f *Fake) ChatMember(_ context.Context, chatID, userID int64) (gateway.MemberStatus, error) {
	if err := f.record(Call{Method: "ChatMember", ChatID: chatID, UserID: userID}); err != nil {
		return gateway.MemberStatus{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.users[[2]int64{chatID, userID}]; ok {
		return m, nil
	}
	return gateway.MemberStatus{Status: "member"}, nil
}

var _ gateway.Gateway = (*Fake)(nil)
