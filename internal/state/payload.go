package state

import "time"

// Payload is the data a conversation carries between turns.
type Payload interface {
	Category() Category
}

// SubscriberRow is one line of a bulk-update snapshot. Index is 1-based.
// Removed is set once the row's user has been kicked in this conversation.
type SubscriberRow struct {
	Index      int
	UserID     int64
	FullName   string
	ExpiryDate time.Time
	Removed    bool
}

// BulkUpdatePayload is the snapshot an operator edits by index.
type BulkUpdatePayload struct {
	ChannelID   int64
	ChannelName string
	Rows        []SubscriberRow
}

func (BulkUpdatePayload) Category() Category { return CategoryBulkUpdate }

// Row returns the snapshot row at 1-based index i.
func (p BulkUpdatePayload) Row(i int) (SubscriberRow, bool) {
	if i < 1 || i > len(p.Rows) {
		return SubscriberRow{}, false
	}
	return p.Rows[i-1], true
}

// SingleUpdatePayload targets one subscription. When ReplacesDefault is set,
// relative durations count from the grant date instead of the current expiry.
type SingleUpdatePayload struct {
	UserID          int64
	ChannelID       int64
	ReplacesDefault bool
}

func (SingleUpdatePayload) Category() Category { return CategorySingleUpdate }

// DeleteLinksPayload selects the channel whose invite links are being revoked.
type DeleteLinksPayload struct {
	ChannelID   int64
	ChannelName string
}

func (DeleteLinksPayload) Category() Category { return CategoryDeleteLinks }
