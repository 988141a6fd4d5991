package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Options tunes ledger policy. Zero values fall back to defaults.
type Options struct {
	Location         *time.Location
	CodeTTL          time.Duration
	DefaultGrantDays int
	Now              func() time.Time
}

// Ledger owns channels, users, subscriptions, verification codes and pending
// requests. Every exported mutation is one transaction.
type Ledger struct {
	db          *gorm.DB
	loc         *time.Location
	codeTTL     time.Duration
	defaultDays int
	now         func() time.Time
	log         zerolog.Logger
}

func NewLedger(conn *gorm.DB, logger zerolog.Logger, opts Options) *Ledger {
	l := &Ledger{
		db:          conn,
		loc:         opts.Location,
		codeTTL:     opts.CodeTTL,
		defaultDays: opts.DefaultGrantDays,
		now:         opts.Now,
		log:         logger.With().Str("component", "ledger").Logger(),
	}
	if l.loc == nil {
		l.loc = time.UTC
	}
	if l.codeTTL <= 0 {
		l.codeTTL = 10 * time.Minute
	}
	if l.defaultDays <= 0 {
		l.defaultDays = 30
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Today is the current calendar date in the ledger's zone, as UTC midnight.
func (l *Ledger) Today() time.Time {
	return CivilDate(l.now(), l.loc)
}

// DefaultGrantDays is the length of a grant created from a join request.
func (l *Ledger) DefaultGrantDays() int { return l.defaultDays }

// Location is the zone "today" is computed in.
func (l *Ledger) Location() *time.Location { return l.loc }

// CivilDate returns the calendar date of t in loc, expressed as UTC midnight.
// Expiry dates are stored in this form so they compare as plain dates.
func CivilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SubscriptionView is a subscription joined with its user and channel names.
type SubscriptionView struct {
	UserID      int64
	Username    string
	FullName    string
	ChannelID   int64
	ChannelName string
	ExpiryDate  time.Time
}

type subscriptionRow struct {
	UserID      int64
	Username    string
	FullName    string
	ChannelID   int64
	ChannelName string
	ExpiryDate  datatypes.Date
}

func (r subscriptionRow) view() SubscriptionView {
	return SubscriptionView{
		UserID:      r.UserID,
		Username:    r.Username,
		FullName:    r.FullName,
		ChannelID:   r.ChannelID,
		ChannelName: r.ChannelName,
		ExpiryDate:  CivilDate(time.Time(r.ExpiryDate), time.UTC),
	}
}

// views runs a joined subscription query narrowed by scope, ordered by channel then insertion.
func views(tx *gorm.DB, scope func(*gorm.DB) *gorm.DB) ([]SubscriptionView, error) {
	q := tx.Table("subscriptions s").
		Select(`s.user_id       AS user_id,
		        users.username  AS username,
		        users.full_name AS full_name,
		        s.channel_id    AS channel_id,
		        channels.name   AS channel_name,
		        s.expiry_date   AS expiry_date`).
		Joins("JOIN users ON users.id = s.user_id").
		Joins("JOIN channels ON channels.id = s.channel_id")

	var rows []subscriptionRow
	if err := scope(q).Order("s.channel_id, s.id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]SubscriptionView, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.view())
	}
	return out, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (l *Ledger) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return l.db.WithContext(ctx).Transaction(fn)
}
