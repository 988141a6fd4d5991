package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/subgate/internal/models"
)

// Subscription returns the subscription of userID in channelID.
func (l *Ledger) Subscription(ctx context.Context, userID, channelID int64) (*SubscriptionView, error) {
	vs, err := views(l.db.WithContext(ctx), func(q *gorm.DB) *gorm.DB {
		return q.Where("s.user_id = ? AND s.channel_id = ?", userID, channelID)
	})
	if err != nil {
		return nil, err
	}
	if len(vs) == 0 {
		return nil, ErrNotFound
	}
	return &vs[0], nil
}

// ChannelSubscriptions lists a channel's subscribers in insertion order.
func (l *Ledger) ChannelSubscriptions(ctx context.Context, channelID int64) ([]SubscriptionView, error) {
	return views(l.db.WithContext(ctx), func(q *gorm.DB) *gorm.DB {
		return q.Where("s.channel_id = ?", channelID)
	})
}

// SoonToExpire lists subscriptions expiring in (today, today+windowDays].
func (l *Ledger) SoonToExpire(ctx context.Context, windowDays int) ([]SubscriptionView, error) {
	today := l.Today()
	return views(l.db.WithContext(ctx), func(q *gorm.DB) *gorm.DB {
		return q.Where("s.expiry_date > ? AND s.expiry_date <= ?",
			datatypes.Date(today), datatypes.Date(today.AddDate(0, 0, windowDays)))
	})
}

// Expired lists subscriptions whose expiry date is today or earlier.
func (l *Ledger) Expired(ctx context.Context) ([]SubscriptionView, error) {
	today := l.Today()
	return views(l.db.WithContext(ctx), func(q *gorm.DB) *gorm.DB {
		return q.Where("s.expiry_date <= ?", datatypes.Date(today))
	})
}

// ApplyDuration moves the expiry of (userID, channelID) by d. Relative durations
// count from the current expiry; a missing subscription is created from today.
func (l *Ledger) ApplyDuration(ctx context.Context, userID, channelID int64, d Duration) (*SubscriptionView, error) {
	return l.applyDuration(ctx, userID, channelID, d, false)
}

// ApplyDurationFromGrant is ApplyDuration with relative durations counted from
// the day the subscription was granted, replacing the default grant length.
func (l *Ledger) ApplyDurationFromGrant(ctx context.Context, userID, channelID int64, d Duration) (*SubscriptionView, error) {
	return l.applyDuration(ctx, userID, channelID, d, true)
}

func (l *Ledger) applyDuration(ctx context.Context, userID, channelID int64, d Duration, fromGrant bool) (*SubscriptionView, error) {
	if d.Kind == DurationKick {
		return nil, fmt.Errorf("%w: kick is not an expiry change", ErrInvalidDuration)
	}

	var view *SubscriptionView
	err := l.tx(ctx, func(tx *gorm.DB) error {
		var sub models.Subscription
		err := tx.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&sub).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			sub = models.Subscription{
				UserID:     userID,
				ChannelID:  channelID,
				CreatedAt:  l.now(),
				ExpiryDate: datatypes.Date(d.Apply(l.Today())),
			}
			if err := tx.Create(&sub).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			base := CivilDate(time.Time(sub.ExpiryDate), time.UTC)
			if fromGrant {
				base = CivilDate(sub.CreatedAt, l.loc)
			}
			if err := tx.Model(&sub).Update("expiry_date", datatypes.Date(d.Apply(base))).Error; err != nil {
				return err
			}
		}

		vs, err := views(tx, func(q *gorm.DB) *gorm.DB {
			return q.Where("s.id = ?", sub.ID)
		})
		if err != nil {
			return err
		}
		if len(vs) == 0 {
			return ErrNotFound
		}
		view = &vs[0]
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply %s to user %d in channel %d: %w", d, userID, channelID, err)
	}
	l.log.Info().
		Int64("user_id", userID).
		Int64("channel_id", channelID).
		Str("duration", d.String()).
		Time("expiry", view.ExpiryDate).
		Msg("subscription updated")
	return view, nil
}

// RemoveSubscription deletes (userID, channelID) and collects orphaned users.
// It reports whether a subscription existed.
func (l *Ledger) RemoveSubscription(ctx context.Context, userID, channelID int64) (bool, error) {
	var removed bool
	err := l.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("user_id = ? AND channel_id = ?", userID, channelID).Delete(&models.Subscription{})
		if res.Error != nil {
			return res.Error
		}
		removed = res.RowsAffected > 0
		_, err := removeOrphanUsers(tx)
		return err
	})
	if err != nil {
		return false, fmt.Errorf("remove user %d from channel %d: %w", userID, channelID, err)
	}
	return removed, nil
}
