package services

import (
	"context"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/subgate/internal/models"
)

// PendingRequest returns the pending request of userID for channelID.
func (l *Ledger) PendingRequest(ctx context.Context, userID, channelID int64) (*models.PendingRequest, error) {
	var pr models.PendingRequest
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND channel_id = ?", userID, channelID).
		First(&pr).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &pr, nil
}

// Grant is a subscription created from a pending request.
type Grant struct {
	Subscription SubscriptionView
	AdminID      int64
}

// GrantPending turns the pending request of (userID, channelID) into a
// subscription of the default length and deletes the request.
func (l *Ledger) GrantPending(ctx context.Context, userID, channelID int64) (*Grant, error) {
	var g Grant
	err := l.tx(ctx, func(tx *gorm.DB) error {
		var pr models.PendingRequest
		if err := tx.Where("user_id = ? AND channel_id = ?", userID, channelID).First(&pr).Error; err != nil {
			return notFound(err)
		}

		var n int64
		if err := tx.Model(&models.Subscription{}).
			Where("user_id = ? AND channel_id = ?", userID, channelID).
			Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrDuplicateSubscription
		}

		sub := models.Subscription{
			UserID:     userID,
			ChannelID:  channelID,
			CreatedAt:  l.now(),
			ExpiryDate: datatypes.Date(l.Today().AddDate(0, 0, l.defaultDays)),
		}
		if err := tx.Create(&sub).Error; err != nil {
			return err
		}
		if err := tx.Delete(&pr).Error; err != nil {
			return err
		}

		vs, err := views(tx, func(q *gorm.DB) *gorm.DB { return q.Where("s.id = ?", sub.ID) })
		if err != nil {
			return err
		}
		if len(vs) == 0 {
			return ErrNotFound
		}
		g = Grant{Subscription: vs[0], AdminID: pr.AdminID}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("grant user %d in channel %d: %w", userID, channelID, err)
	}
	return &g, nil
}
