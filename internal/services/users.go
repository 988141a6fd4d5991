package services

import (
	"context"

	"gorm.io/gorm"

	"github.com/lojf/subgate/internal/models"
)

func upsertUser(tx *gorm.DB, id int64, username, fullName string) error {
	return tx.Where(models.User{ID: id}).
		Assign(map[string]any{"username": username, "full_name": SanitizeFullName(fullName)}).
		FirstOrCreate(&models.User{}).Error
}

// removeOrphanUsers deletes users with no subscriptions and no pending requests.
func removeOrphanUsers(tx *gorm.DB) (int64, error) {
	res := tx.Where(`NOT EXISTS (SELECT 1 FROM subscriptions WHERE subscriptions.user_id = users.id)
	                 AND NOT EXISTS (SELECT 1 FROM pending_requests WHERE pending_requests.user_id = users.id)`).
		Delete(&models.User{})
	return res.RowsAffected, res.Error
}

// RemoveOrphanUsers garbage-collects users that nothing references anymore.
func (l *Ledger) RemoveOrphanUsers(ctx context.Context) (int64, error) {
	return removeOrphanUsers(l.db.WithContext(ctx))
}

// User returns one user by platform id.
func (l *Ledger) User(ctx context.Context, id int64) (*models.User, error) {
	var u models.User
	if err := l.db.WithContext(ctx).First(&u, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// UserChannels lists the channels a user holds a subscription in.
func (l *Ledger) UserChannels(ctx context.Context, userID int64) ([]models.Channel, error) {
	var out []models.Channel
	err := l.db.WithContext(ctx).
		Joins("JOIN subscriptions ON subscriptions.channel_id = channels.id").
		Where("subscriptions.user_id = ?", userID).
		Order("channels.name").
		Find(&out).Error
	return out, err
}
