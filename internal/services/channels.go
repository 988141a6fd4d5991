package services

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/lojf/subgate/internal/models"
)

// ChannelInfo describes a chat as seen during the connection handshake.
type ChannelInfo struct {
	ID        int64
	Name      string
	IsChannel bool
}

// ConnectChannel creates or refreshes a channel with its current invite link and,
// when adminID is non-zero, registers adminID as responsible for it.
func (l *Ledger) ConnectChannel(ctx context.Context, info ChannelInfo, inviteLink string, adminID int64) (*models.Channel, error) {
	var ch models.Channel
	err := l.tx(ctx, func(tx *gorm.DB) error {
		link := inviteLink
		if err := tx.Where(models.Channel{ID: info.ID}).
			Assign(map[string]any{
				"name":        info.Name,
				"is_channel":  info.IsChannel,
				"invite_link": &link,
			}).
			FirstOrCreate(&ch).Error; err != nil {
			return err
		}
		if adminID == 0 {
			return nil
		}
		return tx.Where(models.ChannelAdmin{ChannelID: info.ID, AdminID: adminID}).
			FirstOrCreate(&models.ChannelAdmin{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("connect channel %d: %w", info.ID, err)
	}
	l.log.Info().Int64("channel_id", info.ID).Str("name", info.Name).Int64("admin_id", adminID).Msg("channel connected")
	return &ch, nil
}

func (l *Ledger) Channel(ctx context.Context, id int64) (*models.Channel, error) {
	var ch models.Channel
	if err := l.db.WithContext(ctx).First(&ch, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &ch, nil
}

// ChannelsForAdmin lists channels adminID may manage: those listing adminID as
// admin and those with no registered admins at all.
func (l *Ledger) ChannelsForAdmin(ctx context.Context, adminID int64) ([]models.Channel, error) {
	var out []models.Channel
	err := l.db.WithContext(ctx).
		Where(`NOT EXISTS (SELECT 1 FROM channel_admins ca WHERE ca.channel_id = channels.id)
		       OR EXISTS (SELECT 1 FROM channel_admins ca WHERE ca.channel_id = channels.id AND ca.admin_id = ?)`, adminID).
		Order("name").
		Find(&out).Error
	return out, err
}

// Channels lists every managed channel.
func (l *Ledger) Channels(ctx context.Context) ([]models.Channel, error) {
	var out []models.Channel
	err := l.db.WithContext(ctx).Order("name").Find(&out).Error
	return out, err
}

// ChannelAdmins returns the operators registered for a channel.
func (l *Ledger) ChannelAdmins(ctx context.Context, channelID int64) ([]int64, error) {
	var ids []int64
	err := l.db.WithContext(ctx).Model(&models.ChannelAdmin{}).
		Where("channel_id = ?", channelID).
		Order("admin_id").
		Pluck("admin_id", &ids).Error
	return ids, err
}

// IsChannelAdmin reports whether adminID is registered for any channel.
func (l *Ledger) IsChannelAdmin(ctx context.Context, adminID int64) (bool, error) {
	var n int64
	err := l.db.WithContext(ctx).Model(&models.ChannelAdmin{}).Where("admin_id = ?", adminID).Count(&n).Error
	return n > 0, err
}

// Authorize returns ErrForbidden when the channel has registered admins and
// adminID is not one of them, and ErrNotFound for an unknown channel.
func (l *Ledger) Authorize(ctx context.Context, adminID, channelID int64) error {
	if _, err := l.Channel(ctx, channelID); err != nil {
		return err
	}
	admins, err := l.ChannelAdmins(ctx, channelID)
	if err != nil {
		return err
	}
	if len(admins) == 0 {
		return nil
	}
	for _, id := range admins {
		if id == adminID {
			return nil
		}
	}
	return ErrForbidden
}

// SetInviteLink replaces the stored invite link; nil clears it.
func (l *Ledger) SetInviteLink(ctx context.Context, channelID int64, link *string) error {
	res := l.db.WithContext(ctx).Model(&models.Channel{}).
		Where("id = ?", channelID).
		Update("invite_link", link)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChannel removes a channel with its subscriptions, pending requests,
// admins and codes, then garbage-collects users left without references.
// It returns the number of users collected.
func (l *Ledger) DeleteChannel(ctx context.Context, channelID int64) (int64, error) {
	var collected int64
	err := l.tx(ctx, func(tx *gorm.DB) error {
		// Explicit deletes keep the cascade independent of the driver's FK enforcement.
		for _, m := range []any{&models.Subscription{}, &models.PendingRequest{}, &models.ChannelAdmin{}, &models.VerificationCode{}} {
			if err := tx.Where("channel_id = ?", channelID).Delete(m).Error; err != nil {
				return err
			}
		}
		res := tx.Delete(&models.Channel{}, "id = ?", channelID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		n, err := removeOrphanUsers(tx)
		collected = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("delete channel %d: %w", channelID, err)
	}
	l.log.Info().Int64("channel_id", channelID).Int64("users_collected", collected).Msg("channel deleted")
	return collected, nil
}
