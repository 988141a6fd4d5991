package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/lojf/subgate/internal/models"
)

const codeAttempts = 10

// codeFor derives an 8-hex-digit code from a channel id and a millisecond timestamp.
func codeFor(channelID, millis int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d%d", channelID, millis)))
	return hex.EncodeToString(sum[:])[:8]
}

// IssueCode creates a one-time code that lets a user claim access to channelID.
// A code that collides with a live one is regenerated from a bumped timestamp.
func (l *Ledger) IssueCode(ctx context.Context, adminID, channelID int64) (*models.VerificationCode, error) {
	now := l.now().UTC()
	var vc models.VerificationCode
	err := l.tx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("expires_at <= ?", now).Delete(&models.VerificationCode{}).Error; err != nil {
			return err
		}
		for i := 0; i < codeAttempts; i++ {
			code := codeFor(channelID, now.UnixMilli()+int64(i))
			var n int64
			if err := tx.Model(&models.VerificationCode{}).Where("code = ?", code).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				continue
			}
			vc = models.VerificationCode{
				Code:      code,
				AdminID:   adminID,
				ChannelID: channelID,
				ExpiresAt: now.Add(l.codeTTL),
				CreatedAt: now,
			}
			return tx.Create(&vc).Error
		}
		return ErrCodeSpaceExhausted
	})
	if err != nil {
		return nil, fmt.Errorf("issue code for channel %d: %w", channelID, err)
	}
	l.log.Info().Int64("admin_id", adminID).Int64("channel_id", channelID).Msg("verification code issued")
	return &vc, nil
}

// ClaimRequest identifies the user presenting a code.
type ClaimRequest struct {
	UserID   int64
	Code     string
	Username string
	FullName string
}

// ClaimResult is the outcome of a successful claim.
type ClaimResult struct {
	ChannelID int64
	AdminID   int64
	// NewToChannel is false when the user already holds a subscription there.
	NewToChannel bool
}

// ClaimCode consumes a code. It upserts the user and, unless the user is
// already subscribed, records a pending request for the channel. All of it
// commits together or not at all.
func (l *Ledger) ClaimCode(ctx context.Context, req ClaimRequest) (*ClaimResult, error) {
	now := l.now().UTC()
	code := strings.ToLower(strings.TrimSpace(req.Code))

	var res ClaimResult
	err := l.tx(ctx, func(tx *gorm.DB) error {
		var vc models.VerificationCode
		if err := tx.Where("code = ? AND expires_at > ?", code, now).First(&vc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidOrExpiredCode
			}
			return err
		}
		res.ChannelID, res.AdminID = vc.ChannelID, vc.AdminID

		if err := upsertUser(tx, req.UserID, req.Username, req.FullName); err != nil {
			return err
		}

		var n int64
		if err := tx.Model(&models.Subscription{}).
			Where("user_id = ? AND channel_id = ?", req.UserID, vc.ChannelID).
			Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			res.NewToChannel = true
			if err := tx.Where(models.PendingRequest{UserID: req.UserID, ChannelID: vc.ChannelID}).
				Attrs(models.PendingRequest{AdminID: vc.AdminID}).
				FirstOrCreate(&models.PendingRequest{}).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&models.VerificationCode{}, "code = ?", vc.Code).Error
	})
	if errors.Is(err, ErrInvalidOrExpiredCode) {
		if _, perr := l.PurgeExpiredCodes(ctx); perr != nil {
			l.log.Warn().Err(perr).Msg("purging expired codes")
		}
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("claim code: %w", err)
	}

	l.log.Info().
		Int64("user_id", req.UserID).
		Int64("channel_id", res.ChannelID).
		Bool("new_to_channel", res.NewToChannel).
		Msg("verification code claimed")
	return &res, nil
}

// PurgeExpiredCodes deletes codes past their expiry.
func (l *Ledger) PurgeExpiredCodes(ctx context.Context) (int64, error) {
	res := l.db.WithContext(ctx).Where("expires_at <= ?", l.now().UTC()).Delete(&models.VerificationCode{})
	return res.RowsAffected, res.Error
}
