package reconcile

import (
	"context"

	"github.com/lojf/subgate/internal/services"
)

// Recipients resolves who hears about a channel: its registered admins, or
// the configured operators when it has none.
type Recipients struct {
	Ledger   *services.Ledger
	Fallback []int64
}

func (r Recipients) For(ctx context.Context, channelID int64) ([]int64, error) {
	ids, err := r.Ledger.ChannelAdmins(ctx, channelID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return r.Fallback, nil
	}
	return ids, nil
}
