package reconcile

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/lojf/subgate/internal/db"
	"github.com/lojf/subgate/internal/models"
	"github.com/lojf/subgate/internal/services"
)

var testNow = time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

func openTestLedger(t *testing.T) (*services.Ledger, *gorm.DB) {
	t.Helper()
	dsn := filepath.Join(t.TempDir(), "ledger.db") + "?_busy_timeout=5000&_foreign_keys=on"
	gdb, err := db.Open("sqlite", dsn, zerolog.Nop())
	require.NoError(t, err)
	l := services.NewLedger(gdb, zerolog.Nop(), services.Options{
		Now: func() time.Time { return testNow },
	})
	return l, gdb
}

func day(offset int) time.Time {
	return services.CivilDate(testNow, time.UTC).AddDate(0, 0, offset)
}

func seedChannel(t *testing.T, gdb *gorm.DB, id int64, name string, admins ...int64) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.Channel{ID: id, Name: name, IsChannel: true}).Error)
	for _, a := range admins {
		require.NoError(t, gdb.Create(&models.ChannelAdmin{ChannelID: id, AdminID: a}).Error)
	}
}

func seedSub(t *testing.T, gdb *gorm.DB, userID, channelID int64, name string, expiry time.Time) {
	t.Helper()
	require.NoError(t, gdb.Where(models.User{ID: userID}).
		FirstOrCreate(&models.User{ID: userID, FullName: name}).Error)
	require.NoError(t, gdb.Create(&models.Subscription{
		UserID: userID, ChannelID: channelID, ExpiryDate: datatypes.Date(expiry),
	}).Error)
}
