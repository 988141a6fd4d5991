package db

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/lojf/subgate/internal/models"
)

// Open connects to the ledger database and migrates the schema.
// driver is "sqlite" or "postgres".
func Open(driver, dsn string, logger zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}

	log := logger.With().Str("component", "db").Logger()
	conn, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(gormWriter{log}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", driver, err)
	}

	if driver == "sqlite" {
		// SQLite works best with a single writer; cap the pool accordingly.
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(0)
	}

	if err := Migrate(conn); err != nil {
		return nil, err
	}

	log.Info().Str("driver", driver).Msg("database ready")
	return conn, nil
}

// Migrate creates or updates every ledger table.
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&models.Channel{},
		&models.ChannelAdmin{},
		&models.User{},
		&models.Subscription{},
		&models.VerificationCode{},
		&models.PendingRequest{},
	); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}

	// Composite index the sweep's per-channel scans lean on; GORM doesn't derive it from tags.
	if err := conn.Exec("CREATE INDEX IF NOT EXISTS idx_sub_channel_expiry ON subscriptions(channel_id, expiry_date)").Error; err != nil {
		return fmt.Errorf("db: create index: %w", err)
	}
	return nil
}

// gormWriter routes gorm's logger output into zerolog.
type gormWriter struct {
	log zerolog.Logger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn().Msgf(format, args...)
}
