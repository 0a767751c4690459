package gorm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/weathertaxi/tlcfetch/internal/config"
)

// ErrHistoryDisabled is returned by NewDB when database.driver is "none"
var ErrHistoryDisabled = errors.New("run history disabled")

// NewDB opens the run-history database and migrates its schema
func NewDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, func(), error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: newGormLogger(logger, cfg.Logger.Level == "debug"),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("open %s history: %w", cfg.Database.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, err
	}

	if cfg.Database.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.Database.MaxLifetime)
	}

	if err := AutoMigrate(db); err != nil {
		sqlDB.Close()
		return nil, nil, fmt.Errorf("migrate history: %w", err)
	}

	cleanup := func() {
		if err := sqlDB.Close(); err != nil {
			logger.Warn("Failed to close history database", zap.Error(err))
		}
	}

	return db, cleanup, nil
}

func dialectorFor(cfg *config.Config) (gorm.Dialector, error) {
	switch cfg.Database.Driver {
	case "", "sqlite":
		dsn := cfg.HistoryDSN()
		if dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create history directory: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		if cfg.Database.DSN == "" {
			return nil, errors.New("database.dsn is required for postgres")
		}
		return postgres.Open(cfg.Database.DSN), nil
	case "none":
		return nil, ErrHistoryDisabled
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// AutoMigrate runs database migrations
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&RunModel{}, &OutcomeModel{})
}

// gormLogger wraps zap logger for GORM
type gormLogger struct {
	logger *zap.Logger
	debug  bool
}

func newGormLogger(logger *zap.Logger, debug bool) gormlogger.Interface {
	return &gormLogger{
		logger: logger.Named("gorm"),
		debug:  debug,
	}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	return l
}

func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.logger.Sugar().Infof(msg, data...)
}

func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.logger.Sugar().Warnf(msg, data...)
}

func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.logger.Sugar().Errorf(msg, data...)
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.logger.Error("sql error",
			zap.Error(err),
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
		return
	}

	if l.debug {
		l.logger.Debug("sql trace",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	} else if elapsed > 200*time.Millisecond {
		l.logger.Warn("slow sql query",
			zap.String("sql", sql),
			zap.Int64("rows", rows),
			zap.Duration("elapsed", elapsed),
		)
	}
}
