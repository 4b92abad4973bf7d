// Package database owns the gorm connection every other package in the
// server reads and writes through: internal/repository for CRUD,
// internal/index for the transactional ServerIndex operations.
package database

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/orthanc-go/orthanc/internal/models"
)

// DB is the process-wide gorm handle, set by Connect.
var DB *gorm.DB

// Config holds database connection settings. A Host of "" (or DBName of
// ":memory:") selects the embedded sqlite driver instead of postgres,
// mirroring ServerIndex's own dbPath==":memory:" branch for tests and
// single-binary deployments that don't want a postgres server.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	LogLevel string
}

func (c Config) isSQLite() bool {
	return c.DBName == ":memory:" || c.Host == ""
}

func gormLoggerFor(level string) gormlogger.Interface {
	switch level {
	case "silent":
		return gormlogger.Default.LogMode(gormlogger.Silent)
	case "error":
		return gormlogger.Default.LogMode(gormlogger.Error)
	case "warn":
		return gormlogger.Default.LogMode(gormlogger.Warn)
	default:
		return gormlogger.Default.LogMode(gormlogger.Info)
	}
}

// Connect opens the database described by cfg, configures the connection
// pool (for postgres; sqlite has no meaningful pool), and runs
// AutoMigrate. The resulting handle is stored in the package-level DB.
func Connect(cfg Config) error {
	gormCfg := &gorm.Config{
		Logger: gormLoggerFor(cfg.LogLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error

	if cfg.isSQLite() {
		dsn := cfg.DBName
		if dsn == "" {
			dsn = ":memory:"
		}
		db, err = gorm.Open(sqlite.Open(dsn), gormCfg)
	} else {
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
		)
		db, err = gorm.Open(postgres.Open(dsn), gormCfg)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	if !cfg.isSQLite() {
		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get underlying DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}

	DB = db

	if err := AutoMigrate(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info().Bool("sqlite", cfg.isSQLite()).Msg("database connected and migrated")
	return nil
}

// AutoMigrate runs automatic schema migration for every model this server
// owns. Called once at startup by Connect; exported so tests can migrate
// an in-memory database without going through full Connect.
func AutoMigrate() error {
	return DB.AutoMigrate(
		&models.Resource{},
		&models.MainDicomTag{},
		&models.Metadata{},
		&models.Attachment{},
		&models.Change{},
		&models.ExportedResource{},
		&models.GlobalProperty{},
	)
}

// Close releases the underlying connection.
func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
