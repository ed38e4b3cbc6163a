package db

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

type Config struct {
	// Driver is "postgres" or "sqlite".
	Driver     string
	Host       string
	Port       string
	User       string
	Password   string
	Name       string
	SSLMode    string
	SQLitePath string

	MaxOpenConns int
	MaxIdleConns int
}

func (c Config) dialector() (gorm.Dialector, error) {
	switch strings.ToLower(strings.TrimSpace(c.Driver)) {
	case "", "postgres", "postgresql":
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		dsn := fmt.Sprintf(
			"postgres://%s:%s@%s:%s/%s?sslmode=%s",
			c.User,
			c.Password,
			c.Host,
			c.Port,
			c.Name,
			sslMode,
		)
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		path := c.SQLitePath
		if path == "" {
			path = "roadmap.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", c.Driver)
	}
}

type SQLService struct {
	db     *gorm.DB
	log    *logger.Logger
	driver string
}

func NewSQLService(logg *logger.Logger, cfg Config) (*SQLService, error) {
	serviceLog := logg.With("service", "SQLService")

	dialector, err := cfg.dialector()
	if err != nil {
		return nil, err
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", dialector.Name(), err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sql handle: %w", err)
	}
	if dialector.Name() == "sqlite" {
		// sqlite serializes writers; one connection avoids "database is locked".
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
	}

	serviceLog.Info("connected to sql store", "driver", dialector.Name())
	return &SQLService{db: db, log: serviceLog, driver: dialector.Name()}, nil
}

func (s *SQLService) DB() *gorm.DB { return s.db }

func (s *SQLService) Driver() string { return s.driver }

func (s *SQLService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
