// Package db manages database connections and schema migration.
package db

import (
	"fmt"
	"os"

	"github.com/quarterwave/parley/internal/config"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DSN builds a MySQL DSN from config. The password comes from the env var
// named by password_env, never from the config file itself.
func DSN(cfg config.DBConfig) string {
	user := cfg.User
	if cfg.PasswordEnv != "" {
		if pw := os.Getenv(cfg.PasswordEnv); pw != "" {
			user = user + ":" + pw
		}
	}
	return fmt.Sprintf("%s@tcp(%s:%d)/%s?parseTime=true", user, cfg.Host, cfg.Port, cfg.Database)
}

// Connect opens a GORM connection using the configured driver.
func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(cfg.Path)
	case "mysql":
		dialector = mysql.Open(DSN(cfg))
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", cfg.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect (%s): %w", cfg.Driver, err)
	}
	return db, nil
}
