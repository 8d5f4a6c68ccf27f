package db

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Connect opens a gorm handle for the configured driver. sqlite is the
// zero-setup default; mysql expects a DSN like
// app:apppass@tcp(127.0.0.1:3306)/chatcore?charset=utf8mb4&parseTime=true&loc=Local
func Connect(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "file:chatcore.db?cache=shared"
		}
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("db: unsupported driver %q", driver)
	}
}
