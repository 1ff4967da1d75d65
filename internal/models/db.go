package models

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection and all model managers
type DB struct {
	*gorm.DB
	Users       *UserManager
	Tenants     *TenantManager
	Memberships *MembershipManager
	Templates   *TemplateManager
}

// NewDB wraps an existing connection pool so gorm and the agreement store
// share one set of connections. Schema is owned by the SQL migrations.
func NewDB(sqlDB *sql.DB) (*DB, error) {
	config := &gorm.Config{
		Logger: logger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			logger.Config{
				SlowThreshold:             200 * time.Millisecond,
				LogLevel:                  logLevel(),
				IgnoreRecordNotFoundError: true,
			},
		),
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), config)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return wrap(gormDB), nil
}

func wrap(gormDB *gorm.DB) *DB {
	return &DB{
		DB:          gormDB,
		Users:       NewUserManager(gormDB),
		Tenants:     NewTenantManager(gormDB),
		Memberships: NewMembershipManager(gormDB),
		Templates:   NewTemplateManager(gormDB),
	}
}

func logLevel() logger.LogLevel {
	switch os.Getenv("GORM_LOG_LEVEL") {
	case "silent":
		return logger.Silent
	case "info":
		return logger.Info
	case "error":
		return logger.Error
	}
	return logger.Warn
}

// Transaction runs a function within a database transaction
func (db *DB) Transaction(fn func(*DB) error) error {
	return db.DB.Transaction(func(tx *gorm.DB) error {
		return fn(wrap(tx))
	})
}

// Django-like convenience methods

// GetObjectOr404 retrieves an object or returns ErrNotFound (similar to Django's get_object_or_404)
func GetObjectOr404[T any](db *gorm.DB, conditions ...interface{}) (*T, error) {
	var obj T
	err := db.First(&obj, conditions...).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &obj, nil
}

// Exists checks if a record exists (similar to Django's exists())
func Exists[T any](db *gorm.DB, query interface{}, args ...interface{}) (bool, error) {
	var count int64
	err := db.Model(new(T)).Where(query, args...).Count(&count).Error
	return count > 0, err
}
