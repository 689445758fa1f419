// Package store owns the relational schema and the gorm session used by
// every service. Services run their own queries and transactions; this
// package only opens the connection and keeps the schema current.
package store

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to Postgres and migrates the schema.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Store{},
		&Transaction{},
		&User{},
		&Customer{},
		&TopUpRequest{},
		&OutboxEntry{},
		&Job{},
		&FeeSettings{},
		&WhatsappConfig{},
	); err != nil {
		return nil, fmt.Errorf("store: migrate schema: %w", err)
	}

	return db, nil
}
