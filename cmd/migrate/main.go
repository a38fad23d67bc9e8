package main

import (
	"fmt"
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"amas/internal/concurrency"
	"amas/internal/config"
	"amas/internal/persistence"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	var db *gorm.DB
	connect := func() error {
		var openErr error
		db, openErr = gorm.Open(postgres.Open(cfg.DBDSN()), &gorm.Config{})
		return openErr
	}
	backoff := concurrency.DefaultBackoffConfig()
	backoff.MaxRetries = 5
	if err := concurrency.RetryWithBackoff(connect, backoff); err != nil {
		log.Fatalf("db connection failed: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("failed to get database instance: %v", err)
	}
	defer sqlDB.Close()

	fmt.Println("Running model_snapshots / decision_records migration...")

	if err := persistence.AutoMigrate(db); err != nil {
		log.Fatalf("migration failed: %v", err)
	}

	fmt.Println("Migration completed successfully.")
}
