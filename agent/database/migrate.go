package database

import (
	"errors"
	"log"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"gorm.io/gorm"

	"sui-buybot/agent/internal/models"
)

// MigrateDatabase applies versioned SQL migrations and then runs GORM's
// AutoMigrate as a safety fallback for columns added to the models.
func MigrateDatabase(db *gorm.DB, databaseURL string) error {
	m, err := migrate.New("file://migrations", databaseURL)
	if err != nil {
		log.Printf("WARN: Could not initialise SQL migrations, relying on AutoMigrate: %v", err)
	} else {
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		srcErr, dbErr := m.Close()
		if srcErr != nil {
			log.Printf("WARN: Closing migration source: %v", srcErr)
		}
		if dbErr != nil {
			log.Printf("WARN: Closing migration connection: %v", dbErr)
		}
		log.Println("INFO: SQL migrations executed successfully.")
	}

	log.Println("INFO: Running GORM migrations...")
	if err := db.AutoMigrate(
		&models.DestinationConfig{},
		&models.Boost{},
		&models.BuyEventRecord{},
	); err != nil {
		return err
	}
	log.Println("INFO: GORM migrations executed successfully.")
	return nil
}
