package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(&evidence.Record{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
