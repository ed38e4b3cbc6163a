package db

import (
	"fmt"

	"github.com/yungbote/roadmap-backend/internal/domain"
	"gorm.io/gorm"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(domain.Models()...)
}

// EnsureNodeIndexes adds the composite indexes the tree queries rely on.
func EnsureNodeIndexes(db *gorm.DB) error {
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_roadmap_node_owner_root
		ON roadmap_node (owner_id, root_id);
	`).Error; err != nil {
		return fmt.Errorf("create idx_roadmap_node_owner_root: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_roadmap_node_parent_created_at
		ON roadmap_node (parent_id, created_at);
	`).Error; err != nil {
		return fmt.Errorf("create idx_roadmap_node_parent_created_at: %w", err)
	}

	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_roadmap_node_public_roots
		ON roadmap_node (is_public, updated_at)
		WHERE parent_id IS NULL;
	`).Error; err != nil {
		return fmt.Errorf("create idx_roadmap_node_public_roots: %w", err)
	}

	return nil
}

func (s *SQLService) AutoMigrateAll() error {
	s.log.Info("Auto migrating sql tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Auto migration failed", "error", err)
		return err
	}
	if err := EnsureNodeIndexes(s.db); err != nil {
		s.log.Error("Node index migration failed", "error", err)
		return err
	}
	return nil
}
