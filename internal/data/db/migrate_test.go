package db

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

func TestSQLiteServiceMigratesIdempotently(t *testing.T) {
	svc, err := NewSQLService(logger.Nop(), Config{
		Driver:     "sqlite",
		SQLitePath: fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	if err != nil {
		t.Fatalf("NewSQLService: %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })

	if svc.Driver() != "sqlite" {
		t.Fatalf("driver: want=sqlite got=%s", svc.Driver())
	}
	for i := 0; i < 2; i++ {
		if err := svc.AutoMigrateAll(); err != nil {
			t.Fatalf("AutoMigrateAll run %d: %v", i+1, err)
		}
	}
	for _, model := range []any{&domain.User{}, &domain.Node{}} {
		if !svc.DB().Migrator().HasTable(model) {
			t.Fatalf("table missing for %T", model)
		}
	}
	if !svc.DB().Migrator().HasIndex(&domain.Node{}, "idx_roadmap_node_owner_root") {
		t.Fatalf("composite index missing")
	}
}

func TestUnknownDriverRejected(t *testing.T) {
	if _, err := NewSQLService(logger.Nop(), Config{Driver: "oracle"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}
