package aggregates

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
)

func TestRequireExpectedVersion(t *testing.T) {
	n := &roadmap.Node{ID: uuid.New(), Version: 3}
	v := func(i int) *int { return &i }

	if err := RequireExpectedVersion(n, nil); err != nil {
		t.Fatalf("nil expectation: %v", err)
	}
	if err := RequireExpectedVersion(n, v(3)); err != nil {
		t.Fatalf("matching version: %v", err)
	}
	if err := RequireExpectedVersion(n, v(2)); !errors.Is(err, ErrConflict) {
		t.Fatalf("stale version: want conflict got=%v", err)
	}
	if err := RequireExpectedVersion(n, v(-1)); !errors.Is(err, ErrValidation) {
		t.Fatalf("negative version: want validation got=%v", err)
	}
}

func TestRequireOwnedNode(t *testing.T) {
	owner := uuid.New()
	n := &roadmap.Node{ID: uuid.New(), OwnerID: owner}
	if err := RequireOwnedNode(n, owner, "node"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireOwnedNode(n, uuid.New(), "node"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign owner should read as not found, got=%v", err)
	}
	if err := RequireOwnedNode(nil, owner, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing node should read as not found, got=%v", err)
	}
}
