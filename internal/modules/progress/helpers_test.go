package progress

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	domain "github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

var errInjected = errors.New("injected store failure")

func bg() dbctx.Context { return dbctx.Background(context.Background()) }

// fakeStore wraps the in-memory store with call counting and failure injection.
type fakeStore struct {
	*roadmap.MemoryStore

	mu           sync.Mutex
	saves        int
	findManyCall int
	failSaveOn   map[uuid.UUID]error
	failFindMany error
}

func newFakeStore() *fakeStore {
	return &fakeStore{MemoryStore: roadmap.NewMemoryStore(), failSaveOn: map[uuid.UUID]error{}}
}

func (s *fakeStore) Save(dbc dbctx.Context, n *domain.Node) (*domain.Node, error) {
	s.mu.Lock()
	err := s.failSaveOn[n.ID]
	if err == nil {
		s.saves++
	}
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.Save(dbc, n)
}

func (s *fakeStore) FindMany(dbc dbctx.Context, f roadmap.Filter) ([]*domain.Node, error) {
	s.mu.Lock()
	s.findManyCall++
	err := s.failFindMany
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.MemoryStore.FindMany(dbc, f)
}

func (s *fakeStore) resetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves = 0
	s.findManyCall = 0
}

type spyObserver struct {
	statuses     []string
	persisted    []int
	inconsistent []string
}

func (o *spyObserver) ObserveCascade(status string, persisted int, _ time.Duration) {
	o.statuses = append(o.statuses, status)
	o.persisted = append(o.persisted, persisted)
}

func (o *spyObserver) IncInconsistent(reason string) {
	o.inconsistent = append(o.inconsistent, reason)
}

var owner = uuid.New()

// seed inserts a node under parent (nil for a roadmap root).
func seed(t *testing.T, s roadmap.NodeStore, parent *domain.Node, kind domain.Kind, progress int, weight float64) *domain.Node {
	t.Helper()
	n := &domain.Node{
		Kind:     kind,
		Title:    string(kind),
		OwnerID:  owner,
		Progress: progress,
		Weight:   weight,
		Status:   domain.StatusPending,
		IsPublic: true,
	}
	if parent != nil {
		pid := parent.ID
		n.ParentID = &pid
		n.RootID = parent.RootID
	}
	out, err := s.Save(bg(), n)
	if err != nil {
		t.Fatalf("seed %s: %v", kind, err)
	}
	return out
}

func mustFind(t *testing.T, s roadmap.NodeStore, id uuid.UUID) *domain.Node {
	t.Helper()
	n, err := s.FindByID(bg(), id)
	if err != nil {
		t.Fatalf("FindByID(%s): %v", id, err)
	}
	if n == nil {
		t.Fatalf("FindByID(%s): not found", id)
	}
	return n
}
