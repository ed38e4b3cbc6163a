package roadmap

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

var _ NodeStore = (*MemoryStore)(nil)

type memoryRow struct {
	node *roadmap.Node
	seq  uint64
}

// MemoryStore keeps nodes in process. It has no transactions: a failed
// cascade leaves earlier writes in place.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*memoryRow
	seq  uint64
	now  func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: map[uuid.UUID]*memoryRow{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source; used to make ordering deterministic.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func (s *MemoryStore) FindMany(dbc dbctx.Context, f Filter) ([]*roadmap.Node, error) {
	if err := ctxErr(dbc); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matchLocked(f), nil
}

func (s *MemoryStore) matchLocked(f Filter) []*roadmap.Node {
	rows := make([]*memoryRow, 0)
	for _, row := range s.rows {
		if f.Matches(row.node) {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch f.Order {
		case OrderUpdatedDesc:
			if !a.node.UpdatedAt.Equal(b.node.UpdatedAt) {
				return a.node.UpdatedAt.After(b.node.UpdatedAt)
			}
			return a.seq > b.seq
		default:
			if !a.node.CreatedAt.Equal(b.node.CreatedAt) {
				return a.node.CreatedAt.Before(b.node.CreatedAt)
			}
			return a.seq < b.seq
		}
	})
	out := make([]*roadmap.Node, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.node.Clone())
	}
	return out
}

func (s *MemoryStore) FindOne(dbc dbctx.Context, f Filter) (*roadmap.Node, error) {
	found, err := s.FindMany(dbc, f)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

func (s *MemoryStore) FindByID(dbc dbctx.Context, id uuid.UUID) (*roadmap.Node, error) {
	if err := ctxErr(dbc); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	return row.node.Clone(), nil
}

func (s *MemoryStore) Save(dbc dbctx.Context, n *roadmap.Node) (*roadmap.Node, error) {
	if err := ctxErr(dbc); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()

	if n.Version == 0 {
		row, err := PrepareInsert(n, now)
		if err != nil {
			return nil, err
		}
		if _, exists := s.rows[row.ID]; exists {
			return nil, ErrVersionConflict
		}
		s.seq++
		s.rows[row.ID] = &memoryRow{node: row, seq: s.seq}
		return row.Clone(), nil
	}

	cur, ok := s.rows[n.ID]
	if !ok || cur.node.Version != n.Version {
		return nil, ErrVersionConflict
	}
	next := cur.node.Clone()
	next.Title = n.Title
	next.Description = n.Description
	next.Progress = n.Progress
	next.Weight = n.Weight
	next.Status = n.Status
	next.IsPublic = n.IsPublic
	next.Version = n.Version + 1
	next.UpdatedAt = now
	cur.node = next
	return next.Clone(), nil
}

func (s *MemoryStore) DeleteMany(dbc dbctx.Context, f Filter) (int64, error) {
	if f.IsEmpty() {
		return 0, ErrUnboundedDelete
	}
	if err := ctxErr(dbc); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, row := range s.rows {
		if f.Matches(row.node) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteOne(dbc dbctx.Context, f Filter) (bool, error) {
	if f.IsEmpty() {
		return false, ErrUnboundedDelete
	}
	if err := ctxErr(dbc); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	found := s.matchLocked(f)
	if len(found) == 0 {
		return false, nil
	}
	delete(s.rows, found[0].ID)
	return true, nil
}

func ctxErr(dbc dbctx.Context) error {
	if dbc.Ctx == nil {
		return nil
	}
	return dbc.Ctx.Err()
}
