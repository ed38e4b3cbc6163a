package roadmap

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
	now func() time.Time
}

// NewNodeRepo returns a NodeStore backed by the roadmap_node table.
func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeStore {
	repoLog := baseLog.With("repo", "NodeRepo")
	return &nodeRepo{db: db, log: repoLog, now: func() time.Time { return time.Now().UTC() }}
}

func (r *nodeRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func applyFilter(q *gorm.DB, f Filter) *gorm.DB {
	if len(f.IDs) > 0 {
		q = q.Where("id IN ?", f.IDs)
	}
	if len(f.ParentIDs) > 0 {
		q = q.Where("parent_id IN ?", f.ParentIDs)
	}
	if f.OwnerID != nil {
		q = q.Where("owner_id = ?", *f.OwnerID)
	}
	if f.RootID != nil {
		q = q.Where("root_id = ?", *f.RootID)
	}
	if f.Kind != nil {
		q = q.Where("kind = ?", *f.Kind)
	}
	if f.RootsOnly {
		q = q.Where("parent_id IS NULL")
	}
	if f.IsPublic != nil {
		q = q.Where("is_public = ?", *f.IsPublic)
	}
	switch f.Order {
	case OrderCreatedAsc:
		q = q.Order("created_at ASC").Order("id ASC")
	case OrderUpdatedDesc:
		q = q.Order("updated_at DESC").Order("id ASC")
	}
	return q
}

func (r *nodeRepo) FindMany(dbc dbctx.Context, f Filter) ([]*roadmap.Node, error) {
	var out []*roadmap.Node
	if err := applyFilter(r.tx(dbc).Model(&roadmap.Node{}), f).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) FindOne(dbc dbctx.Context, f Filter) (*roadmap.Node, error) {
	var out []*roadmap.Node
	if err := applyFilter(r.tx(dbc).Model(&roadmap.Node{}), f).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *nodeRepo) FindByID(dbc dbctx.Context, id uuid.UUID) (*roadmap.Node, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return r.FindOne(dbc, ByID(id))
}

func (r *nodeRepo) Save(dbc dbctx.Context, n *roadmap.Node) (*roadmap.Node, error) {
	now := r.now()
	if n.Version == 0 {
		row, err := PrepareInsert(n, now)
		if err != nil {
			return nil, err
		}
		if err := r.tx(dbc).Create(row).Error; err != nil {
			return nil, err
		}
		return row, nil
	}

	res := r.tx(dbc).
		Model(&roadmap.Node{}).
		Where("id = ? AND version = ?", n.ID, n.Version).
		Updates(MutableColumns(n, now))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		r.log.Debug("node save lost compare-and-set", "node_id", n.ID, "version", n.Version)
		return nil, ErrVersionConflict
	}
	out := n.Clone()
	out.Version = n.Version + 1
	out.UpdatedAt = now
	return out, nil
}

func (r *nodeRepo) DeleteMany(dbc dbctx.Context, f Filter) (int64, error) {
	if f.IsEmpty() {
		return 0, ErrUnboundedDelete
	}
	f.Order = OrderNone
	res := applyFilter(r.tx(dbc), f).Delete(&roadmap.Node{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *nodeRepo) DeleteOne(dbc dbctx.Context, f Filter) (bool, error) {
	if f.IsEmpty() {
		return false, ErrUnboundedDelete
	}
	found, err := r.FindOne(dbc, f)
	if err != nil || found == nil {
		return false, err
	}
	res := r.tx(dbc).Where("id = ?", found.ID).Delete(&roadmap.Node{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
