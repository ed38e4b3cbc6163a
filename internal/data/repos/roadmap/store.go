package roadmap

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

var (
	// ErrVersionConflict is returned by Save when the stored version moved on.
	ErrVersionConflict = errors.New("node version conflict")
	// ErrUnboundedDelete guards DeleteMany/DeleteOne against an empty filter.
	ErrUnboundedDelete = errors.New("refusing to delete with an empty filter")
)

// NodeStore is the persistence surface for roadmap nodes. FindOne and FindByID
// return (nil, nil) when nothing matches.
//
// Save inserts when Version is 0 and otherwise performs a compare-and-set on
// (id, version), returning the stored copy with the bumped version. Only the
// mutable fields (title, description, progress, weight, status, is_public) are
// rewritten by an update.
type NodeStore interface {
	FindMany(dbc dbctx.Context, f Filter) ([]*roadmap.Node, error)
	FindOne(dbc dbctx.Context, f Filter) (*roadmap.Node, error)
	FindByID(dbc dbctx.Context, id uuid.UUID) (*roadmap.Node, error)
	Save(dbc dbctx.Context, n *roadmap.Node) (*roadmap.Node, error)
	DeleteMany(dbc dbctx.Context, f Filter) (int64, error)
	DeleteOne(dbc dbctx.Context, f Filter) (bool, error)
}

type Order int

const (
	OrderNone Order = iota
	OrderCreatedAsc
	OrderUpdatedDesc
)

// Filter is a conjunction of optional constraints. Empty slices and nil
// pointers do not constrain.
type Filter struct {
	IDs       []uuid.UUID
	ParentIDs []uuid.UUID
	OwnerID   *uuid.UUID
	RootID    *uuid.UUID
	Kind      *roadmap.Kind
	RootsOnly bool
	IsPublic  *bool
	Order     Order
}

func ByID(id uuid.UUID) Filter { return Filter{IDs: []uuid.UUID{id}} }

func ChildrenOf(ids ...uuid.UUID) Filter { return Filter{ParentIDs: ids} }

func (f Filter) WithOwner(uid uuid.UUID) Filter {
	f.OwnerID = &uid
	return f
}

func (f Filter) WithKind(k roadmap.Kind) Filter {
	f.Kind = &k
	return f
}

func (f Filter) WithOrder(o Order) Filter {
	f.Order = o
	return f
}

func (f Filter) IsEmpty() bool {
	return len(f.IDs) == 0 && len(f.ParentIDs) == 0 && f.OwnerID == nil &&
		f.RootID == nil && f.Kind == nil && !f.RootsOnly && f.IsPublic == nil
}

// Matches evaluates the filter in memory with the same semantics the SQL and
// Mongo stores apply.
func (f Filter) Matches(n *roadmap.Node) bool {
	if n == nil {
		return false
	}
	if len(f.IDs) > 0 && !containsID(f.IDs, n.ID) {
		return false
	}
	if len(f.ParentIDs) > 0 && (n.ParentID == nil || !containsID(f.ParentIDs, *n.ParentID)) {
		return false
	}
	if f.OwnerID != nil && n.OwnerID != *f.OwnerID {
		return false
	}
	if f.RootID != nil && n.RootID != *f.RootID {
		return false
	}
	if f.Kind != nil && n.Kind != *f.Kind {
		return false
	}
	if f.RootsOnly && n.ParentID != nil {
		return false
	}
	if f.IsPublic != nil && n.IsPublic != *f.IsPublic {
		return false
	}
	return true
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// PrepareInsert returns the copy a store should persist for a new node: id,
// root id (roots point at themselves), version 1 and timestamps filled in.
func PrepareInsert(n *roadmap.Node, now time.Time) (*roadmap.Node, error) {
	if n == nil {
		return nil, fmt.Errorf("%w: nil node", roadmap.ErrInvalidNode)
	}
	out := n.Clone()
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.RootID == uuid.Nil {
		if out.ParentID != nil {
			return nil, fmt.Errorf("%w: root id is required for a child node", roadmap.ErrInvalidNode)
		}
		out.RootID = out.ID
	}
	out.Version = 1
	if out.CreatedAt.IsZero() {
		out.CreatedAt = now
	}
	out.UpdatedAt = now
	return out, nil
}

// MutableColumns lists the columns an update may rewrite.
func MutableColumns(n *roadmap.Node, now time.Time) map[string]any {
	return map[string]any{
		"title":       n.Title,
		"description": n.Description,
		"progress":    n.Progress,
		"weight":      n.Weight,
		"status":      n.Status,
		"is_public":   n.IsPublic,
		"version":     n.Version + 1,
		"updated_at":  now,
	}
}
