package services

import (
	"errors"

	"github.com/google/uuid"

	roadmaprepo "github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/apierr"
)

var errAuthRequired = errors.New("Authentication required")

// VisibilityFilter scopes store queries to what an actor may see: their own
// nodes, plus public roadmap roots for anyone.
type VisibilityFilter struct{}

// RequireActor rejects anonymous callers on owner-only paths.
func (VisibilityFilter) RequireActor(uid uuid.UUID) error {
	if uid == uuid.Nil {
		return apierr.Unauthorized("unauthorized", errAuthRequired)
	}
	return nil
}

// Owned narrows f to nodes owned by uid. A missing actor is unauthorized.
func (v VisibilityFilter) Owned(uid uuid.UUID, f roadmaprepo.Filter) (roadmaprepo.Filter, error) {
	if err := v.RequireActor(uid); err != nil {
		return f, err
	}
	return f.WithOwner(uid), nil
}

// PublicRoots matches every public roadmap root, newest update first.
func (VisibilityFilter) PublicRoots() roadmaprepo.Filter {
	public := true
	f := roadmaprepo.Filter{RootsOnly: true, IsPublic: &public}
	return f.WithKind(roadmap.KindRoadmap).WithOrder(roadmaprepo.OrderUpdatedDesc)
}

// CanSee reports whether uid may read n without owning it.
func (VisibilityFilter) CanSee(uid uuid.UUID, n *roadmap.Node) bool {
	if n == nil {
		return false
	}
	if uid != uuid.Nil && n.OwnerID == uid {
		return true
	}
	return n.IsRoot() && n.Kind == roadmap.KindRoadmap && n.IsPublic
}
