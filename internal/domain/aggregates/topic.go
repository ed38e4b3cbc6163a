package aggregates

import (
	"context"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
)

// TopicAggregate owns the write side of a roadmap tree.
//
// Failures are *aggregates.Error with codes:
// CodeValidation, CodeNotFound, CodeConflict, CodeStoreFailure, CodeRetryable, CodeInternal.
type TopicAggregate interface {
	// CreateNode inserts a root or a child under a parent owned by the same user.
	CreateNode(ctx context.Context, in CreateNodeInput) (*roadmap.Node, error)

	// UpdateNode applies a partial patch and cascades progress to every ancestor.
	UpdateNode(ctx context.Context, in UpdateNodeInput) (UpdateNodeResult, error)

	// DeleteNode removes the node and its descendants.
	DeleteNode(ctx context.Context, in DeleteNodeInput) (DeleteNodeResult, error)
}

type CreateNodeInput struct {
	OwnerID     uuid.UUID
	Kind        roadmap.Kind
	Title       string
	Description string
	ParentID    *uuid.UUID
	Weight      *float64
	Status      *roadmap.Status
	IsPublic    *bool
}

// NodePatch carries optional fields; nil means "leave unchanged".
type NodePatch struct {
	Title       *string
	Description *string
	Progress    *int
	Weight      *float64
	Status      *roadmap.Status
	IsPublic    *bool
}

func (p NodePatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Progress == nil &&
		p.Weight == nil && p.Status == nil && p.IsPublic == nil
}

type UpdateNodeInput struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
	Patch   NodePatch
	// ExpectedVersion, when set, rejects the write unless the stored version matches.
	ExpectedVersion *int
}

type UpdateNodeResult struct {
	Node *roadmap.Node
	// AncestorsPersisted counts ancestors rewritten by the cascade.
	AncestorsPersisted int
}

type DeleteNodeInput struct {
	ID      uuid.UUID
	OwnerID uuid.UUID
}

type DeleteNodeResult struct {
	Deleted int64
	// Kind is the kind of the node the delete was addressed to.
	Kind roadmap.Kind
}
