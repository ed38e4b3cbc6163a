package services

import (
	"context"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/data/repos"
	roadmaprepo "github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	"github.com/yungbote/roadmap-backend/internal/domain"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// CreateTopicInput is what a client may set on a new node. The owner always
// comes from the authenticated actor.
type CreateTopicInput struct {
	Kind        domain.Kind
	Title       string
	Description string
	ParentID    *uuid.UUID
	Weight      *float64
	Status      *domain.Status
	IsPublic    *bool
}

type OwnerRef struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
}

// PublicRoadmap is a root annotated with its owner for display.
type PublicRoadmap struct {
	*domain.Node
	Owner *OwnerRef `json:"owner,omitempty"`
}

type TopicService interface {
	CreateRoadmap(ctx context.Context, uid uuid.UUID, in CreateTopicInput) (*domain.Node, error)
	CreateTopic(ctx context.Context, uid uuid.UUID, in CreateTopicInput) (*domain.Node, error)
	UpdateNode(ctx context.Context, uid, id uuid.UUID, patch domainagg.NodePatch, expectedVersion *int) (*domain.Node, error)
	DeleteNode(ctx context.Context, uid, id uuid.UUID) (domainagg.DeleteNodeResult, error)

	GetNode(ctx context.Context, uid, id uuid.UUID) (*domain.Node, error)
	GetChildren(ctx context.Context, uid, id uuid.UUID) ([]*domain.Node, error)
	ListRoadmaps(ctx context.Context, uid uuid.UUID) ([]*domain.Node, error)
	ListTopics(ctx context.Context, uid uuid.UUID) ([]*domain.Node, error)
	ListPublicRoadmaps(ctx context.Context) ([]PublicRoadmap, error)
}

type topicService struct {
	log       *logger.Logger
	nodes     repos.NodeStore
	users     repos.UserRepo
	aggregate domainagg.TopicAggregate
	vis       VisibilityFilter
	public    singleflight.Group
}

// NewTopicService wires the read paths to nodes and the write paths to the
// topic aggregate. users may be nil, in which case public roadmaps carry no owner.
func NewTopicService(log *logger.Logger, nodes repos.NodeStore, users repos.UserRepo, aggregate domainagg.TopicAggregate) TopicService {
	return &topicService{
		log:       log.With("service", "TopicService"),
		nodes:     nodes,
		users:     users,
		aggregate: aggregate,
	}
}

func (s *topicService) CreateRoadmap(ctx context.Context, uid uuid.UUID, in CreateTopicInput) (*domain.Node, error) {
	in.Kind = domain.KindRoadmap
	in.ParentID = nil
	return s.create(ctx, uid, in)
}

func (s *topicService) CreateTopic(ctx context.Context, uid uuid.UUID, in CreateTopicInput) (*domain.Node, error) {
	if in.Kind == domain.KindRoadmap {
		return s.CreateRoadmap(ctx, uid, in)
	}
	return s.create(ctx, uid, in)
}

func (s *topicService) create(ctx context.Context, uid uuid.UUID, in CreateTopicInput) (*domain.Node, error) {
	if err := s.vis.RequireActor(uid); err != nil {
		return nil, err
	}
	n, err := s.aggregate.CreateNode(ctx, domainagg.CreateNodeInput{
		OwnerID:     uid,
		Kind:        in.Kind,
		Title:       in.Title,
		Description: in.Description,
		ParentID:    in.ParentID,
		Weight:      in.Weight,
		Status:      in.Status,
		IsPublic:    in.IsPublic,
	})
	if err != nil {
		s.logFailure("create node failed", err, "user_id", uid, "kind", in.Kind)
		return nil, toAPIError(err)
	}
	return n, nil
}

func (s *topicService) UpdateNode(ctx context.Context, uid, id uuid.UUID, patch domainagg.NodePatch, expectedVersion *int) (*domain.Node, error) {
	if err := s.vis.RequireActor(uid); err != nil {
		return nil, err
	}
	res, err := s.aggregate.UpdateNode(ctx, domainagg.UpdateNodeInput{
		ID:              id,
		OwnerID:         uid,
		Patch:           patch,
		ExpectedVersion: expectedVersion,
	})
	if err != nil {
		s.logFailure("update node failed", err, "user_id", uid, "node_id", id)
		return nil, toAPIError(err)
	}
	if res.AncestorsPersisted > 0 {
		s.log.Debug("progress cascaded", "node_id", id, "ancestors", res.AncestorsPersisted)
	}
	return res.Node, nil
}

func (s *topicService) DeleteNode(ctx context.Context, uid, id uuid.UUID) (domainagg.DeleteNodeResult, error) {
	if err := s.vis.RequireActor(uid); err != nil {
		return domainagg.DeleteNodeResult{}, err
	}
	res, err := s.aggregate.DeleteNode(ctx, domainagg.DeleteNodeInput{ID: id, OwnerID: uid})
	if err != nil {
		s.logFailure("delete node failed", err, "user_id", uid, "node_id", id)
		return domainagg.DeleteNodeResult{}, toAPIError(err)
	}
	return res, nil
}

func (s *topicService) GetNode(ctx context.Context, uid, id uuid.UUID) (*domain.Node, error) {
	const op = "topic.get_node"
	f, err := s.vis.Owned(uid, roadmaprepo.ByID(id))
	if err != nil {
		return nil, err
	}
	n, err := s.nodes.FindOne(dbctx.Background(ctx), f)
	if err != nil {
		return nil, s.readFailure(op, err)
	}
	if n == nil {
		return nil, toAPIError(aggregates.MapError(op, aggregates.NotFoundError("Topic not found")))
	}
	return n, nil
}

func (s *topicService) GetChildren(ctx context.Context, uid, id uuid.UUID) ([]*domain.Node, error) {
	const op = "topic.get_children"
	if _, err := s.GetNode(ctx, uid, id); err != nil {
		return nil, err
	}
	f, err := s.vis.Owned(uid, roadmaprepo.ChildrenOf(id).WithOrder(roadmaprepo.OrderCreatedAsc))
	if err != nil {
		return nil, err
	}
	kids, err := s.nodes.FindMany(dbctx.Background(ctx), f)
	if err != nil {
		return nil, s.readFailure(op, err)
	}
	return kids, nil
}

func (s *topicService) ListRoadmaps(ctx context.Context, uid uuid.UUID) ([]*domain.Node, error) {
	const op = "topic.list_roadmaps"
	base := roadmaprepo.Filter{RootsOnly: true}.WithKind(domain.KindRoadmap).WithOrder(roadmaprepo.OrderUpdatedDesc)
	f, err := s.vis.Owned(uid, base)
	if err != nil {
		return nil, err
	}
	out, err := s.nodes.FindMany(dbctx.Background(ctx), f)
	if err != nil {
		return nil, s.readFailure(op, err)
	}
	return out, nil
}

func (s *topicService) ListTopics(ctx context.Context, uid uuid.UUID) ([]*domain.Node, error) {
	const op = "topic.list_topics"
	f, err := s.vis.Owned(uid, roadmaprepo.Filter{}.WithOrder(roadmaprepo.OrderCreatedAsc))
	if err != nil {
		return nil, err
	}
	out, err := s.nodes.FindMany(dbctx.Background(ctx), f)
	if err != nil {
		return nil, s.readFailure(op, err)
	}
	return out, nil
}

// ListPublicRoadmaps coalesces concurrent callers onto one store round trip.
func (s *topicService) ListPublicRoadmaps(ctx context.Context) ([]PublicRoadmap, error) {
	const op = "topic.list_public_roadmaps"
	v, err, shared := s.public.Do("public_roadmaps", func() (any, error) {
		return s.loadPublicRoadmaps(context.WithoutCancel(ctx))
	})
	if err != nil {
		return nil, s.readFailure(op, err)
	}
	if shared {
		s.log.Debug("public roadmap listing shared with a concurrent caller")
	}
	rows := v.([]PublicRoadmap)
	out := make([]PublicRoadmap, len(rows))
	for i, r := range rows {
		out[i] = PublicRoadmap{Node: r.Node.Clone(), Owner: r.Owner}
	}
	return out, nil
}

func (s *topicService) loadPublicRoadmaps(ctx context.Context) ([]PublicRoadmap, error) {
	dbc := dbctx.Background(ctx)
	roots, err := s.nodes.FindMany(dbc, s.vis.PublicRoots())
	if err != nil {
		return nil, err
	}

	owners := map[uuid.UUID]*OwnerRef{}
	if s.users != nil && len(roots) > 0 {
		ids := make([]uuid.UUID, 0, len(roots))
		seen := map[uuid.UUID]struct{}{}
		for _, r := range roots {
			if _, ok := seen[r.OwnerID]; ok {
				continue
			}
			seen[r.OwnerID] = struct{}{}
			ids = append(ids, r.OwnerID)
		}
		users, err := s.users.GetByIDs(dbc, ids)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			owners[u.ID] = &OwnerRef{ID: u.ID, Username: u.Username}
		}
	}

	out := make([]PublicRoadmap, 0, len(roots))
	for _, r := range roots {
		if !s.vis.CanSee(uuid.Nil, r) {
			continue
		}
		out = append(out, PublicRoadmap{Node: r, Owner: owners[r.OwnerID]})
	}
	return out, nil
}

func (s *topicService) readFailure(op string, err error) error {
	mapped := aggregates.MapError(op, err)
	s.logFailure("read failed", mapped, "op", op)
	return toAPIError(mapped)
}

// logFailure logs server-side failures at Error and client mistakes at Debug.
func (s *topicService) logFailure(msg string, err error, kv ...any) {
	kv = append(kv, "error", err, "code", string(domainagg.CodeOf(err)))
	switch domainagg.CodeOf(err) {
	case domainagg.CodeValidation, domainagg.CodeNotFound, domainagg.CodeConflict:
		s.log.Debug(msg, kv...)
	case domainagg.CodeRetryable:
		s.log.Warn(msg, kv...)
	default:
		s.log.Error(msg, kv...)
	}
}
