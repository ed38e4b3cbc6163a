package aggregates

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	roadmaprepo "github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/modules/progress"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/locks"
	"github.com/yungbote/roadmap-backend/internal/platform/pointers"
)

// RootLocker serializes writers on one roadmap tree. The in-process
// locks.Keyed and the Redis lock in internal/clients/redis both satisfy it.
type RootLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

type DeleteMode string

const (
	// DeleteSubtree removes the node and every transitive descendant.
	DeleteSubtree DeleteMode = "subtree"
	// DeleteLegacy removes only direct children of a non-roadmap node.
	DeleteLegacy DeleteMode = "legacy"
)

const (
	defaultMaxRetries = 3
	deleteBatchSize   = 500
)

type TopicAggregateDeps struct {
	Base       BaseDeps
	Nodes      roadmaprepo.NodeStore
	Aggregator *progress.Aggregator
	Cascade    *progress.Controller
	Locker     RootLocker
	// MaxRetries bounds re-runs after a version conflict; negative disables retries.
	MaxRetries     int
	EagerRecompute bool
	DeleteMode     DeleteMode
}

type topicAggregate struct {
	base       BaseDeps
	nodes      roadmaprepo.NodeStore
	agg        *progress.Aggregator
	cascade    *progress.Controller
	locker     RootLocker
	maxRetries int
	eager      bool
	deleteMode DeleteMode
}

func NewTopicAggregate(deps TopicAggregateDeps) domainagg.TopicAggregate {
	base := deps.Base.withDefaults()
	agg := deps.Aggregator
	if agg == nil {
		agg = progress.NewAggregator(deps.Nodes)
	}
	cascade := deps.Cascade
	if cascade == nil {
		cascade = progress.NewController(progress.ControllerDeps{Store: deps.Nodes, Aggregator: agg, Log: base.Log})
	}
	var locker RootLocker = deps.Locker
	if locker == nil {
		locker = locks.NewKeyed()
	}
	maxRetries := deps.MaxRetries
	switch {
	case maxRetries == 0:
		maxRetries = defaultMaxRetries
	case maxRetries < 0:
		maxRetries = 0
	}
	mode := deps.DeleteMode
	if mode != DeleteLegacy {
		mode = DeleteSubtree
	}
	return &topicAggregate{
		base:       base,
		nodes:      deps.Nodes,
		agg:        agg,
		cascade:    cascade,
		locker:     locker,
		maxRetries: maxRetries,
		eager:      deps.EagerRecompute,
		deleteMode: mode,
	}
}

func (a *topicAggregate) CreateNode(ctx context.Context, in domainagg.CreateNodeInput) (*roadmap.Node, error) {
	const op = "topic.create_node"
	node, err := newNodeFromInput(in)
	if err != nil {
		return nil, MapError(op, err)
	}

	if node.ParentID == nil {
		var out *roadmap.Node
		err := executeWrite(ctx, a.base, op, func(dbc dbctx.Context) error {
			saved, err := a.nodes.Save(dbc, node)
			if err != nil {
				return err
			}
			out = saved
			return nil
		})
		return out, err
	}

	parent, err := a.nodes.FindOne(dbctx.Background(ctx), roadmaprepo.ByID(*node.ParentID).WithOwner(in.OwnerID))
	if err != nil {
		return nil, MapError(op, err)
	}
	if err := RequireOwnedNode(parent, in.OwnerID, "parent"); err != nil {
		return nil, MapError(op, err)
	}

	unlock, err := a.lockRoot(ctx, op, parent.RootID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var out *roadmap.Node
	err = a.withRetry(ctx, op, func() error {
		return executeWrite(ctx, a.base, op, func(dbc dbctx.Context) error {
			cur, err := a.nodes.FindOne(dbc, roadmaprepo.ByID(parent.ID).WithOwner(in.OwnerID))
			if err != nil {
				return err
			}
			if err := RequireOwnedNode(cur, in.OwnerID, "parent"); err != nil {
				return err
			}
			child := node.Clone()
			child.RootID = cur.RootID
			saved, err := a.nodes.Save(dbc, child)
			if err != nil {
				return err
			}
			if a.eager {
				if _, err := a.cascade.OnNodeSaved(dbc, saved); err != nil {
					return err
				}
			}
			out = saved
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	a.base.Log.Debug("node created", "node_id", out.ID, "parent_id", parent.ID, "kind", out.Kind)
	return out, nil
}

func newNodeFromInput(in domainagg.CreateNodeInput) (*roadmap.Node, error) {
	if in.OwnerID == uuid.Nil {
		return nil, ValidationError("owner is required")
	}
	kind, err := roadmap.ParseKind(string(in.Kind))
	if err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, ValidationError("title is required")
	}
	weight := roadmap.DefaultWeight
	if in.Weight != nil && *in.Weight != 0 {
		weight = *in.Weight
	}
	status := roadmap.StatusPending
	if in.Status != nil && strings.TrimSpace(string(*in.Status)) != "" {
		if status, err = roadmap.ParseStatus(string(*in.Status)); err != nil {
			return nil, err
		}
	}
	n := &roadmap.Node{
		Kind:        kind,
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		OwnerID:     in.OwnerID,
		Weight:      weight,
		Status:      status,
		IsPublic:    pointers.Deref(in.IsPublic, true),
	}
	// roadmaps are always roots; a parent passed alongside one is dropped
	if kind != roadmap.KindRoadmap && in.ParentID != nil && *in.ParentID != uuid.Nil {
		pid := *in.ParentID
		n.ParentID = &pid
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return n, nil
}

func (a *topicAggregate) UpdateNode(ctx context.Context, in domainagg.UpdateNodeInput) (domainagg.UpdateNodeResult, error) {
	const op = "topic.update_node"
	if in.ID == uuid.Nil || in.OwnerID == uuid.Nil {
		return domainagg.UpdateNodeResult{}, MapError(op, ValidationError("node id and owner are required"))
	}
	if err := validatePatch(in.Patch); err != nil {
		return domainagg.UpdateNodeResult{}, MapError(op, err)
	}

	found, err := a.nodes.FindOne(dbctx.Background(ctx), roadmaprepo.ByID(in.ID).WithOwner(in.OwnerID))
	if err != nil {
		return domainagg.UpdateNodeResult{}, MapError(op, err)
	}
	if err := RequireOwnedNode(found, in.OwnerID, "node"); err != nil {
		return domainagg.UpdateNodeResult{}, MapError(op, err)
	}

	unlock, err := a.lockRoot(ctx, op, found.RootID)
	if err != nil {
		return domainagg.UpdateNodeResult{}, err
	}
	defer unlock()

	var out domainagg.UpdateNodeResult
	err = a.withRetry(ctx, op, func() error {
		return executeWrite(ctx, a.base, op, func(dbc dbctx.Context) error {
			cur, err := a.nodes.FindOne(dbc, roadmaprepo.ByID(in.ID).WithOwner(in.OwnerID))
			if err != nil {
				return err
			}
			if err := RequireOwnedNode(cur, in.OwnerID, "node"); err != nil {
				return err
			}
			if err := RequireExpectedVersion(cur, in.ExpectedVersion); err != nil {
				return err
			}

			cascadeNeeded := applyPatch(cur, in.Patch)
			if in.Patch.Progress != nil && !cur.IsLeaf() {
				// derived nodes keep the value their subtree implies
				p, err := a.agg.Compute(dbc, cur)
				if err != nil {
					return err
				}
				cur.Progress = p
			}

			saved, err := a.nodes.Save(dbc, cur)
			if err != nil {
				return err
			}
			res := progress.Result{}
			if cascadeNeeded {
				if res, err = a.cascade.OnNodeSaved(dbc, saved); err != nil {
					return err
				}
			}
			out = domainagg.UpdateNodeResult{Node: saved, AncestorsPersisted: res.Persisted}
			return nil
		})
	})
	if err != nil {
		return domainagg.UpdateNodeResult{}, err
	}
	return out, nil
}

func validatePatch(p domainagg.NodePatch) error {
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return ValidationError("title cannot be empty")
	}
	if p.Progress != nil {
		if err := roadmap.ValidateProgress(*p.Progress); err != nil {
			return err
		}
	}
	if p.Weight != nil {
		if err := roadmap.ValidateWeight(*p.Weight); err != nil {
			return err
		}
	}
	if p.Status != nil {
		if _, err := roadmap.ParseStatus(string(*p.Status)); err != nil {
			return err
		}
	}
	return nil
}

// applyPatch writes every present field and reports whether the parent's
// aggregate may have moved.
func applyPatch(n *roadmap.Node, p domainagg.NodePatch) bool {
	changed := false
	if p.Title != nil {
		n.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		n.Description = strings.TrimSpace(*p.Description)
	}
	if p.Progress != nil {
		changed = changed || n.Progress != *p.Progress
		n.Progress = *p.Progress
	}
	if p.Weight != nil {
		changed = changed || n.Weight != *p.Weight
		n.Weight = *p.Weight
	}
	if p.Status != nil {
		s, _ := roadmap.ParseStatus(string(*p.Status))
		changed = changed || n.Status != s
		n.Status = s
	}
	if p.IsPublic != nil {
		n.IsPublic = *p.IsPublic
	}
	return changed
}

func (a *topicAggregate) DeleteNode(ctx context.Context, in domainagg.DeleteNodeInput) (domainagg.DeleteNodeResult, error) {
	const op = "topic.delete_node"
	if in.ID == uuid.Nil || in.OwnerID == uuid.Nil {
		return domainagg.DeleteNodeResult{}, MapError(op, ValidationError("node id and owner are required"))
	}

	found, err := a.nodes.FindOne(dbctx.Background(ctx), roadmaprepo.ByID(in.ID).WithOwner(in.OwnerID))
	if err != nil {
		return domainagg.DeleteNodeResult{}, MapError(op, err)
	}
	if err := RequireOwnedNode(found, in.OwnerID, "node"); err != nil {
		return domainagg.DeleteNodeResult{}, MapError(op, err)
	}

	unlock, err := a.lockRoot(ctx, op, found.RootID)
	if err != nil {
		return domainagg.DeleteNodeResult{}, err
	}
	defer unlock()

	var out domainagg.DeleteNodeResult
	err = executeWrite(ctx, a.base, op, func(dbc dbctx.Context) error {
		cur, err := a.nodes.FindOne(dbc, roadmaprepo.ByID(in.ID).WithOwner(in.OwnerID))
		if err != nil {
			return err
		}
		if err := RequireOwnedNode(cur, in.OwnerID, "node"); err != nil {
			return err
		}

		var deleted int64
		switch {
		case cur.IsRoot() && (a.deleteMode == DeleteSubtree || cur.Kind == roadmap.KindRoadmap):
			rootID := cur.ID
			deleted, err = a.nodes.DeleteMany(dbc, roadmaprepo.Filter{RootID: &rootID})
		case a.deleteMode == DeleteLegacy:
			deleted, err = a.deleteChildrenAndSelf(dbc, cur.ID)
		default:
			deleted, err = a.deleteSubtree(dbc, cur.ID)
		}
		if err != nil {
			return err
		}

		if a.eager && cur.ParentID != nil {
			if _, err := a.cascade.RecomputeFrom(dbc, *cur.ParentID); err != nil {
				return err
			}
		}
		out.Deleted = deleted
		out.Kind = cur.Kind
		return nil
	})
	if err != nil {
		return domainagg.DeleteNodeResult{}, err
	}
	a.base.Log.Debug("node deleted", "node_id", in.ID, "deleted", out.Deleted, "mode", string(a.deleteMode))
	return out, nil
}

func (a *topicAggregate) deleteChildrenAndSelf(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	n, err := a.nodes.DeleteMany(dbc, roadmaprepo.ChildrenOf(id))
	if err != nil {
		return 0, err
	}
	ok, err := a.nodes.DeleteOne(dbc, roadmaprepo.ByID(id))
	if err != nil {
		return n, err
	}
	if ok {
		n++
	}
	return n, nil
}

// deleteSubtree collects ids level by level, then deletes leaves-last batches.
func (a *topicAggregate) deleteSubtree(dbc dbctx.Context, id uuid.UUID) (int64, error) {
	ids := []uuid.UUID{id}
	seen := map[uuid.UUID]struct{}{id: {}}
	frontier := []uuid.UUID{id}
	for len(frontier) > 0 {
		var next []uuid.UUID
		for start := 0; start < len(frontier); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(frontier))
			kids, err := a.nodes.FindMany(dbc, roadmaprepo.ChildrenOf(frontier[start:end]...))
			if err != nil {
				return 0, err
			}
			for _, k := range kids {
				if _, dup := seen[k.ID]; dup {
					continue
				}
				seen[k.ID] = struct{}{}
				ids = append(ids, k.ID)
				next = append(next, k.ID)
			}
		}
		frontier = next
	}

	var total int64
	for start := 0; start < len(ids); start += deleteBatchSize {
		end := min(start+deleteBatchSize, len(ids))
		n, err := a.nodes.DeleteMany(dbc, roadmaprepo.Filter{IDs: ids[start:end]})
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

func rootLockKey(rootID uuid.UUID) string {
	return "roadmap:root:" + rootID.String()
}

func (a *topicAggregate) lockRoot(ctx context.Context, op string, rootID uuid.UUID) (func(), error) {
	start := time.Now()
	unlock, err := a.locker.Lock(ctx, rootLockKey(rootID))
	a.base.Hooks.ObserveLockWait(op, err == nil, time.Since(start))
	if err != nil {
		a.base.Log.Warn("root lock not acquired", "op", op, "root_id", rootID, "error", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, MapError(op, err)
		}
		return nil, domainagg.Wrap(domainagg.CodeRetryable, op, err)
	}
	return unlock, nil
}

// withRetry re-runs fn after a store-level version conflict. Conflicts raised
// by an explicit ExpectedVersion are returned as is.
func (a *topicAggregate) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, roadmaprepo.ErrVersionConflict) {
			return err
		}
		if attempt >= a.maxRetries || ctx.Err() != nil {
			return err
		}
		a.base.Hooks.IncRetry(op)
		a.base.Log.Debug("version conflict; retrying mutation", "op", op, "attempt", attempt+1)
	}
}
