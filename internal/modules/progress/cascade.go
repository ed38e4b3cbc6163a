package progress

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	domain "github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

// Store is what the cascade reads and writes.
type Store interface {
	Reader
	FindByID(dbc dbctx.Context, id uuid.UUID) (*domain.Node, error)
	Save(dbc dbctx.Context, n *domain.Node) (*domain.Node, error)
}

// Observer receives cascade outcomes; observability.Metrics implements it.
type Observer interface {
	ObserveCascade(status string, persisted int, dur time.Duration)
	IncInconsistent(reason string)
}

type noopObserver struct{}

func (noopObserver) ObserveCascade(string, int, time.Duration) {}
func (noopObserver) IncInconsistent(string)                    {}

// Inconsistency reasons reported to the Observer.
const (
	ReasonDanglingParent = "dangling_parent"
	ReasonParentCycle    = "parent_cycle"
)

type ControllerDeps struct {
	Store      Store
	Aggregator *Aggregator
	Log        *logger.Logger
	Observer   Observer
}

// Controller recomputes and persists ancestors after a node write.
type Controller struct {
	store Store
	agg   *Aggregator
	log   *logger.Logger
	obs   Observer
}

func NewController(deps ControllerDeps) *Controller {
	agg := deps.Aggregator
	if agg == nil {
		agg = NewAggregator(deps.Store)
	}
	obs := deps.Observer
	if obs == nil {
		obs = noopObserver{}
	}
	log := deps.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Controller{
		store: deps.Store,
		agg:   agg,
		log:   log.With("service", "ProgressCascade"),
		obs:   obs,
	}
}

// Result reports what a cascade did. Ancestors holds the persisted copies,
// nearest parent first.
type Result struct {
	Persisted    int
	Ancestors    []*domain.Node
	Inconsistent bool
}

// OnNodeSaved runs after n has been persisted. Roots end the walk immediately.
// Otherwise every ancestor up to the root is recomputed and saved once, so a
// leaf at depth D costs exactly D ancestor writes.
//
// A missing parent stops the walk without error and is only logged. A failed
// read or save aborts the walk and is returned; ancestors already saved keep
// their new values unless the caller's transaction rolls back.
func (c *Controller) OnNodeSaved(dbc dbctx.Context, n *domain.Node) (Result, error) {
	if n == nil || n.ParentID == nil {
		return Result{}, nil
	}
	return c.RecomputeFrom(dbc, *n.ParentID)
}

// RecomputeFrom recomputes startID itself and then each of its ancestors.
func (c *Controller) RecomputeFrom(dbc dbctx.Context, startID uuid.UUID) (Result, error) {
	start := time.Now()
	ctx, span := tracer.Start(dbc.Ctx, "progress.Cascade",
		trace.WithAttributes(attribute.String("start.id", startID.String())),
	)
	defer span.End()
	dbc.Ctx = ctx

	res, err := c.walk(dbc, startID)
	span.SetAttributes(
		attribute.Int("ancestors.persisted", res.Persisted),
		attribute.Bool("inconsistent", res.Inconsistent),
	)
	status := "success"
	switch {
	case err != nil:
		status = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, "cascade aborted")
	case res.Inconsistent:
		status = "inconsistent"
	}
	c.obs.ObserveCascade(status, res.Persisted, time.Since(start))
	return res, err
}

func (c *Controller) walk(dbc dbctx.Context, startID uuid.UUID) (Result, error) {
	var res Result
	visited := map[uuid.UUID]struct{}{}
	nextID := startID
	for {
		if _, seen := visited[nextID]; seen {
			c.log.Warn("parent chain loops back on itself; cascade stopped", "node_id", nextID)
			c.obs.IncInconsistent(ReasonParentCycle)
			res.Inconsistent = true
			return res, nil
		}
		visited[nextID] = struct{}{}

		node, err := c.store.FindByID(dbc, nextID)
		if err != nil {
			return res, fmt.Errorf("load ancestor %s: %w", nextID, err)
		}
		if node == nil {
			c.log.Warn("dangling parent reference; cascade stopped", "parent_id", nextID, "persisted", res.Persisted)
			c.obs.IncInconsistent(ReasonDanglingParent)
			res.Inconsistent = true
			return res, nil
		}

		p, err := c.agg.Compute(dbc, node)
		if err != nil {
			return res, fmt.Errorf("compute ancestor %s: %w", node.ID, err)
		}
		node.Progress = p
		saved, err := c.store.Save(dbc, node)
		if err != nil {
			return res, fmt.Errorf("persist ancestor %s: %w", node.ID, err)
		}
		res.Persisted++
		res.Ancestors = append(res.Ancestors, saved)

		if saved.ParentID == nil {
			return res, nil
		}
		nextID = *saved.ParentID
	}
}

var _ Store = roadmap.NodeStore(nil)
