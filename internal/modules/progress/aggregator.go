package progress

import (
	"math"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	domain "github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

var tracer = otel.Tracer("roadmap.progress")

// parent ids per FindMany; keeps IN lists under driver parameter limits.
const maxParentBatch = 500

// Reader is the slice of the node store the aggregator needs.
type Reader interface {
	FindMany(dbc dbctx.Context, f roadmap.Filter) ([]*domain.Node, error)
}

// Aggregator derives a node's progress from the current state of its subtree.
// It never writes.
type Aggregator struct {
	store Reader
}

func NewAggregator(store Reader) *Aggregator {
	return &Aggregator{store: store}
}

// Compute returns the progress a node should carry. Tasks return their own
// progress. Any other node returns the weight-averaged progress of its direct
// children, each child evaluated recursively, or 0 with no children or zero
// total weight. A failed read aborts the whole computation.
func (a *Aggregator) Compute(dbc dbctx.Context, n *domain.Node) (int, error) {
	if n == nil {
		return 0, nil
	}
	if n.IsLeaf() {
		return n.Progress, nil
	}

	ctx, span := tracer.Start(dbc.Ctx, "progress.Compute",
		trace.WithAttributes(
			attribute.String("node.id", n.ID.String()),
			attribute.String("node.kind", string(n.Kind)),
		),
	)
	defer span.End()
	dbc.Ctx = ctx

	t, err := a.loadSubtree(dbc, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "subtree load failed")
		return 0, err
	}
	value := t.evaluate(n.ID)
	span.SetAttributes(
		attribute.Int("subtree.size", len(t.nodes)),
		attribute.Int("progress", value),
	)
	return value, nil
}

type subtree struct {
	nodes    map[uuid.UUID]*domain.Node
	children map[uuid.UUID][]uuid.UUID
}

// loadSubtree reads the tree under root one depth level per query.
// Tasks are not expanded since their progress is authoritative.
func (a *Aggregator) loadSubtree(dbc dbctx.Context, root *domain.Node) (*subtree, error) {
	t := &subtree{
		nodes:    map[uuid.UUID]*domain.Node{root.ID: root},
		children: map[uuid.UUID][]uuid.UUID{},
	}
	frontier := []uuid.UUID{root.ID}
	for len(frontier) > 0 {
		var next []uuid.UUID
		for start := 0; start < len(frontier); start += maxParentBatch {
			end := start + maxParentBatch
			if end > len(frontier) {
				end = len(frontier)
			}
			kids, err := a.store.FindMany(dbc, roadmap.ChildrenOf(frontier[start:end]...))
			if err != nil {
				return nil, err
			}
			for _, kid := range kids {
				if kid == nil || kid.ParentID == nil {
					continue
				}
				// a node reachable twice would mean a cycle; count it once
				if _, seen := t.nodes[kid.ID]; seen {
					continue
				}
				t.nodes[kid.ID] = kid
				t.children[*kid.ParentID] = append(t.children[*kid.ParentID], kid.ID)
				if !kid.IsLeaf() {
					next = append(next, kid.ID)
				}
			}
		}
		frontier = next
	}
	return t, nil
}

type frame struct {
	id       uuid.UUID
	expanded bool
}

// evaluate walks the arena in post-order with an explicit stack.
func (t *subtree) evaluate(rootID uuid.UUID) int {
	values := make(map[uuid.UUID]int, len(t.nodes))
	stack := []frame{{id: rootID}}
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		n := t.nodes[top.id]
		if n.IsLeaf() && top.id != rootID {
			values[top.id] = clampProgress(n.Progress)
			stack = stack[:len(stack)-1]
			continue
		}
		if !top.expanded {
			top.expanded = true
			for _, c := range t.children[top.id] {
				stack = append(stack, frame{id: c})
			}
			continue
		}
		kids := t.children[top.id]
		progress := make([]int, 0, len(kids))
		weights := make([]float64, 0, len(kids))
		for _, c := range kids {
			progress = append(progress, values[c])
			weights = append(weights, t.nodes[c].Weight)
		}
		values[top.id] = WeightedAverage(progress, weights)
		stack = stack[:len(stack)-1]
	}
	return values[rootID]
}

// WeightedAverage returns round(Σ p·w / Σ w), or 0 when there are no entries or
// the weights sum to zero. Negative and non-finite weights count as zero.
// Weights are scaled by the largest one first so the sums cannot overflow.
func WeightedAverage(progress []int, weights []float64) int {
	usable := func(i int) float64 {
		if i >= len(weights) {
			return 0
		}
		w := weights[i]
		if w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return 0
		}
		return w
	}
	var top float64
	for i := range progress {
		if w := usable(i); w > top {
			top = w
		}
	}
	if top == 0 {
		return 0
	}
	var total, sum float64
	for i := range progress {
		w := usable(i) / top
		total += w
		sum += float64(progress[i]) * w
	}
	return clampProgress(Round(sum / total))
}

// Round rounds half away from zero for the non-negative values progress takes,
// so 12.5 becomes 13.
func Round(x float64) int {
	return int(math.Floor(x + 0.5))
}

func clampProgress(p int) int {
	if p < domain.MinProgress {
		return domain.MinProgress
	}
	if p > domain.MaxProgress {
		return domain.MaxProgress
	}
	return p
}
