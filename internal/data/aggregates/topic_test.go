package aggregates_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/data/aggregates/testutil"
	roadmaprepo "github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	repotest "github.com/yungbote/roadmap-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/locks"
	"github.com/yungbote/roadmap-backend/internal/platform/pointers"
)

var errDiskFull = errors.New("disk full")

// flakyStore injects version conflicts and save failures in front of a real store.
type flakyStore struct {
	roadmaprepo.NodeStore

	mu        sync.Mutex
	conflicts int
	failOn    map[uuid.UUID]error
	saves     int
}

func (s *flakyStore) Save(dbc dbctx.Context, n *roadmap.Node) (*roadmap.Node, error) {
	s.mu.Lock()
	s.saves++
	if s.conflicts > 0 && n.Version > 0 {
		s.conflicts--
		s.mu.Unlock()
		return nil, roadmaprepo.ErrVersionConflict
	}
	err := s.failOn[n.ID]
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.NodeStore.Save(dbc, n)
}

type recordingLocker struct {
	inner *locks.Keyed
	mu    sync.Mutex
	keys  []string
}

func (l *recordingLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return l.inner.Lock(ctx, key)
}

type failingLocker struct{}

func (failingLocker) Lock(context.Context, string) (func(), error) {
	return nil, errors.New("lock backend unavailable")
}

type fixture struct {
	store  *flakyStore
	hooks  *testutil.HooksRecorder
	locker *recordingLocker
	agg    domainagg.TopicAggregate
	owner  uuid.UUID
}

func newFixture(t *testing.T, configure ...func(*aggregates.TopicAggregateDeps)) *fixture {
	t.Helper()
	return newFixtureOn(t, roadmaprepo.NewMemoryStore(), aggregates.BaseDeps{}, configure...)
}

func newFixtureOn(t *testing.T, inner roadmaprepo.NodeStore, base aggregates.BaseDeps, configure ...func(*aggregates.TopicAggregateDeps)) *fixture {
	t.Helper()
	f := &fixture{
		store:  &flakyStore{NodeStore: inner, failOn: map[uuid.UUID]error{}},
		hooks:  &testutil.HooksRecorder{},
		locker: &recordingLocker{inner: locks.NewKeyed()},
		owner:  uuid.New(),
	}
	base.Hooks = f.hooks
	base.Log = repotest.Logger(t)
	deps := aggregates.TopicAggregateDeps{
		Base:   base,
		Nodes:  f.store,
		Locker: f.locker,
	}
	for _, fn := range configure {
		fn(&deps)
	}
	f.agg = aggregates.NewTopicAggregate(deps)
	return f
}

func (f *fixture) create(t *testing.T, kind roadmap.Kind, title string, parent *roadmap.Node) *roadmap.Node {
	t.Helper()
	in := domainagg.CreateNodeInput{OwnerID: f.owner, Kind: kind, Title: title}
	if parent != nil {
		in.ParentID = pointers.Ptr(parent.ID)
	}
	n, err := f.agg.CreateNode(context.Background(), in)
	if err != nil {
		t.Fatalf("create %s %q: %v", kind, title, err)
	}
	return n
}

func (f *fixture) setProgress(t *testing.T, n *roadmap.Node, p int) domainagg.UpdateNodeResult {
	t.Helper()
	res, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID:      n.ID,
		OwnerID: f.owner,
		Patch:   domainagg.NodePatch{Progress: pointers.Int(p)},
	})
	if err != nil {
		t.Fatalf("set progress on %s: %v", n.ID, err)
	}
	return res
}

func (f *fixture) load(t *testing.T, id uuid.UUID) *roadmap.Node {
	t.Helper()
	n, err := f.store.FindByID(dbctx.Background(context.Background()), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	return n
}

func TestCreateRoadmapAppliesDefaults(t *testing.T) {
	f := newFixture(t)
	n, err := f.agg.CreateNode(context.Background(), domainagg.CreateNodeInput{
		OwnerID:  f.owner,
		Kind:     roadmap.KindRoadmap,
		Title:    "  Learn Go  ",
		Weight:   pointers.Float64(0),
		ParentID: pointers.Ptr(uuid.New()),
	})
	if err != nil {
		t.Fatalf("CreateNode: %v", err)
	}
	if n.ParentID != nil || n.RootID != n.ID {
		t.Fatalf("roadmap must be a root pointing at itself: parent=%v root=%s id=%s", n.ParentID, n.RootID, n.ID)
	}
	if n.Title != "Learn Go" || n.Weight != 1 || n.Status != roadmap.StatusPending || !n.IsPublic {
		t.Fatalf("defaults not applied: %+v", n)
	}
	if n.Version != 1 || n.Progress != 0 {
		t.Fatalf("fresh node: version=%d progress=%d", n.Version, n.Progress)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		in   domainagg.CreateNodeInput
	}{
		{"unknown kind", domainagg.CreateNodeInput{OwnerID: f.owner, Kind: "chapter", Title: "x"}},
		{"blank title", domainagg.CreateNodeInput{OwnerID: f.owner, Kind: roadmap.KindRoadmap, Title: "   "}},
		{"negative weight", domainagg.CreateNodeInput{OwnerID: f.owner, Kind: roadmap.KindRoadmap, Title: "x", Weight: pointers.Float64(-1)}},
		{"oversized weight", domainagg.CreateNodeInput{OwnerID: f.owner, Kind: roadmap.KindRoadmap, Title: "x", Weight: pointers.Float64(1e308)}},
		{"bad status", domainagg.CreateNodeInput{OwnerID: f.owner, Kind: roadmap.KindRoadmap, Title: "x", Status: pointers.Ptr(roadmap.Status("blocked"))}},
		{"missing owner", domainagg.CreateNodeInput{Kind: roadmap.KindRoadmap, Title: "x"}},
	}
	for _, tc := range cases {
		_, err := f.agg.CreateNode(context.Background(), tc.in)
		if !domainagg.IsCode(err, domainagg.CodeValidation) {
			t.Fatalf("%s: want validation got %q (%v)", tc.name, domainagg.CodeOf(err), err)
		}
	}
	if f.store.saves != 0 {
		t.Fatalf("invalid input must not reach the store, saw %d saves", f.store.saves)
	}
}

func TestCreateTopicRequiresOwnedParent(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)

	_, err := f.agg.CreateNode(context.Background(), domainagg.CreateNodeInput{
		OwnerID:  uuid.New(),
		Kind:     roadmap.KindSubtopic,
		Title:    "intruder",
		ParentID: pointers.Ptr(root.ID),
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("foreign parent: want not_found got %q (%v)", domainagg.CodeOf(err), err)
	}

	_, err = f.agg.CreateNode(context.Background(), domainagg.CreateNodeInput{
		OwnerID:  f.owner,
		Kind:     roadmap.KindTask,
		Title:    "orphan",
		ParentID: pointers.Ptr(uuid.New()),
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("missing parent: want not_found got %q (%v)", domainagg.CodeOf(err), err)
	}
}

func TestCreateTopicInheritsRootAndLocksIt(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	sub := f.create(t, roadmap.KindSubtopic, "S", root)
	task := f.create(t, roadmap.KindTask, "T", sub)

	if sub.RootID != root.ID || task.RootID != root.ID {
		t.Fatalf("descendants must share the root id: sub=%s task=%s root=%s", sub.RootID, task.RootID, root.ID)
	}
	if task.ParentID == nil || *task.ParentID != sub.ID {
		t.Fatalf("task parent: %v", task.ParentID)
	}
	want := "roadmap:root:" + root.ID.String()
	if len(f.locker.keys) != 2 || f.locker.keys[0] != want || f.locker.keys[1] != want {
		t.Fatalf("lock keys: %v", f.locker.keys)
	}
}

func TestCreateUnderTaskKeepsTaskProgress(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	task := f.create(t, roadmap.KindTask, "T", root)
	f.setProgress(t, task, 40)

	nested := f.create(t, roadmap.KindTask, "nested", task)
	if nested.ParentID == nil || *nested.ParentID != task.ID || nested.RootID != root.ID {
		t.Fatalf("nested task: parent=%v root=%s", nested.ParentID, nested.RootID)
	}

	f.setProgress(t, nested, 100)
	if got := f.load(t, task.ID).Progress; got != 40 {
		t.Fatalf("task progress is set directly: want=40 got=%d", got)
	}
	if got := f.load(t, root.ID).Progress; got != 40 {
		t.Fatalf("root: want=40 got=%d", got)
	}
}

func TestCreateIsLazyByDefault(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	first := f.create(t, roadmap.KindTask, "T1", root)
	f.setProgress(t, first, 100)

	f.create(t, roadmap.KindTask, "T2", root)
	if got := f.load(t, root.ID).Progress; got != 100 {
		t.Fatalf("lazy create should leave the parent alone: want=100 got=%d", got)
	}
}

func TestCreateEagerRecomputesParent(t *testing.T) {
	f := newFixture(t, func(d *aggregates.TopicAggregateDeps) { d.EagerRecompute = true })
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	first := f.create(t, roadmap.KindTask, "T1", root)
	f.setProgress(t, first, 100)

	f.create(t, roadmap.KindTask, "T2", root)
	if got := f.load(t, root.ID).Progress; got != 50 {
		t.Fatalf("eager create: want=50 got=%d", got)
	}
}

func TestUpdateLeafCascadesToRoot(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	parent := f.create(t, roadmap.KindSubtopic, "P", root)
	task := f.create(t, roadmap.KindTask, "T", parent)

	res := f.setProgress(t, task, 100)
	if res.Node.Progress != 100 || res.AncestorsPersisted != 2 {
		t.Fatalf("update result: progress=%d ancestors=%d", res.Node.Progress, res.AncestorsPersisted)
	}
	if got := f.load(t, parent.ID).Progress; got != 100 {
		t.Fatalf("parent: want=100 got=%d", got)
	}
	if got := f.load(t, root.ID).Progress; got != 100 {
		t.Fatalf("root: want=100 got=%d", got)
	}
}

func TestUpdateAppliesOnlyPresentFields(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	task := f.create(t, roadmap.KindTask, "T", root)
	f.setProgress(t, task, 60)

	res, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID:      task.ID,
		OwnerID: f.owner,
		Patch:   domainagg.NodePatch{Title: pointers.String("Renamed"), IsPublic: pointers.Bool(false)},
	})
	if err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if res.Node.Title != "Renamed" || res.Node.IsPublic || res.Node.Progress != 60 || res.Node.Weight != 1 {
		t.Fatalf("patch semantics: %+v", res.Node)
	}
	if res.AncestorsPersisted != 0 {
		t.Fatalf("title change should not cascade, got %d", res.AncestorsPersisted)
	}

	// zero is a present value, not an absent one
	res = f.setProgress(t, task, 0)
	if res.Node.Progress != 0 || f.load(t, root.ID).Progress != 0 {
		t.Fatalf("explicit zero progress should apply and cascade")
	}
}

func TestUpdateStatusAndWeightCascade(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	a := f.create(t, roadmap.KindTask, "A", root)
	b := f.create(t, roadmap.KindTask, "B", root)
	f.setProgress(t, a, 50)
	f.setProgress(t, b, 20)
	if got := f.load(t, root.ID).Progress; got != 35 {
		t.Fatalf("equal weights: want=35 got=%d", got)
	}

	res, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: a.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Weight: pointers.Float64(2)},
	})
	if err != nil {
		t.Fatalf("UpdateNode weight: %v", err)
	}
	if res.AncestorsPersisted != 1 || f.load(t, root.ID).Progress != 40 {
		t.Fatalf("weight change: ancestors=%d root=%d", res.AncestorsPersisted, f.load(t, root.ID).Progress)
	}

	res, err = f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: b.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Status: pointers.Ptr(roadmap.StatusDone)},
	})
	if err != nil {
		t.Fatalf("UpdateNode status: %v", err)
	}
	if res.Node.Status != roadmap.StatusDone || res.AncestorsPersisted != 1 {
		t.Fatalf("status change should cascade: %+v ancestors=%d", res.Node, res.AncestorsPersisted)
	}

	// any transition is allowed, including back to pending
	res, err = f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: b.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Status: pointers.Ptr(roadmap.StatusPending)},
	})
	if err != nil || res.Node.Status != roadmap.StatusPending {
		t.Fatalf("done -> pending: err=%v", err)
	}
}

func TestMaxWeightChildrenAverageCorrectly(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	for _, title := range []string{"A", "B"} {
		n := f.create(t, roadmap.KindTask, title, root)
		if _, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
			ID: n.ID, OwnerID: f.owner,
			Patch: domainagg.NodePatch{Weight: pointers.Float64(roadmap.MaxWeight), Progress: pointers.Int(50)},
		}); err != nil {
			t.Fatalf("UpdateNode %s: %v", title, err)
		}
	}
	if got := f.load(t, root.ID).Progress; got != 50 {
		t.Fatalf("root: want=50 got=%d", got)
	}
}

func TestUpdateProgressOnDerivedNodeIsRecomputed(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	sub := f.create(t, roadmap.KindSubtopic, "S", root)
	task := f.create(t, roadmap.KindTask, "T", sub)
	f.setProgress(t, task, 30)

	res := f.setProgress(t, sub, 90)
	if res.Node.Progress != 30 {
		t.Fatalf("subtopic progress is derived: want=30 got=%d", res.Node.Progress)
	}
	if got := f.load(t, root.ID).Progress; got != 30 {
		t.Fatalf("root: want=30 got=%d", got)
	}
}

func TestUpdateRejectsInvalidPatch(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	for name, patch := range map[string]domainagg.NodePatch{
		"progress above range": {Progress: pointers.Int(101)},
		"negative progress":    {Progress: pointers.Int(-1)},
		"negative weight":      {Weight: pointers.Float64(-0.5)},
		"oversized weight":     {Weight: pointers.Float64(1e308)},
		"blank title":          {Title: pointers.String(" ")},
		"unknown status":       {Status: pointers.Ptr(roadmap.Status("paused"))},
	} {
		_, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{ID: root.ID, OwnerID: f.owner, Patch: patch})
		if !domainagg.IsCode(err, domainagg.CodeValidation) {
			t.Fatalf("%s: want validation got %q (%v)", name, domainagg.CodeOf(err), err)
		}
	}
}

func TestUpdateIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)

	_, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID:      root.ID,
		OwnerID: uuid.New(),
		Patch:   domainagg.NodePatch{Title: pointers.String("hijacked")},
	})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found got %q (%v)", domainagg.CodeOf(err), err)
	}
	if got := f.load(t, root.ID); got.Title != "R" || got.Version != 1 {
		t.Fatalf("foreign update must not mutate: %+v", got)
	}
}

func TestUpdateExpectedVersionMismatchIsConflict(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)

	_, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID:              root.ID,
		OwnerID:         f.owner,
		Patch:           domainagg.NodePatch{Title: pointers.String("new")},
		ExpectedVersion: pointers.Int(7),
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("want conflict got %q (%v)", domainagg.CodeOf(err), err)
	}
	if len(f.hooks.Retries) != 0 {
		t.Fatalf("caller version mismatch must not be retried: %v", f.hooks.Retries)
	}

	res, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID:              root.ID,
		OwnerID:         f.owner,
		Patch:           domainagg.NodePatch{Title: pointers.String("new")},
		ExpectedVersion: pointers.Int(1),
	})
	if err != nil || res.Node.Version != 2 {
		t.Fatalf("matching version: err=%v node=%+v", err, res.Node)
	}
}

func TestUpdateRetriesStoreConflicts(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	task := f.create(t, roadmap.KindTask, "T", root)
	f.store.conflicts = 2

	res := f.setProgress(t, task, 80)
	if res.Node.Progress != 80 || f.load(t, root.ID).Progress != 80 {
		t.Fatalf("retried update should land: %+v", res.Node)
	}
	if len(f.hooks.Retries) != 2 {
		t.Fatalf("retries: want=2 got=%d", len(f.hooks.Retries))
	}
	if len(f.hooks.Conflicts) != 2 {
		t.Fatalf("conflicts: want=2 got=%d", len(f.hooks.Conflicts))
	}
}

func TestUpdateGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t, func(d *aggregates.TopicAggregateDeps) { d.MaxRetries = 1 })
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	f.store.conflicts = 100
	f.store.saves = 0

	_, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: root.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Title: pointers.String("x")},
	})
	if !domainagg.IsCode(err, domainagg.CodeConflict) {
		t.Fatalf("want conflict got %q (%v)", domainagg.CodeOf(err), err)
	}
	if f.store.saves != 2 {
		t.Fatalf("attempts: want=2 got=%d", f.store.saves)
	}
}

func TestCascadeFailureSurfacesWithoutTransaction(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	sub := f.create(t, roadmap.KindSubtopic, "S", root)
	task := f.create(t, roadmap.KindTask, "T", sub)
	f.store.failOn[root.ID] = errDiskFull

	_, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: task.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Progress: pointers.Int(100)},
	})
	if !domainagg.IsCode(err, domainagg.CodeStoreFailure) || !errors.Is(err, errDiskFull) {
		t.Fatalf("want store_failure wrapping the cause, got %q (%v)", domainagg.CodeOf(err), err)
	}
	// the memory store has no rollback: writes before the failure persist
	if f.load(t, task.ID).Progress != 100 || f.load(t, sub.ID).Progress != 100 {
		t.Fatalf("writes before the failure should remain")
	}
	if f.load(t, root.ID).Progress != 0 {
		t.Fatalf("root must keep its stale value")
	}
}

func TestCascadeFailureRollsBackInSQLTransaction(t *testing.T) {
	db := repotest.DB(t)
	f := newFixtureOn(t, roadmaprepo.NewNodeRepo(db, repotest.Logger(t)), aggregates.BaseDeps{DB: db})
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	sub := f.create(t, roadmap.KindSubtopic, "S", root)
	task := f.create(t, roadmap.KindTask, "T", sub)
	f.store.failOn[root.ID] = errDiskFull

	_, err := f.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: task.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Progress: pointers.Int(100)},
	})
	if !domainagg.IsCode(err, domainagg.CodeStoreFailure) {
		t.Fatalf("want store_failure got %q (%v)", domainagg.CodeOf(err), err)
	}
	for _, id := range []uuid.UUID{task.ID, sub.ID, root.ID} {
		if n := f.load(t, id); n.Progress != 0 || n.Version != 1 {
			t.Fatalf("%s should be rolled back: progress=%d version=%d", id, n.Progress, n.Version)
		}
	}

	delete(f.store.failOn, root.ID)
	f.setProgress(t, task, 100)
	if f.load(t, root.ID).Progress != 100 {
		t.Fatalf("sql cascade should reach the root once the store recovers")
	}
}

func TestCommitFailureIsSurfaced(t *testing.T) {
	runner := &testutil.InjectedTxRunner{FailCommit: errors.New("commit failed")}
	f := newFixture(t, func(d *aggregates.TopicAggregateDeps) { d.Base.Runner = runner })

	_, err := f.agg.CreateNode(context.Background(), domainagg.CreateNodeInput{OwnerID: f.owner, Kind: roadmap.KindRoadmap, Title: "R"})
	if !domainagg.IsCode(err, domainagg.CodeStoreFailure) {
		t.Fatalf("want store_failure got %q (%v)", domainagg.CodeOf(err), err)
	}
	if runner.Rollbacks != 1 {
		t.Fatalf("rollbacks: want=1 got=%d", runner.Rollbacks)
	}
	if len(f.hooks.Operations) != 1 || f.hooks.Operations[0].Status != string(domainagg.CodeStoreFailure) {
		t.Fatalf("operation hooks: %+v", f.hooks.Operations)
	}
}

func TestLockFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	g := newFixtureOn(t, f.store.NodeStore, aggregates.BaseDeps{}, func(d *aggregates.TopicAggregateDeps) { d.Locker = failingLocker{} })
	g.owner = f.owner

	_, err := g.agg.UpdateNode(context.Background(), domainagg.UpdateNodeInput{
		ID: root.ID, OwnerID: f.owner,
		Patch: domainagg.NodePatch{Title: pointers.String("x")},
	})
	if !domainagg.IsCode(err, domainagg.CodeRetryable) {
		t.Fatalf("want retryable got %q (%v)", domainagg.CodeOf(err), err)
	}
	if len(g.hooks.LockWaits) != 1 || g.hooks.LockWaits[0].Acquired {
		t.Fatalf("lock waits: %+v", g.hooks.LockWaits)
	}
	if g.hooks.LockWaits[0].Name != "topic.update_node" {
		t.Fatalf("lock wait op: want=topic.update_node got=%s", g.hooks.LockWaits[0].Name)
	}
}

func buildTree(t *testing.T, f *fixture) (root, sub, grand *roadmap.Node) {
	t.Helper()
	root = f.create(t, roadmap.KindRoadmap, "R", nil)
	sub = f.create(t, roadmap.KindSubtopic, "S", root)
	mid := f.create(t, roadmap.KindSubtopic, "S2", sub)
	grand = f.create(t, roadmap.KindTask, "T", mid)
	f.create(t, roadmap.KindTask, "T2", root)
	return root, sub, grand
}

func TestDeleteRoadmapRemovesEverything(t *testing.T) {
	f := newFixture(t)
	root, sub, grand := buildTree(t, f)
	other := f.create(t, roadmap.KindRoadmap, "Other", nil)

	res, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: root.ID, OwnerID: f.owner})
	if err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if res.Deleted != 5 {
		t.Fatalf("deleted: want=5 got=%d", res.Deleted)
	}
	for _, id := range []uuid.UUID{root.ID, sub.ID, grand.ID} {
		if f.load(t, id) != nil {
			t.Fatalf("%s should be gone", id)
		}
	}
	if f.load(t, other.ID) == nil {
		t.Fatalf("unrelated roadmap must survive")
	}
}

func TestDeleteSubtopicRemovesFullSubtree(t *testing.T) {
	f := newFixture(t)
	root, sub, grand := buildTree(t, f)

	res, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: sub.ID, OwnerID: f.owner})
	if err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if res.Deleted != 3 {
		t.Fatalf("deleted: want=3 got=%d", res.Deleted)
	}
	if f.load(t, grand.ID) != nil {
		t.Fatalf("grandchild should be deleted with the subtree")
	}
	if f.load(t, root.ID) == nil {
		t.Fatalf("root must survive")
	}
}

func TestDeleteLegacyModeKeepsGrandchildren(t *testing.T) {
	f := newFixture(t, func(d *aggregates.TopicAggregateDeps) { d.DeleteMode = aggregates.DeleteLegacy })
	root, sub, grand := buildTree(t, f)

	res, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: sub.ID, OwnerID: f.owner})
	if err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if res.Deleted != 2 {
		t.Fatalf("deleted: want=2 got=%d", res.Deleted)
	}
	if f.load(t, grand.ID) == nil {
		t.Fatalf("legacy delete leaves grandchildren behind")
	}

	res, err = f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: root.ID, OwnerID: f.owner})
	if err != nil {
		t.Fatalf("DeleteNode root: %v", err)
	}
	if f.load(t, grand.ID) != nil {
		t.Fatalf("roadmap delete removes every node of the tree, orphans included")
	}
}

func TestDeleteEagerRecomputesParent(t *testing.T) {
	f := newFixture(t, func(d *aggregates.TopicAggregateDeps) { d.EagerRecompute = true })
	root := f.create(t, roadmap.KindRoadmap, "R", nil)
	done := f.create(t, roadmap.KindTask, "done", root)
	open := f.create(t, roadmap.KindTask, "open", root)
	f.setProgress(t, done, 100)
	if f.load(t, root.ID).Progress != 50 {
		t.Fatalf("setup: root should be at 50")
	}

	if _, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: open.ID, OwnerID: f.owner}); err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if got := f.load(t, root.ID).Progress; got != 100 {
		t.Fatalf("eager delete: want=100 got=%d", got)
	}
}

func TestDeleteIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	root := f.create(t, roadmap.KindRoadmap, "R", nil)

	_, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: root.ID, OwnerID: uuid.New()})
	if !domainagg.IsCode(err, domainagg.CodeNotFound) {
		t.Fatalf("want not_found got %q (%v)", domainagg.CodeOf(err), err)
	}
	if f.load(t, root.ID) == nil {
		t.Fatalf("foreign delete must not remove anything")
	}
}

func TestDeleteInSQLStore(t *testing.T) {
	db := repotest.DB(t)
	f := newFixtureOn(t, roadmaprepo.NewNodeRepo(db, repotest.Logger(t)), aggregates.BaseDeps{DB: db})
	root, sub, grand := buildTree(t, f)

	if _, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: sub.ID, OwnerID: f.owner}); err != nil {
		t.Fatalf("DeleteNode subtopic: %v", err)
	}
	if f.load(t, grand.ID) != nil {
		t.Fatalf("grandchild should be deleted")
	}
	res, err := f.agg.DeleteNode(context.Background(), domainagg.DeleteNodeInput{ID: root.ID, OwnerID: f.owner})
	if err != nil {
		t.Fatalf("DeleteNode root: %v", err)
	}
	if res.Deleted != 2 {
		t.Fatalf("deleted: want=2 got=%d", res.Deleted)
	}
}
