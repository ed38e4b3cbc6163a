package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/roadmap-backend/internal/data/aggregates"
	"github.com/yungbote/roadmap-backend/internal/data/repos"
	roadmaprepo "github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	repotest "github.com/yungbote/roadmap-backend/internal/data/repos/testutil"
	"github.com/yungbote/roadmap-backend/internal/domain"
	domainagg "github.com/yungbote/roadmap-backend/internal/domain/aggregates"
	"github.com/yungbote/roadmap-backend/internal/platform/apierr"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/pointers"
)

type topicFixture struct {
	svc   TopicService
	store *roadmaprepo.MemoryStore
	users repos.UserRepo
	alice *domain.User
	bob   *domain.User
}

func newTopicFixture(t *testing.T) *topicFixture {
	t.Helper()
	db := repotest.DB(t)
	log := repotest.Logger(t)
	ctx := context.Background()

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	store := roadmaprepo.NewMemoryStore().WithClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})
	users := repos.NewUserRepo(db, log)
	agg := aggregates.NewTopicAggregate(aggregates.TopicAggregateDeps{
		Base:  aggregates.BaseDeps{Log: log},
		Nodes: store,
	})
	return &topicFixture{
		svc:   NewTopicService(log, store, users, agg),
		store: store,
		users: users,
		alice: repotest.SeedUser(t, ctx, db, "alice"),
		bob:   repotest.SeedUser(t, ctx, db, "bob"),
	}
}

func (f *topicFixture) create(t *testing.T, uid uuid.UUID, kind domain.Kind, title string, parent *domain.Node) *domain.Node {
	t.Helper()
	in := CreateTopicInput{Kind: kind, Title: title}
	if parent != nil {
		in.ParentID = &parent.ID
	}
	n, err := f.svc.CreateTopic(context.Background(), uid, in)
	if err != nil {
		t.Fatalf("create %s %q: %v", kind, title, err)
	}
	return n
}

func wantStatus(t *testing.T, err error, status int) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected status %d, got nil error", status)
	}
	if got := apierr.StatusOf(err); got != status {
		t.Fatalf("status: want=%d got=%d (err=%v)", status, got, err)
	}
}

func TestCreateTopicRoutesRoadmapKindToRoot(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	stray := uuid.New()

	rm, err := f.svc.CreateTopic(ctx, f.alice.ID, CreateTopicInput{
		Kind:     domain.KindRoadmap,
		Title:    "Go",
		ParentID: &stray,
	})
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}
	if rm.ParentID != nil || rm.RootID != rm.ID {
		t.Fatalf("roadmap should be a root: parent=%v root=%s id=%s", rm.ParentID, rm.RootID, rm.ID)
	}
	if rm.OwnerID != f.alice.ID || !rm.IsPublic || rm.Weight != 1 || rm.Status != domain.StatusPending {
		t.Fatalf("unexpected defaults: %+v", rm)
	}
}

func TestCreateTopicErrors(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	rm := f.create(t, f.alice.ID, domain.KindRoadmap, "Go", nil)
	task := f.create(t, f.alice.ID, domain.KindTask, "Install", rm)

	_, err := f.svc.CreateTopic(ctx, uuid.Nil, CreateTopicInput{Kind: domain.KindRoadmap, Title: "x"})
	wantStatus(t, err, http.StatusUnauthorized)

	_, err = f.svc.CreateTopic(ctx, f.alice.ID, CreateTopicInput{Kind: domain.KindRoadmap})
	wantStatus(t, err, http.StatusBadRequest)
	if err.Error() != "title is required" {
		t.Fatalf("message: want=%q got=%q", "title is required", err.Error())
	}

	_, err = f.svc.CreateTopic(ctx, f.alice.ID, CreateTopicInput{Kind: "chapter", Title: "x"})
	wantStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.CreateTopic(ctx, f.alice.ID, CreateTopicInput{Kind: domain.KindTask, Title: "x", ParentID: &task.ID})
	wantStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.CreateTopic(ctx, f.bob.ID, CreateTopicInput{Kind: domain.KindTask, Title: "x", ParentID: &rm.ID})
	wantStatus(t, err, http.StatusNotFound)
}

func TestUpdateNodeCascadesAndHidesForeignNodes(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	rm := f.create(t, f.alice.ID, domain.KindRoadmap, "Go", nil)
	sub := f.create(t, f.alice.ID, domain.KindSubtopic, "Basics", rm)
	t1 := f.create(t, f.alice.ID, domain.KindTask, "Syntax", sub)
	f.create(t, f.alice.ID, domain.KindTask, "Types", sub)

	got, err := f.svc.UpdateNode(ctx, f.alice.ID, t1.ID, domainagg.NodePatch{Progress: pointers.Int(100)}, nil)
	if err != nil {
		t.Fatalf("UpdateNode: %v", err)
	}
	if got.Progress != 100 {
		t.Fatalf("task progress: want=100 got=%d", got.Progress)
	}
	root, err := f.svc.GetNode(ctx, f.alice.ID, rm.ID)
	if err != nil {
		t.Fatalf("GetNode: %v", err)
	}
	if root.Progress != 50 {
		t.Fatalf("root progress: want=50 got=%d", root.Progress)
	}

	_, err = f.svc.UpdateNode(ctx, f.bob.ID, t1.ID, domainagg.NodePatch{Progress: pointers.Int(0)}, nil)
	wantStatus(t, err, http.StatusNotFound)

	_, err = f.svc.UpdateNode(ctx, f.alice.ID, t1.ID, domainagg.NodePatch{Progress: pointers.Int(101)}, nil)
	wantStatus(t, err, http.StatusBadRequest)

	_, err = f.svc.UpdateNode(ctx, f.alice.ID, t1.ID, domainagg.NodePatch{Title: pointers.String("x")}, pointers.Int(1))
	wantStatus(t, err, http.StatusConflict)
}

func TestDeleteNodeRemovesSubtree(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	rm := f.create(t, f.alice.ID, domain.KindRoadmap, "Go", nil)
	sub := f.create(t, f.alice.ID, domain.KindSubtopic, "Basics", rm)
	f.create(t, f.alice.ID, domain.KindTask, "Syntax", sub)

	if _, err := f.svc.DeleteNode(ctx, f.bob.ID, rm.ID); apierr.StatusOf(err) != http.StatusNotFound {
		t.Fatalf("foreign delete: want 404 got %v", err)
	}
	if _, err := f.svc.DeleteNode(ctx, uuid.Nil, rm.ID); apierr.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("anonymous delete: want 401 got %v", err)
	}
	res, err := f.svc.DeleteNode(ctx, f.alice.ID, rm.ID)
	if err != nil {
		t.Fatalf("DeleteNode: %v", err)
	}
	if res.Deleted != 3 || res.Kind != domain.KindRoadmap || f.store.Len() != 0 {
		t.Fatalf("deleted: want=3 roadmap got=%d %s (left %d)", res.Deleted, res.Kind, f.store.Len())
	}
	_, err = f.svc.GetNode(ctx, f.alice.ID, rm.ID)
	wantStatus(t, err, http.StatusNotFound)
}

func TestGetChildrenOrderAndOwnership(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	rm := f.create(t, f.alice.ID, domain.KindRoadmap, "Go", nil)
	a := f.create(t, f.alice.ID, domain.KindSubtopic, "A", rm)
	b := f.create(t, f.alice.ID, domain.KindSubtopic, "B", rm)
	c := f.create(t, f.alice.ID, domain.KindTask, "C", rm)
	f.create(t, f.alice.ID, domain.KindTask, "nested", a)

	kids, err := f.svc.GetChildren(ctx, f.alice.ID, rm.ID)
	if err != nil {
		t.Fatalf("GetChildren: %v", err)
	}
	want := []uuid.UUID{a.ID, b.ID, c.ID}
	if len(kids) != len(want) {
		t.Fatalf("children: want=%d got=%d", len(want), len(kids))
	}
	for i := range want {
		if kids[i].ID != want[i] {
			t.Fatalf("child %d: want=%s got=%s", i, want[i], kids[i].ID)
		}
	}

	_, err = f.svc.GetChildren(ctx, f.bob.ID, rm.ID)
	wantStatus(t, err, http.StatusNotFound)
	_, err = f.svc.GetChildren(ctx, f.alice.ID, uuid.New())
	wantStatus(t, err, http.StatusNotFound)
}

func TestListRoadmapsAndTopicsAreOwnerScoped(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	first := f.create(t, f.alice.ID, domain.KindRoadmap, "first", nil)
	second := f.create(t, f.alice.ID, domain.KindRoadmap, "second", nil)
	f.create(t, f.alice.ID, domain.KindTask, "task", first)
	f.create(t, f.bob.ID, domain.KindRoadmap, "bob's", nil)

	rms, err := f.svc.ListRoadmaps(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("ListRoadmaps: %v", err)
	}
	if len(rms) != 2 || rms[0].ID != second.ID || rms[1].ID != first.ID {
		t.Fatalf("roadmaps not newest-updated first: %+v", rms)
	}

	all, err := f.svc.ListTopics(ctx, f.alice.ID)
	if err != nil {
		t.Fatalf("ListTopics: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("topics: want=3 got=%d", len(all))
	}
	for _, n := range all {
		if n.OwnerID != f.alice.ID {
			t.Fatalf("foreign node leaked: %+v", n)
		}
	}

	_, err = f.svc.ListTopics(ctx, uuid.Nil)
	wantStatus(t, err, http.StatusUnauthorized)
}

func TestListPublicRoadmapsAnnotatesOwners(t *testing.T) {
	f := newTopicFixture(t)
	ctx := context.Background()
	pub := f.create(t, f.alice.ID, domain.KindRoadmap, "public", nil)
	f.create(t, f.alice.ID, domain.KindSubtopic, "child", pub)
	if _, err := f.svc.CreateRoadmap(ctx, f.alice.ID, CreateTopicInput{Title: "private", IsPublic: pointers.Bool(false)}); err != nil {
		t.Fatalf("CreateRoadmap: %v", err)
	}
	bobs := f.create(t, f.bob.ID, domain.KindRoadmap, "bob's", nil)

	out, err := f.svc.ListPublicRoadmaps(ctx)
	if err != nil {
		t.Fatalf("ListPublicRoadmaps: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("public roadmaps: want=2 got=%d", len(out))
	}
	if out[0].ID != bobs.ID || out[1].ID != pub.ID {
		t.Fatalf("order: want=[%s %s] got=[%s %s]", bobs.ID, pub.ID, out[0].ID, out[1].ID)
	}
	if out[0].Owner == nil || out[0].Owner.Username != "bob" {
		t.Fatalf("owner annotation missing: %+v", out[0].Owner)
	}
	if out[1].Owner == nil || out[1].Owner.ID != f.alice.ID {
		t.Fatalf("owner annotation missing: %+v", out[1].Owner)
	}

	out[0].Title = "mutated"
	again, err := f.svc.ListPublicRoadmaps(ctx)
	if err != nil {
		t.Fatalf("ListPublicRoadmaps: %v", err)
	}
	if again[0].Title != "bob's" {
		t.Fatalf("callers share node memory: %q", again[0].Title)
	}
}

type failingFind struct {
	roadmaprepo.NodeStore
}

func (failingFind) FindMany(dbctx.Context, roadmaprepo.Filter) ([]*domain.Node, error) {
	return nil, errors.New("connection reset by peer")
}

func TestReadFailureIsGeneric500(t *testing.T) {
	log := repotest.Logger(t)
	store := failingFind{NodeStore: roadmaprepo.NewMemoryStore()}
	svc := NewTopicService(log, store, nil, aggregates.NewTopicAggregate(aggregates.TopicAggregateDeps{Nodes: store}))

	_, err := svc.ListPublicRoadmaps(context.Background())
	wantStatus(t, err, http.StatusInternalServerError)
	if err.Error() != "internal server error" {
		t.Fatalf("message leaked: %q", err.Error())
	}
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Code != string(domainagg.CodeStoreFailure) {
		t.Fatalf("code: want=%s got=%+v", domainagg.CodeStoreFailure, ae)
	}
}

func TestVisibilityFilter(t *testing.T) {
	var vis VisibilityFilter
	owner := uuid.New()
	root := &domain.Node{ID: uuid.New(), Kind: domain.KindRoadmap, OwnerID: owner, IsPublic: true}
	pid := root.ID
	child := &domain.Node{ID: uuid.New(), Kind: domain.KindTask, OwnerID: owner, ParentID: &pid, IsPublic: true}

	if !vis.CanSee(uuid.Nil, root) {
		t.Fatalf("public root should be visible anonymously")
	}
	if vis.CanSee(uuid.Nil, child) {
		t.Fatalf("public child should not be visible anonymously")
	}
	if !vis.CanSee(owner, child) {
		t.Fatalf("owner should see own child")
	}
	root.IsPublic = false
	if vis.CanSee(uuid.New(), root) {
		t.Fatalf("private root visible to stranger")
	}

	if err := vis.RequireActor(uuid.Nil); apierr.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("RequireActor(nil): want 401 got %v", err)
	}
	if err := vis.RequireActor(owner); err != nil {
		t.Fatalf("RequireActor: %v", err)
	}
	if _, err := vis.Owned(uuid.Nil, roadmaprepo.Filter{}); apierr.StatusOf(err) != http.StatusUnauthorized {
		t.Fatalf("Owned(nil): want 401 got %v", err)
	}
	f, err := vis.Owned(owner, roadmaprepo.Filter{})
	if err != nil || f.OwnerID == nil || *f.OwnerID != owner {
		t.Fatalf("Owned: filter not scoped: %+v err=%v", f, err)
	}
}

func TestToAPIErrorMapping(t *testing.T) {
	cases := []struct {
		code   domainagg.ErrorCode
		status int
	}{
		{domainagg.CodeValidation, http.StatusBadRequest},
		{domainagg.CodeNotFound, http.StatusNotFound},
		{domainagg.CodeConflict, http.StatusConflict},
		{domainagg.CodeRetryable, http.StatusServiceUnavailable},
		{domainagg.CodeStoreFailure, http.StatusInternalServerError},
		{domainagg.CodeInternal, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		err := toAPIError(domainagg.NewError(tc.code, "op", "boom", nil))
		if got := apierr.StatusOf(err); got != tc.status {
			t.Fatalf("%s: want=%d got=%d", tc.code, tc.status, got)
		}
	}
	if toAPIError(nil) != nil {
		t.Fatalf("nil should stay nil")
	}
	passthrough := apierr.Forbidden("forbidden", errors.New("nope"))
	if toAPIError(passthrough) != passthrough {
		t.Fatalf("api errors should pass through unchanged")
	}
}
