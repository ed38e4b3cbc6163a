// Package storetest holds the behavioural suite every NodeStore must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	domain "github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
)

// Factory returns an empty store for a single subtest.
type Factory func(t *testing.T) roadmap.NodeStore

func Run(t *testing.T, newStore Factory) {
	t.Run("InsertAssignsIdentity", func(t *testing.T) { testInsertAssignsIdentity(t, newStore(t)) })
	t.Run("ChildRequiresRoot", func(t *testing.T) { testChildRequiresRoot(t, newStore(t)) })
	t.Run("FindByIDMissing", func(t *testing.T) { testFindByIDMissing(t, newStore(t)) })
	t.Run("FilterSemantics", func(t *testing.T) { testFilterSemantics(t, newStore(t)) })
	t.Run("OrderUpdatedDesc", func(t *testing.T) { testOrderUpdatedDesc(t, newStore(t)) })
	t.Run("CompareAndSet", func(t *testing.T) { testCompareAndSet(t, newStore(t)) })
	t.Run("UpdateKeepsImmutableFields", func(t *testing.T) { testUpdateKeepsImmutableFields(t, newStore(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newStore(t)) })
}

func bg() dbctx.Context { return dbctx.Background(context.Background()) }

func NewRoot(owner uuid.UUID, title string) *domain.Node {
	return &domain.Node{
		Kind:     domain.KindRoadmap,
		Title:    title,
		OwnerID:  owner,
		Weight:   domain.DefaultWeight,
		Status:   domain.StatusPending,
		IsPublic: true,
	}
}

func NewChild(parent *domain.Node, kind domain.Kind, title string) *domain.Node {
	pid := parent.ID
	return &domain.Node{
		Kind:     kind,
		Title:    title,
		ParentID: &pid,
		RootID:   parent.RootID,
		OwnerID:  parent.OwnerID,
		Weight:   domain.DefaultWeight,
		Status:   domain.StatusPending,
		IsPublic: true,
	}
}

func mustSave(t *testing.T, s roadmap.NodeStore, n *domain.Node) *domain.Node {
	t.Helper()
	out, err := s.Save(bg(), n)
	require.NoError(t, err)
	return out
}

func testInsertAssignsIdentity(t *testing.T, s roadmap.NodeStore) {
	root := mustSave(t, s, NewRoot(uuid.New(), "Go"))
	require.NotEqual(t, uuid.Nil, root.ID)
	require.Equal(t, root.ID, root.RootID)
	require.Equal(t, 1, root.Version)
	require.False(t, root.CreatedAt.IsZero())

	got, err := s.FindByID(bg(), root.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "Go", got.Title)
	require.True(t, got.IsPublic)
	require.InDelta(t, 1.0, got.Weight, 1e-9)
}

func testChildRequiresRoot(t *testing.T, s roadmap.NodeStore) {
	root := mustSave(t, s, NewRoot(uuid.New(), "Go"))
	child := NewChild(root, domain.KindTask, "orphan")
	child.RootID = uuid.Nil
	_, err := s.Save(bg(), child)
	require.ErrorIs(t, err, domain.ErrInvalidNode)
}

func testFindByIDMissing(t *testing.T, s roadmap.NodeStore) {
	got, err := s.FindByID(bg(), uuid.New())
	require.NoError(t, err)
	require.Nil(t, got)

	one, err := s.FindOne(bg(), roadmap.ByID(uuid.New()))
	require.NoError(t, err)
	require.Nil(t, one)
}

func testFilterSemantics(t *testing.T, s roadmap.NodeStore) {
	alice, bob := uuid.New(), uuid.New()
	ra := mustSave(t, s, NewRoot(alice, "alice roadmap"))
	private := NewRoot(alice, "alice private")
	private.IsPublic = false
	rp := mustSave(t, s, private)
	rb := mustSave(t, s, NewRoot(bob, "bob roadmap"))
	sub := mustSave(t, s, NewChild(ra, domain.KindSubtopic, "sub"))
	task := mustSave(t, s, NewChild(sub, domain.KindTask, "task"))

	kids, err := s.FindMany(bg(), roadmap.ChildrenOf(ra.ID))
	require.NoError(t, err)
	require.Len(t, kids, 1)
	require.Equal(t, sub.ID, kids[0].ID)

	level, err := s.FindMany(bg(), roadmap.ChildrenOf(ra.ID, sub.ID))
	require.NoError(t, err)
	require.Len(t, level, 2)

	roots, err := s.FindMany(bg(), roadmap.Filter{RootsOnly: true}.WithOwner(alice).WithKind(domain.KindRoadmap))
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{ra.ID, rp.ID}, ids(roots))

	public := true
	pub, err := s.FindMany(bg(), roadmap.Filter{RootsOnly: true, IsPublic: &public})
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{ra.ID, rb.ID}, ids(pub))

	tree, err := s.FindMany(bg(), roadmap.Filter{RootID: &ra.ID})
	require.NoError(t, err)
	require.ElementsMatch(t, []uuid.UUID{ra.ID, sub.ID, task.ID}, ids(tree))

	other, err := s.FindOne(bg(), roadmap.ByID(task.ID).WithOwner(bob))
	require.NoError(t, err)
	require.Nil(t, other)
}

func testOrderUpdatedDesc(t *testing.T, s roadmap.NodeStore) {
	owner := uuid.New()
	first := mustSave(t, s, NewRoot(owner, "first"))
	time.Sleep(5 * time.Millisecond)
	mustSave(t, s, NewRoot(owner, "second"))
	time.Sleep(5 * time.Millisecond)
	first.Title = "first, touched"
	mustSave(t, s, first)

	got, err := s.FindMany(bg(), roadmap.Filter{RootsOnly: true}.WithOwner(owner).WithOrder(roadmap.OrderUpdatedDesc))
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "first, touched", got[0].Title)
	require.Equal(t, "second", got[1].Title)

	byCreated, err := s.FindMany(bg(), roadmap.Filter{RootsOnly: true}.WithOwner(owner).WithOrder(roadmap.OrderCreatedAsc))
	require.NoError(t, err)
	require.Equal(t, first.ID, byCreated[0].ID)
}

func testCompareAndSet(t *testing.T, s roadmap.NodeStore) {
	root := mustSave(t, s, NewRoot(uuid.New(), "Go"))
	stale := root.Clone()

	root.Progress = 40
	updated := mustSave(t, s, root)
	require.Equal(t, 2, updated.Version)

	stale.Progress = 90
	_, err := s.Save(bg(), stale)
	require.True(t, errors.Is(err, roadmap.ErrVersionConflict), "want version conflict, got %v", err)

	got, err := s.FindByID(bg(), root.ID)
	require.NoError(t, err)
	require.Equal(t, 40, got.Progress)
	require.Equal(t, 2, got.Version)
}

func testUpdateKeepsImmutableFields(t *testing.T, s roadmap.NodeStore) {
	root := mustSave(t, s, NewRoot(uuid.New(), "Go"))
	task := mustSave(t, s, NewChild(root, domain.KindTask, "task"))

	tampered := task.Clone()
	tampered.OwnerID = uuid.New()
	tampered.Kind = domain.KindSubtopic
	tampered.Progress = 75
	tampered.Status = domain.StatusInProgress
	mustSave(t, s, tampered)

	got, err := s.FindByID(bg(), task.ID)
	require.NoError(t, err)
	require.Equal(t, task.OwnerID, got.OwnerID)
	require.Equal(t, domain.KindTask, got.Kind)
	require.Equal(t, root.ID, *got.ParentID)
	require.Equal(t, 75, got.Progress)
	require.Equal(t, domain.StatusInProgress, got.Status)
}

func testDelete(t *testing.T, s roadmap.NodeStore) {
	root := mustSave(t, s, NewRoot(uuid.New(), "Go"))
	a := mustSave(t, s, NewChild(root, domain.KindTask, "a"))
	mustSave(t, s, NewChild(root, domain.KindTask, "b"))

	_, err := s.DeleteMany(bg(), roadmap.Filter{})
	require.ErrorIs(t, err, roadmap.ErrUnboundedDelete)

	ok, err := s.DeleteOne(bg(), roadmap.ByID(a.ID))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.DeleteOne(bg(), roadmap.ByID(a.ID))
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.DeleteMany(bg(), roadmap.ChildrenOf(root.ID))
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	left, err := s.FindMany(bg(), roadmap.Filter{RootID: &root.ID})
	require.NoError(t, err)
	require.Len(t, left, 1)
}

func ids(nodes []*domain.Node) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}
