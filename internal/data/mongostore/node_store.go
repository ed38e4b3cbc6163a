package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	domain "github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
)

const collectionName = "topics"

type nodeDoc struct {
	ID          string    `bson:"_id"`
	Kind        string    `bson:"type"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	ParentID    *string   `bson:"parentId"`
	RootID      string    `bson:"rootId"`
	OwnerID     string    `bson:"ownerId"`
	Progress    int       `bson:"progress"`
	Weight      float64   `bson:"weight"`
	Status      string    `bson:"status"`
	IsPublic    bool      `bson:"isPublic"`
	Version     int       `bson:"version"`
	CreatedAt   time.Time `bson:"createdAt"`
	UpdatedAt   time.Time `bson:"updatedAt"`
}

// NodeStore keeps roadmap nodes in a single Mongo collection. Writes are not
// transactional; the dbctx transaction handle is ignored.
type NodeStore struct {
	coll *mongo.Collection
	log  *logger.Logger
	now  func() time.Time
}

var _ roadmap.NodeStore = (*NodeStore)(nil)

// Connect dials uri, pings, and returns the client for lifecycle management.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	return client, nil
}

func NewNodeStore(db *mongo.Database, baseLog *logger.Logger) *NodeStore {
	return &NodeStore{
		coll: db.Collection(collectionName),
		log:  baseLog.With("repo", "MongoNodeStore"),
		now:  func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

// EnsureIndexes creates the lookup indexes used by the tree queries.
func (s *NodeStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "parentId", Value: 1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}}},
		{Keys: bson.D{{Key: "rootId", Value: 1}}},
		{Keys: bson.D{{Key: "type", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "ownerId", Value: 1}, {Key: "updatedAt", Value: -1}}},
	}
	if _, err := s.coll.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create topic indexes: %w", err)
	}
	return nil
}

func toFilter(f roadmap.Filter) bson.M {
	m := bson.M{}
	if len(f.IDs) > 0 {
		m["_id"] = bson.M{"$in": idStrings(f.IDs)}
	}
	if len(f.ParentIDs) > 0 {
		m["parentId"] = bson.M{"$in": idStrings(f.ParentIDs)}
	}
	if f.RootsOnly {
		m["parentId"] = nil
	}
	if f.OwnerID != nil {
		m["ownerId"] = f.OwnerID.String()
	}
	if f.RootID != nil {
		m["rootId"] = f.RootID.String()
	}
	if f.Kind != nil {
		m["type"] = string(*f.Kind)
	}
	if f.IsPublic != nil {
		m["isPublic"] = *f.IsPublic
	}
	return m
}

func sortFor(o roadmap.Order) bson.D {
	switch o {
	case roadmap.OrderUpdatedDesc:
		return bson.D{{Key: "updatedAt", Value: -1}, {Key: "_id", Value: 1}}
	case roadmap.OrderCreatedAsc:
		return bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}
	default:
		return nil
	}
}

func (s *NodeStore) FindMany(dbc dbctx.Context, f roadmap.Filter) ([]*domain.Node, error) {
	// both ParentIDs and RootsOnly can never match
	if f.RootsOnly && len(f.ParentIDs) > 0 {
		return []*domain.Node{}, nil
	}
	opts := options.Find()
	if sort := sortFor(f.Order); sort != nil {
		opts.SetSort(sort)
	}
	cur, err := s.coll.Find(dbc.Ctx, toFilter(f), opts)
	if err != nil {
		return nil, err
	}
	var docs []nodeDoc
	if err := cur.All(dbc.Ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domain.Node, 0, len(docs))
	for i := range docs {
		n, err := docs[i].toNode()
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func (s *NodeStore) FindOne(dbc dbctx.Context, f roadmap.Filter) (*domain.Node, error) {
	if f.RootsOnly && len(f.ParentIDs) > 0 {
		return nil, nil
	}
	opts := options.FindOne()
	if sort := sortFor(f.Order); sort != nil {
		opts.SetSort(sort)
	}
	var doc nodeDoc
	err := s.coll.FindOne(dbc.Ctx, toFilter(f), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return doc.toNode()
}

func (s *NodeStore) FindByID(dbc dbctx.Context, id uuid.UUID) (*domain.Node, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	return s.FindOne(dbc, roadmap.ByID(id))
}

func (s *NodeStore) Save(dbc dbctx.Context, n *domain.Node) (*domain.Node, error) {
	now := s.now()
	if n.Version == 0 {
		row, err := roadmap.PrepareInsert(n, now)
		if err != nil {
			return nil, err
		}
		if _, err := s.coll.InsertOne(dbc.Ctx, fromNode(row)); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, roadmap.ErrVersionConflict
			}
			return nil, err
		}
		return row, nil
	}

	res, err := s.coll.UpdateOne(dbc.Ctx,
		bson.M{"_id": n.ID.String(), "version": n.Version},
		bson.M{"$set": bson.M{
			"title":       n.Title,
			"description": n.Description,
			"progress":    n.Progress,
			"weight":      n.Weight,
			"status":      string(n.Status),
			"isPublic":    n.IsPublic,
			"version":     n.Version + 1,
			"updatedAt":   now,
		}},
	)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount == 0 {
		s.log.Debug("node save lost compare-and-set", "node_id", n.ID, "version", n.Version)
		return nil, roadmap.ErrVersionConflict
	}
	out := n.Clone()
	out.Version = n.Version + 1
	out.UpdatedAt = now
	return out, nil
}

func (s *NodeStore) DeleteMany(dbc dbctx.Context, f roadmap.Filter) (int64, error) {
	if f.IsEmpty() {
		return 0, roadmap.ErrUnboundedDelete
	}
	res, err := s.coll.DeleteMany(dbc.Ctx, toFilter(f))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *NodeStore) DeleteOne(dbc dbctx.Context, f roadmap.Filter) (bool, error) {
	if f.IsEmpty() {
		return false, roadmap.ErrUnboundedDelete
	}
	res, err := s.coll.DeleteOne(dbc.Ctx, toFilter(f))
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func fromNode(n *domain.Node) nodeDoc {
	doc := nodeDoc{
		ID:          n.ID.String(),
		Kind:        string(n.Kind),
		Title:       n.Title,
		Description: n.Description,
		RootID:      n.RootID.String(),
		OwnerID:     n.OwnerID.String(),
		Progress:    n.Progress,
		Weight:      n.Weight,
		Status:      string(n.Status),
		IsPublic:    n.IsPublic,
		Version:     n.Version,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
	if n.ParentID != nil {
		pid := n.ParentID.String()
		doc.ParentID = &pid
	}
	return doc
}

func (d nodeDoc) toNode() (*domain.Node, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decode topic id %q: %w", d.ID, err)
	}
	rootID, err := uuid.Parse(d.RootID)
	if err != nil {
		return nil, fmt.Errorf("decode topic %s root id: %w", d.ID, err)
	}
	ownerID, err := uuid.Parse(d.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("decode topic %s owner id: %w", d.ID, err)
	}
	n := &domain.Node{
		ID:          id,
		Kind:        domain.Kind(d.Kind),
		Title:       d.Title,
		Description: d.Description,
		RootID:      rootID,
		OwnerID:     ownerID,
		Progress:    d.Progress,
		Weight:      d.Weight,
		Status:      domain.Status(d.Status),
		IsPublic:    d.IsPublic,
		Version:     d.Version,
		CreatedAt:   d.CreatedAt.UTC(),
		UpdatedAt:   d.UpdatedAt.UTC(),
	}
	if d.ParentID != nil {
		pid, err := uuid.Parse(*d.ParentID)
		if err != nil {
			return nil, fmt.Errorf("decode topic %s parent id: %w", d.ID, err)
		}
		n.ParentID = &pid
	}
	return n, nil
}

func idStrings(ids []uuid.UUID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.String())
	}
	return out
}
