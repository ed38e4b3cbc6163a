package roadmap

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindRoadmap  Kind = "roadmap"
	KindSubtopic Kind = "subtopic"
	KindTask     Kind = "task"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

const (
	MinProgress   = 0
	MaxProgress   = 100
	DefaultWeight = 1.0
	// MaxWeight keeps Σ p·w well inside float64 range for any realistic fan-out.
	MaxWeight = 1e6
)

// ErrInvalidNode tags every field-level validation failure on a Node.
var ErrInvalidNode = errors.New("invalid node")

// Node is one vertex of a roadmap tree. Roadmaps are roots, tasks are leaves,
// subtopics sit in between. RootID is the id of the tree's root (a root points
// at itself) and Version is bumped by every successful save.
type Node struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Kind        Kind       `gorm:"column:kind;type:varchar(16);not null;index" json:"type"`
	Title       string     `gorm:"column:title;not null" json:"title"`
	Description string     `gorm:"column:description" json:"description"`
	ParentID    *uuid.UUID `gorm:"type:uuid;column:parent_id;index" json:"parentId"`
	RootID      uuid.UUID  `gorm:"type:uuid;column:root_id;not null;index" json:"rootId"`
	OwnerID     uuid.UUID  `gorm:"type:uuid;column:owner_id;not null;index" json:"ownerId"`
	Progress    int        `gorm:"column:progress;not null" json:"progress"`
	Weight      float64    `gorm:"column:weight;not null" json:"weight"`
	Status      Status     `gorm:"column:status;type:varchar(16);not null;index" json:"status"`
	IsPublic    bool       `gorm:"column:is_public;not null" json:"isPublic"`
	Version     int        `gorm:"column:version;not null" json:"version"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null" json:"updatedAt"`
}

func (Node) TableName() string { return "roadmap_node" }

func (n *Node) IsRoot() bool { return n != nil && n.ParentID == nil }

// IsLeaf reports whether the node's progress is set directly rather than derived.
func (n *Node) IsLeaf() bool { return n != nil && n.Kind == KindTask }

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := *n
	if n.ParentID != nil {
		pid := *n.ParentID
		out.ParentID = &pid
	}
	return &out
}

// Validate checks field ranges and enums. Referential rules are enforced by the writer.
func (n *Node) Validate() error {
	if n == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if _, err := ParseKind(string(n.Kind)); err != nil {
		return err
	}
	if strings.TrimSpace(n.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidNode)
	}
	if n.OwnerID == uuid.Nil {
		return fmt.Errorf("%w: owner is required", ErrInvalidNode)
	}
	if n.Kind == KindRoadmap && n.ParentID != nil {
		return fmt.Errorf("%w: a roadmap cannot have a parent", ErrInvalidNode)
	}
	if n.ParentID != nil && *n.ParentID == n.ID {
		return fmt.Errorf("%w: a node cannot be its own parent", ErrInvalidNode)
	}
	if err := ValidateProgress(n.Progress); err != nil {
		return err
	}
	if err := ValidateWeight(n.Weight); err != nil {
		return err
	}
	if _, err := ParseStatus(string(n.Status)); err != nil {
		return err
	}
	return nil
}

func ParseKind(raw string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(raw))); k {
	case KindRoadmap, KindSubtopic, KindTask:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown type %q", ErrInvalidNode, raw)
	}
}

// ParseStatus accepts any enum value; transitions are not constrained.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(strings.ToLower(strings.TrimSpace(raw))); s {
	case StatusPending, StatusInProgress, StatusDone:
		return s, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidNode, raw)
	}
}

func ValidateProgress(p int) error {
	if p < MinProgress || p > MaxProgress {
		return fmt.Errorf("%w: progress must be between %d and %d", ErrInvalidNode, MinProgress, MaxProgress)
	}
	return nil
}

func ValidateWeight(w float64) error {
	if math.IsNaN(w) || math.IsInf(w, 0) || w < 0 {
		return fmt.Errorf("%w: weight must be a non-negative number", ErrInvalidNode)
	}
	if w > MaxWeight {
		return fmt.Errorf("%w: weight must not exceed %g", ErrInvalidNode, MaxWeight)
	}
	return nil
}
