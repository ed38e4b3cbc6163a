package domain

import (
	"github.com/yungbote/roadmap-backend/internal/domain/roadmap"
	"github.com/yungbote/roadmap-backend/internal/domain/user"
)

type (
	Node   = roadmap.Node
	Kind   = roadmap.Kind
	Status = roadmap.Status
	User   = user.User
)

const (
	KindRoadmap  = roadmap.KindRoadmap
	KindSubtopic = roadmap.KindSubtopic
	KindTask     = roadmap.KindTask

	StatusPending    = roadmap.StatusPending
	StatusInProgress = roadmap.StatusInProgress
	StatusDone       = roadmap.StatusDone
)

// Models lists every type persisted through GORM, in migration order.
func Models() []any {
	return []any{&User{}, &Node{}}
}
