package repos

import (
	"github.com/yungbote/roadmap-backend/internal/data/repos/roadmap"
	"github.com/yungbote/roadmap-backend/internal/data/repos/user"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo = user.UserRepo
type NodeStore = roadmap.NodeStore
type NodeFilter = roadmap.Filter

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	return user.NewUserRepo(db, baseLog)
}

func NewNodeRepo(db *gorm.DB, baseLog *logger.Logger) NodeStore {
	return roadmap.NewNodeRepo(db, baseLog)
}

func NewMemoryNodeStore() *roadmap.MemoryStore {
	return roadmap.NewMemoryStore()
}
