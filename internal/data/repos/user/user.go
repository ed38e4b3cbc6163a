package user

import (
	"time"

	"github.com/google/uuid"
	"github.com/yungbote/roadmap-backend/internal/domain"
	"github.com/yungbote/roadmap-backend/internal/platform/dbctx"
	"github.com/yungbote/roadmap-backend/internal/platform/logger"
	"gorm.io/gorm"
)

type UserRepo interface {
	Create(dbc dbctx.Context, u *domain.User) (*domain.User, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error)
	GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.User, error)
	GetByEmail(dbc dbctx.Context, email string) (*domain.User, error)
	ExistsByEmailOrUsername(dbc dbctx.Context, email, username string) (bool, error)
}

type userRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserRepo(db *gorm.DB, baseLog *logger.Logger) UserRepo {
	repoLog := baseLog.With("repo", "UserRepo")
	return &userRepo{db: db, log: repoLog}
}

func (r *userRepo) tx(dbc dbctx.Context) *gorm.DB {
	t := dbc.Tx
	if t == nil {
		t = r.db
	}
	return t.WithContext(dbc.Ctx)
}

func (r *userRepo) Create(dbc dbctx.Context, u *domain.User) (*domain.User, error) {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if err := r.tx(dbc).Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.User, error) {
	rows, err := r.GetByIDs(dbc, []uuid.UUID{id})
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (r *userRepo) GetByIDs(dbc dbctx.Context, ids []uuid.UUID) ([]*domain.User, error) {
	var out []*domain.User
	if len(ids) == 0 {
		return out, nil
	}
	if err := r.tx(dbc).Where("id IN ?", ids).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *userRepo) GetByEmail(dbc dbctx.Context, email string) (*domain.User, error) {
	var out []*domain.User
	if err := r.tx(dbc).Where("email = ?", email).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *userRepo) ExistsByEmailOrUsername(dbc dbctx.Context, email, username string) (bool, error) {
	var count int64
	if err := r.tx(dbc).
		Model(&domain.User{}).
		Where("email = ? OR username = ?", email, username).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}
