package user

import (
	"context"
	"errors"
	"fmt"

	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"gorm.io/gorm"
)

type GormAccountRepo struct {
	db *gorm.DB
}

// Create implements user.AccountRepository
func (g *GormAccountRepo) Create(ctx context.Context, a *user.Account) error {
	entity := NewAccountEntityFromDomain(a)
	if err := g.db.WithContext(ctx).Create(entity).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return user.ErrLoginTaken
		}
		return fmt.Errorf("failed to create account: %w", err)
	}
	*a = *entity.ToDomain()
	return nil
}

// GetByLogin implements user.AccountRepository
func (g *GormAccountRepo) GetByLogin(ctx context.Context, login string) (*user.Account, error) {
	var entity AccountEntity
	if err := g.db.WithContext(ctx).Where("login = ?", login).First(&entity).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, user.ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get account by login: %w", err)
	}
	return entity.ToDomain(), nil
}

func NewGormAccountRepo(db *gorm.DB) user.AccountRepository {
	return &GormAccountRepo{db: db}
}
