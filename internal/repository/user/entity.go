package user

import (
	"time"

	"github.com/google/uuid"
	"github.com/xpanvictor/xarvis-gateway/internal/domains/user"
	"gorm.io/gorm"
)

// AccountEntity is the gorm row behind user.Account.
type AccountEntity struct {
	ID           string         `gorm:"primaryKey;type:char(36);not null"`
	Login        string         `gorm:"uniqueIndex;type:varchar(191);not null"`
	DisplayName  string         `gorm:"column:display_name;type:varchar(255)"`
	PasswordHash string         `gorm:"column:password_hash;type:char(60);not null"`
	CreatedAt    time.Time      `gorm:"autoCreateTime(3)"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime(3)"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (AccountEntity) TableName() string {
	return "gateway_accounts"
}

// BeforeCreate is a GORM hook to ensure UUID is set
func (a *AccountEntity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return nil
}

func (a *AccountEntity) ToDomain() *user.Account {
	return &user.Account{
		ID:           a.ID,
		Login:        a.Login,
		DisplayName:  a.DisplayName,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func NewAccountEntityFromDomain(a *user.Account) *AccountEntity {
	return &AccountEntity{
		ID:           a.ID,
		Login:        a.Login,
		DisplayName:  a.DisplayName,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}
