package database

import (
	"github.com/xpanvictor/xarvis-gateway/internal/repository/user"
	"gorm.io/gorm"
)

func MigrateDB(db *gorm.DB) error {
	return db.AutoMigrate(&user.AccountEntity{})
}
