package db

import (
	"errors"

	"gorm.io/gorm"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
)

// AutoMigrate 运行表结构迁移（创建新表或更新表结构）
func AutoMigrate(dbConn *gorm.DB) error {
	return dbConn.AutoMigrate(
		&models.Badge{},
		&models.Holder{},
		&models.BadgeLink{},
		&models.TransactionRecord{},
	)
}

// GetBadgeByAsset 根据 (code, issuer) 查询徽章
func GetBadgeByAsset(dbConn *gorm.DB, code, issuer string) (*models.Badge, error) {
	var badge models.Badge
	err := dbConn.Where("code = ? AND issuer = ?", code, issuer).First(&badge).Error
	return &badge, err
}

// GetBadgeByID 根据主键查询徽章
func GetBadgeByID(dbConn *gorm.DB, id uint) (*models.Badge, error) {
	var badge models.Badge
	err := dbConn.First(&badge, id).Error
	return &badge, err
}

// ListBadges 查询徽章列表（limit <= 0 表示全部）
func ListBadges(dbConn *gorm.DB, limit int) ([]models.Badge, error) {
	var badges []models.Badge
	q := dbConn.Order("id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&badges).Error
	return badges, err
}

// BadgeExists 检查 (code, issuer) 是否已存在
func BadgeExists(dbConn *gorm.DB, code, issuer string) (bool, error) {
	_, err := GetBadgeByAsset(dbConn, code, issuer)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	return false, err
}

// SaveHolderCursor 持久化 holders 分页游标（每处理完一页就调用，
// 进程中断后可以从中断点附近恢复而不是重扫整个资产）
func SaveHolderCursor(dbConn *gorm.DB, badgeID uint, marker string) error {
	return dbConn.Model(&models.Badge{}).Where("id = ?", badgeID).
		Update("last_mark_url_holders", marker).Error
}
