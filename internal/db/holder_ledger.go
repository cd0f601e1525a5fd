package db

import (
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
)

// ErrHashConflict 同一 (holder, badge) 已经记录了另一个不同的交易哈希。
// 调用方记录告警后继续，保留第一个写入的值
var ErrHashConflict = errors.New("badge link tx hash conflict")

// UpsertHolderBadgeLink 登记 owner 持有 badge：holder 不存在则创建，
// (holder, badge) 关联不存在则补一条空哈希的 BadgeLink。幂等，
// 依赖 owner 和 (holder_id, badge_id) 上的唯一索引对抗并发写入
func UpsertHolderBadgeLink(dbConn *gorm.DB, owner string, badgeID uint) error {
	return dbConn.Transaction(func(tx *gorm.DB) error {
		var holder models.Holder
		err := tx.Where("owner = ?", owner).First(&holder).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			holder = models.Holder{Owner: owner}
			if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&holder).Error; err != nil {
				return err
			}
			if holder.ID == 0 {
				// 并发写入者抢先创建了，重新读取
				if err := tx.Where("owner = ?", owner).First(&holder).Error; err != nil {
					return err
				}
			}
		} else if err != nil {
			return err
		}

		var link models.BadgeLink
		err = tx.Where("holder_id = ? AND badge_id = ?", holder.ID, badgeID).First(&link).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			link = models.BadgeLink{HolderID: holder.ID, BadgeID: badgeID, TxHash: ""}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
		}
		return err
	})
}

// RecordTransactionHash 把交易哈希写入对应的 BadgeLink。
// 哈希为空则写入；已等于 hash 则幂等空操作；不一致返回 ErrHashConflict
// （先写者胜，不覆盖）；holder 或关联不存在返回 gorm.ErrRecordNotFound
func RecordTransactionHash(dbConn *gorm.DB, owner string, badgeID uint, hash string) error {
	return dbConn.Transaction(func(tx *gorm.DB) error {
		var holder models.Holder
		if err := tx.Where("owner = ?", owner).First(&holder).Error; err != nil {
			return err
		}
		var link models.BadgeLink
		if err := tx.Where("holder_id = ? AND badge_id = ?", holder.ID, badgeID).First(&link).Error; err != nil {
			return err
		}
		switch link.TxHash {
		case "":
			return tx.Model(&models.BadgeLink{}).Where("id = ?", link.ID).
				Update("tx_hash", hash).Error
		case hash:
			return nil
		default:
			return fmt.Errorf("%w: badge %d holder %s has %s, got %s",
				ErrHashConflict, badgeID, owner, link.TxHash, hash)
		}
	})
}

// UpsertTransactionRecord 按 tx_hash 插入或更新交易记录，
// 重复观察时把 badgeID 累积进 BadgeIDs 集合（一笔交易可能涉及多个徽章）
func UpsertTransactionRecord(dbConn *gorm.DB, rec *models.TransactionRecord, badgeID uint) error {
	return dbConn.Transaction(func(tx *gorm.DB) error {
		var existing models.TransactionRecord
		err := tx.Where("tx_hash = ?", rec.TxHash).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ids, err := json.Marshal([]uint{badgeID})
			if err != nil {
				return err
			}
			rec.BadgeIDs = ids
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(rec).Error
		}
		if err != nil {
			return err
		}

		var ids []uint
		if len(existing.BadgeIDs) > 0 {
			if err := json.Unmarshal(existing.BadgeIDs, &ids); err != nil {
				return err
			}
		}
		for _, id := range ids {
			if id == badgeID {
				return nil // 已记录过这个徽章
			}
		}
		ids = append(ids, badgeID)
		raw, err := json.Marshal(ids)
		if err != nil {
			return err
		}
		return tx.Model(&models.TransactionRecord{}).Where("id = ?", existing.ID).
			Update("badge_ids", raw).Error
	})
}

// TransactionsForHolder 只读投影：address 通过 BadgeLink 可达的所有徽章记录，
// 供验证接口组装响应
func TransactionsForHolder(dbConn *gorm.DB, owner string) ([]models.Quest, error) {
	var holder models.Holder
	err := dbConn.Preload("Links").Where("owner = ?", owner).First(&holder).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return []models.Quest{}, nil
	}
	if err != nil {
		return nil, err
	}

	quests := make([]models.Quest, 0, len(holder.Links))
	for _, link := range holder.Links {
		badge, err := GetBadgeByID(dbConn, link.BadgeID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue // 弱引用：徽章被后台删除时跳过
		}
		if err != nil {
			return nil, err
		}
		quests = append(quests, models.Quest{
			Badge:   fmt.Sprintf("%s:%s", badge.Code, badge.Issuer),
			TxHash:  link.TxHash,
			QuestID: badge.ID,
		})
	}
	return quests, nil
}
