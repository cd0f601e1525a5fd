package models

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Badge 一个被索引的资产（code+issuer 唯一），由 stellar.toml 注册表导入
type Badge struct {
	gorm.Model
	Code             string `gorm:"size:12;uniqueIndex:idx_code_issuer"`
	Issuer           string `gorm:"size:56;uniqueIndex:idx_code_issuer"` // Stellar 公钥长度
	Difficulty       string `gorm:"size:50"`
	SubDifficulty    string `gorm:"size:50"`
	CategoryBroad    string `gorm:"size:100"`
	CategoryNarrow   string `gorm:"size:100"`
	DescriptionShort string `gorm:"size:255"`
	DescriptionLong  string `gorm:"type:text"`
	Current          bool   `gorm:"default:true"`
	Instructions     string `gorm:"type:text"`
	IssueDate        string `gorm:"size:40"`
	Image            string `gorm:"size:255"`
	Type             string `gorm:"size:50"`
	Aliases          datatypes.JSON
	// 同步游标：最后一个已完整处理的 holders 分页标记（self link），
	// 只由 SyncEngine 前进，短页终止时清空
	LastMarkUrlHolders      string `gorm:"size:512"`
	LastMarkUrlTransactions string `gorm:"size:512"`
}

// Holder 持有至少一个 badge 的账户（owner 唯一）
type Holder struct {
	gorm.Model
	Owner string      `gorm:"uniqueIndex;size:56"`
	Links []BadgeLink `gorm:"foreignKey:HolderID"`
}

// BadgeLink Holder 与 Badge 的关联，每对 (holder, badge) 至多一条；
// TxHash 只从空到非空迁移一次，冲突保留第一个值
type BadgeLink struct {
	gorm.Model
	HolderID uint   `gorm:"uniqueIndex:idx_holder_badge"`
	BadgeID  uint   `gorm:"uniqueIndex:idx_holder_badge"`
	TxHash   string `gorm:"size:64"`
}

// TransactionRecord 归因到至少一个 badge 的交易（tx_hash 唯一），
// BadgeIDs 在重复观察中累积（一笔交易可能支付多个 badge 资产）
type TransactionRecord struct {
	gorm.Model
	TxHash    string `gorm:"uniqueIndex;size:64"`
	AccountID string `gorm:"size:56"`
	BadgeIDs  datatypes.JSON
	Ledger    uint32
	Timestamp int64
	Body      string `gorm:"type:text"` // base64 XDR envelope
	Meta      string `gorm:"type:text"` // base64 XDR meta
	Result    string `gorm:"type:text"`
}
