package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/classifier"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/db"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/explorer"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
)

// Config 同步引擎配置
type Config struct {
	BaseURL     string        // 例如 https://api.stellar.expert
	PageLimit   int           // 分页大小，默认 200（低于此值的页标志没有更多数据）
	MaxFilters  int           // 每个请求的 asset[]/account[] 过滤参数上限，默认 10
	Concurrency int           // 批次内并发请求上限，默认 10
	SettleDelay time.Duration // 每个并发窗口之间的缓冲间隔，默认 200ms
}

// Engine 增量同步引擎：分页拉取 holders / transactions，
// 维护每个徽章的同步游标，幂等更新 holder 账本。
// 徽章之间串行处理，保证对上游的请求速率可预测、游标管理简单
type Engine struct {
	db     *gorm.DB
	client *explorer.Client
	cfg    Config
}

// HolderRef holder 同步过程中收集到的 (owner, badge) 引用，
// 作为后续交易同步的过滤输入
type HolderRef struct {
	Owner       string
	BadgeID     uint
	AssetCode   string
	AssetIssuer string
}

func NewEngine(dbConn *gorm.DB, client *explorer.Client, cfg Config) *Engine {
	if cfg.PageLimit <= 0 {
		cfg.PageLimit = 200
	}
	if cfg.MaxFilters <= 0 {
		cfg.MaxFilters = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = 200 * time.Millisecond
	}
	return &Engine{db: dbConn, client: client, cfg: cfg}
}

// Run 执行一轮完整同步：逐个徽章同步 holders（单个徽章失败只记日志，
// 继续下一个），然后对收集到的 holder 集合同步交易
func (e *Engine) Run(ctx context.Context) error {
	runID := uuid.NewString()[:8]
	log := logrus.WithField("run_id", runID)

	badges, err := db.ListBadges(e.db, 0)
	if err != nil {
		return fmt.Errorf("加载徽章列表: %w", err)
	}
	log.Infof("开始同步，共 %d 个徽章", len(badges))

	var allRefs []HolderRef
	for i := range badges {
		badge := &badges[i]
		refs, err := e.SyncHolders(ctx, badge)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Errorf("徽章 %s-%s holders 同步失败: %v，继续下一个",
				badge.Code, badge.Issuer, err)
			continue
		}
		allRefs = append(allRefs, refs...)
	}
	log.Infof("holders 同步完成，共 %d 条引用", len(allRefs))

	if err := e.SyncTransactions(ctx, allRefs); err != nil {
		return err
	}
	log.Info("本轮同步完成")
	return nil
}

// SyncHolders 同步一个徽章的持有者。从持久化游标恢复（没有则从
// 第一页开始），每处理完一页就把游标和该页的记录在同一个事务里落库，
// 短页（少于 PageLimit 条）终止循环并清空游标。
// 上游 404 视为"资产没有持有者"，优雅结束；其它错误向上传播
func (e *Engine) SyncHolders(ctx context.Context, badge *models.Badge) ([]HolderRef, error) {
	url := e.cfg.BaseURL + fmt.Sprintf("/explorer/public/asset/%s-%s/holders?order=desc&limit=%d",
		badge.Code, badge.Issuer, e.cfg.PageLimit)
	if badge.LastMarkUrlHolders != "" {
		url = e.cfg.BaseURL + badge.LastMarkUrlHolders
	}

	var refs []HolderRef
	for {
		logrus.Infof("拉取 %s-%s holders: %s", badge.Code, badge.Issuer, url)
		page, err := e.client.Fetch(ctx, url)
		if err != nil {
			if errors.Is(err, explorer.ErrNotFound) {
				logrus.Warnf("资产 %s-%s 没有持有者", badge.Code, badge.Issuer)
				return refs, nil
			}
			return refs, err
		}

		records := page.Embedded.Records
		fullPage := len(records) >= e.cfg.PageLimit

		// 记录和游标在同一个事务里落库：要么整页生效，要么都不生效
		marker := page.Links.Self.Href
		if !fullPage {
			marker = "" // 没有更多页了，游标归位
		}
		err = e.db.Transaction(func(tx *gorm.DB) error {
			for _, raw := range records {
				var rec explorer.HolderRecord
				if err := json.Unmarshal(raw, &rec); err != nil {
					logrus.Errorf("解析 holder 记录失败: %v，跳过", err)
					continue
				}
				if err := db.UpsertHolderBadgeLink(tx, rec.Account, badge.ID); err != nil {
					return err
				}
				refs = append(refs, HolderRef{
					Owner:       rec.Account,
					BadgeID:     badge.ID,
					AssetCode:   badge.Code,
					AssetIssuer: badge.Issuer,
				})
			}
			return db.SaveHolderCursor(tx, badge.ID, marker)
		})
		if err != nil {
			return refs, err
		}
		badge.LastMarkUrlHolders = marker

		if !fullPage {
			return refs, nil
		}
		url = e.cfg.BaseURL + page.Links.Next.Href
	}
}

// SyncTransactions 对一批 holder 引用同步交易：
// 资产和账户过滤各按上限分块生成批次 URL，批次内有界并发拉取，
// 每个并发窗口之间有固定缓冲，压住对上游的持续请求速率
func (e *Engine) SyncTransactions(ctx context.Context, refs []HolderRef) error {
	if len(refs) == 0 {
		return nil
	}

	badges, err := db.ListBadges(e.db, 0)
	if err != nil {
		return err
	}
	badgeByAsset := make(map[string]*models.Badge, len(badges))
	for i := range badges {
		b := &badges[i]
		badgeByAsset[b.Code+"-"+b.Issuer] = b
	}

	// 去重出资产过滤和账户过滤
	assetSeen := make(map[string]bool)
	accountSeen := make(map[string]bool)
	var assets []AssetFilter
	var accounts []string
	for _, ref := range refs {
		key := ref.AssetCode + "-" + ref.AssetIssuer
		if !assetSeen[key] {
			assetSeen[key] = true
			assets = append(assets, AssetFilter{Code: ref.AssetCode, Issuer: ref.AssetIssuer})
		}
		if !accountSeen[ref.Owner] {
			accountSeen[ref.Owner] = true
			accounts = append(accounts, ref.Owner)
		}
	}

	batches := CreateURLBatches(e.cfg.BaseURL, assets, accounts, e.cfg.MaxFilters, e.cfg.PageLimit)
	logrus.Infof("生成 %d 个交易查询批次", len(batches))

	for start := 0; start < len(batches); start += e.cfg.Concurrency {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		end := min(start+e.cfg.Concurrency, len(batches))

		var wg sync.WaitGroup
		for _, batchURL := range batches[start:end] {
			wg.Add(1)
			go func(u string) {
				defer wg.Done()
				if err := e.syncTransactionBatch(ctx, u, badgeByAsset); err != nil {
					logrus.Errorf("交易批次同步失败 %s: %v", u, err)
				}
			}(batchURL)
		}
		wg.Wait()

		if err := sleepCtx(ctx, e.cfg.SettleDelay); err != nil {
			return err
		}
	}
	return nil
}

// syncTransactionBatch 对一条批次 URL 走完整个分页链，
// 每页的记录逐条送入分类器处理
func (e *Engine) syncTransactionBatch(ctx context.Context, url string, badgeByAsset map[string]*models.Badge) error {
	for {
		logrus.Infof("拉取交易: %s", url)
		page, err := e.client.Fetch(ctx, url)
		if err != nil {
			return err
		}

		for _, raw := range page.Embedded.Records {
			var rec explorer.TxRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				logrus.Errorf("解析交易记录失败: %v，跳过", err)
				continue
			}
			// 单条记录解码失败不能阻塞同页的其它记录
			if err := e.processTxRecord(&rec, badgeByAsset); err != nil {
				logrus.Errorf("处理交易 %s 失败: %v，跳过", rec.Hash, err)
			}
		}

		if len(page.Embedded.Records) < e.cfg.PageLimit {
			return nil
		}
		url = e.cfg.BaseURL + page.Links.Next.Href
	}
}

// processTxRecord 分类一条交易并归因：先试 payment 路径，
// 没有任何 payment 命中徽章时才走 claimable balance 路径
func (e *Engine) processTxRecord(rec *explorer.TxRecord, badgeByAsset map[string]*models.Badge) error {
	result, err := classifier.Classify(rec.Body, rec.Meta)
	if err != nil {
		return err
	}

	paymentProcessed := false
	for _, p := range result.Payments {
		badge, ok := badgeByAsset[p.AssetCode+"-"+p.AssetIssuer]
		if !ok {
			continue
		}
		if e.attribute(p.Destination, badge, rec) {
			paymentProcessed = true
		}
	}

	if !paymentProcessed {
		for _, c := range result.Claims {
			badge, ok := badgeByAsset[c.AssetCode+"-"+c.AssetIssuer]
			if !ok {
				continue
			}
			e.attribute(c.Account, badge, rec)
		}
	}
	return nil
}

// attribute 把交易哈希写入 (owner, badge) 的关联并落交易记录。
// owner 不是已登记的持有者时跳过；哈希冲突记告警但交易记录照常落库
// （先写者胜，不覆盖原值）
func (e *Engine) attribute(owner string, badge *models.Badge, rec *explorer.TxRecord) bool {
	err := db.RecordTransactionHash(e.db, owner, badge.ID, rec.Hash)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return false
	case errors.Is(err, db.ErrHashConflict):
		logrus.Warnf("交易哈希冲突: %v", err)
	case err != nil:
		logrus.Errorf("写入交易哈希失败 (%s, badge %d): %v", owner, badge.ID, err)
		return false
	}

	txRec := &models.TransactionRecord{
		TxHash:    rec.Hash,
		AccountID: owner,
		Ledger:    rec.Ledger,
		Timestamp: rec.Ts,
		Body:      rec.Body,
		Meta:      rec.Meta,
		Result:    rec.Result,
	}
	if err := db.UpsertTransactionRecord(e.db, txRec, badge.ID); err != nil {
		logrus.Errorf("保存交易记录 %s 失败: %v", rec.Hash, err)
		return false
	}
	return true
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
