package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/db"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/models"
)

// Currency stellar.toml 里 [[CURRENCIES]] 的一个条目
type Currency struct {
	Code   string `toml:"code"`
	Issuer string `toml:"issuer"`
	Name   string `toml:"name"`
	Desc   string `toml:"desc"`
	Image  string `toml:"image"`
}

type stellarToml struct {
	Currencies []Currency `toml:"CURRENCIES"`
}

var httpClient = &http.Client{Timeout: 30 * time.Second}

// ParseTomlFiles 拉取并解析各注册表 URL 的 stellar.toml，
// 把没见过的 (code, issuer) 作为新徽章入库。
// 单个 URL 失败只记日志，不影响其它注册表
func ParseTomlFiles(ctx context.Context, dbConn *gorm.DB, urls []string) error {
	for _, url := range urls {
		if err := parseTomlFile(ctx, dbConn, url); err != nil {
			logrus.Errorf("解析注册表 %s 失败: %v", url, err)
		}
	}
	return nil
}

func parseTomlFile(ctx context.Context, dbConn *gorm.DB, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch %s: %s", url, resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var doc stellarToml
	if err := toml.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", url, err)
	}

	imported := 0
	for _, currency := range doc.Currencies {
		if currency.Code == "" || currency.Issuer == "" {
			continue
		}
		exists, err := db.BadgeExists(dbConn, currency.Code, currency.Issuer)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		aliases, _ := json.Marshal([]string{})
		badge := models.Badge{
			Code:             currency.Code,
			Issuer:           currency.Issuer,
			DescriptionShort: currency.Name,
			DescriptionLong:  currency.Desc,
			Current:          true,
			IssueDate:        time.Now().UTC().Format(time.RFC3339),
			Image:            currency.Image,
			Aliases:          aliases,
		}
		if err := dbConn.Create(&badge).Error; err != nil {
			return err
		}
		imported++
	}
	logrus.Infof("注册表 %s: 共 %d 个资产，新导入 %d 个", url, len(doc.Currencies), imported)
	return nil
}
