package syncer

import (
	"fmt"
	"strings"
)

// AssetFilter tx 查询的资产过滤条件
type AssetFilter struct {
	Code   string
	Issuer string
}

// CreateURLBatches 把资产过滤和账户过滤各自按 maxFilters 上限分块，
// 取笛卡尔积生成查询 URL（上游 API 每个请求最多接受 10 个重复过滤参数）。
// 25 个资产 × 15 个账户、上限 10 时产出 ceil(25/10) × ceil(15/10) = 6 条 URL
func CreateURLBatches(baseURL string, assets []AssetFilter, accounts []string, maxFilters, pageLimit int) []string {
	if len(assets) == 0 || len(accounts) == 0 {
		return nil
	}
	if maxFilters <= 0 {
		maxFilters = 10
	}

	var batches []string
	for i := 0; i < len(assets); i += maxFilters {
		assetChunk := assets[i:min(i+maxFilters, len(assets))]
		var sb strings.Builder
		for _, a := range assetChunk {
			// stellar.expert 的资产描述符格式：code-issuer-2
			fmt.Fprintf(&sb, "&asset[]=%s-%s-2", a.Code, a.Issuer)
		}
		assetParams := sb.String()

		for j := 0; j < len(accounts); j += maxFilters {
			accountChunk := accounts[j:min(j+maxFilters, len(accounts))]
			url := fmt.Sprintf("%s/explorer/public/tx?order=asc&limit=%d%s",
				baseURL, pageLimit, assetParams)
			for _, acct := range accountChunk {
				url += "&account[]=" + acct
			}
			batches = append(batches, url)
		}
	}
	return batches
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
