package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrNotFound 上游返回 404。对 holders 分页来说这是良性的
	// "资产没有持有者"，由调用方决定怎么处理
	ErrNotFound = errors.New("explorer: not found")
	// ErrRetryBudgetExceeded 429 重试次数用尽
	ErrRetryBudgetExceeded = errors.New("explorer: retry budget exceeded")
)

// PageLink HAL 风格分页链接
type PageLink struct {
	Href string `json:"href"`
}

// Page stellar.expert 的标准分页响应（_links + _embedded.records）
type Page struct {
	Links struct {
		Self PageLink `json:"self"`
		Prev PageLink `json:"prev"`
		Next PageLink `json:"next"`
	} `json:"_links"`
	Embedded struct {
		Records []json.RawMessage `json:"records"`
	} `json:"_embedded"`
}

// HolderRecord holders 接口的单条记录
type HolderRecord struct {
	Account string `json:"account"`
	Balance string `json:"balance"`
}

// TxRecord tx 接口的单条记录，body/meta/result 是 base64 XDR
type TxRecord struct {
	Hash   string `json:"hash"`
	Ledger uint32 `json:"ledger"`
	Ts     int64  `json:"ts"`
	Body   string `json:"body"`
	Meta   string `json:"meta"`
	Result string `json:"result"`
}

// Config 客户端显式配置（不用进程级全局变量）
type Config struct {
	APIKey           string
	RateLimitBackoff time.Duration // 429 后的固定退避，默认 60s
	CourtesyDelay    time.Duration // 每次成功请求后的限速间隔，默认 200ms
	MaxRetryAttempts int           // 429 重试上限，默认 10
	Timeout          time.Duration // 单次 HTTP 超时，默认 30s
}

// Client 带限速退避的 GET 客户端。GET 可以安全重复，重试不产生副作用
type Client struct {
	http          *http.Client
	apiKey        string
	backoff       time.Duration
	courtesyDelay time.Duration
	maxAttempts   int
}

func NewClient(cfg Config) *Client {
	if cfg.RateLimitBackoff <= 0 {
		cfg.RateLimitBackoff = 60 * time.Second
	}
	if cfg.CourtesyDelay <= 0 {
		cfg.CourtesyDelay = 200 * time.Millisecond
	}
	if cfg.MaxRetryAttempts <= 0 {
		cfg.MaxRetryAttempts = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		http:          &http.Client{Timeout: cfg.Timeout},
		apiKey:        cfg.APIKey,
		backoff:       cfg.RateLimitBackoff,
		courtesyDelay: cfg.CourtesyDelay,
		maxAttempts:   cfg.MaxRetryAttempts,
	}
}

// Fetch 拉取一页 JSON。429 固定退避后重试（有上限），404 返回 ErrNotFound，
// 其它非 2xx 状态视为致命错误向上传播
func (c *Client) Fetch(ctx context.Context, url string) (*Page, error) {
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch %s: %w", url, err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			resp.Body.Close()
			logrus.Warnf("请求被限流 (429)，退避 %v 后重试: %s", c.backoff, url)
			if err := sleepCtx(ctx, c.backoff); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode == http.StatusNotFound {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %w", url, ErrNotFound)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			return nil, fmt.Errorf("fetch %s: %s", url, resp.Status)
		}

		var page Page
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", url, err)
		}

		// 成功后也等一拍，压住对上游的持续请求速率
		if err := sleepCtx(ctx, c.courtesyDelay); err != nil {
			return nil, err
		}
		return &page, nil
	}
	return nil, fmt.Errorf("fetch %s: %w", url, ErrRetryBudgetExceeded)
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
