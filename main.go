package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/db"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/explorer"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/handler"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/registry"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/internal/syncer"
	"github.com/silence48/SCF-Stellar-Quest-Indexer/utils"
)

type Config struct {
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
	Stellar struct {
		RPCURL            string `mapstructure:"rpc_url"`
		NetworkPassphrase string `mapstructure:"network_passphrase"`
	} `mapstructure:"stellar"`
	Explorer struct {
		BaseURL          string `mapstructure:"base_url"`
		APIKey           string `mapstructure:"api_key"`
		PageLimit        int    `mapstructure:"page_limit"`
		MaxRetryAttempts int    `mapstructure:"max_retry_attempts"`
	} `mapstructure:"explorer"`
	App struct {
		Port         int      `mapstructure:"port"`
		PollInterval int      `mapstructure:"poll_interval"` // 两轮同步之间的间隔（秒）
		LogLevel     string   `mapstructure:"log_level"`
		AuthTokens   []string `mapstructure:"auth_tokens"`
		RegistryURLs []string `mapstructure:"registry_urls"`
	} `mapstructure:"app"`
}

// validate 任何必填项缺失都是致命的启动错误
func (cfg *Config) validate() error {
	missing := func(name string) error {
		return fmt.Errorf("配置缺少必填项: %s", name)
	}
	switch {
	case cfg.MySQL.Host == "" || cfg.MySQL.User == "" || cfg.MySQL.DBName == "":
		return missing("mysql.host / mysql.user / mysql.dbname")
	case cfg.Stellar.RPCURL == "":
		return missing("stellar.rpc_url")
	case cfg.Stellar.NetworkPassphrase == "":
		return missing("stellar.network_passphrase")
	case cfg.Explorer.BaseURL == "":
		return missing("explorer.base_url")
	case cfg.Explorer.APIKey == "":
		return missing("explorer.api_key")
	case len(cfg.App.AuthTokens) == 0:
		return missing("app.auth_tokens")
	}
	return nil
}

func main() {
	// 读取配置
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		logrus.Fatal("读取配置失败: ", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logrus.Fatal("解析配置失败: ", err)
	}
	if err := cfg.validate(); err != nil {
		logrus.Fatal(err)
	}
	utils.InitLogger(cfg.App.LogLevel)

	// 连接 MySQL 并运行表结构迁移
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
	dbConn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatal("MySQL 连接失败: ", err)
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logrus.Fatal("表迁移失败: ", err)
	}
	logrus.Info("数据库初始化完成")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 启动前先导入一次徽章目录
	if len(cfg.App.RegistryURLs) > 0 {
		if err := registry.ParseTomlFiles(ctx, dbConn, cfg.App.RegistryURLs); err != nil {
			logrus.Errorf("徽章目录导入失败: %v", err)
		}
	}

	client := explorer.NewClient(explorer.Config{
		APIKey:           cfg.Explorer.APIKey,
		MaxRetryAttempts: cfg.Explorer.MaxRetryAttempts,
	})
	engine := syncer.NewEngine(dbConn, client, syncer.Config{
		BaseURL:   cfg.Explorer.BaseURL,
		PageLimit: cfg.Explorer.PageLimit,
	})

	// 后台同步循环
	interval := time.Duration(cfg.App.PollInterval) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}
	go runSyncLoop(ctx, engine, interval)

	// 初始化 Gin
	handler.InitStartTime()
	r := gin.Default()
	h := handler.New(dbConn, cfg.App.AuthTokens, cfg.App.RegistryURLs)
	h.RegisterRoutes(r)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	logrus.Infof("服务器启动于端口 %s", port)
	if err := r.Run(port); err != nil {
		logrus.Fatal("Gin 服务器启动失败: ", err)
	}
}

// runSyncLoop 周期性执行完整同步，收到退出信号后在轮次边界停止
func runSyncLoop(ctx context.Context, engine *syncer.Engine, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := engine.Run(ctx); err != nil {
			if ctx.Err() != nil {
				logrus.Info("同步循环退出")
				return
			}
			logrus.Errorf("同步失败: %v", err)
		}
		select {
		case <-ctx.Done():
			logrus.Info("同步循环退出")
			return
		case <-ticker.C:
		}
	}
}
