package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	http_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/in/http"
	memory_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/memory"
	mysql_adapter "github.com/JoeShih716/go-credit-ledger/internal/app/core/adapter/out/mysql"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
	"github.com/JoeShih716/go-credit-ledger/pkg/mysql"
	"github.com/JoeShih716/go-credit-ledger/pkg/pool"
	"github.com/JoeShih716/go-credit-ledger/pkg/wal"
)

const (
	StorageMySQL  = "mysql"
	StorageMemory = "memory"
)

type AccountSeed struct {
	ID      int64 `yaml:"id"`
	Balance int64 `yaml:"balance"`
	Limit   int64 `yaml:"limit"`
}

type Config struct {
	Listen   string        `yaml:"listen"`
	Storage  string        `yaml:"storage"` // mysql | memory
	PoolSize int           `yaml:"pool_size"`
	MySQL    mysql.Config  `yaml:"mysql"`
	WALPath  string        `yaml:"wal_path"` // memory 模式的持久化檔案，空字串表示不持久化
	Accounts []AccountSeed `yaml:"accounts"` // memory 模式的種子帳戶
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	// 1. 載入設定
	cfg := loadConfig(logger)

	ctx := context.Background()

	// 2. 依設定建立帳本後端
	var ledger usecase.Ledger
	var cleanup func()

	switch cfg.Storage {
	case StorageMySQL:
		// 固定容量的 Session 池: 啟動時一次建滿，建不滿即中止啟動
		sessions, err := pool.New(ctx, cfg.PoolSize,
			func(ctx context.Context) (*mysql.Client, error) {
				return mysql.NewClient(cfg.MySQL, logger)
			},
			pool.WithPing[*mysql.Client](func(ctx context.Context, c *mysql.Client) error {
				return c.Ping(ctx)
			}),
			pool.WithCloser[*mysql.Client](func(c *mysql.Client) error {
				return c.Close()
			}),
		)
		if err != nil {
			logger.Fatal("failed to build session pool", zap.Error(err))
		}
		cleanup = func() {
			if err := sessions.Close(); err != nil {
				logger.Warn("failed to close session pool", zap.Error(err))
			}
		}
		logger.Info("session pool ready", zap.Int("size", sessions.Cap()))

		ledger = mysql_adapter.NewMySQLLedger(sessions)

	case StorageMemory:
		var walFile *wal.WAL
		if cfg.WALPath != "" {
			walFile, err = wal.Open(cfg.WALPath)
			if err != nil {
				logger.Fatal("failed to open wal", zap.Error(err))
			}
		}

		seeds := make(map[int64]*domain.Account, len(cfg.Accounts))
		for _, seed := range cfg.Accounts {
			seeds[seed.ID] = domain.NewAccount(seed.ID, seed.Balance, seed.Limit)
		}

		memLedger, err := memory_adapter.NewMutexLedger(seeds, walFile)
		if err != nil {
			logger.Fatal("failed to init memory ledger", zap.Error(err))
		}
		cleanup = func() {
			if walFile != nil {
				if err := walFile.Close(); err != nil {
					logger.Warn("failed to close wal", zap.Error(err))
				}
			}
		}
		ledger = memLedger

	default:
		logger.Fatal("invalid storage mode", zap.String("storage", cfg.Storage))
	}
	defer cleanup()

	// 3. 初始化 UseCase 並載入帳戶 (合法 ID 範圍由後端推導，不寫死)
	core := usecase.NewCoreUseCase(ledger)

	accounts, err := core.LoadAllAccounts(ctx)
	if err != nil {
		logger.Fatal("failed to load accounts", zap.Error(err))
	}
	logger.Info("loaded accounts", zap.Int("count", len(accounts)))

	validIDs := make(map[int64]struct{}, len(accounts))
	for id := range accounts {
		validIDs[id] = struct{}{}
	}

	// 4. 啟動 HTTP Server
	server := http_adapter.NewServer(core, validIDs, logger, cfg.Listen)

	go func() {
		logger.Info("starting http server", zap.String("addr", cfg.Listen))
		if err := server.Listen(); err != nil {
			logger.Fatal("failed to serve", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown incomplete", zap.Error(err))
	}
	logger.Info("server exited")
}

func loadConfig(logger *zap.Logger) Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config/config.yaml"
	}

	cfgData, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("failed to read config file", zap.String("path", path), zap.Error(err))
	}
	var cfg Config
	if err := yaml.Unmarshal(cfgData, &cfg); err != nil {
		logger.Fatal("failed to parse config", zap.Error(err))
	}

	// 補全預設配置 (如果 yaml 沒寫)
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Storage == "" {
		cfg.Storage = StorageMySQL
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = 10
	}
	if cfg.MySQL.Port == 0 {
		cfg.MySQL.Port = 3306
	}
	if cfg.MySQL.ConnMaxLifetime == 0 {
		cfg.MySQL.ConnMaxLifetime = 30 * time.Minute
	}
	return cfg
}
