package mysql

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// 啟動階段的連線重試: 資料庫尚未就緒時最多等 20 次、每次間隔 5 秒，
// 全數失敗即回傳錯誤讓呼叫端中止啟動
const (
	maxConnectAttempts = 20
	connectRetryDelay  = 5 * time.Second
)

// Client 封裝一條通往 MySQL 的 Session (GORM DB 實例)。
// 作為資源池中的單一資源使用，因此底層連線數固定為 1，
// 同一時間只會有一個呼叫者持有它。
type Client struct {
	db *gorm.DB
}

// NewClient 建立並回傳一個新的 MySQL Session
//
// 參數:
//
//	cfg: Config - MySQL 連線配置
//	log: 結構化 Logger (重試過程的告警輸出)
//
// 回傳值:
//
//	*Client: 封裝後的 MySQL Session
//	error: 若重試耗盡仍無法連線則回傳錯誤
func NewClient(cfg Config, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}

	gormConfig := &gorm.Config{
		// 跳過預設事務模式; 需要原子性的路徑會明確使用 Transaction
		SkipDefaultTransaction: true,
		Logger:                 newLogger(cfg.LogLevel),
	}

	var db *gorm.DB
	var err error

	for i := 0; i < maxConnectAttempts; i++ {
		db, err = gorm.Open(mysql.Open(cfg.DSN()), gormConfig)
		if err == nil {
			rawDB, pingErr := db.DB()
			if pingErr == nil {
				if err = rawDB.Ping(); err == nil {
					break // Connection successful
				}
				// Ping 失敗: 先關掉這次開出的連線，重試時不洩漏前一次的 handle
				_ = rawDB.Close()
			} else {
				err = pingErr
			}
		}

		if i < maxConnectAttempts-1 {
			log.Warn("failed to connect to mysql, retrying",
				zap.Int("attempt", i+1),
				zap.Int("max_attempts", maxConnectAttempts),
				zap.Duration("retry_delay", connectRetryDelay),
				zap.Error(err),
			)
			time.Sleep(connectRetryDelay)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to connect to mysql after %d attempts: %w", maxConnectAttempts, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.db: %w", err)
	}

	// 一個 Client 就是池中的一條 Session，底層不再自行擴張連線
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Client{db: db}, nil
}

// DB 回傳底層的 *gorm.DB 實例，供業務邏輯層使用
func (c *Client) DB() *gorm.DB {
	return c.db
}

// Ping 檢查 Session 是否仍然可用 (資源池借出前的健康檢查)
func (c *Client) Ping(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 關閉資料庫連線
func (c *Client) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// newLogger 根據配置建立 GORM Logger
func newLogger(level string) logger.Interface {
	var logLevel logger.LogLevel
	switch level {
	case "info":
		logLevel = logger.Info
	case "warn":
		logLevel = logger.Warn
	case "error":
		logLevel = logger.Error
	case "silent":
		logLevel = logger.Silent
	default:
		logLevel = logger.Error // 預設只記錄錯誤
	}

	return logger.Default.LogMode(logLevel)
}
