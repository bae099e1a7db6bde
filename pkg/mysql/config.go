package mysql

import (
	"fmt"
	"time"
)

// Config 定義 MySQL 連線配置
type Config struct {
	Host     string `yaml:"host"`     // 資料庫主機地址
	Port     int    `yaml:"port"`     // 資料庫埠號 (預設 3306)
	User     string `yaml:"user"`     // 使用者名稱
	Password string `yaml:"password"` // 密碼
	DBName   string `yaml:"dbname"`   // 資料庫名稱

	// ConnMaxLifetime 單一 Session 的最大存活時間
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// GORM 設定
	LogLevel string `yaml:"log_level"` // Log 等級: "silent", "error", "warn", "info"
}

// DSN (Data Source Name) 產生連線字串
// clientFoundRows=true 讓 UPDATE 回報「條件命中」而非「實際變更」的列數，
// 否則金額為 0 的合法交易會被誤判為謂詞失敗
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.DBName,
	)
}
