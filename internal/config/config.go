// internal/config/config.go

// Package config 讀取服務設定：先載入可選的 .env 檔，再由環境變數解析並驗證。
package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config 為服務設定。
type Config struct {
	HTTPAddr    string   `env:"ATM_HTTP_ADDR" envDefault:":8080" validate:"required"`
	DataFile    string   `env:"ATM_DATA_FILE" envDefault:"data.json" validate:"required"`
	AuditDB     string   `env:"ATM_AUDIT_DB"`
	LogLevel    string   `env:"ATM_LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
	LogFormat   string   `env:"ATM_LOG_FORMAT" envDefault:"json" validate:"oneof=json console"`
	BcryptCost  int      `env:"ATM_BCRYPT_COST" envDefault:"10" validate:"gte=4,lte=31"`
	CORSOrigins []string `env:"ATM_CORS_ORIGINS" envSeparator:"," envDefault:"*" validate:"min=1"`
}

// Load 載入 .env（預設為工作目錄下的 .env；檔案不存在不視為錯誤），
// 已存在的環境變數不會被覆寫。
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load env file: %w", err)
	}
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 檢查設定值範圍。
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
