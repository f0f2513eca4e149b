// Package config provides configuration loading and validation for the
// Arquivobot application. Configuration is read from an optional YAML file
// with BOT_* environment variable overrides, and validated before use.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// Config defines the application configuration for all components:
// logging, the Telegram transport, the Nextcloud share, the database,
// the optional interval scheduler, and user-facing message templates.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Nextcloud NextcloudConfig `mapstructure:"nextcloud"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Messages  MessagesConfig  `mapstructure:"messages"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// TelegramConfig holds the bot credential and polling behavior.
type TelegramConfig struct {
	Token string `mapstructure:"token" validate:"required"`

	// LogsChatID, when non-zero, receives a mirror of warning and error
	// log records.
	LogsChatID int64 `mapstructure:"logs_chat_id"`

	// UseOffset enables server-side offset consumption: updates below the
	// requested offset are marked consumed by Telegram. When disabled the
	// persisted cursor is used purely as a local replay filter.
	UseOffset bool `mapstructure:"use_offset"`

	// FetchLimit bounds the number of updates requested per run.
	FetchLimit int `mapstructure:"fetch_limit" validate:"min=1,max=100"`

	RequestTimeout  time.Duration `mapstructure:"request_timeout"  validate:"min=1s,max=5m"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" validate:"min=1s,max=30m"`
}

// NextcloudConfig holds the public-share WebDAV endpoint settings.
type NextcloudConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	ShareID        string        `mapstructure:"share_id" validate:"required"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"min=1s,max=30m"`
}

// DatabaseConfig holds the SQLite database location.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig controls interval mode. When disabled the process runs
// the pipeline once and exits.
type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_with=Enabled"`
}

// MessagesConfig holds the localized user-facing message templates.
// Templates with a %s placeholder receive the destination filename.
type MessagesConfig struct {
	Welcome       string `mapstructure:"welcome"`
	UploadSuccess string `mapstructure:"upload_success"`
	UploadFailed  string `mapstructure:"upload_failed"`
	FileTooLarge  string `mapstructure:"file_too_large"`
	Closing       string `mapstructure:"closing"`
}

// Validate checks the configuration against its declared constraints.
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}
