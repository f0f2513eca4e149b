package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default values for optional configuration parameters.
const (
	DefaultLogLevel        = "info"
	DefaultFetchLimit      = 100
	DefaultRequestTimeout  = 30 * time.Second
	DefaultDownloadTimeout = 5 * time.Minute
	DefaultDBPath          = "arquivobot.db"
	DefaultSchedule        = "*/5 * * * *"
)

// DefaultMessages are the stock Portuguese notices sent to users.
var DefaultMessages = MessagesConfig{
	Welcome:       "Oie, é só enviar suas fotinhos e vídeos :D",
	UploadSuccess: "Arquivo '%s' submetido com sucesso!",
	UploadFailed:  "Arquivo '%s' misteriosamente não foi submetido...",
	FileTooLarge:  "Arquivo '%s' é muito grande para eu lidar com ele, e reagi a ele com uma carinha triste",
	Closing:       "Acredito que processei todas as suas mídias. Obrigado por contribuir! Pode enviar mais fotos que, em tempo, irei processá-las novamente. Abraços do bot!",
}

// Load loads and validates configuration from:
// 1. Default values
// 2. The YAML file at configPath (optional)
// 3. BOT_* environment variables
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("BOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// A missing config file is fine, everything can come from the
	// environment. Any other read error is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values for all optional parameters.
func setDefaults() {
	viper.SetDefault("log.level", DefaultLogLevel)
	viper.SetDefault("log.json", false)

	// Required keys get empty defaults so environment-only values are
	// visible to Unmarshal.
	viper.SetDefault("telegram.token", "")
	viper.SetDefault("telegram.logs_chat_id", 0)
	viper.SetDefault("nextcloud.base_url", "")
	viper.SetDefault("nextcloud.share_id", "")

	viper.SetDefault("telegram.use_offset", true)
	viper.SetDefault("telegram.fetch_limit", DefaultFetchLimit)
	viper.SetDefault("telegram.request_timeout", DefaultRequestTimeout)
	viper.SetDefault("telegram.download_timeout", DefaultDownloadTimeout)

	viper.SetDefault("nextcloud.request_timeout", DefaultDownloadTimeout)

	viper.SetDefault("database.path", DefaultDBPath)

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.schedule", DefaultSchedule)

	viper.SetDefault("messages.welcome", DefaultMessages.Welcome)
	viper.SetDefault("messages.upload_success", DefaultMessages.UploadSuccess)
	viper.SetDefault("messages.upload_failed", DefaultMessages.UploadFailed)
	viper.SetDefault("messages.file_too_large", DefaultMessages.FileTooLarge)
	viper.SetDefault("messages.closing", DefaultMessages.Closing)
}
