package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 从文件加载配置并填充到 Cfg，环境变量 GNET_* 优先
func LoadConfig() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")

	viper.SetEnvPrefix("GNET")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("config file not found: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("im.write_timeout_ms", 3000)
	viper.SetDefault("im.history_page_size", 30)
	viper.SetDefault("im.disappearing_seconds", 86400)
	viper.SetDefault("im.send_buffer", 256)
	viper.SetDefault("im.max_frame_bytes", 64*1024)
	viper.SetDefault("im.follower_cache_min", 10)
	viper.SetDefault("im.last_seen_ttl_hours", 24*7)
	viper.SetDefault("minio.max_upload_mb", 10)
	viper.SetDefault("cron.disappearing_purge", "0 */5 * * * *")
	viper.SetDefault("cron.presence_reconcile", "30 * * * * *")
}
