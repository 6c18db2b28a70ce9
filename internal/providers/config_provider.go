package providers

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"tokcache/internal/structures"
)

func setConfigDefaults(v *viper.Viper) {
	v.SetDefault("database.maxConns", 4)
	v.SetDefault("sync.cooldownWindow", "5m")
	v.SetDefault("sync.providerTimeout", "30s")
	v.SetDefault("sync.fetchingEnabledByDefault", true)
	v.SetDefault("sync.stateBackend", structures.StateBackendDatabase)
	v.SetDefault("sync.accountResultLimit", 20)
	v.SetDefault("sync.accountLookbackDays", 365)
	v.SetDefault("sync.hashtagResultLimit", 21)
	v.SetDefault("provider.baseURL", "https://api.apify.com")
	v.SetDefault("provider.actor", "clockworks~free-tiktok-scraper")
	v.SetDefault("provider.requestsPerMinute", 30)
	v.SetDefault("cache.ttl", "10s")
}

func NewConfigProvider(flags *structures.CliFlags) (*structures.Config, error) {
	var conf structures.Config

	v := viper.New()
	filename := filepath.Base(flags.ConfigPath)
	v.AddConfigPath(filepath.Dir(flags.ConfigPath))
	v.SetConfigName(strings.TrimSuffix(filename, filepath.Ext(filename)))
	v.SetConfigType("yaml")
	setConfigDefaults(v)

	v.BindEnv("logger.level", "TOKCACHE_LOG_LEVEL")
	v.BindEnv("database.driver", "TOKCACHE_DB_DRIVER")
	v.BindEnv("database.dsn", "TOKCACHE_DB_DSN")
	v.BindEnv("provider.token", "TOKCACHE_PROVIDER_TOKEN")
	v.BindEnv("sync.cooldownWindow", "TOKCACHE_COOLDOWN_WINDOW")
	v.BindEnv("sync.stateBackend", "TOKCACHE_STATE_BACKEND")
	v.BindEnv("cache.enabled", "TOKCACHE_CACHE_ENABLED")
	v.BindEnv("cache.size", "TOKCACHE_CACHE_SIZE")

	err := v.ReadInConfig()
	if err != nil {
		return nil, err
	}

	err = v.Unmarshal(&conf)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into config struct: %w", err)
	}

	cnfValidator := NewCnfValidator(&conf)
	err = cnfValidator.Validate()
	if err != nil {
		return nil, err
	}

	conf.AppName = "TokCache"
	conf.Path = flags.ConfigPath
	conf.Debug = flags.DebugMode

	return &conf, nil
}
