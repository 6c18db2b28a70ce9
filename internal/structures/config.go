package structures

import "time"

type Server struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"required|uint|min:1"`
}

type Persistence struct {
	FilePath     string        `yaml:"filePath" validate:"required|unixPath"`
	SaveInterval time.Duration `yaml:"saveInterval" validate:"required|min:1"`
	Compression  string        `yaml:"compression" validate:"in:fastest,default,better,best"`
}

type LoggerConfig struct {
	Level string `yaml:"level" validate:"required|in:trace,debug,info,warn,error,fatal,panic"`
	Mode  uint32 `yaml:"mode" validate:"required|uint"`
	Dir   string `yaml:"dir" validate:"required|unixPath"`
}

type DatabaseConfig struct {
	Driver   string `yaml:"driver" validate:"required|in:postgres,sqlite"`
	DSN      string `yaml:"dsn" validate:"required"`
	MaxConns int    `yaml:"maxConns"`
}

const (
	StateBackendDatabase = "database"
	StateBackendFile     = "file"
)

type SyncConfig struct {
	CooldownWindow           time.Duration `yaml:"cooldownWindow" validate:"required|min:1"`
	ProviderTimeout          time.Duration `yaml:"providerTimeout" validate:"required|min:1"`
	FetchingEnabledByDefault bool          `yaml:"fetchingEnabledByDefault"`
	StateBackend             string        `yaml:"stateBackend" validate:"required|in:database,file"`
	AccountResultLimit       int           `yaml:"accountResultLimit"`
	AccountLookbackDays      int           `yaml:"accountLookbackDays"`
	HashtagResultLimit       int           `yaml:"hashtagResultLimit"`
}

type ProviderConfig struct {
	BaseURL           string `yaml:"baseURL" validate:"required|fullUrl"`
	Actor             string `yaml:"actor" validate:"required"`
	Token             string `yaml:"token"`
	RequestsPerMinute int    `yaml:"requestsPerMinute"`
}

type CacheConfig struct {
	Enabled bool          `yaml:"enabled"`
	Size    int           `yaml:"size"`
	TTL     time.Duration `yaml:"ttl"`
}

type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

type Config struct {
	AppName     string
	Debug       bool
	Path        string
	WebServer   Server         `yaml:"webServer"`
	Logger      LoggerConfig   `yaml:"logger"`
	Database    DatabaseConfig `yaml:"database"`
	Sync        SyncConfig     `yaml:"sync"`
	Provider    ProviderConfig `yaml:"provider"`
	Persistence Persistence    `yaml:"persistence"`
	Cache       CacheConfig    `yaml:"cache"`
	Metrics     MetricsConfig  `yaml:"metrics"`
}
