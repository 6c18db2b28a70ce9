package providers

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"tokcache/internal/structures"
)

func validConfig() *structures.Config {
	return &structures.Config{
		WebServer: structures.Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Persistence: structures.Persistence{
			FilePath:     "/tmp/tokcache-state.dat",
			SaveInterval: 30 * time.Second,
		},
		Logger: structures.LoggerConfig{
			Level: "info",
			Mode:  0644,
			Dir:   "/tmp/logs",
		},
		Database: structures.DatabaseConfig{
			Driver: "sqlite",
			DSN:    "/tmp/tokcache.db",
		},
		Sync: structures.SyncConfig{
			CooldownWindow:  5 * time.Minute,
			ProviderTimeout: 30 * time.Second,
			StateBackend:    structures.StateBackendDatabase,
		},
		Provider: structures.ProviderConfig{
			BaseURL: "https://api.apify.com",
			Actor:   "clockworks~free-tiktok-scraper",
		},
	}
}

func TestConfigValidator_ValidConfig(t *testing.T) {
	v := NewCnfValidator(validConfig())
	assert.NoError(t, v.Validate())
}

func TestConfigValidator_EmptyHost(t *testing.T) {
	c := validConfig()
	c.WebServer.Host = ""
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_ZeroPort(t *testing.T) {
	c := validConfig()
	c.WebServer.Port = 0
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_InvalidLogLevel(t *testing.T) {
	c := validConfig()
	c.Logger.Level = "verbose"
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_UnknownDatabaseDriver(t *testing.T) {
	c := validConfig()
	c.Database.Driver = "mysql"
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_UnknownStateBackend(t *testing.T) {
	c := validConfig()
	c.Sync.StateBackend = "redis"
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_ZeroCooldownWindow(t *testing.T) {
	c := validConfig()
	c.Sync.CooldownWindow = 0
	v := NewCnfValidator(c)
	assert.Error(t, v.Validate())
}

func TestConfigValidator_SnapshotCompression(t *testing.T) {
	for _, level := range []string{"", "fastest", "best"} {
		c := validConfig()
		c.Persistence.Compression = level
		assert.NoError(t, NewCnfValidator(c).Validate(), level)
	}

	c := validConfig()
	c.Persistence.Compression = "ultra"
	assert.Error(t, NewCnfValidator(c).Validate())
}
