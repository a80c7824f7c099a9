// Package settings loads server settings with viper: built-in defaults, an optional
// JSON/YAML file, and WARGAME_* environment overrides (a.b keys map to WARGAME_A_B).
package settings

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Storage backends accepted by storage.backend
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Settings holds everything the server needs at start
type Settings struct {
	Host      string          `mapstructure:"host"`
	Port      int             `mapstructure:"port"`
	ConfigDir string          `mapstructure:"configDir"`
	LogLevel  string          `mapstructure:"logLevel"`
	Sessions  SessionSettings `mapstructure:"sessions"`
	Storage   StorageSettings `mapstructure:"storage"`
	Ngrok     NgrokSettings   `mapstructure:"ngrok"`
}

// SessionSettings controls session expiry
type SessionSettings struct {
	MaxAge          time.Duration `mapstructure:"maxAge"`
	CleanupInterval time.Duration `mapstructure:"cleanupInterval"`
}

// StorageSettings selects and configures the session persistence backend
type StorageSettings struct {
	Backend    string `mapstructure:"backend"`
	Dir        string `mapstructure:"dir"`
	SQLitePath string `mapstructure:"sqlitePath"`
	RedisAddr  string `mapstructure:"redisAddr"`
	RedisDB    int    `mapstructure:"redisDB"`
}

// NgrokSettings configures the optional public tunnel
type NgrokSettings struct {
	Enabled   bool   `mapstructure:"enabled"`
	AuthToken string `mapstructure:"authToken"`
	Domain    string `mapstructure:"domain"`
}

// Addr returns host:port
func (s *Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Level parses LogLevel, falling back to info
func (s *Settings) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(s.LogLevel))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "localhost")
	v.SetDefault("port", 8080)
	v.SetDefault("configDir", "configs")
	v.SetDefault("logLevel", "info")

	v.SetDefault("sessions.maxAge", "24h")
	v.SetDefault("sessions.cleanupInterval", "1h")

	v.SetDefault("storage.backend", BackendFile)
	v.SetDefault("storage.dir", "sessions")
	v.SetDefault("storage.sqlitePath", "sessions.db")
	v.SetDefault("storage.redisAddr", "localhost:6379")
	v.SetDefault("storage.redisDB", 0)

	v.SetDefault("ngrok.enabled", false)
	v.SetDefault("ngrok.authToken", "")
	v.SetDefault("ngrok.domain", "")
}

// New returns a viper instance with defaults and environment bindings but no file
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WARGAME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept from earlier deployments
	_ = v.BindEnv("configDir", "WARGAME_CONFIGDIR", "CONFIG_DIR")
	_ = v.BindEnv("ngrok.enabled", "WARGAME_NGROK_ENABLED", "NGROK_ENABLED")
	_ = v.BindEnv("ngrok.authToken", "WARGAME_NGROK_AUTHTOKEN", "NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	_ = v.BindEnv("ngrok.domain", "WARGAME_NGROK_DOMAIN", "NGROK_DOMAIN")
	return v
}

// Load reads settings. An empty configFile uses defaults and environment only;
// a named file must exist.
func Load(configFile string) (*Settings, error) {
	v := New()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return Decode(v)
}

// Decode unmarshals and validates a viper instance
func Decode(v *viper.Viper) (*Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("error decoding settings: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks ranges and the backend name
func (s *Settings) Validate() error {
	if s.Port < 0 || s.Port > 65535 {
		return fmt.Errorf("invalid port %d", s.Port)
	}
	switch s.Storage.Backend {
	case BackendFile, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown storage backend %q (want %s, %s or %s)",
			s.Storage.Backend, BackendFile, BackendSQLite, BackendRedis)
	}
	if s.Sessions.MaxAge <= 0 {
		return fmt.Errorf("sessions.maxAge must be positive, got %s", s.Sessions.MaxAge)
	}
	if s.Sessions.CleanupInterval <= 0 {
		return fmt.Errorf("sessions.cleanupInterval must be positive, got %s", s.Sessions.CleanupInterval)
	}
	return nil
}
