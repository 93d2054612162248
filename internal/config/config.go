package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Cache     CacheConfig
	Auth      AuthConfig
	Directory DirectoryConfig
	MCP       MCPConfig
	Log       LogConfig
	CLI       CLIConfig
}

type ServerConfig struct {
	Port           int
	MaxConnections int
	AllowedOrigins string
}

// Origins splits AllowedOrigins on commas.
func (s ServerConfig) Origins() []string {
	var out []string
	for _, o := range strings.Split(s.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// Profile document backends.
const (
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

type StorageConfig struct {
	DataDir        string
	ProfileBackend string
	MongoURI       string
	MongoDB        string
}

type CacheConfig struct {
	RedisURL string
	TTL      time.Duration
}

// Auth modes.
const (
	AuthJWT      = "jwt"
	AuthFirebase = "firebase"
)

type AuthConfig struct {
	Mode                    string
	JWTSecret               string
	FirebaseProjectID       string
	FirebaseCredentialsFile string
}

type DirectoryConfig struct {
	MaxCompare int
	PageSize   int
}

type MCPConfig struct {
	UserID string
}

type LogConfig struct {
	Level string
}

type CLIConfig struct {
	ServerURL string
	Token     string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:           8080,
			MaxConnections: 256,
			AllowedOrigins: "*",
		},
		Storage: StorageConfig{
			DataDir:        defaultDataDir(),
			ProfileBackend: BackendSQLite,
			MongoDB:        "aboutme",
		},
		Cache: CacheConfig{
			TTL: 60 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthJWT,
		},
		Directory: DirectoryConfig{
			MaxCompare: 4,
			PageSize:   20,
		},
		Log: LogConfig{
			Level: "info",
		},
		CLI: CLIConfig{
			ServerURL: "http://localhost:8080",
		},
	}
}

// Load reads configuration from the YAML file at
// $XDG_CONFIG_HOME/cards/config.yaml, then applies CARDS_* environment
// overrides. Secrets are only read from the environment.
func Load() (Config, error) {
	cfg, err := loadWith(newFileBackend(configFilePath()))
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadClient is Load without server-side validation, for CLI commands
// that only talk to a running server.
func LoadClient() (Config, error) {
	return loadWith(newFileBackend(configFilePath()))
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// Validate checks the settings the server cannot start without.
func (c Config) Validate() error {
	var errs []error

	switch c.Auth.Mode {
	case AuthJWT:
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("missing required config: JWT secret. Set it via environment variable CARDS_AUTH_JWT_SECRET"))
		}
	case AuthFirebase:
		if c.Auth.FirebaseProjectID == "" {
			errs = append(errs, errors.New("auth.firebase_project_id is required when auth.mode is firebase"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth.mode %q (want %s or %s)", c.Auth.Mode, AuthJWT, AuthFirebase))
	}

	switch c.Storage.ProfileBackend {
	case BackendSQLite:
	case BackendMongo:
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("storage.mongo_uri is required when storage.profile_backend is mongo"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage.profile_backend %q (want %s or %s)", c.Storage.ProfileBackend, BackendSQLite, BackendMongo))
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}
	if c.Directory.MaxCompare < 2 {
		errs = append(errs, fmt.Errorf("directory.max_compare must be at least 2, got %d", c.Directory.MaxCompare))
	}
	return errors.Join(errs...)
}

func defaultDataDir() string {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".local", "share")
		} else {
			return "cards-data"
		}
	}
	return filepath.Join(dir, "cards")
}

func configFilePath() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, ".config")
		} else {
			dir = "."
		}
	}
	return filepath.Join(dir, "cards", "config.yaml")
}
