package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// clearEnv blanks every CARDS_* variable the loader reads.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, s := range specs {
		t.Setenv(s.env, "")
	}
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `# empty config`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Server.MaxConnections != 256 {
		t.Errorf("Server.MaxConnections = %d, want 256", cfg.Server.MaxConnections)
	}
	if cfg.Storage.ProfileBackend != BackendSQLite {
		t.Errorf("Storage.ProfileBackend = %q, want %q", cfg.Storage.ProfileBackend, BackendSQLite)
	}
	if cfg.Storage.MongoDB != "aboutme" {
		t.Errorf("Storage.MongoDB = %q, want aboutme", cfg.Storage.MongoDB)
	}
	if cfg.Cache.TTL != 60*time.Second {
		t.Errorf("Cache.TTL = %v, want 60s", cfg.Cache.TTL)
	}
	if cfg.Auth.Mode != AuthJWT {
		t.Errorf("Auth.Mode = %q, want %q", cfg.Auth.Mode, AuthJWT)
	}
	if cfg.Directory.MaxCompare != 4 || cfg.Directory.PageSize != 20 {
		t.Errorf("Directory = %+v, want max_compare 4, page_size 20", cfg.Directory)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

// TestYAMLParsing verifies that dotted keys are read from the YAML file.
func TestYAMLParsing(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, `
server.port: 9090
server.allowed_origins: "https://a.example, https://b.example"
storage.data_dir: /tmp/cards-test
storage.profile_backend: mongo
storage.mongo_uri: mongodb://localhost:27017
cache.redis_url: redis://localhost:6379/0
cache.ttl: 5m
auth.mode: firebase
auth.firebase_project_id: aboutme-dev
directory.max_compare: 6
mcp.user_id: alice
`)

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	origins := cfg.Server.Origins()
	if len(origins) != 2 || origins[1] != "https://b.example" {
		t.Errorf("Origins() = %v", origins)
	}
	if cfg.Storage.DataDir != "/tmp/cards-test" {
		t.Errorf("Storage.DataDir = %q", cfg.Storage.DataDir)
	}
	if cfg.Storage.ProfileBackend != BackendMongo || cfg.Storage.MongoURI != "mongodb://localhost:27017" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Cache.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("Cache.RedisURL = %q", cfg.Cache.RedisURL)
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Auth.Mode != AuthFirebase || cfg.Auth.FirebaseProjectID != "aboutme-dev" {
		t.Errorf("Auth = %+v", cfg.Auth)
	}
	if cfg.Directory.MaxCompare != 6 {
		t.Errorf("Directory.MaxCompare = %d, want 6", cfg.Directory.MaxCompare)
	}
	if cfg.MCP.UserID != "alice" {
		t.Errorf("MCP.UserID = %q, want alice", cfg.MCP.UserID)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "server.port: 9090\ncache.ttl: 5m\n")

	t.Setenv("CARDS_SERVER_PORT", "7070")
	t.Setenv("CARDS_CACHE_TTL", "90s")
	t.Setenv("CARDS_AUTH_JWT_SECRET", "env-secret")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 90*time.Second {
		t.Errorf("Cache.TTL = %v, want 90s", cfg.Cache.TTL)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("Auth.JWTSecret = %q, want env-secret", cfg.Auth.JWTSecret)
	}
}

// TestSecretsIgnoredInFile verifies secrets are never read from the config file.
func TestSecretsIgnoredInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "auth.jwt_secret: from-file\n")

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Auth.JWTSecret != "" {
		t.Errorf("Auth.JWTSecret = %q, want empty", cfg.Auth.JWTSecret)
	}
}

func TestInvalidIntInFile(t *testing.T) {
	clearEnv(t)
	path := writeTempConfig(t, "server.port: lots\n")

	if _, err := loadWith(newFileBackend(path)); err == nil {
		t.Fatal("expected error for non-integer server.port")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"jwt with secret", func(c *Config) { c.Auth.JWTSecret = "s" }, ""},
		{"jwt without secret", func(c *Config) {}, "missing required config"},
		{"firebase without project", func(c *Config) { c.Auth.Mode = AuthFirebase }, "firebase_project_id"},
		{"unknown auth mode", func(c *Config) { c.Auth.Mode = "basic" }, "unknown auth.mode"},
		{"mongo without uri", func(c *Config) {
			c.Auth.JWTSecret = "s"
			c.Storage.ProfileBackend = BackendMongo
		}, "mongo_uri"},
		{"unknown backend", func(c *Config) {
			c.Auth.JWTSecret = "s"
			c.Storage.ProfileBackend = "postgres"
		}, "unknown storage.profile_backend"},
		{"max compare too small", func(c *Config) {
			c.Auth.JWTSecret = "s"
			c.Directory.MaxCompare = 1
		}, "max_compare"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSetKey(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cards", "config.yaml")
	b := newFileBackend(path)

	if err := setKeyWith(b, "server.port", "9191"); err != nil {
		t.Fatalf("set server.port: %v", err)
	}
	if err := setKeyWith(b, "cache.ttl", "2m"); err != nil {
		t.Fatalf("set cache.ttl: %v", err)
	}
	if err := setKeyWith(b, "server.port", "abc"); err == nil {
		t.Error("expected error for non-integer port")
	}
	if err := setKeyWith(b, "cache.ttl", "soon"); err == nil {
		t.Error("expected error for bad duration")
	}
	if err := setKeyWith(b, "auth.jwt_secret", "x"); err == nil {
		t.Error("expected error when setting a secret")
	}
	if err := setKeyWith(b, "no.such.key", "x"); err == nil {
		t.Error("expected error for unknown key")
	}

	cfg, err := loadWith(newFileBackend(path))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Server.Port = %d after SetKey, want 9191", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 2*time.Minute {
		t.Errorf("Cache.TTL = %v after SetKey, want 2m", cfg.Cache.TTL)
	}
}

func TestShowAllHidesSecrets(t *testing.T) {
	cfg := defaults()
	cfg.Auth.JWTSecret = "hunter2"

	for _, k := range ShowAll(cfg) {
		if k.Key == "auth.jwt_secret" || k.Key == "cli.token" {
			t.Errorf("ShowAll exposed secret key %s", k.Key)
		}
		if k.Value == "hunter2" {
			t.Errorf("ShowAll exposed secret value under %s", k.Key)
		}
	}
	for _, k := range ValidKeys() {
		if k == "auth.jwt_secret" {
			t.Error("ValidKeys lists a secret")
		}
	}
}
