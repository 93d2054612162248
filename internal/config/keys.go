package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "CARDS_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.max_connections", typ: kInt, env: "CARDS_SERVER_MAX_CONNECTIONS",
		apply:   func(cfg *Config, v any) { cfg.Server.MaxConnections = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.MaxConnections },
	},
	{
		key: "server.allowed_origins", typ: kString, env: "CARDS_SERVER_ALLOWED_ORIGINS",
		apply:   func(cfg *Config, v any) { cfg.Server.AllowedOrigins = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.AllowedOrigins },
	},
	{
		key: "storage.data_dir", typ: kString, env: "CARDS_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "storage.profile_backend", typ: kString, env: "CARDS_STORAGE_PROFILE_BACKEND",
		apply:   func(cfg *Config, v any) { cfg.Storage.ProfileBackend = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.ProfileBackend },
	},
	{
		key: "storage.mongo_uri", typ: kString, env: "CARDS_STORAGE_MONGO_URI",
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoURI = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoURI },
	},
	{
		key: "storage.mongo_db", typ: kString, env: "CARDS_STORAGE_MONGO_DB",
		apply:   func(cfg *Config, v any) { cfg.Storage.MongoDB = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.MongoDB },
	},
	{
		key: "cache.redis_url", typ: kString, env: "CARDS_CACHE_REDIS_URL",
		apply:   func(cfg *Config, v any) { cfg.Cache.RedisURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Cache.RedisURL },
	},
	{
		key: "cache.ttl", typ: kDuration, env: "CARDS_CACHE_TTL",
		apply:   func(cfg *Config, v any) { cfg.Cache.TTL = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Cache.TTL },
	},
	{
		key: "auth.mode", typ: kString, env: "CARDS_AUTH_MODE",
		apply:   func(cfg *Config, v any) { cfg.Auth.Mode = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.Mode },
	},
	{
		key: "auth.jwt_secret", typ: kString, env: "CARDS_AUTH_JWT_SECRET",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.Auth.JWTSecret = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.JWTSecret },
	},
	{
		key: "auth.firebase_project_id", typ: kString, env: "CARDS_AUTH_FIREBASE_PROJECT_ID",
		apply:   func(cfg *Config, v any) { cfg.Auth.FirebaseProjectID = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.FirebaseProjectID },
	},
	{
		key: "auth.firebase_credentials_file", typ: kString, env: "CARDS_AUTH_FIREBASE_CREDENTIALS_FILE",
		apply:   func(cfg *Config, v any) { cfg.Auth.FirebaseCredentialsFile = v.(string) },
		extract: func(cfg Config) any { return cfg.Auth.FirebaseCredentialsFile },
	},
	{
		key: "directory.max_compare", typ: kInt, env: "CARDS_DIRECTORY_MAX_COMPARE",
		apply:   func(cfg *Config, v any) { cfg.Directory.MaxCompare = v.(int) },
		extract: func(cfg Config) any { return cfg.Directory.MaxCompare },
	},
	{
		key: "directory.page_size", typ: kInt, env: "CARDS_DIRECTORY_PAGE_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Directory.PageSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Directory.PageSize },
	},
	{
		key: "mcp.user_id", typ: kString, env: "CARDS_MCP_USER_ID",
		apply:   func(cfg *Config, v any) { cfg.MCP.UserID = v.(string) },
		extract: func(cfg Config) any { return cfg.MCP.UserID },
	},
	{
		key: "log.level", typ: kString, env: "CARDS_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
	{
		key: "cli.server_url", typ: kString, env: "CARDS_CLI_SERVER_URL",
		apply:   func(cfg *Config, v any) { cfg.CLI.ServerURL = v.(string) },
		extract: func(cfg Config) any { return cfg.CLI.ServerURL },
	},
	{
		key: "cli.token", typ: kString, env: "CARDS_CLI_TOKEN",
		secret:  true,
		apply:   func(cfg *Config, v any) { cfg.CLI.Token = v.(string) },
		extract: func(cfg Config) any { return cfg.CLI.Token },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
