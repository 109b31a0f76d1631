package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"MARKETPLACE_API_URL", "MARKETPLACE_USER_AGENT", "REDIS_URL", "CACHE_DEFAULT_TTL",
		"SCHEMA_CACHE_TTL", "CACHE_CLEANUP_SCHEDULE", "LOG_LEVEL", "LOG_PRETTY", "PORT",
		"MARKETPLACE_RETRY_MAX_ATTEMPTS", "MARKETPLACE_REQUEST_TIMEOUT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	def := Default()
	if cfg.UserAgent != def.UserAgent || cfg.Port != "8080" || cfg.CacheDefaultTTL != 5*time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.RetryMaxAttempts != 1 {
		t.Errorf("RetryMaxAttempts = %d, want 1", cfg.RetryMaxAttempts)
	}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should require MARKETPLACE_API_URL")
	}
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("MARKETPLACE_API_URL", "http://api.example.test/graphql")
	t.Setenv("MARKETPLACE_USER_AGENT", "facets/2.0")
	t.Setenv("CACHE_DEFAULT_TTL", "90s")
	t.Setenv("SCHEMA_CACHE_TTL", "10m")
	t.Setenv("MARKETPLACE_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("LOG_PRETTY", "true")
	t.Setenv("CACHE_CLEANUP_SCHEDULE", "*/5 * * * *")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.CacheDefaultTTL != 90*time.Second || cfg.SchemaCacheTTL != 10*time.Minute {
		t.Errorf("TTLs = %v/%v", cfg.CacheDefaultTTL, cfg.SchemaCacheTTL)
	}
	if cfg.RetryMaxAttempts != 3 || !cfg.LogPretty {
		t.Errorf("cfg = %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate failed: %v", err)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"CACHE_DEFAULT_TTL", "five minutes"},
		{"SCHEMA_CACHE_TTL", "-"},
		{"MARKETPLACE_RETRY_MAX_ATTEMPTS", "many"},
		{"LOG_PRETTY", "sometimes"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	content := "MARKETPLACE_API_URL=http://from-file.test/graphql\nPORT=9090\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	os.Unsetenv("MARKETPLACE_API_URL")
	os.Unsetenv("PORT")
	t.Cleanup(func() {
		os.Unsetenv("MARKETPLACE_API_URL")
		os.Unsetenv("PORT")
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIURL != "http://from-file.test/graphql" || cfg.Port != "9090" {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("explicit missing env file should fail")
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.APIURL = "http://api.example.test/graphql"

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing url", func(c *Config) { c.APIURL = "" }, true},
		{"empty user agent", func(c *Config) { c.UserAgent = "" }, true},
		{"zero attempts", func(c *Config) { c.RetryMaxAttempts = 0 }, true},
		{"bad schedule", func(c *Config) { c.CleanupSchedule = "every now and then" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRedisOptions(t *testing.T) {
	tests := []struct {
		url      string
		wantNil  bool
		wantAddr string
		wantDB   int
	}{
		{"", true, "", 0},
		{"localhost:6379", false, "localhost:6379", 0},
		{"redis://cache.internal:6380/2", false, "cache.internal:6380", 2},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c := Default()
			c.RedisURL = tt.url
			opts, err := c.RedisOptions()
			if err != nil {
				t.Fatalf("RedisOptions failed: %v", err)
			}
			if tt.wantNil {
				if opts != nil {
					t.Errorf("expected nil options, got %+v", opts)
				}
				return
			}
			if opts.Addr != tt.wantAddr || opts.DB != tt.wantDB {
				t.Errorf("opts = %s db %d, want %s db %d", opts.Addr, opts.DB, tt.wantAddr, tt.wantDB)
			}
		})
	}

	c := Default()
	c.RedisURL = "redis://cache.internal:notaport"
	if _, err := c.RedisOptions(); err == nil {
		t.Error("expected parse error")
	}
}
