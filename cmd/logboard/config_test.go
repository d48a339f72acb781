package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	resetLogboardEnv(t)

	cfg, err := loadConfig(writeTempConfig(t, "host: 127.0.0.1"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.APIAddr != "127.0.0.1:8000" {
		t.Errorf("APIAddr = %q, want 127.0.0.1:8000", cfg.APIAddr)
	}
	if cfg.StoreBackend != backendDuckDB {
		t.Errorf("StoreBackend = %q", cfg.StoreBackend)
	}
	if cfg.QueryTimeout != 30*time.Second || cfg.MaxPageSize != 1000 || cfg.DefaultPageSize != 50 {
		t.Errorf("limits = %s %d %d", cfg.QueryTimeout, cfg.MaxPageSize, cfg.DefaultPageSize)
	}
	if cfg.LogRetention != 0 || !cfg.MetricsEnabled {
		t.Errorf("retention = %d metrics = %v", cfg.LogRetention, cfg.MetricsEnabled)
	}
	if cfg.ConfigPath == "" {
		t.Error("ConfigPath should record the file used")
	}

	qc := cfg.queryConfig()
	if qc.MaxPageSize != 1000 || len(qc.SeverityOrder) != 5 || qc.MaxTimeBuckets != 10000 {
		t.Errorf("queryConfig = %+v", qc)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	resetLogboardEnv(t)

	tests := []struct {
		name         string
		configYAML   string
		wantErr      bool
		errSubstring string
		assert       func(t *testing.T, cfg appConfig)
	}{
		{
			name: "explicit address overrides host and port",
			configYAML: `
host: 0.0.0.0
api-port: 9100
api-addr: 10.0.0.5:8888
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.APIAddr != "10.0.0.5:8888" {
					t.Fatalf("APIAddr = %q", cfg.APIAddr)
				}
			},
		},
		{
			name: "host applies to derived address",
			configYAML: `
host: 0.0.0.0
api-port: 9200
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.APIAddr != "0.0.0.0:9200" {
					t.Fatalf("APIAddr = %q", cfg.APIAddr)
				}
			},
		},
		{
			name: "memory backend is case-insensitive",
			configYAML: `
store-backend: Memory
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				if cfg.StoreBackend != backendMemory {
					t.Fatalf("StoreBackend = %q", cfg.StoreBackend)
				}
			},
		},
		{
			name: "custom limits",
			configYAML: `
default-page-size: 20
max-page-size: 200
max-time-buckets: 500
query-timeout: 5s
log-retention: 14
`,
			assert: func(t *testing.T, cfg appConfig) {
				t.Helper()
				qc := cfg.queryConfig()
				if qc.DefaultPageSize != 20 || qc.MaxPageSize != 200 || qc.MaxTimeBuckets != 500 {
					t.Fatalf("queryConfig = %+v", qc)
				}
				if cfg.QueryTimeout != 5*time.Second || cfg.LogRetention != 14 {
					t.Fatalf("timeout = %s retention = %d", cfg.QueryTimeout, cfg.LogRetention)
				}
			},
		},
		{
			name:         "unknown backend rejected",
			configYAML:   `store-backend: postgres`,
			wantErr:      true,
			errSubstring: "invalid store-backend",
		},
		{
			name:         "port out of range rejected",
			configYAML:   `api-port: 70000`,
			wantErr:      true,
			errSubstring: "invalid api-port",
		},
		{
			name: "default page size above max rejected",
			configYAML: `
default-page-size: 500
max-page-size: 100
`,
			wantErr:      true,
			errSubstring: "invalid default-page-size",
		},
		{
			name:         "negative retention rejected",
			configYAML:   `log-retention: -1`,
			wantErr:      true,
			errSubstring: "invalid log-retention",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := writeTempConfig(t, tt.configYAML)
			cfg, err := loadConfig(configPath)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.errSubstring != "" && !strings.Contains(err.Error(), tt.errSubstring) {
					t.Fatalf("error = %q, want substring %q", err.Error(), tt.errSubstring)
				}
				return
			}

			if err != nil {
				t.Fatalf("loadConfig returned error: %v", err)
			}
			if tt.assert != nil {
				tt.assert(t, cfg)
			}
		})
	}
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	resetLogboardEnv(t)
	t.Setenv("LOGBOARD_MAX_PAGE_SIZE", "250")
	t.Setenv("LOGBOARD_STORE_BACKEND", "memory")

	cfg, err := loadConfig(writeTempConfig(t, "max-page-size: 100"))
	if err != nil {
		t.Fatalf("loadConfig returned error: %v", err)
	}
	if cfg.MaxPageSize != 250 || cfg.StoreBackend != backendMemory {
		t.Errorf("MaxPageSize = %d StoreBackend = %q", cfg.MaxPageSize, cfg.StoreBackend)
	}
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(content)+"\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func resetLogboardEnv(t *testing.T) {
	t.Helper()

	original := make(map[string]string)
	existed := make(map[string]bool)

	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, "LOGBOARD_") {
			continue
		}
		original[key] = value
		existed[key] = true
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("unset %s: %v", key, err)
		}
	}

	t.Cleanup(func() {
		for key := range existed {
			if err := os.Unsetenv(key); err != nil {
				t.Fatalf("cleanup unset %s: %v", key, err)
			}
		}
		for key, value := range original {
			if err := os.Setenv(key, value); err != nil {
				t.Fatalf("cleanup restore %s: %v", key, err)
			}
		}
	})
}
