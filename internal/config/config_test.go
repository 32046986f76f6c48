package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != 7171 {
		t.Errorf("Port: got %d, want 7171", cfg.Server.Port)
	}
	if cfg.Storage.StorageEngine != "sqlite" {
		t.Errorf("StorageEngine: got %q, want sqlite", cfg.Storage.StorageEngine)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("Session.TTL: got %v, want 30m", cfg.Session.TTL)
	}
	if cfg.Security.SecurityMode != "development" {
		t.Errorf("SecurityMode: got %q, want development", cfg.Security.SecurityMode)
	}
	if cfg.Backup.Enabled {
		t.Error("Backup.Enabled: got true, want false by default")
	}
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("LATTICE_PORT", "9090")
	t.Setenv("LATTICE_STORAGE_ENGINE", "postgres")
	t.Setenv("LATTICE_POSTGRES_URL", "postgres://localhost/lattice")
	t.Setenv("LATTICE_SESSION_TTL", "5m")
	t.Setenv("LATTICE_BACKUP_ENABLED", "true")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Port: got %d, want 9090", cfg.Server.Port)
	}
	if cfg.Storage.StorageEngine != "postgres" {
		t.Errorf("StorageEngine: got %q, want postgres", cfg.Storage.StorageEngine)
	}
	if cfg.Storage.PostgresURL != "postgres://localhost/lattice" {
		t.Errorf("PostgresURL: got %q", cfg.Storage.PostgresURL)
	}
	if cfg.Session.TTL != 5*time.Minute {
		t.Errorf("Session.TTL: got %v, want 5m", cfg.Session.TTL)
	}
	if !cfg.Backup.Enabled {
		t.Error("Backup.Enabled: got false, want true")
	}
}

func TestLoadConfigInvalidEnvFallsBackToDefault(t *testing.T) {
	t.Setenv("LATTICE_PORT", "not-a-number")
	t.Setenv("LATTICE_SESSION_TTL", "soon")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if cfg.Server.Port != 7171 {
		t.Errorf("Port: got %d, want default 7171", cfg.Server.Port)
	}
	if cfg.Session.TTL != 30*time.Minute {
		t.Errorf("Session.TTL: got %v, want default 30m", cfg.Session.TTL)
	}
}

func TestYAMLOverlayTakesPrecedenceOverEnv(t *testing.T) {
	t.Setenv("LATTICE_PORT", "9090")
	t.Setenv("LATTICE_HOST", "0.0.0.0")

	path := filepath.Join(t.TempDir(), "lattice.yaml")
	yamlBody := []byte("server:\n  port: 4242\nstorage:\n  storage_engine: postgres\n  postgres_url: postgres://db/lattice\n")
	if err := os.WriteFile(path, yamlBody, 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv("LATTICE_CONFIG", path)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if cfg.Server.Port != 4242 {
		t.Errorf("Port: got %d, want yaml value 4242", cfg.Server.Port)
	}
	// Values the file does not mention keep their env-derived values.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Host: got %q, want env value 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Storage.StorageEngine != "postgres" {
		t.Errorf("StorageEngine: got %q, want postgres", cfg.Storage.StorageEngine)
	}
}

func TestLoadConfigMissingYAMLFileFails(t *testing.T) {
	t.Setenv("LATTICE_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))

	if _, err := LoadConfig(); err == nil {
		t.Fatal("LoadConfig() should fail when LATTICE_CONFIG names a missing file")
	}
}
