package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoaderLoadsYAMLAndSecretsByHostname(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "srv")
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "server:\n  folder: "+serverDir+"\nbackup:\n  folder: "+backupDir+"\n")

	secretsPath := filepath.Join(dir, "secrets.yaml")
	writeFile(t, secretsPath, "machines:\n  test-host:\n    syncthing_api_key: abc123\n")

	loader, err := NewLoader("test-host", WithConfigFile(configPath), WithSecretsFile(secretsPath))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Folder != serverDir {
		t.Errorf("Server.Folder = %q, want %q", cfg.Server.Folder, serverDir)
	}
	if cfg.Syncthing.APIKey != "abc123" {
		t.Errorf("Syncthing.APIKey = %q, want abc123", cfg.Syncthing.APIKey)
	}
}

func TestLoaderReloadPicksUpChanges(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "srv")
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "server:\n  folder: "+serverDir+"\nbackup:\n  folder: "+backupDir+"\n  keep_minimum: 5\n")

	loader, err := NewLoader("test-host", WithConfigFile(configPath))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backup.KeepMinimum != 5 {
		t.Fatalf("KeepMinimum = %d, want 5", cfg.Backup.KeepMinimum)
	}

	writeFile(t, configPath, "server:\n  folder: "+serverDir+"\nbackup:\n  folder: "+backupDir+"\n  keep_minimum: 10\n")
	if err := loader.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	cfg, err = loader.Load()
	if err != nil {
		t.Fatalf("Load after reload: %v", err)
	}
	if cfg.Backup.KeepMinimum != 10 {
		t.Errorf("KeepMinimum after reload = %d, want 10", cfg.Backup.KeepMinimum)
	}
}

func TestLoaderEnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	serverDir := filepath.Join(dir, "srv")
	backupDir := filepath.Join(dir, "backups")
	if err := os.MkdirAll(serverDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "server:\n  folder: "+serverDir+"\nbackup:\n  folder: "+backupDir+"\n  keep_minimum: 5\n")

	t.Setenv("MC_COORDINATOR_BACKUP_keep_minimum", "9")

	loader, err := NewLoader("test-host", WithConfigFile(configPath))
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backup.KeepMinimum != 9 {
		t.Errorf("KeepMinimum = %d, want 9 (env override)", cfg.Backup.KeepMinimum)
	}
}
