package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultsValidateFailsWithoutFolders(t *testing.T) {
	cfg := Defaults()
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error with no server/backup folders set")
	}
}

func TestValidateSucceedsWithRequiredFields(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults()
	cfg.Server.Folder = dir
	cfg.Backup.Folder = filepath.Join(dir, "backups")

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestDerivedPaths(t *testing.T) {
	cfg := Defaults()
	cfg.Server.Folder = "/srv/mc"
	cfg.Logging.File = "server.log"

	if got := cfg.LockFile(); got != "/srv/mc/server.lock" {
		t.Errorf("LockFile() = %q", got)
	}
	if got := cfg.LogFile(); got != "/srv/mc/server.log" {
		t.Errorf("LogFile() = %q", got)
	}
	if got := cfg.WorldFolder(); got != "/srv/mc/world" {
		t.Errorf("WorldFolder() = %q", got)
	}
	if got := cfg.ServerJar(); got != "/srv/mc/server.jar" {
		t.Errorf("ServerJar() = %q", got)
	}
}

func TestCheckFilePermissionsWarnsOnWorldReadable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("machines: {}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	secure, _ := CheckFilePermissions(path)
	if secure {
		t.Error("expected 0644 secrets file to be flagged insecure")
	}
}

func TestCheckFilePermissionsOKWhenRestricted(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "secrets.yaml")
	if err := os.WriteFile(path, []byte("machines: {}\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	secure, msg := CheckFilePermissions(path)
	if !secure {
		t.Errorf("expected 0600 secrets file to be secure, got message: %s", msg)
	}
}

func TestCheckFilePermissionsMissingFileIsSecure(t *testing.T) {
	secure, _ := CheckFilePermissions(filepath.Join(t.TempDir(), "nope.yaml"))
	if !secure {
		t.Error("expected missing file to be reported as secure (nothing to leak)")
	}
}

func TestApplySecretsByHostnameFindsMatchingMachine(t *testing.T) {
	cfg := Defaults()
	secrets := map[string]interface{}{
		"machines": map[string]interface{}{
			"host-a": map[string]interface{}{"syncthing_api_key": "key-a"},
			"host-b": map[string]interface{}{"syncthing_api_key": "key-b"},
		},
	}
	applySecretsByHostname(&cfg, "host-b", secrets)
	if cfg.Syncthing.APIKey != "key-b" {
		t.Errorf("APIKey = %q, want key-b", cfg.Syncthing.APIKey)
	}
}

func TestApplySecretsByHostnameNoMatchLeavesEmpty(t *testing.T) {
	cfg := Defaults()
	secrets := map[string]interface{}{
		"machines": map[string]interface{}{
			"host-a": map[string]interface{}{"syncthing_api_key": "key-a"},
		},
	}
	applySecretsByHostname(&cfg, "host-unknown", secrets)
	if cfg.Syncthing.APIKey != "" {
		t.Errorf("APIKey = %q, want empty for unknown hostname", cfg.Syncthing.APIKey)
	}
}

func TestFindConfigFilePrefersLocalOverUserConfig(t *testing.T) {
	dir := t.TempDir()
	localConfig := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(localConfig, []byte("server:\n  folder: /srv\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	path, ok := FindConfigFile(dir)
	if !ok {
		t.Fatal("expected to find local config.yaml")
	}
	if path != localConfig {
		t.Errorf("path = %q, want %q", path, localConfig)
	}
}

func TestFindConfigFileNotFound(t *testing.T) {
	_, ok := FindConfigFile(t.TempDir())
	if ok {
		t.Error("expected no config file found in empty directory")
	}
}
