// Package config loads and validates the coordinator's configuration:
// a YAML config.yaml plus a separate secrets.yaml keyed by hostname so
// one secrets file can be replicated to every machine in the cluster
// without leaking any one host's credentials to its own config.yaml.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Server holds the game server process's launch parameters.
type Server struct {
	Folder     string   `koanf:"folder"`
	JarName    string   `koanf:"jar_name"`
	JavaPath   string   `koanf:"java_path"`
	MinMemory  string   `koanf:"min_memory"`
	MaxMemory  string   `koanf:"max_memory"`
	ExtraArgs  []string `koanf:"extra_args"`
}

// Backup holds snapshot retention policy.
type Backup struct {
	Folder      string `koanf:"folder"`
	AutoPrune   bool   `koanf:"auto_prune"`
	KeepMinimum int    `koanf:"keep_minimum"`
	KeepDays    int    `koanf:"keep_days"`
}

// Syncthing holds the sync-daemon connection parameters. APIKey is
// never read from config.yaml — it only ever comes from the
// hostname-keyed secrets file, so it is excluded from the koanf tag
// set here and filled in separately by Load.
type Syncthing struct {
	URL      string `koanf:"url"`
	FolderID string `koanf:"folder_id"`
	APIKey   string `koanf:"-"`
}

// Safety holds the lock protocol's timing parameters.
type Safety struct {
	HeartbeatIntervalSeconds int `koanf:"heartbeat_interval"`
	StaleThresholdSeconds    int `koanf:"stale_threshold"`
	RaceWaitSeconds          int `koanf:"race_wait"`
	SyncWaitTimeoutSeconds   int `koanf:"sync_wait_timeout"`
}

func (s Safety) HeartbeatInterval() time.Duration {
	return time.Duration(s.HeartbeatIntervalSeconds) * time.Second
}
func (s Safety) StaleThreshold() time.Duration {
	return time.Duration(s.StaleThresholdSeconds) * time.Second
}
func (s Safety) RaceWait() time.Duration {
	return time.Duration(s.RaceWaitSeconds) * time.Second
}
func (s Safety) SyncWaitTimeout() time.Duration {
	return time.Duration(s.SyncWaitTimeoutSeconds) * time.Second
}

// Logging holds the structured logger's output parameters.
type Logging struct {
	File  string `koanf:"file"`
	Level string `koanf:"level"`
}

// Config is the complete, validated coordinator configuration.
type Config struct {
	Server    Server    `koanf:"server"`
	Backup    Backup    `koanf:"backup"`
	Syncthing Syncthing `koanf:"syncthing"`
	Safety    Safety    `koanf:"safety"`
	Logging   Logging   `koanf:"logging"`
}

// LockFile is the path to the replicated lock file.
func (c Config) LockFile() string { return filepath.Join(c.Server.Folder, "server.lock") }

// LogFile is the path to the coordinator's own log file.
func (c Config) LogFile() string { return filepath.Join(c.Server.Folder, c.Logging.File) }

// WorldFolder is the path to the game world directory.
func (c Config) WorldFolder() string { return filepath.Join(c.Server.Folder, "world") }

// ServerJar is the path to the game server jar.
func (c Config) ServerJar() string { return filepath.Join(c.Server.Folder, c.Server.JarName) }

// Defaults returns a Config populated with the same defaults the
// original wrapper's dataclasses carried, before any file or
// environment overrides are applied.
func Defaults() Config {
	return Config{
		Server: Server{
			JarName:  "server.jar",
			JavaPath: "java",
		},
		Backup: Backup{
			AutoPrune:   true,
			KeepMinimum: 5,
			KeepDays:    30,
		},
		Syncthing: Syncthing{
			URL:      "http://localhost:8384",
			FolderID: "minecraft-server",
		},
		Safety: Safety{
			HeartbeatIntervalSeconds: 30,
			StaleThresholdSeconds:    60,
			RaceWaitSeconds:          10,
			SyncWaitTimeoutSeconds:   300,
		},
		Logging: Logging{
			File:  "mc-server.log",
			Level: "INFO",
		},
	}
}

// Validate checks that required fields are present and sane.
func (c Config) Validate() error {
	if c.Server.Folder == "" {
		return fmt.Errorf("config: server.folder is required")
	}
	if _, err := os.Stat(c.Server.Folder); err != nil {
		return fmt.Errorf("config: server folder does not exist: %s", c.Server.Folder)
	}
	if c.Backup.Folder == "" {
		return fmt.Errorf("config: backup.folder is required")
	}
	return nil
}

// FindConfigFile locates config.yaml in standard locations: next to
// the running binary, then under the user's config directory.
func FindConfigFile(binDir string) (string, bool) {
	local := filepath.Join(binDir, "config.yaml")
	if fileExists(local) {
		return local, true
	}
	if home, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(home, ".config", "mc-coordinator", "config.yaml")
		if fileExists(userConfig) {
			return userConfig, true
		}
	}
	return "", false
}

// FindSecretsFile locates secrets.yaml in the same standard locations
// as FindConfigFile.
func FindSecretsFile(binDir string) (string, bool) {
	local := filepath.Join(binDir, "secrets.yaml")
	if fileExists(local) {
		return local, true
	}
	if home, err := os.UserHomeDir(); err == nil {
		userSecrets := filepath.Join(home, ".config", "mc-coordinator", "secrets.yaml")
		if fileExists(userSecrets) {
			return userSecrets, true
		}
	}
	return "", false
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// CheckFilePermissions warns if path is readable by its group or by
// "other" — a secrets file replicated to every host in the cluster
// with loose permissions leaks every machine's credentials to any
// local user on any one of them.
func CheckFilePermissions(path string) (secure bool, message string) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return true, "file does not exist"
	}
	if err != nil {
		return false, fmt.Sprintf("could not check permissions: %v", err)
	}
	mode := fi.Mode().Perm()
	if mode&0o044 != 0 {
		return false, fmt.Sprintf("warning: %s is world-accessible (mode: %#o)", path, mode)
	}
	return true, "permissions OK"
}

// applySecretsByHostname copies the API key for the current hostname
// out of the parsed secrets.yaml document into cfg.Syncthing.APIKey.
// The secrets file's schema is:
//
//	machines:
//	  hostname1:
//	    syncthing_api_key: "..."
func applySecretsByHostname(cfg *Config, hostname string, secrets map[string]interface{}) {
	machines, _ := secrets["machines"].(map[string]interface{})
	if machines == nil {
		return
	}
	machine, _ := machines[hostname].(map[string]interface{})
	if machine == nil {
		return
	}
	if key, ok := machine["syncthing_api_key"].(string); ok {
		cfg.Syncthing.APIKey = strings.TrimSpace(key)
	}
}
