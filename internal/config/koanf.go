package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Loader wraps koanf to load config.yaml, overlay environment
// variables (MC_COORDINATOR_*), merge in the hostname-scoped API key
// from secrets.yaml, validate the result, and optionally hot-reload on
// file change.
type Loader struct {
	k           *koanf.Koanf
	mu          sync.RWMutex
	configPath  string
	secretsPath string
	hostname    string
	envPrefix   string
}

// Option configures a Loader.
type Option func(*Loader)

// WithConfigFile sets the config.yaml path.
func WithConfigFile(path string) Option {
	return func(l *Loader) { l.configPath = path }
}

// WithSecretsFile sets the secrets.yaml path.
func WithSecretsFile(path string) Option {
	return func(l *Loader) { l.secretsPath = path }
}

// WithHostname overrides the hostname used to look up this machine's
// secrets. Without it, the hostname passed to NewLoader is used.
func WithHostname(hostname string) Option {
	return func(l *Loader) { l.hostname = hostname }
}

// WithEnvPrefix sets the environment variable prefix (default
// "MC_COORDINATOR").
func WithEnvPrefix(prefix string) Option {
	return func(l *Loader) { l.envPrefix = prefix }
}

// NewLoader constructs a Loader and performs its first load.
func NewLoader(hostname string, opts ...Option) (*Loader, error) {
	l := &Loader{
		k:         koanf.New("."),
		hostname:  hostname,
		envPrefix: "MC_COORDINATOR",
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.reload(); err != nil {
		return nil, err
	}
	return l, nil
}

// Load unmarshals the current configuration, validates it, and
// returns it.
func (l *Loader) Load() (*Config, error) {
	l.mu.RLock()
	k := l.k
	l.mu.RUnlock()

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if l.secretsPath != "" {
		cfg.Syncthing.APIKey = k.String("syncthing.api_key")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Reload re-reads config.yaml, environment variables, and
// secrets.yaml from scratch.
func (l *Loader) Reload() error {
	return l.reload()
}

func (l *Loader) reload() error {
	newK := koanf.New(".")

	if l.configPath != "" {
		if err := newK.Load(file.Provider(l.configPath), yaml.Parser()); err != nil {
			return fmt.Errorf("config: load %s: %w", l.configPath, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: l.envPrefix + "_",
		TransformFunc: func(k, v string) (string, any) {
			// Strip the prefix first. Only the first remaining
			// underscore separates the top-level section from its field
			// name — fields like keep_minimum or stale_threshold keep
			// their own underscores, so a global replace would split
			// them into the wrong nested keys.
			k = strings.ToLower(strings.TrimPrefix(k, l.envPrefix+"_"))
			section, field, ok := strings.Cut(k, "_")
			if !ok {
				return k, v
			}
			return section + "." + field, v
		},
	})
	if err := newK.Load(envProvider, nil); err != nil {
		return fmt.Errorf("config: load environment: %w", err)
	}

	l.mu.Lock()
	l.k = newK
	l.mu.Unlock()

	return l.applySecrets()
}

func (l *Loader) applySecrets() error {
	if l.secretsPath == "" {
		return nil
	}
	if secure, msg := CheckFilePermissions(l.secretsPath); !secure {
		// A loose secrets file is a warning, not a fatal error: the
		// coordinator still has to run even on a misconfigured host,
		// but the operator needs to see this every time it happens.
		fmt.Fprintln(os.Stderr, msg)
	}

	secretsK := koanf.New(".")
	if err := secretsK.Load(file.Provider(l.secretsPath), yaml.Parser()); err != nil {
		return fmt.Errorf("config: load secrets %s: %w", l.secretsPath, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var cfg Config
	if err := l.k.Unmarshal("", &cfg); err != nil {
		return fmt.Errorf("config: unmarshal for secrets merge: %w", err)
	}
	applySecretsByHostname(&cfg, l.hostname, secretsK.Raw())
	return l.k.Set("syncthing.api_key", cfg.Syncthing.APIKey)
}

// Watch hot-reloads the configuration whenever config.yaml changes on
// disk, invoking callback after each reload attempt. As with the
// underlying koanf file provider, the fsnotify watcher goroutine it
// starts internally cannot be stopped once started — koanf v2 does
// not expose a Stop() on file.Provider — so Watch is only appropriate
// for a process that lives as long as the watch itself.
func (l *Loader) Watch(ctx context.Context, callback func(err error)) error {
	if l.configPath == "" {
		return fmt.Errorf("config: cannot watch, no config file path set")
	}
	fp := file.Provider(l.configPath)
	err := fp.Watch(func(event interface{}, err error) {
		if err != nil {
			callback(fmt.Errorf("config: watch: %w", err))
			return
		}
		callback(l.reload())
	})
	if err != nil {
		return fmt.Errorf("config: start watch: %w", err)
	}
	<-ctx.Done()
	return nil
}
