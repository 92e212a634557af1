// Package config loads the daemon configuration with viper: defaults, an
// optional config.yaml, environment overrides, and hot reload of tunables
// when the file changes on disk.
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tohutohu/discord-claude-code-sub003/pkg/protocol"
)

// Config is the daemon's runtime configuration.
type Config struct {
	// LogLevel is a zap level name: debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// RateLimitCooldown is the extra delay after a provider rate-limit reset
	// before a thread auto-resumes.
	RateLimitCooldown time.Duration `mapstructure:"rate_limit_cooldown"`

	// AuditRetentionDays is how long audit entries are kept before the
	// retention sweep deletes them.
	AuditRetentionDays int `mapstructure:"audit_retention_days"`

	// TranscriptRetentionDays is how long per-thread transcripts are kept.
	TranscriptRetentionDays int `mapstructure:"transcript_retention_days"`

	// SkipPermissions passes --dangerously-skip-permissions to sandboxed
	// assistant invocations.
	SkipPermissions bool `mapstructure:"skip_permissions"`
}

// Loader reads the config file and serves the current snapshot. Reload-safe:
// Current may be called from any goroutine.
type Loader struct {
	mu  sync.RWMutex
	cfg Config
	v   *viper.Viper
	log *zap.Logger
}

func defaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("rate_limit_cooldown", protocol.DefaultRateLimitCooldown)
	v.SetDefault("audit_retention_days", 90)
	v.SetDefault("transcript_retention_days", 30)
	v.SetDefault("skip_permissions", false)
}

// Load reads configuration from path (a YAML file; missing is fine, defaults
// apply) plus CCD_-prefixed environment overrides.
func Load(path string, log *zap.Logger) (*Loader, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix("CCD")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	l := &Loader{v: v, log: log}
	if err := l.snapshot(); err != nil {
		return nil, err
	}
	return l, nil
}

// Current returns the latest configuration snapshot.
func (l *Loader) Current() Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// Watch hot-reloads tunables when the config file changes. Invalid contents
// keep the previous snapshot. onChange is optional.
func (l *Loader) Watch(onChange func(Config)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if err := l.snapshot(); err != nil {
			l.log.Warn("config reload failed, keeping previous", zap.String("file", e.Name), zap.Error(err))
			return
		}
		l.log.Info("config reloaded", zap.String("file", e.Name))
		if onChange != nil {
			onChange(l.Current())
		}
	})
	l.v.WatchConfig()
}

func (l *Loader) snapshot() error {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if cfg.RateLimitCooldown < 0 {
		return fmt.Errorf("rate_limit_cooldown must not be negative")
	}
	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()
	return nil
}
