package config

import (
	"context"

	"github.com/fsnotify/fsnotify"

	"github.com/jonwraymond/rendercache/cache"
	"github.com/jonwraymond/rendercache/observe"
)

// Watch reloads the config file whenever it is written or recreated and
// passes the result to fn. A reload that fails to decode or validate is
// passed as an error and the previous configuration stays in effect.
func (l *Loader) Watch(fn func(*Config, error)) error {
	if l.v.ConfigFileUsed() == "" {
		return ErrNotWatchable
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		fn(l.decode())
	})
	l.v.WatchConfig()
	return nil
}

// WatchProfiles keeps profiles in step with the config file.
func (l *Loader) WatchProfiles(ctx context.Context, profiles *cache.Profiles, logger observe.Logger) error {
	if logger == nil {
		logger = observe.NopLogger()
	}
	return l.Watch(func(cfg *Config, err error) {
		if err != nil {
			logger.Error(ctx, "config reload rejected", observe.F("error", err.Error()))
			return
		}
		overrides, err := cfg.CacheProfiles()
		if err == nil {
			err = profiles.Replace(overrides)
		}
		if err != nil {
			logger.Error(ctx, "profile reload rejected", observe.F("error", err.Error()))
			return
		}
		logger.Info(ctx, "profiles reloaded", observe.F("file", l.File()), observe.F("profiles", len(overrides)))
	})
}
