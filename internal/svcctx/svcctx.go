// Package svcctx provides service context for dependency injection via context.
// This package is separate from server to avoid import cycles with handlers.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/fablepress/fable/internal/audio"
	"github.com/fablepress/fable/internal/cache"
	"github.com/fablepress/fable/internal/config"
	"github.com/fablepress/fable/internal/gensvc"
	"github.com/fablepress/fable/internal/home"
	"github.com/fablepress/fable/internal/jobs"
	"github.com/fablepress/fable/internal/prefs"
)

// Services holds all core services that flow through context.
// Components extract what they need via the individual extractors.
type Services struct {
	JobManager    *jobs.Manager
	GenService    gensvc.Service
	AudioService  audio.Service
	Prefs         prefs.Store
	ResultCache   cache.ResultCache
	ConfigManager *config.Manager
	Home          *home.Dir
	Logger        *slog.Logger
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// JobManagerFrom extracts the run manager from context.
func JobManagerFrom(ctx context.Context) *jobs.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.JobManager
	}
	return nil
}

// GenServiceFrom extracts the generation service client from context.
func GenServiceFrom(ctx context.Context) gensvc.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.GenService
	}
	return nil
}

// AudioServiceFrom extracts the narration service client from context.
func AudioServiceFrom(ctx context.Context) audio.Service {
	if s := ServicesFrom(ctx); s != nil {
		return s.AudioService
	}
	return nil
}

// PrefsFrom extracts the preference store from context.
func PrefsFrom(ctx context.Context) prefs.Store {
	if s := ServicesFrom(ctx); s != nil {
		return s.Prefs
	}
	return nil
}

// ResultCacheFrom extracts the result cache from context.
func ResultCacheFrom(ctx context.Context) cache.ResultCache {
	if s := ServicesFrom(ctx); s != nil {
		return s.ResultCache
	}
	return nil
}

// ConfigManagerFrom extracts the config manager from context.
func ConfigManagerFrom(ctx context.Context) *config.Manager {
	if s := ServicesFrom(ctx); s != nil {
		return s.ConfigManager
	}
	return nil
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// LoggerFrom extracts the logger from context.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil {
		return s.Logger
	}
	return nil
}
