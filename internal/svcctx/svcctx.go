// Package svcctx provides service context for dependency injection via context.
// Commands build Services once in the root command and read them back in RunE.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/jackzampolin/pdfocr/internal/config"
	"github.com/jackzampolin/pdfocr/internal/home"
)

// Services holds the process-wide services that flow through context.
type Services struct {
	ConfigManager *config.Manager
	Home          *home.Dir
	Logger        *slog.Logger
}

// Config returns the current configuration, or nil without a manager.
func (s *Services) Config() *config.Config {
	if s == nil || s.ConfigManager == nil {
		return nil
	}
	return s.ConfigManager.Get()
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

// LoggerFrom extracts the logger from context, falling back to slog.Default.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// HomeFrom extracts the home directory from context.
func HomeFrom(ctx context.Context) *home.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Home
	}
	return nil
}

// ConfigFrom extracts the current configuration from context.
func ConfigFrom(ctx context.Context) *config.Config {
	return ServicesFrom(ctx).Config()
}
