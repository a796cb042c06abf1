package maintenance

import (
	"log/slog"
	"sync/atomic"
)

// Mode is the server-wide maintenance flag. While enabled new logins and
// matchmaking requests are rejected.
type Mode struct {
	enabled atomic.Bool
	logger  *slog.Logger
}

func NewMode(enabled bool, logger *slog.Logger) *Mode {
	m := &Mode{logger: logger.With(slog.String("component", "maintenance"))}
	m.enabled.Store(enabled)
	return m
}

func (m *Mode) Enabled() bool {
	return m.enabled.Load()
}

// Set changes the flag and reports whether it changed
func (m *Mode) Set(enabled bool) bool {
	changed := m.enabled.Swap(enabled) != enabled
	if changed {
		m.logger.Warn("maintenance mode changed", slog.Bool("enabled", enabled))
	}
	return changed
}
