package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records server health and matchmaking behaviour
type Metrics interface {
	QueueDepth(slot int, mode string, depth int)
	BattleStarted(mode string, battleType string, forced bool, bots int)
	BattleFinished(mode string)
	TickDuration(elapsed time.Duration)
	ConnectionOpened()
	ConnectionClosed(reason string)
	LoginFailed(reason string)
	SessionsActive(count int)
	AccountsFlushed(saved int, dirty int)
}

// NewMetrics registers the prometheus collectors on registry
func NewMetrics(registry *prometheus.Registry) Metrics {
	return setupPrometheusMetrics(registry)
}

// NewNop returns a Metrics that records nothing, for tests
func NewNop() Metrics {
	return nop{}
}

type nop struct{}

func (nop) QueueDepth(int, string, int) {}
func (nop) BattleStarted(string, string, bool, int) {}
func (nop) BattleFinished(string) {}
func (nop) TickDuration(time.Duration) {}
func (nop) ConnectionOpened() {}
func (nop) ConnectionClosed(string) {}
func (nop) LoginFailed(string) {}
func (nop) SessionsActive(int) {}
func (nop) AccountsFlushed(int, int) {}
