package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type prometheusMetrics struct {
	queueDepth        *prometheus.GaugeVec
	battlesStarted    *prometheus.CounterVec
	botsUsed          *prometheus.CounterVec
	battlesFinished   *prometheus.CounterVec
	tickDuration      prometheus.Histogram
	connectionsOpen   prometheus.Gauge
	connectionsClosed *prometheus.CounterVec
	loginFailures     *prometheus.CounterVec
	sessionsActive    prometheus.Gauge
	accountsFlushed   prometheus.Counter
	accountsDirty     prometheus.Gauge
}

func setupPrometheusMetrics(registry *prometheus.Registry) prometheusMetrics {
	factory := promauto.With(registry)

	return prometheusMetrics{
		queueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "skirmish_matchmaking_queue_depth",
			Help: "Entries waiting in each matchmaking slot",
		}, []string{"slot", "mode"}),
		battlesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skirmish_battles_started_total",
			Help: "Battles started by mode, battle type and whether the search timed out",
		}, []string{"mode", "type", "forced"}),
		botsUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skirmish_battle_bots_total",
			Help: "Bot players seated in started battles",
		}, []string{"mode"}),
		battlesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skirmish_battles_finished_total",
			Help: "Battles that reported completion",
		}, []string{"mode"}),
		tickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "skirmish_matchmaking_tick_duration_ms",
			Help:    "Time spent in one matchmaking tick in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		connectionsOpen: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skirmish_connections_open",
			Help: "Open client TCP connections",
		}),
		connectionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skirmish_connections_closed_total",
			Help: "Closed client connections by reason",
		}, []string{"reason"}),
		loginFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "skirmish_login_failures_total",
			Help: "Rejected logins by reason",
		}, []string{"reason"}),
		sessionsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skirmish_sessions_active",
			Help: "Authenticated sessions",
		}),
		accountsFlushed: factory.NewCounter(prometheus.CounterOpts{
			Name: "skirmish_accounts_flushed_total",
			Help: "Accounts written back to the account store",
		}),
		accountsDirty: factory.NewGauge(prometheus.GaugeOpts{
			Name: "skirmish_accounts_dirty",
			Help: "Accounts waiting to be written back after the last flush",
		}),
	}
}

func (m prometheusMetrics) QueueDepth(slot int, mode string, depth int) {
	m.queueDepth.With(prometheus.Labels{"slot": strconv.Itoa(slot), "mode": mode}).Set(float64(depth))
}

func (m prometheusMetrics) BattleStarted(mode string, battleType string, forced bool, bots int) {
	m.battlesStarted.With(prometheus.Labels{"mode": mode, "type": battleType, "forced": strconv.FormatBool(forced)}).Inc()
	m.botsUsed.With(prometheus.Labels{"mode": mode}).Add(float64(bots))
}

func (m prometheusMetrics) BattleFinished(mode string) {
	m.battlesFinished.With(prometheus.Labels{"mode": mode}).Inc()
}

func (m prometheusMetrics) TickDuration(elapsed time.Duration) {
	m.tickDuration.Observe(float64(elapsed.Microseconds()) / 1000)
}

func (m prometheusMetrics) ConnectionOpened() {
	m.connectionsOpen.Inc()
}

func (m prometheusMetrics) ConnectionClosed(reason string) {
	m.connectionsOpen.Dec()
	m.connectionsClosed.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m prometheusMetrics) LoginFailed(reason string) {
	m.loginFailures.With(prometheus.Labels{"reason": reason}).Inc()
}

func (m prometheusMetrics) SessionsActive(count int) {
	m.sessionsActive.Set(float64(count))
}

func (m prometheusMetrics) AccountsFlushed(saved int, dirty int) {
	m.accountsFlushed.Add(float64(saved))
	m.accountsDirty.Set(float64(dirty))
}
