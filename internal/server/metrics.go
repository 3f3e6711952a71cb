package server

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mintdapp/internal/session"
)

type metricsRegistry struct {
	registry           *prometheus.Registry
	intentsTotal       *prometheus.CounterVec
	notificationsTotal *prometheus.CounterVec
	totalMinted        prometheus.Gauge
	mintBusy           prometheus.Gauge
	walletConnected    prometheus.Gauge
}

func newMetricsRegistry() *metricsRegistry {
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintdapp_intents_total",
		Help: "Connect and mint intents by outcome",
	}, []string{"intent", "result"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mintdapp_notifications_total",
		Help: "User-facing notifications raised by the session",
	}, []string{"code"})

	minted := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mintdapp_total_minted",
		Help: "Tokens minted so far as last seen by the session",
	})

	busy := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mintdapp_mint_busy",
		Help: "1 while a mint is in flight",
	})

	connected := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "mintdapp_wallet_connected",
		Help: "1 once a wallet account is connected",
	})

	r := prometheus.NewRegistry()
	r.MustRegister(intents, notifications, minted, busy, connected)

	return &metricsRegistry{
		registry:           r,
		intentsTotal:       intents,
		notificationsTotal: notifications,
		totalMinted:        minted,
		mintBusy:           busy,
		walletConnected:    connected,
	}
}

func (m *metricsRegistry) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *metricsRegistry) incIntent(intent, result string) {
	m.intentsTotal.WithLabelValues(intent, result).Inc()
}

func (m *metricsRegistry) incNotification(code session.Code) {
	m.notificationsTotal.WithLabelValues(string(code)).Inc()
}

func (m *metricsRegistry) observe(snap session.Snapshot) {
	if n, err := strconv.ParseUint(snap.TotalMinted, 10, 64); err == nil {
		m.totalMinted.Set(float64(n))
	}
	m.mintBusy.Set(boolGauge(snap.Busy))
	m.walletConnected.Set(boolGauge(snap.Status == session.StatusConnected))
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
