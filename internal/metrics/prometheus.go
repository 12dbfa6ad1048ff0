package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "dip_ladder_bot"

type Prometheus struct {
	Metrics *Metrics

	registry      *prometheus.Registry
	ticks         prometheus.Counter
	rejected      prometheus.Counter
	payloads      prometheus.Counter
	intents       *prometheus.CounterVec
	ordersPlaced  prometheus.Counter
	ordersFailed  prometheus.Counter
	killEngaged   prometheus.Counter
	killRestored  prometheus.Counter
	openPositions prometheus.Gauge
	balance       prometheus.Gauge
	exposure      prometheus.Gauge
	realized      prometheus.Gauge
	feedAge       prometheus.Gauge
	journalDrops  prometheus.Gauge
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: promNamespace, Name: name, Help: help})
}

func gauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{Namespace: promNamespace, Name: name, Help: help})
}

func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		ticks:    counter("ticks_total", "Total number of strategy ticks."),
		rejected: counter("quotes_rejected_total", "Total number of malformed or non-positive quotes dropped."),
		payloads: counter("payloads_rejected_total", "Total number of feed payloads that could not be parsed."),
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      "intents_total",
			Help:      "Total number of order intents by kind.",
		}, []string{"kind"}),
		ordersPlaced:  counter("orders_placed_total", "Total number of orders placed."),
		ordersFailed:  counter("orders_failed_total", "Total number of order placement failures."),
		killEngaged:   counter("kill_switch_engaged_total", "Total number of kill switch engagements."),
		killRestored:  counter("kill_switch_restored_total", "Total number of kill switch recoveries."),
		openPositions: gauge("open_positions", "Number of open positions."),
		balance:       gauge("balance", "Uncommitted quote balance."),
		exposure:      gauge("exposure", "Quote cost committed to open positions."),
		realized:      gauge("realized_pnl", "Cumulative realized profit."),
		feedAge:       gauge("feed_age_seconds", "Seconds since the last price update."),
		journalDrops:  gauge("journal_dropped_records", "Journal records discarded because the write queue was full."),
	}
	p.registry.MustRegister(
		p.ticks, p.rejected, p.payloads, p.intents, p.ordersPlaced, p.ordersFailed,
		p.killEngaged, p.killRestored,
		p.openPositions, p.balance, p.exposure, p.realized, p.feedAge, p.journalDrops,
	)
	p.Metrics = &Metrics{
		Ticks:              p.ticks,
		QuotesRejected:     p.rejected,
		PayloadsRejected:   p.payloads,
		Entries:            p.intents.WithLabelValues("entry"),
		DCAs:               p.intents.WithLabelValues("dca"),
		Exits:              p.intents.WithLabelValues("exit"),
		OrdersPlaced:       p.ordersPlaced,
		OrdersFailed:       p.ordersFailed,
		KillSwitchEngaged:  p.killEngaged,
		KillSwitchRestored: p.killRestored,
		OpenPositions:      p.openPositions,
		Balance:            p.balance,
		Exposure:           p.exposure,
		Realized:           p.realized,
		FeedAge:            p.feedAge,
		JournalDropped:     p.journalDrops,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
