package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	Ticks              Counter
	QuotesRejected     Counter
	PayloadsRejected   Counter
	Entries            Counter
	DCAs               Counter
	Exits              Counter
	OrdersPlaced       Counter
	OrdersFailed       Counter
	KillSwitchEngaged  Counter
	KillSwitchRestored Counter

	OpenPositions Gauge
	Balance       Gauge
	Exposure      Gauge
	Realized      Gauge
	FeedAge       Gauge
	// JournalDropped is the running count of journal records lost to full queues.
	JournalDropped Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		Ticks:              n,
		QuotesRejected:     n,
		PayloadsRejected:   n,
		Entries:            n,
		DCAs:               n,
		Exits:              n,
		OrdersPlaced:       n,
		OrdersFailed:       n,
		KillSwitchEngaged:  n,
		KillSwitchRestored: n,
		OpenPositions:      g,
		Balance:            g,
		Exposure:           g,
		Realized:           g,
		FeedAge:            g,
		JournalDropped:     g,
	}
}
