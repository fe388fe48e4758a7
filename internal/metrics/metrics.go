package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"tokenWatch/internal/model"
)

// MonitorMetrics instruments the transfer pipeline. A nil *MonitorMetrics is
// valid and records nothing.
type MonitorMetrics struct {
	EventsReceived      prometheus.Counter
	EventsFiltered      prometheus.Counter
	InvalidEvents       prometheus.Counter
	Notifications       *prometheus.CounterVec
	SubscriptionErrors  prometheus.Counter
	SinkErrors          prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
	ResolveDuration     prometheus.Histogram
}

func NewMonitorMetrics() *MonitorMetrics {
	return &MonitorMetrics{
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_events_received_total",
			Help: "Total number of transfer events delivered by the event source",
		}),
		EventsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_events_filtered_total",
			Help: "Total number of transfer events dropped by the watch predicate",
		}),
		InvalidEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_invalid_events_total",
			Help: "Total number of malformed transfer events",
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tokenwatch_notifications_total",
			Help: "Total number of transfer notifications by tag (plain for untagged)",
		}, []string{"tag"}),
		SubscriptionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_subscription_errors_total",
			Help: "Total number of transport errors reported by the event source",
		}),
		SinkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tokenwatch_sink_errors_total",
			Help: "Total number of failed notification deliveries",
		}),
		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tokenwatch_active_subscriptions",
			Help: "Current number of active transfer subscriptions",
		}),
		ResolveDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tokenwatch_metadata_resolve_duration_seconds",
			Help:    "Time taken to resolve token metadata in seconds",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

// Register registers every collector with reg.
func (m *MonitorMetrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.EventsReceived, m.EventsFiltered, m.InvalidEvents, m.Notifications,
		m.SubscriptionErrors, m.SinkErrors, m.ActiveSubscriptions, m.ResolveDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *MonitorMetrics) Received() {
	if m != nil {
		m.EventsReceived.Inc()
	}
}

func (m *MonitorMetrics) Filtered() {
	if m != nil {
		m.EventsFiltered.Inc()
	}
}

func (m *MonitorMetrics) Invalid() {
	if m != nil {
		m.InvalidEvents.Inc()
	}
}

func (m *MonitorMetrics) SubscriptionError() {
	if m != nil {
		m.SubscriptionErrors.Inc()
	}
}

func (m *MonitorMetrics) SinkError() {
	if m != nil {
		m.SinkErrors.Inc()
	}
}

func (m *MonitorMetrics) SubscriptionAttached() {
	if m != nil {
		m.ActiveSubscriptions.Inc()
	}
}

func (m *MonitorMetrics) SubscriptionDetached() {
	if m != nil {
		m.ActiveSubscriptions.Dec()
	}
}

func (m *MonitorMetrics) ObserveResolve(seconds float64) {
	if m != nil {
		m.ResolveDuration.Observe(seconds)
	}
}

// Notified counts one notification per tag it carries.
func (m *MonitorMetrics) Notified(tags model.TagSet) {
	if m == nil {
		return
	}
	if tags.Empty() {
		m.Notifications.WithLabelValues("plain").Inc()
		return
	}
	for _, name := range tags.Names() {
		m.Notifications.WithLabelValues(name).Inc()
	}
}
