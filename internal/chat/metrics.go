package chat

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_connected_clients",
		Help: "Number of currently registered sessions",
	})

	HistoryMessages = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "chat_history_messages",
		Help: "Number of broadcast messages kept in history",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_messages_total",
		Help: "Total registry events processed by type",
	}, []string{"type"})

	EventProcessingDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chat_event_processing_seconds",
		Help:    "Time to process each event type",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	DroppedDeliveries = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "chat_dropped_deliveries_total",
		Help: "Records dropped because a client's outbound queue was full",
	})

	EnvelopesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "chat_envelopes_total",
		Help: "Control envelopes handled by route and status code",
	}, []string{"route", "status"})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(HistoryMessages)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(EventProcessingDuration)
	prometheus.MustRegister(DroppedDeliveries)
	prometheus.MustRegister(EnvelopesTotal)
}
