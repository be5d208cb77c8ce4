package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Counters for the mutation paths. Registered on the default registry,
// served by the /metrics promhttp mount.
var (
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairdb_messages_sent_total",
		Help: "Messages accepted and appended to a conversation log.",
	})
	ConversationsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairdb_conversations_created_total",
		Help: "Conversations created by the pair resolver.",
	})
	MessagesDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairdb_messages_deleted_total",
		Help: "Messages soft-deleted.",
	})
	ReactionsToggled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairdb_reactions_toggled_total",
		Help: "Reaction toggle operations applied.",
	})
	HeartbeatsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pairdb_heartbeats_coalesced_total",
		Help: "Heartbeats persisted by the presence flusher.",
	})

	UnreadScanSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pairdb_unread_scan_seconds",
		Help:    "Duration of from-scratch unread count scans.",
		Buckets: prometheus.DefBuckets,
	})
)

// RegisterDiskUsage exposes the store's on-disk size as a gauge sampled
// on scrape.
func RegisterDiskUsage(f func() uint64) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "pairdb_store_disk_bytes",
		Help: "Best-effort total size of the database directory.",
	}, func() float64 { return float64(f()) })
}
