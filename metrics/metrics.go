// Package metrics holds the gateway's Prometheus instrumentation: one
// counter or gauge per operational signal named across the other
// packages, registered once at process start and served on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MessagesPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_published_total",
		Help: "Messages handed to a broker transport, by side (platform or local).",
	}, []string{"side"})

	MessagesPersisted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "messages_persisted_total",
		Help: "Messages durably queued for publication, by side.",
	}, []string{"side"})

	QueueBytes = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_bytes",
		Help: "Number of messages pending in the outbound queue, by side (a message count, not a byte total).",
	}, []string{"side"})

	DevicesRegistered = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "devices_registered",
		Help: "Subdevices currently registered with the platform.",
	})

	FileTransfersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "file_transfers_active",
		Help: "File transfers currently in progress.",
	})

	FirmwareInstallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "firmware_installs_total",
		Help: "Firmware install requests handled, by outcome.",
	}, []string{"outcome"})
)
