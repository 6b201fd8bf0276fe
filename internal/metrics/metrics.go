// Package metrics exposes the daemon's Prometheus counters and gauges:
// files served, bytes streamed, peers known, announce failures, and
// download failures.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FilesServed counts completed GetFile streams served to peers.
	FilesServed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "landoh",
		Name:      "files_served_total",
		Help:      "Total number of files fully streamed to peers.",
	})

	// BytesStreamed counts bytes sent across all GetFile streams.
	BytesStreamed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "landoh",
		Name:      "bytes_streamed_total",
		Help:      "Total number of file bytes streamed to peers.",
	})

	// PeersKnown reports the current size of the discovery peer table.
	PeersKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "landoh",
		Name:      "peers_known",
		Help:      "Number of peers currently considered live by discovery.",
	})

	// AnnounceFailures counts failed multicast announce sends.
	AnnounceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "landoh",
		Name:      "announce_failures_total",
		Help:      "Total number of failed multicast announce sends.",
	})

	// DownloadFailures counts GetFile downloads that failed hash
	// verification or transport errors.
	DownloadFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "landoh",
		Name:      "download_failures_total",
		Help:      "Total number of failed downloads, including hash mismatches.",
	})
)
