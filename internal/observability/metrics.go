package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

var (
	registerOnce sync.Once

	peerFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "frames_total",
			Help:      "Frames moved across a peer transport.",
		},
		[]string{"peer", "direction"},
	)
	peerBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "bytes_total",
			Help:      "Wire bytes moved across a peer transport, headers included.",
		},
		[]string{"peer", "direction"},
	)
	peerFiltered = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "filtered_total",
			Help:      "Outbound packets dropped by the allowed-range filter.",
		},
		[]string{"peer"},
	)
	peerLagged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "lagged_total",
			Help:      "Broadcast packets skipped because the peer fell behind.",
		},
		[]string{"peer"},
	)
	peerResync = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "resync_bytes_total",
			Help:      "Bytes discarded while scanning for a sync marker.",
		},
		[]string{"peer"},
	)
	peerDecodeErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "decode_errors_total",
			Help:      "Fatal frame decode errors.",
		},
		[]string{"peer", "reason"},
	)
	peerConnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "connect_attempts_total",
			Help:      "Transport connect attempts.",
		},
		[]string{"peer", "success"},
	)
	peerUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tunplex",
			Subsystem: "peer",
			Name:      "up",
			Help:      "1 while the peer stream handler is running.",
		},
		[]string{"peer"},
	)
	devicePackets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "device",
			Name:      "packets_total",
			Help:      "Packets leaving the interface toward peers (out) or written into it (in).",
		},
		[]string{"direction"},
	)
	deviceWriteErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "device",
			Name:      "write_errors_total",
			Help:      "Packets the interface rejected on write.",
		},
		[]string{"errno"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tunplex",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tunplex",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			peerFrames, peerBytes, peerFiltered, peerLagged, peerResync,
			peerDecodeErrors, peerConnects, peerUp, devicePackets, deviceWriteErrors,
			httpRequests, httpDuration,
		)
	})
}

func RecordFrame(peer, direction string, wireBytes int) {
	RegisterMetrics()
	peerFrames.WithLabelValues(peer, direction).Inc()
	peerBytes.WithLabelValues(peer, direction).Add(float64(wireBytes))
}

func RecordFiltered(peer string) {
	RegisterMetrics()
	peerFiltered.WithLabelValues(peer).Inc()
}

func RecordLagged(peer string, skipped uint64) {
	RegisterMetrics()
	peerLagged.WithLabelValues(peer).Add(float64(skipped))
}

func RecordResync(peer string, discarded int) {
	RegisterMetrics()
	peerResync.WithLabelValues(peer).Add(float64(discarded))
}

func RecordDecodeError(peer, reason string) {
	RegisterMetrics()
	peerDecodeErrors.WithLabelValues(peer, reason).Inc()
}

func RecordConnect(peer string, success bool) {
	RegisterMetrics()
	peerConnects.WithLabelValues(peer, strconv.FormatBool(success)).Inc()
}

func SetPeerUp(peer string, up bool) {
	RegisterMetrics()
	v := 0.0
	if up {
		v = 1
	}
	peerUp.WithLabelValues(peer).Set(v)
}

func RecordDevicePacket(direction string) {
	RegisterMetrics()
	devicePackets.WithLabelValues(direction).Inc()
}

func RecordDeviceWriteError(errno string) {
	RegisterMetrics()
	deviceWriteErrors.WithLabelValues(errno).Inc()
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
