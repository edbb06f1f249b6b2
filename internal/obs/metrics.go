package obs

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive         = promauto.NewGauge(prometheus.GaugeOpts{Name: "gonetcat_sessions_active", Help: "Relay sessions currently running"})
	BytesTotal             = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gonetcat_bytes_total", Help: "Bytes relayed by direction"}, []string{"direction"})
	ConnectAttemptsTotal   = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gonetcat_connect_attempts_total", Help: "Outbound connection attempts by result"}, []string{"result"})
	UnwantedPeersTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "gonetcat_unwanted_peers_total", Help: "Inbound peers rejected by filters or zero-I/O mode"})
	TelnetRepliesTotal     = promauto.NewCounter(prometheus.CounterOpts{Name: "gonetcat_telnet_replies_total", Help: "Telnet negotiation refusals sent"})
	ErrorsTotal            = promauto.NewCounterVec(prometheus.CounterOpts{Name: "gonetcat_errors_total", Help: "Errors by type"}, []string{"type"})
	SessionDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{Name: "gonetcat_session_duration_seconds", Help: "Relay session lifetime seconds", Buckets: prometheus.ExponentialBuckets(0.01, 2, 16)})
)
