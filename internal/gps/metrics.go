package gps

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	readsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gaul_gnss",
		Name:      "reads_total",
		Help:      "Read attempts by result",
	}, []string{"result"})

	bytesDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gaul_gnss",
		Name:      "bytes_dropped_total",
		Help:      "Bytes lost to receive buffer overflow",
	})

	fixGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gaul_gnss",
		Name:      "fix",
		Help:      "1 when the receiver reports a satellite fix",
	})

	readDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gaul_gnss",
		Name:      "read_duration_seconds",
		Help:      "Time spent in one poll of the sentence pipeline",
		Buckets:   prometheus.ExponentialBuckets(1e-6, 4, 10),
	})
)

func init() {
	prometheus.MustRegister(readsTotal, bytesDropped, fixGauge, readDuration)
}

// Result labels for readsTotal.
const (
	resultOK      = "ok"
	resultNoData  = "no_data"
	resultFraming = "framing_error"
	resultNotRMC  = "not_rmc"
	resultParse   = "parse_error"
)
