package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	transcriptions *prometheus.CounterVec
	duration       prometheus.Histogram
	uploadBytes    prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	return &metrics{
		transcriptions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "whisperd_transcriptions_total",
			Help: "Transcription requests by outcome.",
		}, []string{"outcome"}),
		duration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperd_transcribe_duration_seconds",
			Help:    "Wall-clock duration of transcription runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		uploadBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "whisperd_upload_bytes",
			Help:    "Size of uploaded audio files.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10),
		}),
	}
}
