/*
 * Copyright (c) 2018 Miguel Ángel Ortuño.
 * See the LICENSE file for more information.
 */

package bosh

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	boshRequestsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "requests_sent_total",
			Help:      "The total number of BOSH bodies posted, restarts included.",
		},
	)
	boshRequestRestarts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "request_restarts_total",
			Help:      "The total number of restarted BOSH requests.",
		},
	)
	boshRequestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "request_errors_total",
			Help:      "The total number of BOSH requests completed with a non successful status.",
		},
		[]string{"status"},
	)
	boshRequestDurationBucket = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "request_duration_bucket",
			Help:      "Bucketed histogram of BOSH request duration.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
	)
	boshRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "requests_in_flight",
			Help:      "The number of BOSH requests awaiting a response.",
		},
	)
	boshIncomingStanzas = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "incoming_stanzas_total",
			Help:      "The total number of stanzas received.",
		},
	)
	boshHandlerFaults = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jackal",
			Subsystem: "bosh",
			Name:      "handler_faults_total",
			Help:      "The total number of panics recovered from registered handlers.",
		},
	)
)

func init() {
	prometheus.MustRegister(boshRequestsSent)
	prometheus.MustRegister(boshRequestRestarts)
	prometheus.MustRegister(boshRequestErrors)
	prometheus.MustRegister(boshRequestDurationBucket)
	prometheus.MustRegister(boshRequestsInFlight)
	prometheus.MustRegister(boshIncomingStanzas)
	prometheus.MustRegister(boshHandlerFaults)
}

func reportRequestError(status int) {
	boshRequestErrors.With(prometheus.Labels{"status": strconv.Itoa(status)}).Inc()
}
