package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	findRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "imagefinder_find_requests_total",
		Help: "Find requests by outcome (found_validated, found_unvalidated, not_found, error).",
	}, []string{"outcome"})

	findDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagefinder_find_duration_seconds",
		Help:    "End-to-end pipeline duration per find request.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	candidatesPerFind = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagefinder_candidates_per_find",
		Help:    "Image candidates discovered per find request.",
		Buckets: prometheus.LinearBuckets(0, 3, 6),
	})

	validatedPerFind = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "imagefinder_validated_per_find",
		Help:    "Candidates that passed validation per find request.",
		Buckets: prometheus.LinearBuckets(0, 1, 6),
	})

	archiveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "imagefinder_archive_failures_total",
		Help: "Failed attempts to archive a winning image.",
	})
)
