package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PlanRecommendations counts /plan answers by the branch that produced them.
	PlanRecommendations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrition_plan_recommendations_total",
			Help: "Plan recommendations served, by source (model, rules, default)",
		},
		[]string{"source"},
	)

	// FallbackReasons counts why the model branch was skipped.
	FallbackReasons = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrition_plan_fallbacks_total",
			Help: "Recommendations that fell back to rules, by reason",
		},
		[]string{"reason"},
	)

	Selections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrition_plan_selections_total",
			Help: "Plan selections received, by outcome",
		},
		[]string{"outcome"},
	)

	TrainingRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrition_training_runs_total",
			Help: "Training runs, by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	TrainingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nutrition_training_duration_seconds",
			Help:    "Duration of successful training runs",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	ModelVersion = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutrition_model_version",
			Help: "Version of the loaded encoder/classifier pair (0 when none)",
		},
	)

	ModelAccuracy = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutrition_model_validation_accuracy",
			Help: "Validation accuracy of the loaded model",
		},
	)

	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrition_api_requests_total",
			Help: "HTTP requests, by method, route and status code",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nutrition_api_request_duration_seconds",
			Help:    "HTTP request latency, by method and route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)
