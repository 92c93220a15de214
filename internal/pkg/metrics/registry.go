package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeready_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "makeready_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "makeready_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeready_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// Authentication Metrics
var (
	// Logins tracks completed provider callbacks by platform and outcome
	Logins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeready_logins_total",
			Help: "Total completed OAuth logins by platform and status",
		},
		[]string{"platform", "status"},
	)

	// AuthCodesIssued tracks one-time codes minted for native clients
	AuthCodesIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "makeready_auth_codes_issued_total",
			Help: "Total one-time auth codes issued to native clients",
		},
	)

	// AuthCodeRedemptions tracks exchange attempts by outcome
	AuthCodeRedemptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "makeready_auth_code_redemptions_total",
			Help: "Total one-time auth code redemption attempts by status",
		},
		[]string{"status"},
	)

	// SessionsActive is a rough gauge of live server sessions
	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "makeready_sessions_active",
			Help: "Approximate number of live server sessions",
		},
	)
)
