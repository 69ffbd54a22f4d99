// Package metrics defines and registers all custom Prometheus metrics for
// splitclaim. It is the single source of truth for metric names, labels, and
// help strings. Metrics register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "splitclaim"

// ── Server ────────────────────────────────────────────────────────────────────

// ClaimsToggledTotal counts claim toggles applied by the claim endpoint.
// Label:
//   - action: "insert" or "delete"
var ClaimsToggledTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claims_toggled_total",
		Help:      "Total number of claim toggles applied, by action.",
	},
	[]string{"action"},
)

// BillsImportedTotal counts bills created from extracted receipt data.
var BillsImportedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bills_imported_total",
		Help:      "Total number of bills imported from receipt data.",
	},
)

// EventsPublishErrorsTotal counts claim events that could not be published.
var EventsPublishErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_publish_errors_total",
		Help:      "Total number of claim change events that failed to publish.",
	},
)

// BillReadyNotificationsTotal counts bill ready webhook deliveries.
// Label:
//   - result: "ok" or "error"
var BillReadyNotificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bill_ready_notifications_total",
		Help:      "Total number of bill ready webhook deliveries, by result.",
	},
	[]string{"result"},
)

// HTTPRequestDuration measures request handling time.
// Labels:
//   - method: HTTP method
//   - status: response status code
var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "Duration of HTTP requests handled by the server.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "status"},
)

// ── Client ────────────────────────────────────────────────────────────────────

// ClaimSubmissionsTotal counts claim submissions made by the client.
// Label:
//   - result: "ok", "config", "identity", "network" or "server"
var ClaimSubmissionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_submissions_total",
		Help:      "Total number of claim submissions, by result.",
	},
	[]string{"result"},
)

// SnapshotRefreshesTotal counts authoritative snapshot refetches.
// Label:
//   - result: "applied", "superseded" (a newer refetch already landed) or "error"
var SnapshotRefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "snapshot_refreshes_total",
		Help:      "Total number of snapshot refetches, by result.",
	},
	[]string{"result"},
)
