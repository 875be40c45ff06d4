// Package metrics defines and registers all custom Prometheus metrics for the
// CardDemo auth gateway. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init via promauto; /metrics exposes them alongside the echo HTTP metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carddemo_auth"

// ── Token metrics ─────────────────────────────────────────────────────────────

// TokensIssuedTotal counts signed tokens.
// Label:
//   - role: "ADMIN" or "USER"
var TokensIssuedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "tokens_issued_total",
		Help:      "Total number of tokens issued, by role.",
	},
	[]string{"role"},
)

// TokenValidationsTotal counts validation outcomes.
// Label:
//   - result: "valid" or a failure code (e.g. "TOKEN_EXPIRED", "SIGNATURE_INVALID")
var TokenValidationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_validations_total",
		Help:      "Total number of token validations, labelled by result.",
	},
	[]string{"result"},
)

// TokenRefreshesTotal counts refresh outcomes.
// Label:
//   - result: "rotated", "not_due", or a failure code
var TokenRefreshesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "token_refreshes_total",
		Help:      "Total number of token refresh attempts, labelled by result.",
	},
	[]string{"result"},
)

// BlacklistDegradedTotal counts blacklist operations answered from the
// in-process mirror because Redis was unreachable.
// Label:
//   - op: "revoke" or "check"
var BlacklistDegradedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blacklist_degraded_total",
		Help:      "Blacklist operations served by the in-process mirror while Redis was unavailable.",
	},
	[]string{"op"},
)

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionsTotal counts session lifecycle transitions.
// Label:
//   - action: "created", "refreshed", "terminated", "login_failed"
var SessionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sessions_total",
		Help:      "Total number of session lifecycle transitions, by action.",
	},
	[]string{"action"},
)

// SessionStoreErrorsTotal counts session store failures.
// Labels:
//   - op: "create", "read", "update", "refresh_ttl", "delete"
//   - code: taxonomy code of the failure (e.g. "STORE_UNAVAILABLE")
var SessionStoreErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_store_errors_total",
		Help:      "Total number of failed session store operations.",
	},
	[]string{"op", "code"},
)

// SessionStoreDuration measures session store round trips.
// Label:
//   - op: the store operation
var SessionStoreDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "session_store_duration_seconds",
		Help:      "Duration of session store operations.",
		Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25},
	},
	[]string{"op"},
)

// ── Activity metrics ──────────────────────────────────────────────────────────

// ActivityQueueDepth tracks the number of pending TTL ticks in each worker channel.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var ActivityQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "activity_queue_depth",
		Help:      "Current number of activity ticks pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)

// ActivityDroppedTotal counts activity ticks dropped because a shard was full.
var ActivityDroppedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activity_dropped_total",
		Help:      "Activity ticks dropped because the worker channel was full.",
	},
)

// ── Authorization metrics ─────────────────────────────────────────────────────

// AuthorizationDecisionsTotal counts authorization decisions.
// Labels:
//   - allowed: "true" or "false"
//   - reason: decision reason (e.g. "OWNER", "NOT_AUTHORIZED")
var AuthorizationDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "authorization_decisions_total",
		Help:      "Total number of authorization decisions, by outcome and reason.",
	},
	[]string{"allowed", "reason"},
)
