package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsIssued counts QR attendance sessions created.
	SessionsIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_issued_total",
		Help: "Number of QR attendance sessions issued.",
	})

	// SessionsCancelled counts explicit cancellations.
	SessionsCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rollcall_sessions_cancelled_total",
		Help: "Number of QR attendance sessions cancelled by their issuer or an admin.",
	})

	// Scans counts scan attempts by terminal outcome (success, duplicate_scan,
	// session_expired, ...). Rejections are expected outcomes, not failures.
	Scans = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rollcall_scans_total",
		Help: "Scan attempts by outcome.",
	}, []string{"outcome"})
)
