// Package metrics holds the Prometheus collectors for git-audit runs.
//
// A run is a short-lived process, so collectors live on a private registry
// that is written to a node-exporter textfile at exit instead of being
// scraped.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every git-audit collector.
var Registry = prometheus.NewRegistry()

var (
	ledgerRequestsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "git_audit_ledger_requests_total",
		Help: "Total ledger JSON-RPC requests by method and result.",
	}, []string{"method", "result"})

	workflowRunsTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "git_audit_workflow_runs_total",
		Help: "Total workflow runs by action and outcome.",
	}, []string{"action", "outcome"})

	workflowDuration = promauto.With(Registry).NewHistogramVec(prometheus.HistogramOpts{
		Name:    "git_audit_workflow_duration_seconds",
		Help:    "Workflow duration in seconds, including confirmation waits.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"action"})

	reconcileEntriesTotal = promauto.With(Registry).NewCounterVec(prometheus.CounterOpts{
		Name: "git_audit_reconcile_entries_total",
		Help: "Anchored commits checked against local history, by result.",
	}, []string{"result"})

	journalEntriesTotal = promauto.With(Registry).NewCounter(prometheus.CounterOpts{
		Name: "git_audit_journal_entries_total",
		Help: "Total journal entries appended.",
	})

	lastSuccess = promauto.With(Registry).NewGaugeVec(prometheus.GaugeOpts{
		Name: "git_audit_last_success_timestamp_seconds",
		Help: "Unix time of the last successful run by action.",
	}, []string{"action"})
)

// RecordLedgerRequest records one ledger request. It matches the
// ledger.RequestObserver signature.
func RecordLedgerRequest(method string, err error) {
	if err != nil {
		ledgerRequestsTotal.WithLabelValues(method, "error").Inc()
	} else {
		ledgerRequestsTotal.WithLabelValues(method, "ok").Inc()
	}
}

// RecordWorkflow records a finished workflow run.
func RecordWorkflow(action, outcome string, elapsed time.Duration) {
	workflowRunsTotal.WithLabelValues(action, outcome).Inc()
	workflowDuration.WithLabelValues(action).Observe(elapsed.Seconds())
	if outcome == "ok" {
		lastSuccess.WithLabelValues(action).SetToCurrentTime()
	}
}

// RecordReconcile records the result counts of a reconciliation.
func RecordReconcile(good, bad int) {
	reconcileEntriesTotal.WithLabelValues("good").Add(float64(good))
	reconcileEntriesTotal.WithLabelValues("bad").Add(float64(bad))
}

// RecordJournalAppend records a journal entry append.
func RecordJournalAppend() {
	journalEntriesTotal.Inc()
}

// WriteTextfile atomically writes the registry in text exposition format.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
