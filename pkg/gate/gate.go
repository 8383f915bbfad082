// Package gate implements the monitorability gate and the emergency gate.
//
// The monitorability gate checks whether the deployment's safety
// observability is operationally usable — not just "accurate" — before
// Omega1/Omega2 actions are allowed to reach policy evaluation. The
// emergency gate is a latching operator override that forces denial of
// anything above Omega0 regardless of what the monitorability gate says.
package gate

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

var (
	metricFPR         = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "sentinel", Name: "gate_fpr", Help: "Last observed false-positive rate."})
	metricCoverage    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "sentinel", Name: "gate_coverage", Help: "Last observed coverage at target FPR."})
	metricCalibration = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "sentinel", Name: "gate_calibration", Help: "Last observed calibration score."})
	metricLeadMean    = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "sentinel", Name: "gate_lead_time_mean", Help: "Last observed alert lead-time mean."})
	metricLeadCV      = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "sentinel", Name: "gate_lead_time_cv", Help: "Last observed alert lead-time coefficient of variation."})
)

// Gate evaluates GateMetrics into a GateStatus. It is stateless beyond its
// last-observed snapshot and performs no I/O.
type Gate struct {
	mu      sync.RWMutex
	metrics *secmodel.GateMetrics
}

// New creates a gate with no metrics observed yet (status Unknown).
func New() *Gate {
	return &Gate{}
}

// Update replaces the gate's observed metrics snapshot and refreshes the
// Prometheus gauges that mirror it.
func (g *Gate) Update(m secmodel.GateMetrics) {
	g.mu.Lock()
	g.metrics = &m
	g.mu.Unlock()

	if m.FalsePositiveRate != nil {
		metricFPR.Set(*m.FalsePositiveRate)
	}
	if m.CoverageAtTargetFPR != nil {
		metricCoverage.Set(*m.CoverageAtTargetFPR)
	}
	if m.CalibrationScore != nil {
		metricCalibration.Set(*m.CalibrationScore)
	}
	if m.LeadTimeMean != nil {
		metricLeadMean.Set(*m.LeadTimeMean)
		if m.LeadTimeStd != nil && *m.LeadTimeMean > 0 {
			metricLeadCV.Set(*m.LeadTimeStd / *m.LeadTimeMean)
		}
	}
}

// Metrics returns the last-observed snapshot, or nil if none has been set.
func (g *Gate) Metrics() *secmodel.GateMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.metrics
}

// Check evaluates the current metrics snapshot into a GateStatus following
// spec.md §4.4's fixed rule order. Absent fields in any rule are skipped
// (that rule passes); absent metrics entirely yield Unknown.
func (g *Gate) Check() secmodel.GateStatus {
	g.mu.RLock()
	m := g.metrics
	g.mu.RUnlock()
	return evaluate(m)
}

func evaluate(m *secmodel.GateMetrics) secmodel.GateStatus {
	if m == nil {
		return secmodel.GateUnknown
	}
	if m.FalsePositiveRate != nil && *m.FalsePositiveRate > m.FPRTarget {
		return secmodel.GateFailFpr
	}
	if m.CoverageAtTargetFPR != nil && *m.CoverageAtTargetFPR < m.CoverageTarget {
		return secmodel.GateFailCoverage
	}
	if m.CalibrationScore != nil && *m.CalibrationScore < m.CalibrationThreshold {
		return secmodel.GateFailCalibration
	}
	if m.LeadTimeMean != nil && m.LeadTimeStd != nil && *m.LeadTimeMean > 0 {
		cv := *m.LeadTimeStd / *m.LeadTimeMean
		if cv > m.LeadTimeCVMax {
			return secmodel.GateFailLeadTime
		}
	}
	return secmodel.GatePass
}

// FailureReason renders a human-readable explanation for a failing status,
// or "" when the status is Pass/Unknown.
func (g *Gate) FailureReason(status secmodel.GateStatus) string {
	if status == secmodel.GatePass || status == secmodel.GateUnknown {
		return ""
	}
	g.mu.RLock()
	m := g.metrics
	g.mu.RUnlock()
	if m == nil {
		return status.String()
	}
	switch status {
	case secmodel.GateFailFpr:
		return "FPR exceeds target"
	case secmodel.GateFailCoverage:
		return "coverage below target at target FPR"
	case secmodel.GateFailCalibration:
		return "calibration score below threshold"
	case secmodel.GateFailLeadTime:
		return "alert lead-time coefficient of variation too high"
	default:
		return status.String()
	}
}
