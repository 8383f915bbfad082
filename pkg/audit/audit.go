// Package audit implements the append-only audit log: every tool-call
// mediation decision, with or without execution, is recorded exactly once.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fitsec/sentinel/pkg/secmodel"
)

var (
	metricEntriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "audit_entries_total",
		Help:      "Audit entries recorded, partitioned by decision.",
	}, []string{"decision"})
	metricExecutedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "audit_executed_total",
		Help:      "Audit entries where the tool was actually executed.",
	})
	metricErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "sentinel",
		Name:      "audit_errors_total",
		Help:      "Audit entries that carry a non-empty error.",
	})
)

// Logger is the append-only audit log. Entries accumulate in memory and,
// when a sink is configured, are also appended as JSON lines.
type Logger struct {
	mu      sync.Mutex
	entries []secmodel.AuditEntry
	sink    io.Writer
}

// New creates an in-memory-only logger.
func New() *Logger {
	return &Logger{}
}

// NewWithFile creates a logger that also appends each entry as a JSON line
// to the file at path, creating the file if needed. Parent directories are
// not created; a missing directory is reported as an error.
func NewWithFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &Logger{sink: f}, nil
}

// NewWithSink creates a logger backed by an arbitrary io.Writer sink, e.g.
// a network-backed log shipper, or (in tests) a writer that simulates sink
// failure.
func NewWithSink(sink io.Writer) *Logger {
	return &Logger{sink: sink}
}

// record is the exact JSON-lines shape from spec.md §6.
type record struct {
	EntryID       string                `json:"entry_id"`
	Timestamp     float64               `json:"timestamp"`
	TimestampISO  string                `json:"timestamp_iso"`
	ToolCall      recordToolCall        `json:"tool_call"`
	Manifest      *secmodel.ToolManifest `json:"manifest"`
	Decision      secmodel.PolicyDecision `json:"decision"`
	Executed      bool                  `json:"executed"`
	ResultType    *string               `json:"result_type"`
	Error         *string               `json:"error"`
}

type recordToolCall struct {
	ToolID string         `json:"tool_id"`
	Action string         `json:"action"`
	Args   map[string]any `json:"args"`
}

// Log appends one audit entry and returns it with its assigned entry_id
// and server timestamp. Exactly one call per orchestrator decision. A
// non-nil error means the durable sink (when configured) rejected the
// write — the entry is still kept in the in-memory trail, but the caller
// must treat the failure as a system fault, not a silent drop.
func (l *Logger) Log(call secmodel.ToolCall, manifest *secmodel.ToolManifest, decision secmodel.PolicyDecision, executed bool, result any, execErr error) (secmodel.AuditEntry, error) {
	now := time.Now().UTC()
	entry := secmodel.AuditEntry{
		EntryID:        uuid.NewString(),
		ToolCall:       call,
		Manifest:       manifest,
		PolicyDecision: decision,
		Executed:       executed,
		Result:         result,
		Timestamp:      now,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
	}

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	var sinkErr error
	if l.sink != nil {
		sinkErr = l.append(entry)
	}
	l.mu.Unlock()

	metricEntriesTotal.WithLabelValues(decision.Outcome.String()).Inc()
	if executed {
		metricExecutedTotal.Inc()
	}
	if entry.Error != "" || sinkErr != nil {
		metricErrorsTotal.Inc()
	}

	if sinkErr != nil {
		return entry, secmodel.NewAuditSinkError(call.ToolID, sinkErr)
	}
	return entry, nil
}

// append writes entry as one JSON line to the durable sink. Caller holds l.mu.
func (l *Logger) append(entry secmodel.AuditEntry) error {
	rec := toRecord(entry)
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = l.sink.Write(data)
	return err
}

func toRecord(entry secmodel.AuditEntry) record {
	var resultType *string
	if entry.Result != nil {
		t := fmt.Sprintf("%T", entry.Result)
		resultType = &t
	}
	var errText *string
	if entry.Error != "" {
		e := entry.Error
		errText = &e
	}
	return record{
		EntryID:      entry.EntryID,
		Timestamp:    float64(entry.Timestamp.UnixNano()) / 1e9,
		TimestampISO: entry.Timestamp.Format("2006-01-02T15:04:05Z"),
		ToolCall: recordToolCall{
			ToolID: entry.ToolCall.ToolID,
			Action: entry.ToolCall.Action,
			Args:   entry.ToolCall.Args,
		},
		Manifest:   entry.Manifest,
		Decision:   entry.PolicyDecision,
		Executed:   entry.Executed,
		ResultType: resultType,
		Error:      errText,
	}
}

// Entries returns a filtered, most-recent-limited copy of the audit trail.
// toolID and decision filter when non-empty; limit <= 0 means unlimited.
func (l *Logger) Entries(limit int, toolID string, decision string) []secmodel.AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]secmodel.AuditEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if toolID != "" && e.ToolCall.ToolID != toolID {
			continue
		}
		if decision != "" && e.PolicyDecision.Outcome.String() != decision {
			continue
		}
		out = append(out, e)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Summary is the aggregate view spec.md §6 requires: totals, outcome
// counts, execution/error counts, and a per-blast-radius breakdown.
type Summary struct {
	Total        int            `json:"total"`
	Allowed      int            `json:"allowed"`
	Denied       int            `json:"denied"`
	Executed     int            `json:"executed"`
	Errors       int            `json:"errors"`
	ByBlastRadius map[string]int `json:"by_omega_level"`
}

// Summary computes aggregate statistics over the full audit trail.
func (l *Logger) Summary() Summary {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Summary{ByBlastRadius: make(map[string]int)}
	s.Total = len(l.entries)
	for _, e := range l.entries {
		switch e.PolicyDecision.Outcome {
		case secmodel.Allow:
			s.Allowed++
		case secmodel.Deny:
			s.Denied++
		}
		if e.Executed {
			s.Executed++
		}
		if e.Error != "" {
			s.Errors++
		}
		s.ByBlastRadius[e.PolicyDecision.BlastRadius.String()]++
	}
	return s
}

// ExportJSONL writes the full in-memory audit trail to path as JSON lines,
// independent of whatever durable sink (if any) this logger was opened with.
func (l *Logger) ExportJSONL(path string) error {
	l.mu.Lock()
	entries := append([]secmodel.AuditEntry{}, l.entries...)
	l.mu.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	for _, e := range entries {
		data, err := json.Marshal(toRecord(e))
		if err != nil {
			return fmt.Errorf("marshal entry %s: %w", e.EntryID, err)
		}
		if _, err := f.Write(append(data, '\n')); err != nil {
			return fmt.Errorf("write entry %s: %w", e.EntryID, err)
		}
	}
	return nil
}

// Clear empties the in-memory trail. It does not affect a durable sink
// already written to.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
