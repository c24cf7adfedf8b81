package telemetry

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is stamped into every envelope.
const SchemaVersion = "1"

// EventType is the closed set of envelope type tags.
type EventType string

const (
	EventMachineRegistered   EventType = "machine.registered"
	EventMachineHeartbeat    EventType = "machine.heartbeat"
	EventRunStateChanged     EventType = "run.state.changed"
	EventRunToolStarted      EventType = "run.tool.started"
	EventRunToolCompleted    EventType = "run.tool.completed"
	EventRunModelUsage       EventType = "run.model.usage"
	EventRunLogEmitted       EventType = "run.log.emitted"
	EventSessionStateChanged EventType = "session.state.changed"
)

// Severity mirrors log levels for log events; lifecycle events are info
// unless they report a failure.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Trace carries the trace/span pair for an envelope. Traces are not
// correlated across envelopes; each one is its own root span.
type Trace struct {
	TraceID string `json:"traceId"`
	SpanID  string `json:"spanId"`
}

// Envelope is the canonical telemetry event handed to the ingestion
// boundary. It is immutable once constructed.
type Envelope struct {
	Version   string    `json:"version"`
	ID        string    `json:"id"`
	TS        string    `json:"ts"`
	MachineID string    `json:"machineId"`
	Severity  Severity  `json:"severity"`
	Type      EventType `json:"type"`
	Payload   any       `json:"payload"`
	Trace     Trace     `json:"trace"`
}

// Payload shapes, one per event type.

type RunStateChange struct {
	RunID     string   `json:"run_id"`
	SessionID string   `json:"session_id"`
	AgentID   string   `json:"agent_id"`
	From      RunState `json:"from"`
	To        RunState `json:"to"`
}

type ToolStarted struct {
	RunID      string `json:"run_id"`
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
}

type ToolCompleted struct {
	RunID      string `json:"run_id"`
	ToolCallID string `json:"tool_call_id"`
	Name       string `json:"name,omitempty"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

type LogEmitted struct {
	RunID   string `json:"run_id"`
	LogID   string `json:"log_id"`
	Level   string `json:"level"`
	Message string `json:"message"`
}

type UsageReported struct {
	RunID        string  `json:"run_id"`
	Model        string  `json:"model,omitempty"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

type SessionStateChange struct {
	SessionID string       `json:"session_id"`
	AgentID   string       `json:"agent_id"`
	From      SessionState `json:"from"`
	To        SessionState `json:"to"`
}

type MachineRegistered struct {
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// HostStats is the OS sample carried inside a heartbeat. Collection is the
// poller's job; the mapper only wraps it.
type HostStats struct {
	CPUPercent    float64 `json:"cpu_percent"`
	MemoryPercent float64 `json:"memory_percent"`
	MemoryUsedMB  float64 `json:"memory_used_mb"`
}

// newEnvelope builds a canonical envelope. Every envelope gets a fresh id
// and a fresh trace/span pair. It never fails.
func newEnvelope(machineID string, sev Severity, t EventType, payload any, ts time.Time) Envelope {
	return Envelope{
		Version:   SchemaVersion,
		ID:        uuid.NewString(),
		TS:        ts.UTC().Format(time.RFC3339Nano),
		MachineID: machineID,
		Severity:  sev,
		Type:      t,
		Payload:   payload,
		Trace:     Trace{TraceID: uuid.NewString(), SpanID: uuid.NewString()},
	}
}

// eventTime resolves the timestamp policy: the run's reported start time for
// its first-ever observation when it parses as RFC3339, wall clock otherwise.
func eventTime(startedAt string, firstSeen bool, now time.Time) time.Time {
	if firstSeen && startedAt != "" {
		if t, err := time.Parse(time.RFC3339, startedAt); err == nil {
			return t
		}
	}
	return now
}

// logTime parses a log line's own timestamp, falling back to now.
func logTime(reported string, now time.Time) time.Time {
	if reported != "" {
		if t, err := time.Parse(time.RFC3339, reported); err == nil {
			return t
		}
	}
	return now
}

// logSeverity maps a log level onto an envelope severity.
func logSeverity(level string) Severity {
	switch level {
	case "error", "fatal":
		return SeverityError
	case "warn", "warning":
		return SeverityWarn
	}
	return SeverityInfo
}
