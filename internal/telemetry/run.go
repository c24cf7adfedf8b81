package telemetry

// MachineInfo identifies the polled agent runtime. It is supplied by the
// caller and never mutated by the mapper.
type MachineInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// RunState is the lifecycle state of a run as reported by the runtime.
type RunState string

const (
	RunCreated     RunState = "created"
	RunQueued      RunState = "queued"
	RunRunning     RunState = "running"
	RunWaitingTool RunState = "waiting_tool"
	RunStreaming   RunState = "streaming"
	RunCompleted   RunState = "completed"
	RunFailed      RunState = "failed"
	RunCancelled   RunState = "cancelled"
)

// Terminal reports whether no further transitions are accepted from s.
func (s RunState) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// ToolCall is a single tool invocation as observed in a run snapshot.
type ToolCall struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Status     string `json:"status"` // started, completed, failed, cancelled
	DurationMS int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ToolStatusStarted is the only non-terminal tool call status.
const ToolStatusStarted = "started"

// LogLine is one log entry attached to a run snapshot.
type LogLine struct {
	ID      string `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Time    string `json:"time,omitempty"` // RFC3339; falls back to receipt time
}

// ModelUsage is the per-run token/cost summary. A run reports at most one
// usage summary for its lifetime.
type ModelUsage struct {
	Model        string  `json:"model,omitempty"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	CostUSD      float64 `json:"cost_usd,omitempty"`
}

// DetectedRun is a snapshot of one unit of work as currently observed by the
// runtime poller. The mapper compares it against prior snapshots but never
// mutates it.
type DetectedRun struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	AgentID   string      `json:"agent_id"`
	State     RunState    `json:"state"`
	StartedAt string      `json:"started_at,omitempty"` // RFC3339 if present
	ToolCalls []ToolCall  `json:"tool_calls,omitempty"`
	Logs      []LogLine   `json:"logs,omitempty"`
	Usage     *ModelUsage `json:"usage,omitempty"`
}
