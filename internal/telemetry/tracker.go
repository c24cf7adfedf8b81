package telemetry

import (
	"sort"
	"time"
)

// diffRuns compares the observed snapshot against knownRuns and returns the
// run lifecycle and sub-stream envelopes for this poll, plus the lifecycle
// transitions for the session inference pass.
//
// Per-run ordering: the lifecycle event (if any) precedes that run's
// tool/log/usage events. Synthesized disappearance completions are appended
// after all observed runs.
func (m *Mapper) diffRuns(observed []DetectedRun, now time.Time) ([]Envelope, []RunStateChange) {
	st := m.state
	seen := make(map[string]struct{}, len(observed))
	var out []Envelope
	var changes []RunStateChange

	for _, run := range observed {
		if run.ID == "" {
			continue
		}
		seen[run.ID] = struct{}{}

		prev, known := st.runs[run.ID]
		if known && prev.State == run.State {
			// Unchanged top-level state: no lifecycle event, but sub-stream
			// data may have grown since the last snapshot.
			out = append(out, m.emitSubStreams(run, now)...)
			st.runs[run.ID] = run
			continue
		}
		if known && prev.State.Terminal() {
			// Stale or out-of-order snapshot trying to revive a finished
			// run. Dropped entirely.
			continue
		}

		from := RunCreated
		if known {
			from = prev.State
		} else if run.State == RunCreated {
			from = RunQueued
		}
		to := run.State
		if from == to {
			continue
		}

		change := RunStateChange{
			RunID:     run.ID,
			SessionID: run.SessionID,
			AgentID:   run.AgentID,
			From:      from,
			To:        to,
		}
		sev := SeverityInfo
		if to == RunFailed {
			sev = SeverityError
		}
		out = append(out, newEnvelope(m.machine.ID, sev, EventRunStateChanged, change,
			eventTime(run.StartedAt, !known, now)))
		changes = append(changes, change)
		out = append(out, m.emitSubStreams(run, now)...)
		st.runs[run.ID] = run
	}

	// Runs that vanished from the source without reaching a terminal state
	// are treated as implicitly completed.
	var gone []string
	for id, prev := range st.runs {
		if _, ok := seen[id]; ok {
			continue
		}
		if prev.State.Terminal() {
			continue
		}
		gone = append(gone, id)
	}
	sort.Strings(gone)
	for _, id := range gone {
		prev := st.runs[id]
		change := RunStateChange{
			RunID:     id,
			SessionID: prev.SessionID,
			AgentID:   prev.AgentID,
			From:      prev.State,
			To:        RunCompleted,
		}
		out = append(out, newEnvelope(m.machine.ID, SeverityInfo, EventRunStateChanged, change, now))
		changes = append(changes, change)
		delete(st.runs, id)
	}

	return out, changes
}

// emitSubStreams produces tool call, log and model usage envelopes for one
// run snapshot. Each emitter is purely additive over its dedup set.
func (m *Mapper) emitSubStreams(run DetectedRun, now time.Time) []Envelope {
	st := m.state
	var out []Envelope

	for _, tc := range run.ToolCalls {
		if tc.ID == "" {
			continue
		}
		key := run.ID + "|" + tc.ID + "|" + tc.Status
		if _, done := st.emittedTools[key]; done {
			continue
		}
		st.emittedTools[key] = struct{}{}
		if tc.Status == ToolStatusStarted {
			out = append(out, newEnvelope(m.machine.ID, SeverityInfo, EventRunToolStarted, ToolStarted{
				RunID:      run.ID,
				ToolCallID: tc.ID,
				Name:       tc.Name,
			}, now))
			continue
		}
		sev := SeverityInfo
		if tc.Status == "failed" {
			sev = SeverityError
		}
		out = append(out, newEnvelope(m.machine.ID, sev, EventRunToolCompleted, ToolCompleted{
			RunID:      run.ID,
			ToolCallID: tc.ID,
			Name:       tc.Name,
			Status:     tc.Status,
			DurationMS: tc.DurationMS,
			Success:    tc.Status == "completed",
			Error:      tc.Error,
		}, now))
	}

	for _, ln := range run.Logs {
		if ln.ID == "" {
			continue
		}
		key := run.ID + "|" + ln.ID
		if _, done := st.emittedLogs[key]; done {
			continue
		}
		st.emittedLogs[key] = struct{}{}
		out = append(out, newEnvelope(m.machine.ID, logSeverity(ln.Level), EventRunLogEmitted, LogEmitted{
			RunID:   run.ID,
			LogID:   ln.ID,
			Level:   ln.Level,
			Message: ln.Message,
		}, logTime(ln.Time, now)))
	}

	if run.Usage != nil {
		if _, done := st.emittedUsage[run.ID]; !done {
			st.emittedUsage[run.ID] = struct{}{}
			u := run.Usage
			out = append(out, newEnvelope(m.machine.ID, SeverityInfo, EventRunModelUsage, UsageReported{
				RunID:        run.ID,
				Model:        u.Model,
				InputTokens:  u.InputTokens,
				OutputTokens: u.OutputTokens,
				CostUSD:      u.CostUSD,
			}, now))
		}
	}

	return out
}
