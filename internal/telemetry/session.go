package telemetry

import (
	"sort"
	"time"
)

// inferSessions consumes the run lifecycle transitions produced this poll
// and maintains the derived session map. Sessions become terminal when their
// active-run set drains; a session that has gone terminal stays terminal no
// matter what later runs reference it.
func (m *Mapper) inferSessions(changes []RunStateChange, now time.Time) []Envelope {
	st := m.state
	var out []Envelope

	for _, ch := range changes {
		if ch.SessionID == "" {
			continue
		}
		tr, known := st.sessions[ch.SessionID]
		if !known {
			tr = &SessionTrack{
				ID:         ch.SessionID,
				AgentID:    ch.AgentID,
				MachineID:  m.machine.ID,
				State:      SessionRunning,
				ActiveRuns: make(map[string]struct{}),
			}
			st.sessions[ch.SessionID] = tr
			out = append(out, newEnvelope(m.machine.ID, SeverityInfo, EventSessionStateChanged, SessionStateChange{
				SessionID: ch.SessionID,
				AgentID:   ch.AgentID,
				From:      SessionCreated,
				To:        SessionRunning,
			}, now))
		} else if tr.State.Terminal() {
			// Late run event attributed to a dead session.
			continue
		}
		if ch.To.Terminal() {
			delete(tr.ActiveRuns, ch.RunID)
		} else {
			tr.ActiveRuns[ch.RunID] = struct{}{}
		}
	}

	// Close out sessions whose active-run set drained this poll.
	var drained []string
	for id, tr := range st.sessions {
		if tr.State.Terminal() || len(tr.ActiveRuns) > 0 {
			continue
		}
		drained = append(drained, id)
	}
	sort.Strings(drained)
	for _, id := range drained {
		tr := st.sessions[id]
		to := SessionCompleted
		for _, run := range st.runs {
			if run.SessionID == id && run.State == RunFailed {
				to = SessionFailed
				break
			}
		}
		if tr.State == to {
			continue
		}
		sev := SeverityInfo
		if to == SessionFailed {
			sev = SeverityError
		}
		out = append(out, newEnvelope(m.machine.ID, sev, EventSessionStateChanged, SessionStateChange{
			SessionID: id,
			AgentID:   tr.AgentID,
			From:      tr.State,
			To:        to,
		}, now))
		tr.State = to
		tr.TerminalSince = now
	}

	return out
}
