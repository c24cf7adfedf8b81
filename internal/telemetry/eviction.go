package telemetry

import (
	"sort"
	"time"
)

// evict bounds the working set. Two passes, both scoped to terminal
// sessions: age first, then count against the configured cap, oldest
// terminal sessions first. Active sessions are never evicted; the cap is a
// soft bound enforced opportunistically against terminal entries only.
// Returns the number of sessions removed.
func (m *Mapper) evict(now time.Time) int {
	st := m.state
	evicted := 0

	var expired []string
	for id, tr := range st.sessions {
		if tr.State.Terminal() && now.Sub(tr.TerminalSince) > m.opts.EvictionWindow {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		st.dropSession(id)
		evicted++
	}

	if len(st.sessions) <= m.opts.MaxSessions {
		return evicted
	}

	var terminal []*SessionTrack
	for _, tr := range st.sessions {
		if tr.State.Terminal() {
			terminal = append(terminal, tr)
		}
	}
	sort.Slice(terminal, func(i, j int) bool {
		if terminal[i].TerminalSince.Equal(terminal[j].TerminalSince) {
			return terminal[i].ID < terminal[j].ID
		}
		return terminal[i].TerminalSince.Before(terminal[j].TerminalSince)
	})

	excess := len(st.sessions) - m.opts.MaxSessions
	for i := 0; i < excess && i < len(terminal); i++ {
		st.dropSession(terminal[i].ID)
		evicted++
	}
	return evicted
}
