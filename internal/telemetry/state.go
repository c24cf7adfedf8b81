package telemetry

import (
	"strings"
	"time"
)

// SessionState is the lifecycle state of an inferred session.
type SessionState string

const (
	SessionCreated   SessionState = "created"
	SessionRunning   SessionState = "running"
	SessionCompleted SessionState = "completed"
	SessionFailed    SessionState = "failed"
)

// Terminal reports whether the session accepts no further transitions.
func (s SessionState) Terminal() bool {
	return s == SessionCompleted || s == SessionFailed
}

// SessionTrack is a derived session entity. Sessions are never part of the
// raw input; they exist only as inference over run lifecycle events.
type SessionTrack struct {
	ID            string
	AgentID       string
	MachineID     string
	State         SessionState
	ActiveRuns    map[string]struct{}
	TerminalSince time.Time
}

// State is the mapper's complete working set for one machine. It is owned by
// exactly one Mapper and mutated only within a single poll pass.
type State struct {
	runs     map[string]DetectedRun
	sessions map[string]*SessionTrack

	// Dedup sets for the sub-stream emitters. Entries are only removed by
	// eviction's cascading deletion.
	emittedTools map[string]struct{} // runID|toolCallID|status
	emittedLogs  map[string]struct{} // runID|logID
	emittedUsage map[string]struct{} // runID
}

// NewState returns an empty working set.
func NewState() *State {
	return &State{
		runs:         make(map[string]DetectedRun),
		sessions:     make(map[string]*SessionTrack),
		emittedTools: make(map[string]struct{}),
		emittedLogs:  make(map[string]struct{}),
		emittedUsage: make(map[string]struct{}),
	}
}

// dropSession removes a session together with every run and dedup entry that
// belongs to it, so eviction never leaves orphans behind.
func (st *State) dropSession(id string) {
	delete(st.sessions, id)
	for rid, run := range st.runs {
		if run.SessionID != id {
			continue
		}
		delete(st.runs, rid)
		st.dropRunDedup(rid)
	}
}

func (st *State) dropRunDedup(runID string) {
	prefix := runID + "|"
	for k := range st.emittedTools {
		if strings.HasPrefix(k, prefix) {
			delete(st.emittedTools, k)
		}
	}
	for k := range st.emittedLogs {
		if strings.HasPrefix(k, prefix) {
			delete(st.emittedLogs, k)
		}
	}
	delete(st.emittedUsage, runID)
}
