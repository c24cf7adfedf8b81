// Package telemetry maps raw polled run snapshots into a canonical,
// deduplicated, ordered stream of telemetry envelopes.
//
// The mapper keeps no history beyond its own in-memory working set. Feeding
// it the same snapshot twice yields no events on the second pass; entities
// that reached a terminal state are never resurrected; and the working set
// is bounded by time- and count-based eviction of terminal sessions.
package telemetry

import (
	"sync"
	"time"
)

// Default eviction bounds.
const (
	DefaultEvictionWindow = 30 * time.Minute
	DefaultMaxSessions    = 500
)

// Options tune the eviction manager.
type Options struct {
	// EvictionWindow is the TTL after which a terminal session and its runs
	// are purged.
	EvictionWindow time.Duration
	// MaxSessions caps the tracked-session count. When exceeded, the oldest
	// terminal sessions are purged first.
	MaxSessions int
}

func (o *Options) normalize() {
	if o.EvictionWindow <= 0 {
		o.EvictionWindow = DefaultEvictionWindow
	}
	if o.MaxSessions <= 0 {
		o.MaxSessions = DefaultMaxSessions
	}
}

// Mapper derives telemetry events for a single machine. Each machine gets
// its own Mapper, which owns its State outright: callers never construct or
// share state across polls, so the dedup and eviction invariants cannot be
// desynchronized from outside.
type Mapper struct {
	mu      sync.Mutex
	machine MachineInfo
	opts    Options
	state   *State

	registered bool
	lastEvict  int

	now func() time.Time
}

// NewMapper creates a mapper for one machine.
func NewMapper(machine MachineInfo, opts Options) *Mapper {
	opts.normalize()
	return &Mapper{
		machine: machine,
		opts:    opts,
		state:   NewState(),
		now:     time.Now,
	}
}

// Poll processes one raw snapshot of the machine's runs and returns the
// ordered event list for this cycle. It performs no I/O and never fails:
// malformed timestamps degrade to the wall clock and missing sub-stream
// data means no sub-stream events, not an error.
func (m *Mapper) Poll(observed []DetectedRun) []Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()

	var out []Envelope
	if !m.registered {
		m.registered = true
		out = append(out, newEnvelope(m.machine.ID, SeverityInfo, EventMachineRegistered, MachineRegistered{
			Label: m.machine.Label,
			Kind:  m.machine.Kind,
		}, now))
	}

	runEvents, changes := m.diffRuns(observed, now)
	out = append(out, runEvents...)
	out = append(out, m.inferSessions(changes, now)...)
	m.lastEvict = m.evict(now)
	return out
}

// Heartbeat wraps a host stats sample into a heartbeat envelope.
func (m *Mapper) Heartbeat(stats HostStats) Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newEnvelope(m.machine.ID, SeverityInfo, EventMachineHeartbeat, stats, m.now())
}

// Machine returns the machine identity this mapper observes.
func (m *Mapper) Machine() MachineInfo {
	return m.machine
}

// Stats is a point-in-time summary of the working set, used by the status
// API and metrics.
type Stats struct {
	MachineID        string `json:"machine_id"`
	KnownRuns        int    `json:"known_runs"`
	KnownSessions    int    `json:"known_sessions"`
	ActiveSessions   int    `json:"active_sessions"`
	TerminalSessions int    `json:"terminal_sessions"`
	EvictedLastPoll  int    `json:"evicted_last_poll"`
}

// Snapshot returns current working-set counts.
func (m *Mapper) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Stats{
		MachineID:       m.machine.ID,
		KnownRuns:       len(m.state.runs),
		KnownSessions:   len(m.state.sessions),
		EvictedLastPoll: m.lastEvict,
	}
	for _, tr := range m.state.sessions {
		if tr.State.Terminal() {
			s.TerminalSessions++
		} else {
			s.ActiveSessions++
		}
	}
	return s
}
