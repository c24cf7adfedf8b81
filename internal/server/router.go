package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/patze/bridge/internal/poller"
)

// Router provides embeddable HTTP handlers for the bridge status API.
// Endpoints:
//
//	GET {basePath}/healthz        liveness probe
//	GET {basePath}/machines       configured machine identities
//	GET {basePath}/status         per-machine working-set counts
//	GET {basePath}/events/recent  latest envelopes, newest first (query: limit)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	pollers  []*poller.Poller
	recent   *RecentEvents
	basePath string
}

// NewRouter constructs a Router over the given pollers. recent may be nil,
// in which case /events/recent always returns an empty list.
func NewRouter(pollers []*poller.Poller, recent *RecentEvents, basePath string) *Router {
	if recent == nil {
		recent = NewRecentEvents(0)
	}
	return &Router{pollers: pollers, recent: recent, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/machines", r.handleMachines)
	group.GET("/status", r.handleStatus)
	group.GET("/events/recent", r.handleRecentEvents)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, pollers []*poller.Poller, recent *RecentEvents) *http.Server {
	r := NewRouter(pollers, recent, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type healthResp struct {
	OK       bool `json:"ok"`
	Machines int  `json:"machines"`
}

func (r *Router) handleHealthz(c *gin.Context) {
	writeJSON(c, http.StatusOK, healthResp{OK: true, Machines: len(r.pollers)})
}

func (r *Router) handleMachines(c *gin.Context) {
	out := make([]any, 0, len(r.pollers))
	for _, p := range r.pollers {
		out = append(out, p.Mapper().Machine())
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleStatus(c *gin.Context) {
	machine := c.Query("machine")
	out := make([]any, 0, len(r.pollers))
	for _, p := range r.pollers {
		snap := p.Mapper().Snapshot()
		if machine != "" && snap.MachineID != machine {
			continue
		}
		out = append(out, snap)
	}
	if machine != "" && len(out) == 0 {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "unknown machine: " + machine})
		return
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleRecentEvents(c *gin.Context) {
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
			return
		}
		limit = n
	}
	writeJSON(c, http.StatusOK, r.recent.Latest(limit))
}
