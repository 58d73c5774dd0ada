package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/devsup/internal/history"
	"github.com/loykin/devsup/internal/supervisor"
)

// StatusSource is implemented by *supervisor.Supervisor.
type StatusSource interface {
	Status() supervisor.Status
}

// Router provides read-only HTTP handlers for the supervisor.
// Endpoints:
//
//	GET {basePath}/status   supervisor snapshot
//	GET {basePath}/healthz  200 while the supervisor is alive
//	GET {basePath}/readyz   200 once the current run is ready, else 503
//	GET {basePath}/metrics  Prometheus exposition (when a metrics handler is set)
//	GET {basePath}/history  query: limit=N (when a history reader is set)
//
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	status   StatusSource
	history  history.Reader
	metrics  http.Handler
	basePath string
}

// NewRouter constructs a Router. hist and metrics may be nil; their endpoints
// are then not registered.
func NewRouter(status StatusSource, hist history.Reader, metrics http.Handler, basePath string) *Router {
	return &Router{status: status, history: hist, metrics: metrics, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/readyz", r.handleReadyz)
	if r.metrics != nil {
		group.GET("/metrics", gin.WrapH(r.metrics))
	}
	if r.history != nil {
		group.GET("/history", r.handleHistory)
	}
	return g
}

// NewServer builds an HTTP server for this router on addr. It is not started.
func NewServer(addr string, r *Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is done, then shuts it down gracefully.
func Serve(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type readyResp struct {
	Ready bool `json:"ready"`
	Run   int  `json:"run"`
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.status.Status())
}

func (r *Router) handleHealthz(c *gin.Context) {
	if r.status.Status().State == supervisor.StateTerminating {
		writeJSON(c, http.StatusServiceUnavailable, okResp{OK: false})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleReadyz(c *gin.Context) {
	st := r.status.Status()
	ready := st.State == supervisor.StateRunning && st.Ready
	code := http.StatusOK
	if !ready {
		code = http.StatusServiceUnavailable
	}
	writeJSON(c, code, readyResp{Ready: ready, Run: st.Run})
}

func (r *Router) handleHistory(c *gin.Context) {
	limit, ok := parseLimit(c.Query("limit"))
	if !ok {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "limit must be a positive integer"})
		return
	}
	events, err := r.history.Recent(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	if events == nil {
		events = []history.Event{}
	}
	writeJSON(c, http.StatusOK, events)
}
