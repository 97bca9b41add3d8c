package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/catalog"
	mng "github.com/taktline/takt/internal/manager"
	"github.com/taktline/takt/internal/metrics"
	"github.com/taktline/takt/internal/presence"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
)

// Router provides embeddable HTTP handlers for the tracking engine.
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	mgr      *mng.Manager
	ledger   *presence.Ledger
	authSvc  *auth.Service
	roster   *auth.Roster
	cat      *catalog.Catalog
	basePath string
	metrics  bool
}

type Options struct {
	Manager  *mng.Manager
	Ledger   *presence.Ledger
	Auth     *auth.Service
	Roster   *auth.Roster
	Catalog  *catalog.Catalog
	BasePath string
	Metrics  bool
}

func NewRouter(opts Options) *Router {
	cat := opts.Catalog
	if cat == nil {
		cat = catalog.New()
	}
	return &Router{
		mgr:      opts.Manager,
		ledger:   opts.Ledger,
		authSvc:  opts.Auth,
		roster:   opts.Roster,
		cat:      cat,
		basePath: sanitizeBase(opts.BasePath),
		metrics:  opts.Metrics,
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)

	group.POST("/auth/login", r.handleLogin)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}

	api := group.Group("", auth.Middleware(r.authSvc))
	api.GET("/processes", r.handleList)
	api.GET("/processes/:id", r.handleStatus)
	api.POST("/processes/:id/start", r.handleStart)
	api.POST("/processes/:id/pause", r.handlePause)
	api.POST("/processes/:id/resume", r.handleResume)
	api.POST("/processes/:id/finish", r.handleFinish)
	api.POST("/processes/:id/adjust", r.handleAdjust)
	api.POST("/processes/:id/timer/:op", r.handleTimer)
	api.GET("/processes/:id/presence", r.handleCrew)
	api.GET("/processes/:id/presence/history", r.handleHistory)
	api.POST("/processes/:id/bulk-exit", r.handleBulkExit)

	api.POST("/presence/check-in", r.handleCheckIn)
	api.POST("/presence/check-out", r.handleCheckOut)
	api.GET("/presence/workers/:worker", r.handleWorker)

	api.GET("/justifications", r.handleJustifications)

	sup := api.Group("", auth.RequireRole(auth.RoleSupervisor))
	sup.POST("/processes", r.handleRegister)
	sup.POST("/admin/edit", r.handleAdminEdit)
	sup.POST("/debug/reconcile", r.handleReconcile)

	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, opts Options) *http.Server {
	r := NewRouter(opts)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

func actorFrom(c *gin.Context) string {
	sess, _ := auth.SessionFrom(c)
	return sess.Actor()
}

// --- Handlers ---

func (r *Router) handleLogin(c *gin.Context) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	token, err := r.authSvc.Login(req.Username, req.Password)
	if err != nil {
		writeJSON(c, http.StatusUnauthorized, errorResp{Error: "invalid credentials"})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"token": token})
}

func (r *Router) handleList(c *gin.Context) {
	sts, err := r.mgr.StatusAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sts)
}

func (r *Router) handleStatus(c *gin.Context) {
	st, err := r.mgr.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleRegister(c *gin.Context) {
	var spec process.Spec
	if err := c.ShouldBindJSON(&spec); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeID(spec.ID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid process id: allowed [A-Za-z0-9._-]"})
		return
	}
	snap, err := r.mgr.Register(c.Request.Context(), spec, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) handleStart(c *gin.Context) {
	if err := r.mgr.Start(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handlePause(c *gin.Context) {
	var req struct {
		Justification string `json:"justification"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.mgr.Pause(c.Request.Context(), c.Param("id"), req.Justification, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleResume(c *gin.Context) {
	if err := r.mgr.Resume(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleFinish(c *gin.Context) {
	if err := r.mgr.Finish(c.Request.Context(), c.Param("id"), actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleAdjust(c *gin.Context) {
	var req struct {
		Delta float64 `json:"delta"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if err := r.mgr.Adjust(c.Request.Context(), c.Param("id"), req.Delta, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleTimer(c *gin.Context) {
	op := mng.TimerOp(c.Param("op"))
	if err := r.mgr.Timer(c.Request.Context(), c.Param("id"), op, actorFrom(c)); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleCrew(c *gin.Context) {
	recs, err := r.ledger.Crew(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, recs)
}

func (r *Router) handleHistory(c *gin.Context) {
	recs, err := r.ledger.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, recs)
}

func (r *Router) handleBulkExit(c *gin.Context) {
	var req struct {
		Credential    string `json:"credential"`
		Justification string `json:"justification"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	res, err := r.mgr.BulkExit(c.Request.Context(), c.Param("id"), req.Credential, req.Justification, r.authSvc)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

func (r *Router) handleCheckIn(c *gin.Context) {
	var req struct {
		WorkerID  string     `json:"worker_id"`
		ProcessID string     `json:"process_id"`
		Role      store.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if !isSafeID(req.WorkerID) || !isSafeID(req.ProcessID) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid worker or process id"})
		return
	}
	rec, err := r.ledger.CheckIn(c.Request.Context(), req.WorkerID, req.ProcessID, req.Role, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleCheckOut(c *gin.Context) {
	var req struct {
		WorkerID      string `json:"worker_id"`
		Justification string `json:"justification"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	rec, err := r.ledger.CheckOut(c.Request.Context(), req.WorkerID, req.Justification, actorFrom(c))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleWorker(c *gin.Context) {
	rec, found, err := r.ledger.ActiveProcess(c.Request.Context(), c.Param("worker"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "worker not checked in"})
		return
	}
	writeJSON(c, http.StatusOK, rec)
}

func (r *Router) handleJustifications(c *gin.Context) {
	category := c.DefaultQuery("category", "pause")
	writeJSON(c, http.StatusOK, gin.H{"category": category, "texts": r.cat.Texts(category)})
}

func (r *Router) handleReconcile(c *gin.Context) {
	r.mgr.ReconcileOnce(c.Request.Context())
	writeJSON(c, http.StatusOK, okResp{OK: true})
}
