package takt

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/catalog"
	"github.com/taktline/takt/internal/clock"
	cfg "github.com/taktline/takt/internal/config"
	"github.com/taktline/takt/internal/journal"
	"github.com/taktline/takt/internal/manager"
	"github.com/taktline/takt/internal/metrics"
	"github.com/taktline/takt/internal/presence"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/server"
	"github.com/taktline/takt/internal/store"
	"github.com/taktline/takt/internal/store/factory"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Spec = process.Spec

type Snapshot = process.Snapshot

type Estimate = process.Estimate

type Status = manager.Status

type ProcessEdit = manager.ProcessEdit

type TimerOp = manager.TimerOp

type BulkExitResult = manager.BulkExitResult

type Role = store.Role

const (
	RoleCore    = store.RoleCore
	RoleSupport = store.RoleSupport
)

type PresenceRecord = store.PresenceRecord

type Store = store.Store

type StoreConfig = factory.Config

type Event = journal.Event

type Sink = journal.Sink

type Clock = clock.Clock

type User = auth.User

type Roster = auth.Roster

type AuthService = auth.Service

type Catalog = catalog.Catalog

type Config = cfg.FileConfig

// Engine is a thin facade over the internal manager and presence ledger,
// wired together. It provides a stable public API for embedding.
type Engine struct {
	mgr    *manager.Manager
	ledger *presence.Ledger
}

// Options configures an Engine. Zero value means in-memory store, no
// journal sinks and the real clock.
type Options struct {
	Store Store
	Sink  Sink
	Clock Clock
}

func New(opts Options) *Engine {
	if opts.Store == nil {
		opts.Store = store.NewMemory()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	mgr := manager.NewManager(opts.Store, opts.Sink, opts.Clock)
	ledger := presence.NewLedger(opts.Store, opts.Sink, opts.Clock)
	mgr.SetLedger(ledger)
	ledger.SetLifecycle(mgr)
	return &Engine{mgr: mgr, ledger: ledger}
}

// Manager exposes the underlying process manager for advanced embedding.
func (e *Engine) Manager() *manager.Manager { return e.mgr }

// Ledger exposes the underlying presence ledger for advanced embedding.
func (e *Engine) Ledger() *presence.Ledger { return e.ledger }

func (e *Engine) Load(ctx context.Context) error { return e.mgr.Load(ctx) }

func (e *Engine) Register(ctx context.Context, spec Spec, actor string) (Snapshot, error) {
	return e.mgr.Register(ctx, spec, actor)
}

func (e *Engine) Start(ctx context.Context, id, actor string) error {
	return e.mgr.Start(ctx, id, actor)
}

func (e *Engine) Pause(ctx context.Context, id, justification, actor string) error {
	return e.mgr.Pause(ctx, id, justification, actor)
}

func (e *Engine) Resume(ctx context.Context, id, actor string) error {
	return e.mgr.Resume(ctx, id, actor)
}

func (e *Engine) Finish(ctx context.Context, id, actor string) error {
	return e.mgr.Finish(ctx, id, actor)
}

func (e *Engine) Adjust(ctx context.Context, id string, delta float64, actor string) error {
	return e.mgr.Adjust(ctx, id, delta, actor)
}

func (e *Engine) Edit(ctx context.Context, id string, edit ProcessEdit, actor string) error {
	return e.mgr.Edit(ctx, id, edit, actor)
}

func (e *Engine) Timer(ctx context.Context, id string, op TimerOp, actor string) error {
	return e.mgr.Timer(ctx, id, op, actor)
}

func (e *Engine) Status(ctx context.Context, id string) (Status, error) {
	return e.mgr.Status(ctx, id)
}

func (e *Engine) StatusAll(ctx context.Context) ([]Status, error) {
	return e.mgr.StatusAll(ctx)
}

func (e *Engine) CheckIn(ctx context.Context, workerID, processID string, role Role, actor string) (PresenceRecord, error) {
	return e.ledger.CheckIn(ctx, workerID, processID, role, actor)
}

func (e *Engine) CheckOut(ctx context.Context, workerID, justification, actor string) (PresenceRecord, error) {
	return e.ledger.CheckOut(ctx, workerID, justification, actor)
}

func (e *Engine) Crew(ctx context.Context, processID string) ([]PresenceRecord, error) {
	return e.ledger.Crew(ctx, processID)
}

func (e *Engine) PresenceHistory(ctx context.Context, processID string) ([]PresenceRecord, error) {
	return e.ledger.History(ctx, processID)
}

// BulkExit checks out every worker on the process under one authorization.
// The resolver maps a badge or id to an identity; an *AuthService works.
func (e *Engine) BulkExit(ctx context.Context, processID, credential, justification string, resolver manager.CredentialResolver) (BulkExitResult, error) {
	return e.mgr.BulkExit(ctx, processID, credential, justification, resolver)
}

func (e *Engine) ReconcileOnce(ctx context.Context) { e.mgr.ReconcileOnce(ctx) }

func (e *Engine) StartReconciler(interval time.Duration) error {
	return e.mgr.StartReconciler(interval)
}

func (e *Engine) StopReconciler() { e.mgr.StopReconciler() }

func (e *Engine) Shutdown() { e.mgr.Shutdown() }

// NewStore builds a store backend from config.
func NewStore(c StoreConfig) (Store, error) { return factory.New(c) }

// NewRoster returns an empty user roster.
func NewRoster() *Roster { return auth.NewRoster() }

// HashPassword returns the bcrypt hash used by roster accounts.
func HashPassword(password string) (string, error) { return auth.HashPassword(password) }

// NewAuthService builds the credential resolver and token issuer.
func NewAuthService(roster *Roster, secret string, tokenTTL time.Duration) *AuthService {
	return auth.NewService(roster, auth.ServiceOptions{Secret: secret, TokenTTL: tokenTTL})
}

// NewCatalog returns an empty justification/stage catalog.
func NewCatalog() *Catalog { return catalog.New() }

// LoadConfig parses a TOML config file.
func LoadConfig(path string) (Config, error) { return cfg.Load(path) }

// ServerOptions configures an embedded HTTP server.
type ServerOptions struct {
	Engine   *Engine
	Auth     *AuthService
	Roster   *Roster
	Catalog  *Catalog
	BasePath string
	Metrics  bool
}

// NewHTTPServer starts an HTTP server exposing the API on addr.
func NewHTTPServer(addr string, opts ServerOptions) *http.Server {
	return server.NewServer(addr, server.Options{
		Manager:  opts.Engine.mgr,
		Ledger:   opts.Engine.ledger,
		Auth:     opts.Auth,
		Roster:   opts.Roster,
		Catalog:  opts.Catalog,
		BasePath: opts.BasePath,
		Metrics:  opts.Metrics,
	})
}

// NewHTTPHandler returns the API as an http.Handler for mounting in an
// existing server or mux.
func NewHTTPHandler(opts ServerOptions) http.Handler {
	r := server.NewRouter(server.Options{
		Manager:  opts.Engine.mgr,
		Ledger:   opts.Engine.ledger,
		Auth:     opts.Auth,
		Roster:   opts.Roster,
		Catalog:  opts.Catalog,
		BasePath: opts.BasePath,
		Metrics:  opts.Metrics,
	})
	return r.Handler()
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the
// default registry. It blocks in the caller goroutine.
func ServeMetrics(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
