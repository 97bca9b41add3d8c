package client

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/catalog"
	"github.com/taktline/takt/internal/clock"
	mng "github.com/taktline/takt/internal/manager"
	"github.com/taktline/takt/internal/presence"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/server"
	"github.com/taktline/takt/internal/store"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func startTestServer(t *testing.T) (*httptest.Server, *clock.Fake, *mng.Manager) {
	t.Helper()
	clk := clock.NewFake(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	st := store.NewMemory()
	m := mng.NewManager(st, nil, clk)
	l := presence.NewLedger(st, nil, clk)
	m.SetLedger(l)
	l.SetLifecycle(m)
	t.Cleanup(m.Shutdown)

	roster := auth.NewRoster()
	hash, err := auth.HashPassword("pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	roster.Put(auth.User{ID: "sup-1", Username: "luis", Credential: "SUP-BADGE", PasswordHash: hash, Role: auth.RoleSupervisor, Active: true})
	svc := auth.NewService(roster, auth.ServiceOptions{Secret: "test-secret", Clock: clk})

	cat := catalog.New()
	cat.SeedTexts(map[string][]string{"pause": {"machine jam", "material wait"}})

	r := server.NewRouter(server.Options{Manager: m, Ledger: l, Auth: svc, Roster: roster, Catalog: cat})
	srv := httptest.NewServer(r.Handler())
	t.Cleanup(srv.Close)
	return srv, clk, m
}

func TestClientRoundTrip(t *testing.T) {
	srv, clk, _ := startTestServer(t)
	ctx := context.Background()

	c := New(Config{BaseURL: srv.URL})
	if err := c.Login(ctx, "luis", "pass"); err != nil {
		t.Fatalf("login: %v", err)
	}

	spec := process.Spec{ID: "pack-1", Name: "packaging line 1", Kind: process.KindPackaging, TargetUnits: 1000, RatePerWorkerPerMinute: 10}
	if snap, err := c.Register(ctx, spec); err != nil || snap.ID != "pack-1" {
		t.Fatalf("register: %v (%+v)", err, snap)
	}

	if _, err := c.CheckIn(ctx, "w1", "pack-1", store.RoleCore); err != nil {
		t.Fatalf("check in: %v", err)
	}
	if err := c.Start(ctx, "pack-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	clk.Advance(60 * time.Minute)
	st, err := c.Process(ctx, "pack-1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Snapshot.State != process.StateRunning {
		t.Fatalf("state = %s, want running", st.Snapshot.State)
	}
	if got := st.Estimate.CompletedUnits; got != 600 {
		t.Fatalf("completed = %v, want 600", got)
	}
	if st.CoreWorkers != 1 {
		t.Fatalf("core workers = %d, want 1", st.CoreWorkers)
	}

	all, err := c.Processes(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 1 || all[0].Snapshot.ID != "pack-1" {
		t.Fatalf("list = %+v", all)
	}

	if err := c.Pause(ctx, "pack-1", "machine jam"); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := c.Resume(ctx, "pack-1"); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := c.Adjust(ctx, "pack-1", 25); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	crew, err := c.Crew(ctx, "pack-1")
	if err != nil {
		t.Fatalf("crew: %v", err)
	}
	if len(crew) != 1 || crew[0].WorkerID != "w1" {
		t.Fatalf("crew = %+v", crew)
	}

	texts, err := c.Justifications(ctx, "pause")
	if err != nil {
		t.Fatalf("justifications: %v", err)
	}
	if len(texts) != 2 {
		t.Fatalf("texts = %v", texts)
	}

	if err := c.Finish(ctx, "pack-1"); err != nil {
		t.Fatalf("finish: %v", err)
	}
	st, err = c.Process(ctx, "pack-1")
	if err != nil {
		t.Fatalf("status after finish: %v", err)
	}
	if st.Snapshot.State != process.StateFinished {
		t.Fatalf("state = %s, want finished", st.Snapshot.State)
	}
	if st.CoreWorkers != 0 {
		t.Fatalf("crew after finish = %d, want 0", st.CoreWorkers)
	}
}

func TestClientBulkExit(t *testing.T) {
	srv, _, _ := startTestServer(t)
	ctx := context.Background()

	c := New(Config{BaseURL: srv.URL})
	if err := c.Login(ctx, "luis", "pass"); err != nil {
		t.Fatalf("login: %v", err)
	}
	spec := process.Spec{ID: "asm-1", Name: "assembly cell", Kind: process.KindOther}
	if _, err := c.Register(ctx, spec); err != nil {
		t.Fatalf("register: %v", err)
	}
	for _, w := range []string{"w1", "w2"} {
		if _, err := c.CheckIn(ctx, w, "asm-1", store.RoleCore); err != nil {
			t.Fatalf("check in %s: %v", w, err)
		}
	}

	res, err := c.BulkExit(ctx, "asm-1", "SUP-BADGE", "end of shift")
	if err != nil {
		t.Fatalf("bulk exit: %v", err)
	}
	if res.CheckedOut != 2 {
		t.Fatalf("checked out = %d, want 2", res.CheckedOut)
	}

	crew, err := c.Crew(ctx, "asm-1")
	if err != nil {
		t.Fatalf("crew: %v", err)
	}
	if len(crew) != 0 {
		t.Fatalf("crew after bulk exit = %+v", crew)
	}
}

func TestClientErrorsSurfaceBody(t *testing.T) {
	srv, _, _ := startTestServer(t)
	ctx := context.Background()

	c := New(Config{BaseURL: srv.URL})
	if err := c.Login(ctx, "luis", "nope"); err == nil {
		t.Fatal("expected login failure")
	}
	if err := c.Start(ctx, "ghost"); err == nil {
		t.Fatal("expected unauthorized error without token")
	}
}
