package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/journal"
	"github.com/taktline/takt/internal/process"
	"github.com/taktline/takt/internal/store"
)

type stubResolver struct {
	identities map[string]auth.Identity
	inactive   map[string]bool
}

func (s *stubResolver) Resolve(credential string) (auth.Identity, error) {
	if s.inactive[credential] {
		return auth.Identity{}, &auth.AuthzError{Reason: auth.DenyInactive}
	}
	id, ok := s.identities[credential]
	if !ok {
		return auth.Identity{}, &auth.AuthzError{Reason: auth.DenyCredentialNotFound}
	}
	return id, nil
}

func bulkFixture(t *testing.T) (*fixture, *stubResolver) {
	t.Helper()
	f := newFixture(t, nil)
	f.mustRegister(t, packagingSpec("p1"))
	f.mustRegister(t, packagingSpec("p2"))
	for _, w := range []string{"w1", "w2"} {
		f.mustCheckIn(t, w, "p1", store.RoleCore)
	}
	f.mustCheckIn(t, "w3", "p1", store.RoleSupport)
	f.mustCheckIn(t, "w9", "p2", store.RoleCore)
	if err := f.m.Start(context.Background(), "p1", "sup"); err != nil {
		t.Fatalf("start: %v", err)
	}
	r := &stubResolver{
		identities: map[string]auth.Identity{
			"SUP-BADGE":  {UserID: "sup-1", Username: "luis", Role: auth.RoleSupervisor, Active: true},
			"W1-BADGE":   {UserID: "w1", Username: "ana", Role: auth.RoleOperator, Active: true},
			"OPER-BADGE": {UserID: "op-9", Username: "rui", Role: auth.RoleOperator, Active: true},
		},
		inactive: map[string]bool{"OLD-BADGE": true},
	}
	return f, r
}

func TestBulkExitSupervisor(t *testing.T) {
	ctx := context.Background()
	f, r := bulkFixture(t)

	res, err := f.m.BulkExit(ctx, "p1", "SUP-BADGE", "end of shift", r)
	if err != nil {
		t.Fatalf("bulk exit: %v", err)
	}
	if res.CheckedOut != 3 || res.Authorizer != "luis" {
		t.Fatalf("unexpected result: %+v", res)
	}

	events := f.sink.ofType(journal.EventBulkExit)
	if len(events) != 1 {
		t.Fatalf("bulk_exit events = %d, want exactly 1 aggregate event", len(events))
	}
	if events[0].Count != 3 || events[0].Justification != "end of shift" {
		t.Fatalf("bad aggregate event: %+v", events[0])
	}
	if len(f.sink.ofType(journal.EventCheckOut)) != 0 {
		t.Fatal("per-worker checkout events emitted for a bulk exit")
	}

	st, _ := f.m.Status(ctx, "p1")
	if st.Crew != 0 {
		t.Fatalf("active records remain: %d", st.Crew)
	}
	// draining the crew auto-pauses the running line
	if st.Snapshot.State != process.StatePaused || !st.Snapshot.AutoPaused {
		t.Fatalf("line not auto-paused after bulk exit: %+v", st.Snapshot)
	}
	// the other line's crew is untouched
	if st2, _ := f.m.Status(ctx, "p2"); st2.Crew != 1 {
		t.Fatalf("p2 crew = %d, want 1", st2.Crew)
	}
}

func TestBulkExitOwnPresenceAuthorizes(t *testing.T) {
	ctx := context.Background()
	f, r := bulkFixture(t)

	// w1 is an operator, but actively present on p1
	res, err := f.m.BulkExit(ctx, "p1", "W1-BADGE", "fire drill", r)
	if err != nil {
		t.Fatalf("bulk exit: %v", err)
	}
	if res.CheckedOut != 3 {
		t.Fatalf("checked out %d, want 3", res.CheckedOut)
	}
}

func TestBulkExitFallbackAnyPresence(t *testing.T) {
	ctx := context.Background()
	f, r := bulkFixture(t)

	// unresolvable credential, but "w9" is active on p2: the fallback
	// accepts it even for p1
	res, err := f.m.BulkExit(ctx, "p1", "w9", "evacuation", r)
	if err != nil {
		t.Fatalf("fallback bulk exit: %v", err)
	}
	if res.CheckedOut != 3 || res.Authorizer != "w9" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestBulkExitDenied(t *testing.T) {
	ctx := context.Background()
	f, r := bulkFixture(t)

	var ae *auth.AuthzError
	if _, err := f.m.BulkExit(ctx, "p1", "GHOST", "x", r); !errors.As(err, &ae) || ae.Reason != auth.DenyCredentialNotFound {
		t.Fatalf("want credential_not_found, got %v", err)
	}
	if _, err := f.m.BulkExit(ctx, "p1", "OLD-BADGE", "x", r); !errors.As(err, &ae) || ae.Reason != auth.DenyInactive {
		t.Fatalf("want inactive, got %v", err)
	}
	// resolved operator with no presence anywhere
	if _, err := f.m.BulkExit(ctx, "p1", "OPER-BADGE", "x", r); !errors.As(err, &ae) || ae.Reason != auth.DenyNotAuthorized {
		t.Fatalf("want not_authorized, got %v", err)
	}
	if _, err := f.m.BulkExit(ctx, "p1", "SUP-BADGE", "", r); err == nil {
		t.Fatal("empty justification accepted")
	}

	// every denial left the ledger unchanged
	st, _ := f.m.Status(ctx, "p1")
	if st.Crew != 3 {
		t.Fatalf("crew = %d, want 3", st.Crew)
	}
}
