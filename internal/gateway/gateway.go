// Package gateway reconciles the in-memory Item Store with the local
// SQLite document and the optional remote mirror.
//
// Policy, in order of authority: the in-memory state always wins for the
// current session; the local store is written synchronously on every
// mutation; the remote mirror is last-write-wins with no merge, no retry
// and no ordering guarantee between pushes fired in quick succession.
package gateway

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sewardrichard/cost2class/internal/core"
	applog "github.com/sewardrichard/cost2class/internal/log"
	"github.com/sewardrichard/cost2class/internal/remote"
)

// LocalStore is the synchronous key-value side of the gateway.
type LocalStore interface {
	LoadState(ctx context.Context) (core.BudgetState, bool, error)
	SaveState(ctx context.Context, state core.BudgetState) error
}

// Notice kinds for the transient sync status shown to the user.
const (
	NoticeNone     = ""
	NoticeSynced   = "synced"
	NoticeAdopted  = "updated-from-remote"
	NoticeFailed   = "sync-failed"
	NoticeConflict = "sync-conflict"
)

// Status is the last sync outcome. It is advisory only; nothing blocks on
// it.
type Status struct {
	Kind    string
	Message string
	At      time.Time
}

type Gateway struct {
	local  LocalStore
	mirror remote.DocumentStore // nil when sync is not configured
	log    *applog.Logger

	mu     sync.Mutex
	sha    string // last known remote revision token
	status Status

	inflight sync.WaitGroup
}

func New(local LocalStore, mirror remote.DocumentStore, logger *applog.Logger) *Gateway {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	return &Gateway{
		local:  local,
		mirror: mirror,
		log:    logger.WithComponent("gateway"),
	}
}

// Load reads the local store. A read failure is logged and an empty state
// returned; the session starts fresh rather than crashing.
func (g *Gateway) Load(ctx context.Context) (core.BudgetState, bool) {
	state, ok, err := g.local.LoadState(ctx)
	if err != nil {
		g.log.ErrorContext(ctx, "Local load failed, starting empty", "error", err)
		return core.NewBudgetState(), false
	}
	return state, ok
}

// ReconcileRemote fetches the remote document. On success the remote
// unconditionally overwrites the local store (last-fetch-wins; local-only
// edits made since Load are discarded) and the returned state should be
// adopted. On any failure local state stands and the outcome is recorded
// as a transient notice only.
func (g *Gateway) ReconcileRemote(ctx context.Context) (core.BudgetState, bool) {
	mirror := g.currentMirror()
	if mirror == nil {
		return core.BudgetState{}, false
	}

	doc, err := mirror.Fetch(ctx)
	if err != nil {
		if errors.Is(err, remote.ErrNoDocument) {
			g.log.InfoContext(ctx, "No remote document yet, keeping local state")
			return core.BudgetState{}, false
		}
		g.log.WarnContext(ctx, "Remote fetch failed, keeping local state", "error", err)
		g.setStatus(NoticeFailed, "Could not reach the remote store")
		return core.BudgetState{}, false
	}

	g.mu.Lock()
	g.sha = doc.SHA
	g.mu.Unlock()

	if err := g.local.SaveState(ctx, doc.State); err != nil {
		g.log.ErrorContext(ctx, "Mirroring remote state locally failed", "error", err)
	}
	g.setStatus(NoticeAdopted, "Updated from cloud")
	g.log.InfoContext(ctx, "Adopted remote budget document", "sha", doc.SHA)
	return doc.State, true
}

// Save flushes a snapshot after a mutation: local write first, then an
// asynchronous fire-and-forget remote push. Local failures are logged and
// swallowed so the mutation flow is never blocked; the in-memory state
// remains the authority for the session.
func (g *Gateway) Save(ctx context.Context, state core.BudgetState) {
	if err := g.local.SaveState(ctx, state); err != nil {
		g.log.ErrorContext(ctx, "Local save failed, in-memory state kept", "error", err)
	}

	if g.currentMirror() == nil {
		return
	}

	g.inflight.Add(1)
	go func() {
		defer g.inflight.Done()
		// Detach from the request context: the push outlives the handler.
		pctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		g.push(pctx, state)
	}()
}

// push writes the full document to the mirror. When no revision token is
// cached it fetches the current one first. A rejected token surfaces as a
// conflict notice; the local copy stays the only durable one.
func (g *Gateway) push(ctx context.Context, state core.BudgetState) {
	g.mu.Lock()
	sha := g.sha
	mirror := g.mirror
	g.mu.Unlock()
	if mirror == nil {
		return
	}

	if sha == "" {
		doc, err := mirror.Fetch(ctx)
		switch {
		case err == nil:
			sha = doc.SHA
		case errors.Is(err, remote.ErrNoDocument):
			// First push creates the file.
		default:
			g.log.WarnContext(ctx, "Revision token fetch failed", "error", err)
			g.setStatus(NoticeFailed, "Sync failed")
			return
		}
	}

	newSHA, err := mirror.Put(ctx, state, sha)
	if err != nil {
		if errors.Is(err, remote.ErrConflict) {
			g.log.WarnContext(ctx, "Remote write rejected, stale revision token", "sha", sha)
			g.setStatus(NoticeConflict, "Cloud copy changed elsewhere, sync skipped")
			return
		}
		g.log.WarnContext(ctx, "Remote push failed", "error", err)
		g.setStatus(NoticeFailed, "Sync failed")
		return
	}

	g.mu.Lock()
	g.sha = newSHA
	g.mu.Unlock()
	g.setStatus(NoticeSynced, "Synced to cloud")
}

// SetMirror swaps the remote mirror, e.g. after the sync settings change.
// The cached revision token is discarded; the next push fetches a fresh
// one. A nil mirror disables remote sync.
func (g *Gateway) SetMirror(m remote.DocumentStore) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.mirror = m
	g.sha = ""
}

// TestConnection verifies the mirror credentials by fetching the document.
// A missing document counts as success: the repository is reachable.
func (g *Gateway) TestConnection(ctx context.Context) error {
	mirror := g.currentMirror()
	if mirror == nil {
		return remote.ErrNotConfigured
	}
	_, err := mirror.Fetch(ctx)
	if err != nil && !errors.Is(err, remote.ErrNoDocument) {
		return err
	}
	return nil
}

// Status returns the last sync outcome and clears it, so notices render
// once and auto-dismiss.
func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	s := g.status
	g.status = Status{}
	return s
}

// Wait blocks until in-flight remote pushes finish. Used on shutdown and
// in tests; normal operation never waits.
func (g *Gateway) Wait() {
	g.inflight.Wait()
}

func (g *Gateway) currentMirror() remote.DocumentStore {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mirror
}

func (g *Gateway) setStatus(kind, msg string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status = Status{Kind: kind, Message: msg, At: time.Now()}
}
