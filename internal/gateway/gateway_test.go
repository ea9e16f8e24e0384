package gateway

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/sewardrichard/cost2class/internal/core"
	remmem "github.com/sewardrichard/cost2class/internal/remote/memory"
)

// localStub is an in-memory LocalStore with optional failure injection.
type localStub struct {
	state    core.BudgetState
	hasState bool
	failLoad bool
	failSave bool
	saves    int
}

func (l *localStub) LoadState(context.Context) (core.BudgetState, bool, error) {
	if l.failLoad {
		return core.NewBudgetState(), false, errors.New("disk error")
	}
	return l.state.Clone(), l.hasState, nil
}

func (l *localStub) SaveState(_ context.Context, state core.BudgetState) error {
	if l.failSave {
		return errors.New("disk full")
	}
	l.state = state.Clone()
	l.hasState = true
	l.saves++
	return nil
}

func sampleState() core.BudgetState {
	s := core.NewBudgetState()
	s.Fees = append(s.Fees, core.FeeItem{ID: 1, Name: "Tuition", Price: core.Money{Cents: 100000}, Period: core.Monthly})
	return s
}

func TestSaveThenLoadRoundTrip(t *testing.T) {
	local := &localStub{}
	g := New(local, nil, nil)
	ctx := context.Background()

	want := sampleState()
	g.Save(ctx, want)

	got, ok := g.Load(ctx)
	if !ok {
		t.Fatal("expected saved state to load")
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
}

func TestLoadSurvivesLocalFailure(t *testing.T) {
	g := New(&localStub{failLoad: true}, nil, nil)

	state, ok := g.Load(context.Background())
	if ok {
		t.Error("failed load should report no state")
	}
	if state.Fees == nil {
		t.Error("failed load should still return a usable empty state")
	}
}

func TestSaveSurvivesLocalFailure(t *testing.T) {
	local := &localStub{failSave: true}
	g := New(local, nil, nil)

	// Must not panic or block; in-memory state stays the authority.
	g.Save(context.Background(), sampleState())
}

func TestReconcileRemoteWins(t *testing.T) {
	local := &localStub{state: sampleState(), hasState: true}
	mirror := remmem.New()
	remoteState := core.NewBudgetState()
	remoteState.Stationery = append(remoteState.Stationery, core.GoodsItem{ID: 7, Name: "Pens", Quantity: 2, Price: core.Money{Cents: 500}})
	mirror.Seed(remoteState)

	g := New(local, mirror, nil)
	got, ok := g.ReconcileRemote(context.Background())
	if !ok {
		t.Fatal("expected remote state to be adopted")
	}
	if len(got.Stationery) != 1 || len(got.Fees) != 0 {
		t.Errorf("adopted state = %+v", got)
	}
	// Remote unconditionally overwrites the local store.
	if len(local.state.Stationery) != 1 {
		t.Errorf("local store not overwritten: %+v", local.state)
	}
	if s := g.Status(); s.Kind != NoticeAdopted {
		t.Errorf("status = %q, want %q", s.Kind, NoticeAdopted)
	}
}

func TestReconcileFetchFailureKeepsLocal(t *testing.T) {
	local := &localStub{state: sampleState(), hasState: true}
	mirror := remmem.New()
	mirror.FailGet = true

	g := New(local, mirror, nil)
	if _, ok := g.ReconcileRemote(context.Background()); ok {
		t.Error("failed fetch must not adopt anything")
	}

	got, ok := g.Load(context.Background())
	if !ok || len(got.Fees) != 1 {
		t.Errorf("local state should stand: ok=%v state=%+v", ok, got)
	}
	if s := g.Status(); s.Kind != NoticeFailed {
		t.Errorf("status = %q, want %q", s.Kind, NoticeFailed)
	}
}

func TestReconcileNoDocumentIsQuiet(t *testing.T) {
	g := New(&localStub{}, remmem.New(), nil)
	if _, ok := g.ReconcileRemote(context.Background()); ok {
		t.Error("missing remote document must not adopt anything")
	}
	if s := g.Status(); s.Kind != NoticeNone {
		t.Errorf("missing document should not raise a notice, got %q", s.Kind)
	}
}

func TestSavePushesToRemote(t *testing.T) {
	local := &localStub{}
	mirror := remmem.New()
	g := New(local, mirror, nil)

	g.Save(context.Background(), sampleState())
	g.Wait()

	doc, err := mirror.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch after push: %v", err)
	}
	if len(doc.State.Fees) != 1 {
		t.Errorf("pushed state = %+v", doc.State)
	}
	if s := g.Status(); s.Kind != NoticeSynced {
		t.Errorf("status = %q, want %q", s.Kind, NoticeSynced)
	}
}

func TestPushFetchesTokenWhenUncached(t *testing.T) {
	mirror := remmem.New()
	mirror.Seed(core.NewBudgetState()) // existing remote doc, token not cached locally

	g := New(&localStub{}, mirror, nil)
	g.Save(context.Background(), sampleState())
	g.Wait()

	doc, err := mirror.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(doc.State.Fees) != 1 {
		t.Error("push with fetched token did not land")
	}
}

func TestPushConflictIsSurfacedNotRetried(t *testing.T) {
	mirror := remmem.New()
	firstSHA := mirror.Seed(core.NewBudgetState())

	g := New(&localStub{}, mirror, nil)
	// Adopt the current token, then invalidate it behind the gateway's back.
	g.ReconcileRemote(context.Background())
	mirror.Seed(sampleState())

	g.Save(context.Background(), core.NewBudgetState())
	g.Wait()

	if s := g.Status(); s.Kind != NoticeConflict {
		t.Errorf("status = %q, want %q", s.Kind, NoticeConflict)
	}
	// The remote keeps the concurrent writer's version; no retry happened.
	doc, _ := mirror.Fetch(context.Background())
	if doc.SHA == firstSHA {
		t.Error("remote document unexpectedly rolled back")
	}
	if len(doc.State.Fees) != 1 {
		t.Error("conflicting push overwrote the remote")
	}
}

func TestSetMirrorSwapsTargetAndDropsToken(t *testing.T) {
	old := remmem.New()
	old.Seed(core.NewBudgetState())

	g := New(&localStub{}, old, nil)
	g.ReconcileRemote(context.Background()) // caches old mirror's token

	replacement := remmem.New()
	g.SetMirror(replacement)

	g.Save(context.Background(), sampleState())
	g.Wait()

	if doc, err := replacement.Fetch(context.Background()); err != nil || len(doc.State.Fees) != 1 {
		t.Errorf("push did not land on replacement mirror: doc=%+v err=%v", doc, err)
	}
	if s := g.Status(); s.Kind != NoticeSynced {
		t.Errorf("status = %q, want %q", s.Kind, NoticeSynced)
	}

	g.SetMirror(nil)
	if err := g.TestConnection(context.Background()); err == nil {
		t.Error("nil mirror should fail the connection test")
	}
}

func TestStatusReadsOnce(t *testing.T) {
	g := New(&localStub{}, nil, nil)
	g.setStatus(NoticeSynced, "ok")

	if s := g.Status(); s.Kind != NoticeSynced {
		t.Fatalf("first read = %q", s.Kind)
	}
	if s := g.Status(); s.Kind != NoticeNone {
		t.Errorf("second read = %q, want cleared", s.Kind)
	}
}

func TestTestConnection(t *testing.T) {
	mirror := remmem.New()
	g := New(&localStub{}, mirror, nil)

	// Reachable but empty repository counts as success.
	if err := g.TestConnection(context.Background()); err != nil {
		t.Errorf("TestConnection on empty mirror: %v", err)
	}

	mirror.FailGet = true
	if err := g.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection should fail when the mirror is unreachable")
	}

	unconfigured := New(&localStub{}, nil, nil)
	if err := unconfigured.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection without a mirror should fail")
	}
}
