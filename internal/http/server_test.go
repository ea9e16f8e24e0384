package http

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/sewardrichard/cost2class/internal/core"
	"github.com/sewardrichard/cost2class/internal/gateway"
	"github.com/sewardrichard/cost2class/internal/remote"
	remmem "github.com/sewardrichard/cost2class/internal/remote/memory"
	"github.com/sewardrichard/cost2class/internal/store"
)

// localStub satisfies gateway.LocalStore without touching disk.
type localStub struct {
	state core.BudgetState
	has   bool
}

func (l *localStub) LoadState(context.Context) (core.BudgetState, bool, error) {
	return l.state.Clone(), l.has, nil
}

func (l *localStub) SaveState(_ context.Context, state core.BudgetState) error {
	l.state = state.Clone()
	l.has = true
	return nil
}

// syncCfgStub satisfies SyncConfigStore in memory.
type syncCfgStub struct {
	cfg core.SyncConfig
	has bool
}

func (s *syncCfgStub) LoadSyncConfig(context.Context) (core.SyncConfig, bool, error) {
	return s.cfg, s.has, nil
}

func (s *syncCfgStub) SaveSyncConfig(_ context.Context, cfg core.SyncConfig) error {
	s.cfg = cfg
	s.has = true
	return nil
}

func newTestServer(t *testing.T) (*Server, *store.Store, *gateway.Gateway) {
	t.Helper()
	st := store.New()
	gw := gateway.New(&localStub{}, nil, nil)
	factory := func(core.SyncConfig) remote.DocumentStore { return remmem.New() }
	srv := NewServer(":0", st, gw, &syncCfgStub{}, factory, nil)
	if srv.templates == nil {
		t.Fatal("embedded templates failed to parse")
	}
	return srv, st, gw
}

func postForm(srv *Server, path string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func get(srv *Server, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	srv, _, _ := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		if rr := get(srv, path); rr.Code != http.StatusOK {
			t.Errorf("%s = %d, want 200", path, rr.Code)
		}
	}
}

func TestIndexRenders(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := get(srv, "/")
	if rr.Code != http.StatusOK {
		t.Fatalf("index = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Cost2Class") {
		t.Error("index page missing title")
	}
}

func TestCreateItemRendersList(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rr := postForm(srv, "/items", url.Values{
		"category": {"stationery"},
		"name":     {"Pen"},
		"quantity": {"2"},
		"price":    {"5"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create = %d, body %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "Pen") {
		t.Error("response list missing created item")
	}
	if rr.Header().Get("HX-Trigger") == "" {
		t.Error("mutation should trigger a client refresh")
	}

	items := st.VisibleGoods(core.Stationery)
	if len(items) != 1 || items[0].Price.Cents != 500 || items[0].Quantity != 2 {
		t.Errorf("stored item = %+v", items)
	}
}

func TestCreateItemRejectsBadAmount(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rr := postForm(srv, "/items", url.Values{
		"category": {"fees"},
		"name":     {"Tuition"},
		"price":    {"not-a-number"},
	})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("bad amount = %d, want 422", rr.Code)
	}
	if len(st.VisibleFees()) != 0 {
		t.Error("invalid item must not be stored")
	}
}

func TestCreateItemUnknownCategory(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := postForm(srv, "/items", url.Values{"category": {"petrol"}, "name": {"x"}})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("unknown category = %d, want 400", rr.Code)
	}
}

func TestToggleAffectsOverview(t *testing.T) {
	srv, st, _ := newTestServer(t)

	id, err := st.AddItem(core.Uniforms, store.ItemFields{})
	if err != nil {
		t.Fatal(err)
	}
	st.UpdateItem(core.Uniforms, id, store.ItemFields{Price: &core.Money{Cents: 45000}})

	before := get(srv, "/ui/overview").Body.String()
	if !strings.Contains(before, "R450.00") {
		t.Fatalf("overview missing budget: %s", before)
	}

	rr := postForm(srv, "/items/toggle", url.Values{
		"category": {"uniforms"},
		"id":       {strconv.FormatInt(id, 10)},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("toggle = %d", rr.Code)
	}

	ov := st.Overview()
	if ov.Uniforms.Spent.Cents != 45000 {
		t.Errorf("spent after toggle = %d, want 45000", ov.Uniforms.Spent.Cents)
	}
}

func TestDeleteMissingItemIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := postForm(srv, "/items/delete", url.Values{
		"category": {"fees"},
		"id":       {"12345"},
	})
	if rr.Code != http.StatusNotFound {
		t.Errorf("delete missing = %d, want 404", rr.Code)
	}
}

func TestFilterPersistsAcrossRequests(t *testing.T) {
	srv, st, _ := newTestServer(t)

	done := true
	name := "Shirt"
	id, _ := st.AddItem(core.Uniforms, store.ItemFields{Name: &name})
	st.UpdateItem(core.Uniforms, id, store.ItemFields{Completed: &done})

	rr := postForm(srv, "/filter", url.Values{"category": {"uniforms"}, "filter": {"pending"}})
	if rr.Code != http.StatusOK {
		t.Fatalf("filter = %d", rr.Code)
	}
	if strings.Contains(rr.Body.String(), "Shirt") {
		t.Error("pending filter should hide completed item")
	}

	// A later request for the same category keeps the filter.
	rr = get(srv, "/ui/items?category=uniforms")
	if strings.Contains(rr.Body.String(), "Shirt") {
		t.Error("filter did not persist across requests")
	}
	if st.FilterFor(core.Uniforms) != store.FilterPending {
		t.Errorf("stored filter = %q", st.FilterFor(core.Uniforms))
	}
}

func TestTaskLifecycleViaItemsEndpoints(t *testing.T) {
	srv, st, _ := newTestServer(t)

	rr := postForm(srv, "/items", url.Values{
		"category": {"adminTasks"},
		"name":     {"Enrolment forms"},
		"deadline": {"2026-01-15"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("create task = %d", rr.Code)
	}
	tasks := st.TasksByDeadline()
	if len(tasks) != 1 || tasks[0].Deadline != "2026-01-15" {
		t.Fatalf("tasks = %+v", tasks)
	}

	id := strconv.FormatInt(tasks[0].ID, 10)
	if rr := postForm(srv, "/items/toggle", url.Values{"category": {"adminTasks"}, "id": {id}}); rr.Code != http.StatusOK {
		t.Fatalf("toggle task = %d", rr.Code)
	}
	if ov := st.Overview(); ov.OpenTasks != 0 {
		t.Errorf("open tasks = %d, want 0", ov.OpenTasks)
	}
}

func TestExportCSV(t *testing.T) {
	srv, st, _ := newTestServer(t)

	name := "Pen"
	qty := 2
	price := core.Money{Cents: 500}
	done := true
	st.AddItem(core.Stationery, store.ItemFields{Name: &name, Quantity: &qty, Price: &price, Completed: &done})

	rr := get(srv, "/export?category=stationery")
	if rr.Code != http.StatusOK {
		t.Fatalf("export = %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Errorf("content type = %q", ct)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "cost2class-stationery.csv") {
		t.Errorf("content disposition = %q", cd)
	}
	want := "Name,Quantity,Price,Budget,Completed\nPen,2,5,10,true"
	if rr.Body.String() != want {
		t.Errorf("export body:\n got %q\nwant %q", rr.Body.String(), want)
	}
}

func TestImportCSVAppends(t *testing.T) {
	srv, st, _ := newTestServer(t)

	existing := "Ruler"
	st.AddItem(core.Stationery, store.ItemFields{Name: &existing})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("category", "stationery")
	fw, err := mw.CreateFormFile("file", "items.csv")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write([]byte("Name,Quantity,Price,Budget,Completed\nPen,2,5,10,true\nGlue,1,12.50,12.50,false"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rr := httptest.NewRecorder()
	srv.Server.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("import = %d, body %s", rr.Code, rr.Body.String())
	}

	items := st.VisibleGoods(core.Stationery)
	if len(items) != 3 {
		t.Fatalf("after import %d items, want 3 (import appends)", len(items))
	}
	if items[1].Name != "Pen" || items[1].Price.Cents != 500 || !items[1].Completed {
		t.Errorf("imported item = %+v", items[1])
	}
}

func TestSyncSettingsRoundTrip(t *testing.T) {
	st := store.New()
	gw := gateway.New(&localStub{}, nil, nil)
	cfgStore := &syncCfgStub{}
	mirror := remmem.New()
	factory := func(core.SyncConfig) remote.DocumentStore { return mirror }
	srv := NewServer(":0", st, gw, cfgStore, factory, nil)

	rr := postForm(srv, "/settings/sync", url.Values{
		"owner": {"sewardrichard"},
		"repo":  {"budget-data"},
		"token": {"ghp_test"},
		"path":  {"data.json"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("save settings = %d", rr.Code)
	}
	if !cfgStore.cfg.Configured() || cfgStore.cfg.Owner != "sewardrichard" {
		t.Errorf("saved config = %+v", cfgStore.cfg)
	}

	// The gateway now pushes through the new mirror.
	name := "Tuition"
	st.AddItem(core.Fees, store.ItemFields{Name: &name})
	postForm(srv, "/items/toggle", url.Values{"category": {"fees"}, "id": {strconv.FormatInt(st.VisibleFees()[0].ID, 10)}})
	gw.Wait()
	if doc, err := mirror.Fetch(context.Background()); err != nil || len(doc.State.Fees) != 1 {
		t.Errorf("mirror after save: doc=%+v err=%v", doc, err)
	}

	// Settings form shows the saved repo without leaking the token.
	body := get(srv, "/settings/sync").Body.String()
	if !strings.Contains(body, "budget-data") {
		t.Error("settings form missing saved repo")
	}
	if strings.Contains(body, "ghp_test") {
		t.Error("settings form must not echo the token")
	}
}

func TestSyncSettingsKeepsTokenWhenBlank(t *testing.T) {
	srv, _, _ := newTestServer(t)
	cfgStore := srv.syncCfg.(*syncCfgStub)
	cfgStore.cfg = core.SyncConfig{Owner: "a", Repo: "b", Token: "secret"}
	cfgStore.has = true

	rr := postForm(srv, "/settings/sync", url.Values{
		"owner": {"a"},
		"repo":  {"renamed"},
		"token": {""},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("save = %d", rr.Code)
	}
	if cfgStore.cfg.Token != "secret" || cfgStore.cfg.Repo != "renamed" {
		t.Errorf("config after blank-token save = %+v", cfgStore.cfg)
	}
}

func TestSyncTestWithoutMirror(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rr := postForm(srv, "/settings/sync/test", url.Values{})
	if rr.Code != http.StatusOK {
		t.Fatalf("test = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "failed") {
		t.Error("test without a configured mirror should report failure")
	}
}

func TestResetClearsEverything(t *testing.T) {
	srv, st, _ := newTestServer(t)
	name := "Pen"
	st.AddItem(core.Stationery, store.ItemFields{Name: &name})
	st.AddTask(store.TaskFields{Name: &name})

	rr := postForm(srv, "/reset", url.Values{})
	if rr.Code != http.StatusOK {
		t.Fatalf("reset = %d", rr.Code)
	}
	snap := st.Snapshot()
	if len(snap.Stationery) != 0 || len(snap.AdminTasks) != 0 {
		t.Errorf("state after reset = %+v", snap)
	}
}
