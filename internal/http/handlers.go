package http

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sewardrichard/cost2class/internal/core"
	"github.com/sewardrichard/cost2class/internal/csvio"
	"github.com/sewardrichard/cost2class/internal/gateway"
	"github.com/sewardrichard/cost2class/internal/store"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if s.templates == nil {
		s.logger.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	data := struct {
		Year int
	}{
		Year: time.Now().Year(),
	}
	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// overviewRow is one category line of the dashboard partial.
type overviewRow struct {
	Label     string
	Budget    string
	Spent     string
	Remaining string
	Overspent bool
	Percent   int
}

func toRow(label string, t core.Totals) overviewRow {
	return overviewRow{
		Label:     label,
		Budget:    t.Budget.Display(),
		Spent:     t.Spent.Display(),
		Remaining: t.Remaining.Display(),
		Overspent: t.Remaining.Cents < 0,
		Percent:   t.PercentSpent(),
	}
}

// handleOverview renders the dashboard partial. Totals are recomputed from
// the live state on every request.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	ov := s.store.Overview()

	data := struct {
		Rows      []overviewRow
		Grand     overviewRow
		OpenTasks int
	}{
		Rows: []overviewRow{
			toRow("School fees", ov.Fees),
			toRow("Uniforms", ov.Uniforms),
			toRow("Stationery", ov.Stationery),
		},
		Grand:     toRow("Total", ov.Grand),
		OpenTasks: ov.OpenTasks,
	}
	if err := s.templates.ExecuteTemplate(w, "overview.html", data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "overview.html")
		_, _ = w.Write([]byte(`<div class="placeholder">Error rendering overview</div>`))
	}
}

func (s *Server) handleItemList(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	cat, err := core.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Unknown category</div>`))
		return
	}
	s.renderItemList(w, r, cat)
}

func (s *Server) renderItemList(w http.ResponseWriter, r *http.Request, cat core.Category) {
	filter := s.store.FilterFor(cat)

	switch cat {
	case core.Fees:
		type feeView struct {
			core.FeeItem
			PriceDisplay  string
			AnnualDisplay string
		}
		data := struct {
			Category core.Category
			Filter   store.Filter
			Items    []feeView
		}{Category: cat, Filter: filter}
		for _, it := range s.store.VisibleFees() {
			data.Items = append(data.Items, feeView{
				FeeItem:       it,
				PriceDisplay:  it.Price.Display(),
				AnnualDisplay: it.Annualized().Display(),
			})
		}
		s.execute(w, r, "fees_list.html", data)

	case core.Uniforms, core.Stationery:
		type goodsView struct {
			core.GoodsItem
			PriceDisplay string
			LineDisplay  string
		}
		data := struct {
			Category core.Category
			Filter   store.Filter
			Items    []goodsView
		}{Category: cat, Filter: filter}
		for _, it := range s.store.VisibleGoods(cat) {
			data.Items = append(data.Items, goodsView{
				GoodsItem:    it,
				PriceDisplay: it.Price.Display(),
				LineDisplay:  it.Annualized().Display(),
			})
		}
		s.execute(w, r, "goods_list.html", data)

	case core.AdminTasks:
		data := struct {
			Category core.Category
			Filter   store.Filter
			Items    []core.Task
		}{Category: cat, Filter: filter}
		for _, t := range s.store.TasksByDeadline() {
			switch filter {
			case store.FilterPending:
				if t.Completed {
					continue
				}
			case store.FilterCompleted:
				if !t.Completed {
					continue
				}
			}
			data.Items = append(data.Items, t)
		}
		s.execute(w, r, "tasks_list.html", data)
	}
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, name string, data any) {
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.ErrorContext(r.Context(), "Template execution error", "error", err, "template", name)
		_, _ = w.Write([]byte(`<div class="error">Error rendering view</div>`))
	}
}

// persist flushes the current state through the gateway and tells the
// client to refresh the overview and the sync notice.
func (s *Server) persist(ctx context.Context, w http.ResponseWriter) {
	s.gw.Save(ctx, s.store.Snapshot())
	w.Header().Set("HX-Trigger", `{"budget:changed": true}`)
}

func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.mutationSetup(w, r)
	if !ok {
		return
	}

	name := sanitizeInput(r.Form.Get("name"))
	if name == "" {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Name is required</div>`))
		return
	}

	if cat == core.AdminTasks {
		deadline := strings.TrimSpace(r.Form.Get("deadline"))
		s.store.AddTask(store.TaskFields{Name: &name, Deadline: &deadline})
	} else {
		fields := store.ItemFields{Name: &name}
		if v := sanitizeInput(r.Form.Get("shop")); v != "" {
			fields.Shop = &v
		}
		if v := strings.TrimSpace(r.Form.Get("quantity")); v != "" {
			qty := core.CoerceQuantity(v)
			fields.Quantity = &qty
		}
		if v := strings.TrimSpace(r.Form.Get("price")); v != "" {
			cents, err := core.ParseDecimalToCents(v)
			if err != nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`<div class="error">Invalid amount</div>`))
				return
			}
			price := core.Money{Cents: cents}
			fields.Price = &price
		}
		if v := strings.TrimSpace(r.Form.Get("period")); v != "" {
			period := core.ParsePeriod(v)
			fields.Period = &period
		}
		if _, err := s.store.AddItem(cat, fields); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`<div class="error">Unknown category</div>`))
			return
		}
	}

	s.persist(r.Context(), w)
	s.renderItemList(w, r, cat)
}

func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.mutationSetup(w, r)
	if !ok {
		return
	}
	id, ok := s.formID(w, r)
	if !ok {
		return
	}

	var err error
	if cat == core.AdminTasks {
		fields := store.TaskFields{}
		if _, present := r.Form["name"]; present {
			v := sanitizeInput(r.Form.Get("name"))
			fields.Name = &v
		}
		if _, present := r.Form["deadline"]; present {
			v := strings.TrimSpace(r.Form.Get("deadline"))
			fields.Deadline = &v
		}
		err = s.store.UpdateTask(id, fields)
	} else {
		fields := store.ItemFields{}
		if _, present := r.Form["name"]; present {
			v := sanitizeInput(r.Form.Get("name"))
			fields.Name = &v
		}
		if _, present := r.Form["shop"]; present {
			v := sanitizeInput(r.Form.Get("shop"))
			fields.Shop = &v
		}
		if _, present := r.Form["quantity"]; present {
			qty := core.CoerceQuantity(r.Form.Get("quantity"))
			fields.Quantity = &qty
		}
		if _, present := r.Form["price"]; present {
			cents, perr := core.ParseDecimalToCents(strings.TrimSpace(r.Form.Get("price")))
			if perr != nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = w.Write([]byte(`<div class="error">Invalid amount</div>`))
				return
			}
			price := core.Money{Cents: cents}
			fields.Price = &price
		}
		if _, present := r.Form["period"]; present {
			period := core.ParsePeriod(r.Form.Get("period"))
			fields.Period = &period
		}
		err = s.store.UpdateItem(cat, id, fields)
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.persist(r.Context(), w)
	s.renderItemList(w, r, cat)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.mutationSetup(w, r)
	if !ok {
		return
	}
	id, ok := s.formID(w, r)
	if !ok {
		return
	}

	var err error
	if cat == core.AdminTasks {
		err = s.store.DeleteTask(id)
	} else {
		err = s.store.DeleteItem(cat, id)
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.persist(r.Context(), w)
	s.renderItemList(w, r, cat)
}

func (s *Server) handleToggleItem(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.mutationSetup(w, r)
	if !ok {
		return
	}
	id, ok := s.formID(w, r)
	if !ok {
		return
	}

	var err error
	if cat == core.AdminTasks {
		_, err = s.store.ToggleTaskCompleted(id)
	} else {
		_, err = s.store.ToggleCompleted(cat, id)
	}
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.persist(r.Context(), w)
	s.renderItemList(w, r, cat)
}

func (s *Server) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	cat, ok := s.mutationSetup(w, r)
	if !ok {
		return
	}
	s.store.SetFilter(cat, store.ParseFilter(r.Form.Get("filter")))
	s.renderItemList(w, r, cat)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	s.store.Reset()
	s.persist(r.Context(), w)
	w.Header().Set("HX-Refresh", "true")
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	cat, err := core.ParseCategory(r.URL.Query().Get("category"))
	if err != nil {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=cost2class-%s.csv", cat))
	if err := csvio.Export(w, cat, s.store.Snapshot()); err != nil {
		s.logger.ErrorContext(r.Context(), "CSV export failed", "error", err, "category", cat)
	}
}

func (s *Server) handleImportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseMultipartForm(1 << 20); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid upload</div>`))
		return
	}
	cat, err := core.ParseCategory(r.Form.Get("category"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Unknown category</div>`))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">No file uploaded</div>`))
		return
	}
	defer file.Close()

	var count int
	switch cat {
	case core.Fees:
		items, ierr := csvio.ImportFees(file)
		if ierr != nil {
			err = ierr
			break
		}
		for _, it := range items {
			name, period, price, completed := it.Name, it.Period, it.Price, it.Completed
			_, _ = s.store.AddItem(cat, store.ItemFields{Name: &name, Period: &period, Price: &price, Completed: &completed})
		}
		count = len(items)
	case core.Uniforms, core.Stationery:
		items, ierr := csvio.ImportGoods(file)
		if ierr != nil {
			err = ierr
			break
		}
		for _, it := range items {
			name, qty, price, completed := it.Name, it.Quantity, it.Price, it.Completed
			_, _ = s.store.AddItem(cat, store.ItemFields{Name: &name, Quantity: &qty, Price: &price, Completed: &completed})
		}
		count = len(items)
	case core.AdminTasks:
		tasks, ierr := csvio.ImportTasks(file)
		if ierr != nil {
			err = ierr
			break
		}
		for _, t := range tasks {
			name, deadline, completed := t.Name, t.Deadline, t.Completed
			s.store.AddTask(store.TaskFields{Name: &name, Deadline: &deadline, Completed: &completed})
		}
		count = len(tasks)
	}
	if err != nil {
		s.logger.ErrorContext(r.Context(), "CSV import failed", "error", err, "category", cat)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`<div class="error">Could not read the CSV file</div>`))
		return
	}

	s.logger.InfoContext(r.Context(), "Imported CSV rows", "category", cat, "count", count)
	s.persist(r.Context(), w)
	s.renderItemList(w, r, cat)
}

func (s *Server) handleSyncSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		cfg, _, err := s.syncCfg.LoadSyncConfig(r.Context())
		if err != nil {
			s.logger.ErrorContext(r.Context(), "Load sync config failed", "error", err)
		}
		data := struct {
			Owner      string
			Repo       string
			Path       string
			HasToken   bool
			Configured bool
		}{
			Owner:      cfg.Owner,
			Repo:       cfg.Repo,
			Path:       cfg.Path,
			HasToken:   cfg.Token != "",
			Configured: cfg.Configured(),
		}
		s.execute(w, r, "sync_settings.html", data)

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`<div class="error">Invalid form</div>`))
			return
		}
		cfg := core.SyncConfig{
			Owner: sanitizeInput(r.Form.Get("owner")),
			Repo:  sanitizeInput(r.Form.Get("repo")),
			Token: strings.TrimSpace(r.Form.Get("token")),
			Path:  sanitizeInput(r.Form.Get("path")),
		}
		// An empty token field keeps the stored one so edits to owner or
		// repo do not force re-entering the secret.
		if cfg.Token == "" {
			if prev, ok, _ := s.syncCfg.LoadSyncConfig(r.Context()); ok {
				cfg.Token = prev.Token
			}
		}
		if err := s.syncCfg.SaveSyncConfig(r.Context(), cfg); err != nil {
			s.logger.ErrorContext(r.Context(), "Save sync config failed", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`<div class="error">Could not save sync settings</div>`))
			return
		}

		if cfg.Configured() && s.newMirror != nil {
			s.gw.SetMirror(s.newMirror(cfg))
		} else {
			s.gw.SetMirror(nil)
		}
		s.logger.InfoContext(r.Context(), "Sync settings updated", "owner", cfg.Owner, "repo", cfg.Repo, "enabled", cfg.Configured())
		_, _ = w.Write([]byte(`<div class="success">Sync settings saved</div>`))

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSyncTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	if err := s.gw.TestConnection(ctx); err != nil {
		_, _ = w.Write([]byte(`<div class="error">Connection failed: ` + template.HTMLEscapeString(err.Error()) + `</div>`))
		return
	}
	_, _ = w.Write([]byte(`<div class="success">Connection OK</div>`))
}

// handleNotice renders the transient sync status toast. Reading the status
// clears it, so each notice renders exactly once.
func (s *Server) handleNotice(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	st := s.gw.Status()
	if st.Kind == gateway.NoticeNone {
		w.WriteHeader(http.StatusOK)
		return
	}
	class := "notice"
	if st.Kind == gateway.NoticeFailed || st.Kind == gateway.NoticeConflict {
		class = "notice notice-error"
	}
	_, _ = w.Write([]byte(`<div class="` + class + `">` + template.HTMLEscapeString(st.Message) + `</div>`))
}

// mutationSetup enforces POST, parses the form and resolves the category.
func (s *Server) mutationSetup(w http.ResponseWriter, r *http.Request) (core.Category, bool) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return "", false
	}
	if err := r.ParseForm(); err != nil {
		s.logger.ErrorContext(r.Context(), "Parse form error", "error", err, "method", r.Method, "url", r.URL.Path)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid form</div>`))
		return "", false
	}
	cat, err := core.ParseCategory(r.Form.Get("category"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Unknown category</div>`))
		return "", false
	}
	return cat, true
}

func (s *Server) formID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Form.Get("id")), 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`<div class="error">Invalid item id</div>`))
		return 0, false
	}
	return id, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if err == core.ErrNotFound {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`<div class="error">Item not found</div>`))
		return
	}
	w.WriteHeader(http.StatusBadRequest)
	_, _ = w.Write([]byte(`<div class="error">Unknown category</div>`))
}

// sanitizeInput removes potentially dangerous characters and trims whitespace
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
