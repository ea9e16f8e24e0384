// Package store owns the in-memory BudgetState and every mutation applied
// to it. All operations are synchronous and leave the state consistent
// before returning; the persistence gateway only mirrors what lives here.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/sewardrichard/cost2class/internal/core"
)

const (
	FilterAll       Filter = "all"
	FilterPending   Filter = "pending"
	FilterCompleted Filter = "completed"
)

// Filter selects which items of a category the view layer receives.
type Filter string

// ParseFilter normalizes a filter value, falling back to all.
func ParseFilter(s string) Filter {
	switch Filter(s) {
	case FilterPending, FilterCompleted:
		return Filter(s)
	default:
		return FilterAll
	}
}

// ItemFields is a partial update for goods and fee items. Nil fields are
// left untouched, so a partial edit never resets completion state.
// Fields outside the category's variant are ignored.
type ItemFields struct {
	Name      *string
	Shop      *string
	Quantity  *int
	Price     *core.Money
	Period    *core.Period
	Completed *bool
}

// TaskFields is a partial update for admin tasks.
type TaskFields struct {
	Name      *string
	Deadline  *string
	Completed *bool
}

// Store is the single mutable owner of BudgetState and the per-category
// filter state. Filters persist across category switches.
type Store struct {
	mu      sync.Mutex
	state   core.BudgetState
	filters map[core.Category]Filter
	lastID  int64
}

// New returns an empty store.
func New() *Store {
	return &Store{
		state:   core.NewBudgetState(),
		filters: map[core.Category]Filter{},
	}
}

// Adopt replaces the whole state, e.g. after a remote fetch wins. The
// incoming document is normalized so older shapes load cleanly.
func (s *Store) Adopt(state core.BudgetState) {
	state.Normalize()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.lastID = maxID(state)
}

// Snapshot returns a deep copy of the current state for persistence.
func (s *Store) Snapshot() core.BudgetState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// Reset clears every category.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = core.NewBudgetState()
}

// nextID returns a time-derived id with a monotonic floor, so ids stay
// unique even when two items are created inside the same millisecond.
func (s *Store) nextID() int64 {
	id := time.Now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// AddItem creates a line item in a goods or fee category with defaults
// applied (completed=false, quantity=1, period=once-off) and returns its id.
func (s *Store) AddItem(cat core.Category, f ItemFields) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cat {
	case core.Fees:
		item := core.FeeItem{ID: s.nextID(), Period: core.OnceOff}
		applyFee(&item, f)
		s.state.Fees = append(s.state.Fees, item)
		return item.ID, nil
	case core.Uniforms, core.Stationery:
		item := core.GoodsItem{ID: s.nextID(), Quantity: 1}
		applyGoods(&item, f)
		list := s.goodsRef(cat)
		*list = append(*list, item)
		return item.ID, nil
	}
	return 0, core.ErrUnknownCategory
}

// UpdateItem merges the supplied fields into an existing item.
func (s *Store) UpdateItem(cat core.Category, id int64, f ItemFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cat {
	case core.Fees:
		for i := range s.state.Fees {
			if s.state.Fees[i].ID == id {
				applyFee(&s.state.Fees[i], f)
				return nil
			}
		}
	case core.Uniforms, core.Stationery:
		list := s.goodsRef(cat)
		for i := range *list {
			if (*list)[i].ID == id {
				applyGoods(&(*list)[i], f)
				return nil
			}
		}
	default:
		return core.ErrUnknownCategory
	}
	return core.ErrNotFound
}

// DeleteItem removes an item by id, preserving the order of the rest.
func (s *Store) DeleteItem(cat core.Category, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cat {
	case core.Fees:
		for i := range s.state.Fees {
			if s.state.Fees[i].ID == id {
				s.state.Fees = append(s.state.Fees[:i], s.state.Fees[i+1:]...)
				return nil
			}
		}
	case core.Uniforms, core.Stationery:
		list := s.goodsRef(cat)
		for i := range *list {
			if (*list)[i].ID == id {
				*list = append((*list)[:i], (*list)[i+1:]...)
				return nil
			}
		}
	default:
		return core.ErrUnknownCategory
	}
	return core.ErrNotFound
}

// ToggleCompleted flips the completion flag and returns the new value.
// No other field is touched.
func (s *Store) ToggleCompleted(cat core.Category, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cat {
	case core.Fees:
		for i := range s.state.Fees {
			if s.state.Fees[i].ID == id {
				s.state.Fees[i].Completed = !s.state.Fees[i].Completed
				return s.state.Fees[i].Completed, nil
			}
		}
	case core.Uniforms, core.Stationery:
		list := s.goodsRef(cat)
		for i := range *list {
			if (*list)[i].ID == id {
				(*list)[i].Completed = !(*list)[i].Completed
				return (*list)[i].Completed, nil
			}
		}
	default:
		return false, core.ErrUnknownCategory
	}
	return false, core.ErrNotFound
}

// AddTask creates an admin task and returns its id.
func (s *Store) AddTask(f TaskFields) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := core.Task{ID: s.nextID()}
	applyTask(&task, f)
	s.state.AdminTasks = append(s.state.AdminTasks, task)
	return task.ID
}

// UpdateTask merges the supplied fields into an existing task.
func (s *Store) UpdateTask(id int64, f TaskFields) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.AdminTasks {
		if s.state.AdminTasks[i].ID == id {
			applyTask(&s.state.AdminTasks[i], f)
			return nil
		}
	}
	return core.ErrNotFound
}

// DeleteTask removes a task by id.
func (s *Store) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.AdminTasks {
		if s.state.AdminTasks[i].ID == id {
			s.state.AdminTasks = append(s.state.AdminTasks[:i], s.state.AdminTasks[i+1:]...)
			return nil
		}
	}
	return core.ErrNotFound
}

// ToggleTaskCompleted flips a task's completion flag.
func (s *Store) ToggleTaskCompleted(id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.state.AdminTasks {
		if s.state.AdminTasks[i].ID == id {
			s.state.AdminTasks[i].Completed = !s.state.AdminTasks[i].Completed
			return s.state.AdminTasks[i].Completed, nil
		}
	}
	return false, core.ErrNotFound
}

// SetFilter records the active filter for a category.
func (s *Store) SetFilter(cat core.Category, f Filter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters[cat] = f
}

// FilterFor returns the active filter for a category, defaulting to all.
func (s *Store) FilterFor(cat core.Category) Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.filters[cat]; ok {
		return f
	}
	return FilterAll
}

// VisibleFees returns the fee items matching the category's filter.
func (s *Store) VisibleFees() []core.FeeItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.filters[core.Fees]
	out := make([]core.FeeItem, 0, len(s.state.Fees))
	for _, it := range s.state.Fees {
		if matches(f, it.Completed) {
			out = append(out, it)
		}
	}
	return out
}

// VisibleGoods returns the goods items of a category matching its filter.
func (s *Store) VisibleGoods(cat core.Category) []core.GoodsItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	f := s.filters[cat]
	src := s.state.Goods(cat)
	out := make([]core.GoodsItem, 0, len(src))
	for _, it := range src {
		if matches(f, it.Completed) {
			out = append(out, it)
		}
	}
	return out
}

// TasksByDeadline returns a sorted view of the admin tasks: deadline
// ascending, tasks without a deadline last. The sort is stable and never
// touches the stored insertion order.
func (s *Store) TasksByDeadline() []core.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]core.Task, len(s.state.AdminTasks))
	copy(out, s.state.AdminTasks)
	sort.SliceStable(out, func(i, j int) bool {
		ti, iok := out[i].DeadlineTime()
		tj, jok := out[j].DeadlineTime()
		if iok != jok {
			return iok
		}
		if !iok {
			return false
		}
		return ti.Before(tj)
	})
	return out
}

// Overview computes the dashboard summary from the current state.
func (s *Store) Overview() core.Overview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Summarize(s.state)
}

func (s *Store) goodsRef(cat core.Category) *[]core.GoodsItem {
	if cat == core.Uniforms {
		return &s.state.Uniforms
	}
	return &s.state.Stationery
}

func matches(f Filter, completed bool) bool {
	switch f {
	case FilterPending:
		return !completed
	case FilterCompleted:
		return completed
	default:
		return true
	}
}

func applyGoods(item *core.GoodsItem, f ItemFields) {
	if f.Name != nil {
		item.Name = *f.Name
	}
	if f.Shop != nil {
		item.Shop = *f.Shop
	}
	if f.Quantity != nil {
		item.Quantity = *f.Quantity
		if item.Quantity < 1 {
			item.Quantity = 1
		}
	}
	if f.Price != nil {
		item.Price = *f.Price
	}
	if f.Completed != nil {
		item.Completed = *f.Completed
	}
}

func applyFee(item *core.FeeItem, f ItemFields) {
	if f.Name != nil {
		item.Name = *f.Name
	}
	if f.Price != nil {
		item.Price = *f.Price
	}
	if f.Period != nil {
		item.Period = *f.Period
	}
	if f.Completed != nil {
		item.Completed = *f.Completed
	}
}

func applyTask(task *core.Task, f TaskFields) {
	if f.Name != nil {
		task.Name = *f.Name
	}
	if f.Deadline != nil {
		task.Deadline = *f.Deadline
	}
	if f.Completed != nil {
		task.Completed = *f.Completed
	}
}

func maxID(state core.BudgetState) int64 {
	var max int64
	for _, it := range state.Fees {
		if it.ID > max {
			max = it.ID
		}
	}
	for _, it := range state.Uniforms {
		if it.ID > max {
			max = it.ID
		}
	}
	for _, it := range state.Stationery {
		if it.ID > max {
			max = it.ID
		}
	}
	for _, t := range state.AdminTasks {
		if t.ID > max {
			max = t.ID
		}
	}
	return max
}
