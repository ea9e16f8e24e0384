package core

import (
	"errors"
	"strings"
	"time"
)

const (
	OnceOff  Period = "once-off"
	Monthly  Period = "monthly"
	Termly   Period = "termly"
	Annually Period = "annually"
)

const (
	Fees       Category = "fees"
	Uniforms   Category = "uniforms"
	Stationery Category = "stationery"
	AdminTasks Category = "adminTasks"
)

type (
	// Period is how often a fee recurs. Anything outside the known set
	// normalizes as a one-off payment.
	Period string

	// Category identifies one of the four expense groupings.
	Category string

	// GoodsItem is a purchasable line item (uniforms, stationery).
	GoodsItem struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Shop      string `json:"shop,omitempty"`
		Quantity  int    `json:"quantity"`
		Price     Money  `json:"price"`
		Completed bool   `json:"completed"`
	}

	// FeeItem is a school fee with a payment period.
	FeeItem struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Price     Money  `json:"price"`
		Period    Period `json:"period"`
		Completed bool   `json:"completed"`
	}

	// Task is an administrative to-do. Tasks carry no monetary value.
	Task struct {
		ID        int64  `json:"id"`
		Name      string `json:"name"`
		Deadline  string `json:"deadline,omitempty"` // YYYY-MM-DD, may be empty
		Completed bool   `json:"completed"`
	}

	// BudgetState maps each category to its ordered list of line items.
	// List order is insertion order; sorting is a presentation concern.
	BudgetState struct {
		Fees       []FeeItem   `json:"fees"`
		Uniforms   []GoodsItem `json:"uniforms"`
		Stationery []GoodsItem `json:"stationery"`
		AdminTasks []Task      `json:"adminTasks"`
	}

	// SyncConfig holds the remote mirror credentials. An empty Token
	// disables remote sync entirely.
	SyncConfig struct {
		Owner string `json:"owner"`
		Repo  string `json:"repo"`
		Token string `json:"token"`
		Path  string `json:"path,omitempty"` // document path in the repo, defaults to data.json
	}
)

var (
	ErrNotFound        = errors.New("item not found")
	ErrUnknownCategory = errors.New("unknown category")
	ErrInvalidAmount   = errors.New("invalid amount")
)

// ParseCategory maps user-facing category names, including the legacy
// aliases "uniform" and "admin", to their canonical values.
func ParseCategory(s string) (Category, error) {
	switch strings.TrimSpace(s) {
	case "fees":
		return Fees, nil
	case "uniforms", "uniform":
		return Uniforms, nil
	case "stationery":
		return Stationery, nil
	case "adminTasks", "admin":
		return AdminTasks, nil
	}
	return "", ErrUnknownCategory
}

// GoodsCategories lists the categories whose items are GoodsItem.
func GoodsCategories() []Category {
	return []Category{Uniforms, Stationery}
}

// ParsePeriod normalizes a period string, accepting the "per-term" alias.
// Unknown values fall back to once-off so that normalization never fails.
func ParsePeriod(s string) Period {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly":
		return Monthly
	case "termly", "per-term":
		return Termly
	case "annually":
		return Annually
	default:
		return OnceOff
	}
}

// Multiplier converts a period into its annual payment count.
func (p Period) Multiplier() int64 {
	switch p {
	case Monthly:
		return 12
	case Termly:
		return 4
	default:
		return 1
	}
}

// Annualized returns the yearly cost of the fee.
func (f FeeItem) Annualized() Money {
	return Money{Cents: f.Price.Cents * f.Period.Multiplier()}
}

// Done reports completion for aggregation.
func (f FeeItem) Done() bool { return f.Completed }

// Annualized returns price times quantity, treating quantity below one as one.
func (g GoodsItem) Annualized() Money {
	qty := int64(g.Quantity)
	if qty < 1 {
		qty = 1
	}
	return Money{Cents: g.Price.Cents * qty}
}

// Done reports completion for aggregation.
func (g GoodsItem) Done() bool { return g.Completed }

// DeadlineTime parses the task deadline. Empty or malformed deadlines
// return a zero time and false.
func (t Task) DeadlineTime() (time.Time, bool) {
	if strings.TrimSpace(t.Deadline) == "" {
		return time.Time{}, false
	}
	ts, err := time.Parse("2006-01-02", t.Deadline)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// NewBudgetState returns an empty state with all categories present.
func NewBudgetState() BudgetState {
	return BudgetState{
		Fees:       []FeeItem{},
		Uniforms:   []GoodsItem{},
		Stationery: []GoodsItem{},
		AdminTasks: []Task{},
	}
}

// Normalize fills in nil category lists and defaults on items loaded from
// documents written by older versions: missing quantity becomes 1 and
// missing fee periods become once-off.
func (s *BudgetState) Normalize() {
	if s.Fees == nil {
		s.Fees = []FeeItem{}
	}
	if s.Uniforms == nil {
		s.Uniforms = []GoodsItem{}
	}
	if s.Stationery == nil {
		s.Stationery = []GoodsItem{}
	}
	if s.AdminTasks == nil {
		s.AdminTasks = []Task{}
	}
	for i := range s.Fees {
		if s.Fees[i].Period == "" {
			s.Fees[i].Period = OnceOff
		}
	}
	for _, list := range [][]GoodsItem{s.Uniforms, s.Stationery} {
		for i := range list {
			if list[i].Quantity < 1 {
				list[i].Quantity = 1
			}
		}
	}
}

// Clone returns a deep copy of the state.
func (s BudgetState) Clone() BudgetState {
	out := BudgetState{
		Fees:       make([]FeeItem, len(s.Fees)),
		Uniforms:   make([]GoodsItem, len(s.Uniforms)),
		Stationery: make([]GoodsItem, len(s.Stationery)),
		AdminTasks: make([]Task, len(s.AdminTasks)),
	}
	copy(out.Fees, s.Fees)
	copy(out.Uniforms, s.Uniforms)
	copy(out.Stationery, s.Stationery)
	copy(out.AdminTasks, s.AdminTasks)
	return out
}

// Goods returns the goods list for a category, or nil for non-goods
// categories.
func (s *BudgetState) Goods(cat Category) []GoodsItem {
	switch cat {
	case Uniforms:
		return s.Uniforms
	case Stationery:
		return s.Stationery
	}
	return nil
}

// Configured reports whether remote sync is enabled.
func (c SyncConfig) Configured() bool {
	return strings.TrimSpace(c.Token) != ""
}
