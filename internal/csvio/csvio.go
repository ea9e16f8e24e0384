// Package csvio implements the per-category CSV export/import format.
//
// The format is deliberately naive: raw comma-separated values with no
// quoting or escaping, matching the files users already have. Names
// containing commas corrupt rows; that is unsupported, not worked around.
// The Budget column carries the computed annualized amount on export and
// is ignored on import, since budgets are never stored.
package csvio

import (
	"fmt"
	"io"
	"strings"

	"github.com/sewardrichard/cost2class/internal/core"
)

const (
	goodsHeader = "Name,Quantity,Price,Budget,Completed"
	feesHeader  = "Name,Period,Price,Budget,Completed"
	tasksHeader = "Name,Deadline,Completed"
)

// Export writes one category of the state as CSV.
func Export(w io.Writer, cat core.Category, state core.BudgetState) error {
	switch cat {
	case core.Fees:
		return ExportFees(w, state.Fees)
	case core.Uniforms, core.Stationery:
		return ExportGoods(w, *stateGoods(&state, cat))
	case core.AdminTasks:
		return ExportTasks(w, state.AdminTasks)
	}
	return core.ErrUnknownCategory
}

// ExportGoods writes uniform/stationery rows.
func ExportGoods(w io.Writer, items []core.GoodsItem) error {
	lines := []string{goodsHeader}
	for _, it := range items {
		qty := it.Quantity
		if qty < 1 {
			qty = 1
		}
		lines = append(lines, fmt.Sprintf("%s,%d,%s,%s,%t",
			it.Name, qty, it.Price, it.Annualized(), it.Completed))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// ExportFees writes fee rows.
func ExportFees(w io.Writer, items []core.FeeItem) error {
	lines := []string{feesHeader}
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s,%s,%s,%s,%t",
			it.Name, it.Period, it.Price, it.Annualized(), it.Completed))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// ExportTasks writes admin task rows.
func ExportTasks(w io.Writer, items []core.Task) error {
	lines := []string{tasksHeader}
	for _, it := range items {
		lines = append(lines, fmt.Sprintf("%s,%s,%t", it.Name, it.Deadline, it.Completed))
	}
	_, err := io.WriteString(w, strings.Join(lines, "\n"))
	return err
}

// ImportGoods parses goods rows, skipping the header. Malformed numeric
// fields coerce to safe defaults rather than failing the row. IDs are left
// zero; the store assigns them on append.
func ImportGoods(r io.Reader) ([]core.GoodsItem, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	var out []core.GoodsItem
	for _, cols := range rows {
		item := core.GoodsItem{Name: col(cols, 0), Quantity: 1}
		item.Quantity = core.CoerceQuantity(col(cols, 1))
		item.Price = core.CoerceAmount(col(cols, 2))
		// col 3 is the computed budget; recomputed, never stored
		item.Completed = col(cols, 4) == "true"
		out = append(out, item)
	}
	return out, nil
}

// ImportFees parses fee rows, skipping the header.
func ImportFees(r io.Reader) ([]core.FeeItem, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	var out []core.FeeItem
	for _, cols := range rows {
		out = append(out, core.FeeItem{
			Name:      col(cols, 0),
			Period:    core.ParsePeriod(col(cols, 1)),
			Price:     core.CoerceAmount(col(cols, 2)),
			Completed: col(cols, 4) == "true",
		})
	}
	return out, nil
}

// ImportTasks parses admin task rows, skipping the header.
func ImportTasks(r io.Reader) ([]core.Task, error) {
	rows, err := readRows(r)
	if err != nil {
		return nil, err
	}
	var out []core.Task
	for _, cols := range rows {
		out = append(out, core.Task{
			Name:      col(cols, 0),
			Deadline:  col(cols, 1),
			Completed: col(cols, 2) == "true",
		})
	}
	return out, nil
}

// readRows splits naively on newlines and commas, dropping the header and
// blank lines.
func readRows(r io.Reader) ([][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	lines := strings.Split(strings.ReplaceAll(string(raw), "\r\n", "\n"), "\n")
	var rows [][]string
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, strings.Split(line, ","))
	}
	return rows, nil
}

func col(cols []string, i int) string {
	if i >= len(cols) {
		return ""
	}
	return strings.TrimSpace(cols[i])
}

func stateGoods(s *core.BudgetState, cat core.Category) *[]core.GoodsItem {
	if cat == core.Uniforms {
		return &s.Uniforms
	}
	return &s.Stationery
}
