package tools

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/atelierlabs/concierge/pkg/adapters/data"
	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/ports"
)

// RegisterBuiltins wires the reference implementations of the guided
// workflow tools. The loader is used to persist derived datasets; stage
// transitions remain the router's job.
func RegisterBuiltins(inv *Invoker, loader ports.DataLoader) {
	inv.Register("upload_data", uploadData)
	inv.Register("list_columns", listColumns)
	inv.Register("show_summary", showSummary)
	inv.Register("compute_indicators", computeIndicators(loader))
	inv.Register("run_risk_model", runRiskModel(loader))
	inv.Register("plan_distribution", planDistribution)
}

func uploadData(ctx context.Context, call domain.ToolCall, ds *domain.Dataset) (domain.ToolResult, error) {
	if ds == nil {
		return domain.ToolResult{
			IsError: true,
			Error:   "no dataset received; upload a CSV file first",
		}, nil
	}
	return domain.ToolResult{
		Result: fmt.Sprintf("Dataset registered with %d columns: %s.",
			len(ds.Columns), strings.Join(ds.Columns, ", ")),
	}, nil
}

func listColumns(ctx context.Context, call domain.ToolCall, ds *domain.Dataset) (domain.ToolResult, error) {
	if ds == nil {
		return domain.ToolResult{IsError: true, Error: "no dataset for this session"}, nil
	}
	rows := make([][]any, 0, len(ds.Columns))
	for _, c := range ds.Columns {
		rows = append(rows, []any{c})
	}
	return domain.ToolResult{
		Result: fmt.Sprintf("The active dataset %q has %d columns.", ds.Name, len(ds.Columns)),
		Tables: []domain.Table{{Name: "columns", Columns: []string{"column"}, Rows: rows}},
	}, nil
}

func showSummary(ctx context.Context, call domain.ToolCall, ds *domain.Dataset) (domain.ToolResult, error) {
	columns, rows, err := readData(ds)
	if err != nil {
		return domain.ToolResult{IsError: true, Error: err.Error()}, nil
	}

	var out [][]any
	for i, col := range columns {
		vals := numericColumn(rows, i)
		if len(vals) == 0 {
			continue
		}
		out = append(out, []any{
			col,
			len(vals),
			round4(mean(vals)),
			round4(minOf(vals)),
			round4(maxOf(vals)),
		})
	}
	if len(out) == 0 {
		return domain.ToolResult{Result: "The dataset has no numeric columns to summarize."}, nil
	}
	return domain.ToolResult{
		Result: fmt.Sprintf("Summary of %d numeric columns over %d rows.", len(out), len(rows)),
		Tables: []domain.Table{{
			Name:    "summary",
			Columns: []string{"column", "count", "mean", "min", "max"},
			Rows:    out,
		}},
	}, nil
}

func computeIndicators(loader ports.DataLoader) Func {
	return func(ctx context.Context, call domain.ToolCall, ds *domain.Dataset) (domain.ToolResult, error) {
		columns, rows, err := readData(ds)
		if err != nil {
			return domain.ToolResult{IsError: true, Error: err.Error()}, nil
		}

		colName, _ := call.Args["column"].(string)
		method, _ := call.Args["method"].(string)

		idx, err := findColumn(columns, colName)
		if err != nil {
			return domain.ToolResult{IsError: true, Error: err.Error()}, nil
		}
		vals := numericColumn(rows, idx)
		if len(vals) == 0 {
			return domain.ToolResult{
				IsError: true,
				Error:   fmt.Sprintf("column %q has no numeric values", columns[idx]),
			}, nil
		}

		derived, err := deriveIndicator(columns, rows, idx, method)
		if err != nil {
			return domain.ToolResult{IsError: true, Error: err.Error()}, nil
		}

		newCol := fmt.Sprintf("%s_%s", columns[idx], method)
		outCols := append(append([]string{}, columns...), newCol)
		outRows := make([][]string, len(rows))
		for i, row := range rows {
			outRows[i] = append(append([]string{}, row...), formatFloat(derived[i]))
		}

		if loader != nil {
			if _, err := loader.SaveDerived(ctx, call.Session, "indicators", outCols, outRows); err != nil {
				return domain.ToolResult{IsError: true, Error: fmt.Sprintf("store indicators: %v", err)}, nil
			}
		}

		return domain.ToolResult{
			Result: fmt.Sprintf("Computed %s over %q into new column %q.", method, columns[idx], newCol),
			Tables: []domain.Table{preview(outCols, outRows, 5)},
		}, nil
	}
}

func deriveIndicator(columns []string, rows [][]string, idx int, method string) ([]float64, error) {
	raw := make([]float64, len(rows))
	valid := make([]float64, 0, len(rows))
	for i, row := range rows {
		v, ok := cell(row, idx)
		if !ok {
			raw[i] = math.NaN()
			continue
		}
		raw[i] = v
		valid = append(valid, v)
	}

	out := make([]float64, len(rows))
	switch method {
	case "per_capita":
		popIdx, err := findColumn(columns, "population")
		if err != nil {
			return nil, fmt.Errorf("per_capita needs a population column: %w", err)
		}
		for i, row := range rows {
			pop, ok := cell(row, popIdx)
			if !ok || pop == 0 || math.IsNaN(raw[i]) {
				out[i] = 0
				continue
			}
			out[i] = raw[i] / pop
		}
	case "zscore":
		m, sd := mean(valid), stddev(valid)
		for i := range rows {
			if math.IsNaN(raw[i]) || sd == 0 {
				out[i] = 0
				continue
			}
			out[i] = (raw[i] - m) / sd
		}
	case "minmax":
		lo, hi := minOf(valid), maxOf(valid)
		span := hi - lo
		for i := range rows {
			if math.IsNaN(raw[i]) || span == 0 {
				out[i] = 0
				continue
			}
			out[i] = (raw[i] - lo) / span
		}
	default:
		return nil, fmt.Errorf("unknown indicator method %q", method)
	}
	return out, nil
}

func runRiskModel(loader ports.DataLoader) Func {
	return func(ctx context.Context, call domain.ToolCall, ds *domain.Dataset) (domain.ToolResult, error) {
		columns, rows, err := readData(ds)
		if err != nil {
			return domain.ToolResult{IsError: true, Error: err.Error()}, nil
		}

		model, _ := call.Args["model"].(string)
		threshold, ok := toFloat(call.Args["threshold"])
		if !ok {
			threshold = 0.5
		}

		scores, err := riskScores(rows, columns, model)
		if err != nil {
			return domain.ToolResult{IsError: true, Error: err.Error()}, nil
		}

		outCols := append(append([]string{}, columns...), "risk", "risk_class")
		outRows := make([][]string, len(rows))
		high := 0
		for i, row := range rows {
			class := "low"
			if scores[i] >= threshold {
				class = "high"
				high++
			}
			outRows[i] = append(append([]string{}, row...), formatFloat(scores[i]), class)
		}

		if loader != nil {
			if _, err := loader.SaveDerived(ctx, call.Session, "risk", outCols, outRows); err != nil {
				return domain.ToolResult{IsError: true, Error: fmt.Sprintf("store risk scores: %v", err)}, nil
			}
		}

		return domain.ToolResult{
			Result: fmt.Sprintf("Scored %d rows with the %s model: %d high risk at threshold %.2f.",
				len(rows), model, high, threshold),
			Tables: []domain.Table{preview(outCols, outRows, 5)},
		}, nil
	}
}

// riskScores normalizes every numeric column to [0,1] and averages them.
// The logistic variant sharpens the average around the midpoint.
func riskScores(rows [][]string, columns []string, model string) ([]float64, error) {
	type normCol struct {
		idx      int
		lo, span float64
	}
	var numeric []normCol
	for i := range columns {
		vals := numericColumn(rows, i)
		if len(vals) < len(rows)/2 || len(vals) == 0 {
			continue
		}
		lo, hi := minOf(vals), maxOf(vals)
		numeric = append(numeric, normCol{idx: i, lo: lo, span: hi - lo})
	}
	if len(numeric) == 0 {
		return nil, fmt.Errorf("no numeric columns to score")
	}

	scores := make([]float64, len(rows))
	for r, row := range rows {
		sum, n := 0.0, 0
		for _, c := range numeric {
			v, ok := cell(row, c.idx)
			if !ok {
				continue
			}
			if c.span > 0 {
				sum += (v - c.lo) / c.span
			}
			n++
		}
		score := 0.0
		if n > 0 {
			score = sum / float64(n)
		}
		if model == "logistic" {
			score = 1 / (1 + math.Exp(-6*(score-0.5)))
		}
		scores[r] = score
	}
	return scores, nil
}

func planDistribution(ctx context.Context, call domain.ToolCall, ds *domain.Dataset) (domain.ToolResult, error) {
	columns, rows, err := readData(ds)
	if err != nil {
		return domain.ToolResult{IsError: true, Error: err.Error()}, nil
	}

	resource, _ := call.Args["resource"].(string)
	supply, ok := toInt(call.Args["supply"])
	if !ok || supply <= 0 {
		return domain.ToolResult{IsError: true, Error: "supply must be a positive number of units"}, nil
	}
	strategy, _ := call.Args["strategy"].(string)

	riskIdx, err := findColumn(columns, "risk")
	if err != nil {
		return domain.ToolResult{IsError: true, Error: "no risk scores found; run the risk model first"}, nil
	}

	weights := make([]float64, len(rows))
	total := 0.0
	for i, row := range rows {
		w, ok := cell(row, riskIdx)
		if !ok || w < 0 {
			w = 0
		}
		if strategy == "priority" {
			// Priority weighting concentrates supply on the riskiest rows.
			w = w * w
		}
		weights[i] = w
		total += w
	}
	if total == 0 {
		return domain.ToolResult{IsError: true, Error: "all risk scores are zero; nothing to prioritize"}, nil
	}

	alloc := allocate(weights, total, supply)

	out := make([][]any, len(rows))
	for i, row := range rows {
		label := ""
		if len(row) > 0 {
			label = row[0]
		}
		out[i] = []any{label, alloc[i]}
	}

	return domain.ToolResult{
		Result: fmt.Sprintf("Planned %d units of %s across %d rows using the %s strategy.",
			supply, resource, len(rows), strategy),
		Tables: []domain.Table{{
			Name:    "distribution",
			Columns: []string{columns[0], resource},
			Rows:    out,
		}},
	}, nil
}

// allocate splits supply proportionally to weights, assigning rounding
// remainders to the heaviest rows so the total always equals supply.
func allocate(weights []float64, total float64, supply int) []int {
	alloc := make([]int, len(weights))
	assigned := 0
	for i, w := range weights {
		alloc[i] = int(math.Floor(float64(supply) * w / total))
		assigned += alloc[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return weights[order[a]] > weights[order[b]] })

	rem := supply - assigned
	for i := 0; i < rem; i++ {
		alloc[order[i%len(order)]]++
	}
	return alloc
}

func readData(ds *domain.Dataset) ([]string, [][]string, error) {
	if ds == nil || ds.Path == "" {
		return nil, nil, fmt.Errorf("no dataset for this session")
	}
	return data.ReadCSV(ds.Path)
}

func findColumn(columns []string, name string) (int, error) {
	want := strings.Join(strings.Fields(strings.ToLower(name)), "")
	for i, c := range columns {
		if strings.Join(strings.Fields(strings.ToLower(c)), "") == want {
			return i, nil
		}
	}
	return 0, fmt.Errorf("no column %q; available: %s", name, strings.Join(columns, ", "))
}

func cell(row []string, idx int) (float64, bool) {
	if idx >= len(row) {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func numericColumn(rows [][]string, idx int) []float64 {
	var vals []float64
	for _, row := range rows {
		if v, ok := cell(row, idx); ok {
			vals = append(vals, v)
		}
	}
	return vals
}

func preview(columns []string, rows [][]string, n int) domain.Table {
	if len(rows) < n {
		n = len(rows)
	}
	out := make([][]any, n)
	for i := 0; i < n; i++ {
		r := make([]any, len(rows[i]))
		for j, v := range rows[i] {
			r[j] = v
		}
		out[i] = r
	}
	return domain.Table{Name: "preview", Columns: columns, Rows: out}
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func stddev(vals []float64) float64 {
	if len(vals) < 2 {
		return 0
	}
	m := mean(vals)
	sum := 0.0
	for _, v := range vals {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(vals)-1))
}

func minOf(vals []float64) float64 {
	out := vals[0]
	for _, v := range vals[1:] {
		if v < out {
			out = v
		}
	}
	return out
}

func maxOf(vals []float64) float64 {
	out := vals[0]
	for _, v := range vals[1:] {
		if v > out {
			out = v
		}
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
