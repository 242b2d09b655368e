package tools

import (
	"context"
	"fmt"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelierlabs/concierge/pkg/adapters/data"
	"github.com/atelierlabs/concierge/pkg/domain"
)

func seedDataset(t *testing.T, loader *data.Loader) *domain.Dataset {
	t.Helper()
	ds, err := loader.Put(context.Background(), "s1",
		[]string{"region", "population", "income"},
		[][]string{
			{"north", "1000", "52000"},
			{"south", "2500", "31000"},
			{"east", "400", "47000"},
			{"west", "1800", "28000"},
		})
	require.NoError(t, err)
	return ds
}

func newEnv(t *testing.T) (*Invoker, *data.Loader, *domain.Dataset) {
	t.Helper()
	loader := data.NewLoader(t.TempDir(), nil)
	inv := NewInvoker(nil)
	RegisterBuiltins(inv, loader)
	return inv, loader, seedDataset(t, loader)
}

func call(tool string, args map[string]any) domain.ToolCall {
	return domain.ToolCall{ID: "c1", Session: "s1", Tool: tool, Args: args}
}

func TestInvoker_UnknownTool(t *testing.T) {
	inv := NewInvoker(nil)

	res, err := inv.Invoke(context.Background(), call("bogus", nil), nil)

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "bogus")
}

func TestUploadData_RequiresDataset(t *testing.T) {
	inv, _, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(), call("upload_data", nil), nil)
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = inv.Invoke(context.Background(), call("upload_data", nil), ds)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Contains(t, fmt.Sprint(res.Result), "3 columns")
}

func TestListColumns(t *testing.T) {
	inv, _, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(), call("list_columns", nil), ds)

	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	assert.Len(t, res.Tables[0].Rows, 3)
	assert.Equal(t, []any{"region"}, res.Tables[0].Rows[0])
}

func TestShowSummary_NumericColumnsOnly(t *testing.T) {
	inv, _, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(), call("show_summary", nil), ds)

	require.NoError(t, err)
	require.Len(t, res.Tables, 1)
	tbl := res.Tables[0]
	// region is not numeric, so only population and income appear.
	require.Len(t, tbl.Rows, 2)
	assert.Equal(t, "population", tbl.Rows[0][0])
	assert.Equal(t, 4, tbl.Rows[0][1])
	assert.Equal(t, 1425.0, tbl.Rows[0][2])
}

func TestComputeIndicators_MinMaxPersistsDerived(t *testing.T) {
	inv, loader, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(),
		call("compute_indicators", map[string]any{"column": "income", "method": "minmax"}), ds)

	require.NoError(t, err)
	require.False(t, res.IsError, res.Error)

	active, err := loader.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, active.Derived)
	assert.Contains(t, active.Columns, "income_minmax")

	_, rows, err := data.ReadCSV(active.Path)
	require.NoError(t, err)
	lo, err := strconv.ParseFloat(rows[3][3], 64)
	require.NoError(t, err)
	hi, err := strconv.ParseFloat(rows[0][3], 64)
	require.NoError(t, err)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestComputeIndicators_UnknownColumn(t *testing.T) {
	inv, _, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(),
		call("compute_indicators", map[string]any{"column": "nope", "method": "zscore"}), ds)

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "available")
}

func TestRunRiskModel_ScoresEveryRow(t *testing.T) {
	inv, loader, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(),
		call("run_risk_model", map[string]any{"model": "weighted", "threshold": 0.5}), ds)

	require.NoError(t, err)
	require.False(t, res.IsError, res.Error)

	active, err := loader.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, active.Columns, "risk")
	assert.Contains(t, active.Columns, "risk_class")

	_, rows, err := data.ReadCSV(active.Path)
	require.NoError(t, err)
	for _, row := range rows {
		score, err := strconv.ParseFloat(row[len(row)-2], 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestPlanDistribution_ConservesSupply(t *testing.T) {
	inv, loader, ds := newEnv(t)

	_, err := inv.Invoke(context.Background(),
		call("run_risk_model", map[string]any{"model": "weighted", "threshold": 0.5}), ds)
	require.NoError(t, err)
	scored, err := loader.Load(context.Background(), "s1")
	require.NoError(t, err)

	res, err := inv.Invoke(context.Background(),
		call("plan_distribution", map[string]any{
			"resource": "water", "supply": 500, "strategy": "proportional",
		}), scored)

	require.NoError(t, err)
	require.False(t, res.IsError, res.Error)
	require.Len(t, res.Tables, 1)

	total := 0
	for _, row := range res.Tables[0].Rows {
		total += row[1].(int)
	}
	assert.Equal(t, 500, total)
	assert.Equal(t, "water", res.Tables[0].Columns[1])
}

func TestPlanDistribution_NeedsRiskColumn(t *testing.T) {
	inv, _, ds := newEnv(t)

	res, err := inv.Invoke(context.Background(),
		call("plan_distribution", map[string]any{
			"resource": "water", "supply": 100, "strategy": "priority",
		}), ds)

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Error, "risk model")
}
