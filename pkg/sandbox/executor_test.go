package sandbox

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/atelierlabs/concierge/pkg/domain"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requirePython(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
}

func requirePandas(t *testing.T) {
	t.Helper()
	requirePython(t)
	if err := exec.Command("python3", "-c", "import pandas").Run(); err != nil {
		t.Skip("pandas not available")
	}
}

func TestCheckPolicy_RejectsDisallowedImport(t *testing.T) {
	err := CheckPolicy("import subprocess\nsubprocess.run(['ls'])")
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)

	err = CheckPolicy("from os import path")
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestCheckPolicy_RejectsEscapeHatches(t *testing.T) {
	for _, code := range []string{
		`__import__("os")`,
		`open("/etc/passwd")`,
		`eval("1+1")`,
		`exec("print(1)")`,
	} {
		assert.ErrorIs(t, CheckPolicy(code), domain.ErrPolicyViolation, code)
	}
}

func TestCheckPolicy_AllowsDataImports(t *testing.T) {
	assert.NoError(t, CheckPolicy("import pandas\nimport math\nfrom statistics import mean"))
}

func TestExecute_ViolationNeverRuns(t *testing.T) {
	// No interpreter required: the policy check rejects before launch.
	e := New(WithInterpreter("/nonexistent/python3"))
	_, err := e.Execute(context.Background(), "import socket", Input{})
	assert.ErrorIs(t, err, domain.ErrPolicyViolation)
}

func TestExecute_EmitsTables(t *testing.T) {
	requirePython(t)
	e := New()

	out, err := e.Execute(context.Background(), `emit_rows("counts", ["region", "n"], [["north", 3], ["south", 5]])`, Input{})
	require.NoError(t, err)

	require.Len(t, out.Tables, 1)
	assert.Equal(t, "counts", out.Tables[0].Name)
	assert.Equal(t, []string{"region", "n"}, out.Tables[0].Columns)
	assert.Len(t, out.Tables[0].Rows, 2)
}

func TestExecute_TimeoutKillsProcess(t *testing.T) {
	requirePython(t)
	e := New(WithTimeout(500 * time.Millisecond))

	start := time.Now()
	_, err := e.Execute(context.Background(), "while True:\n    pass", Input{})
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, domain.ErrExecTimeout)
	assert.Less(t, elapsed, 5*time.Second)
}

func TestExecute_RejectsHostPathLeak(t *testing.T) {
	requirePython(t)
	e := New()

	_, err := e.Execute(context.Background(), `print("/etc/passwd")`, Input{})
	assert.ErrorIs(t, err, domain.ErrInvalidOutput)
}

func TestExecute_RejectsUnresolvedPlaceholder(t *testing.T) {
	requirePython(t)
	e := New()

	_, err := e.Execute(context.Background(), `print("value is {top_n}")`, Input{})
	assert.ErrorIs(t, err, domain.ErrInvalidOutput)
}

func TestAnalyzer_SummarizesCSV(t *testing.T) {
	requirePandas(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")
	csv := "region,population,income\nnorth,1200,50\nsouth,800,40\neast,950,45\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o600))

	a := NewAnalyzer(New(), nil)
	tables, err := a.Analyze(context.Background(), "analyze population for me", &domain.Dataset{
		Name:    "upload",
		Path:    path,
		Columns: []string{"region", "population", "income"},
	})
	require.NoError(t, err)

	require.NotEmpty(t, tables)
	assert.Equal(t, "summary", tables[0].Name)
	assert.Contains(t, tables[0].Columns, "population")
}

func TestMentionedColumns(t *testing.T) {
	cols := []string{"region", "population", "income per head"}

	assert.Equal(t, []string{"population"}, mentionedColumns("plot Population by year", cols))
	assert.Equal(t, []string{"income per head"}, mentionedColumns("what drives income  per head?", cols))
	assert.Empty(t, mentionedColumns("show me everything", cols))
}
