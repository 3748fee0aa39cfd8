package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadTestScenario(t *testing.T, name string) *Scenario {
	t.Helper()
	s, err := LoadScenario(filepath.Join("testdata", "scenarios", name+".yaml"))
	require.NoError(t, err)
	return s
}

func TestLoadScenario_ValidFile(t *testing.T) {
	s := loadTestScenario(t, "daily_report")

	assert.Equal(t, "daily_report", s.Name)
	assert.Equal(t, "run-daily", s.RunID)
	require.Len(t, s.Simulations, 1)
	assert.Equal(t, "2000-01-01", s.Simulations[0].Start)
	require.Len(t, s.Simulations[0].Models, 3)
	assert.Equal(t, ModelReport, s.Simulations[0].Models[2].Type)
	assert.Equal(t, "Clock.Today as Date", s.Simulations[0].Models[2].Variables[0])
	assert.Len(t, s.Assertions, 4)
	assert.Equal(t, "Daily", s.GoldenTable)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario("/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestParseScenario_Invalid(t *testing.T) {
	const sims = `
simulations:
  - name: a
    start: "2000-01-01"
    end: "2000-01-02"
`
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"unknown field", "name: x\ndescription: d\nbogus: 1\n" + sims, "failed to parse YAML"},
		{"missing name", "description: d\n" + sims, "name is required"},
		{"missing description", "name: x\n" + sims, "description is required"},
		{"no simulations", "name: x\ndescription: d\n", "simulations list is required"},
		{"negative workers", "name: x\ndescription: d\nworkers: -1\n" + sims, "workers must be non-negative"},
		{
			"bad date",
			"name: x\ndescription: d\nsimulations:\n  - name: a\n    start: \"2000-13-01\"\n    end: \"2000-01-02\"\n",
			"simulations[0]: start",
		},
		{
			"end before start",
			"name: x\ndescription: d\nsimulations:\n  - name: a\n    start: \"2000-01-02\"\n    end: \"2000-01-01\"\n",
			"is before start",
		},
		{
			"unknown model",
			"name: x\ndescription: d" + sims + "    models:\n      - type: crop\n",
			"unknown model type",
		},
		{
			"report without table",
			"name: x\ndescription: d" + sims + "    models:\n      - type: report\n        variables: [Clock.Today]\n",
			"table is required for report",
		},
		{
			"unknown event",
			"name: x\ndescription: d" + sims + "    models:\n      - type: report\n        table: T\n        variables: [Clock.Today]\n        event: Sunset\n",
			"unknown event",
		},
		{
			"unknown assertion",
			"name: x\ndescription: d" + sims + "assertions:\n  - type: trace_contains\n",
			"unknown assertion type",
		},
		{
			"row_count without table",
			"name: x\ndescription: d" + sims + "assertions:\n  - type: row_count\n",
			"table is required for row_count",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRun_DailyReportPasses(t *testing.T) {
	s := loadTestScenario(t, "daily_report")
	file := filepath.Join(t.TempDir(), "daily.db")

	result, err := Run(t.Context(), s, file)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, "run-daily", result.RunID)
	assert.Equal(t, []string{"base"}, result.Completed)
	assert.Equal(t, file, result.File)

	_, err = os.Stat(file)
	assert.NoError(t, err)
}

func TestRun_FailedAssertionReported(t *testing.T) {
	s := loadTestScenario(t, "daily_report")
	s.Assertions = []Assertion{
		{Type: AssertRowCount, Table: "Daily", Simulation: "base", Count: 4},
		{Type: AssertTableExists, Table: "Nope"},
		{Type: AssertMessageContains, Simulation: "base", Text: "exploded"},
	}

	result, err := Run(t.Context(), s, filepath.Join(t.TempDir(), "fail.db"))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 3)
	assert.Contains(t, result.Errors[0], "Assertion failed: row_count")
	assert.Contains(t, result.Errors[0], "5 rows")
	assert.Contains(t, result.Errors[1], "table not found")
	assert.Contains(t, result.Errors[2], "Simulation started")
}

func TestRun_SimulationFailureIsReported(t *testing.T) {
	s := loadTestScenario(t, "daily_report")
	s.Simulations = append(s.Simulations, SimulationSpec{
		Name:  "broken",
		Start: "2000-01-01",
		End:   "2000-01-03",
		Models: []ModelSpec{
			{Type: ModelAccumulator, Variable: "X", Source: "Missing.Value"},
		},
	})
	s.Assertions = []Assertion{
		{Type: AssertCompleted, Names: []string{"base"}},
		{Type: AssertMessageContains, Simulation: "broken", Text: "Missing.Value"},
	}

	result, err := Run(t.Context(), s, filepath.Join(t.TempDir(), "broken.db"))
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Contains(t, result.Failed, "broken")
	require.Len(t, result.Errors, 1, "only the simulation failure, both assertions hold")
	assert.Contains(t, result.Errors[0], "simulation broken failed")
}

func TestRun_KeepStaleAppends(t *testing.T) {
	s := loadTestScenario(t, "daily_report")
	s.KeepStale = true
	s.Assertions = nil
	file := filepath.Join(t.TempDir(), "stale.db")

	for range 2 {
		result, err := Run(t.Context(), s, file)
		require.NoError(t, err)
		require.True(t, result.Pass, "errors: %v", result.Errors)
	}

	s.Assertions = []Assertion{{Type: AssertRowCount, Table: "Daily", Count: 15}}
	result, err := Run(t.Context(), s, file)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_RerunReplacesRows(t *testing.T) {
	s := loadTestScenario(t, "daily_report")
	file := filepath.Join(t.TempDir(), "rerun.db")

	for range 2 {
		result, err := Run(t.Context(), s, file)
		require.NoError(t, err)
		require.True(t, result.Pass, "errors: %v", result.Errors)
	}
}

func TestRun_BadResultFile(t *testing.T) {
	s := loadTestScenario(t, "daily_report")
	_, err := Run(t.Context(), s, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run scenario daily_report")
}

func TestBuildSimulations(t *testing.T) {
	s := loadTestScenario(t, "two_sites")
	sims, err := BuildSimulations(s)
	require.NoError(t, err)
	require.Len(t, sims, 2)
	assert.Equal(t, "late", sims[1].Name)
	assert.Len(t, sims[1].Models, 3)
	assert.Equal(t, 2001, sims[1].End.Year())
}

func TestAssertionError_Format(t *testing.T) {
	err := &AssertionError{Type: AssertRowCount, Expected: "3 rows", Actual: "2 rows"}
	assert.Equal(t, "Assertion failed: row_count\n  Expected: 3 rows\n  Actual: 2 rows", err.Error())
}
