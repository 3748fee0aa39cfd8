package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simkernel/internal/engine"
)

// DateLayout is the layout of scenario start and end dates.
const DateLayout = "2006-01-02"

// Scenario defines a run group and the checks made against its result file.
type Scenario struct {
	// Name uniquely identifies this scenario. Golden files are keyed by it.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// RunID is a fixed run id for deterministic logs.
	// If empty, defaults to "test-run-default".
	RunID string `yaml:"run_id,omitempty"`

	// Workers bounds concurrent simulations. Zero means one.
	Workers int `yaml:"workers,omitempty"`

	// KeepStale disables commencing maintenance, so rows from earlier runs
	// of the same result file survive.
	KeepStale bool `yaml:"keep_stale,omitempty"`

	// Simulations run together and share one result file.
	Simulations []SimulationSpec `yaml:"simulations"`

	// Assertions validate the result file after the run group completes.
	Assertions []Assertion `yaml:"assertions,omitempty"`

	// GoldenTable names the table compared against the scenario's golden
	// file. Empty means the scenario is checked by assertions only.
	GoldenTable string `yaml:"golden_table,omitempty"`
}

// SimulationSpec describes one simulation of a scenario.
type SimulationSpec struct {
	Name   string      `yaml:"name"`
	Start  string      `yaml:"start"`
	End    string      `yaml:"end"`
	Models []ModelSpec `yaml:"models"`
}

// ModelSpec selects and configures one model. Only the fields of its Type
// are read.
type ModelSpec struct {
	Type string `yaml:"type"`

	// weather
	MeanT     float64 `yaml:"mean_t,omitempty"`
	Amplitude float64 `yaml:"amplitude,omitempty"`
	Rain      float64 `yaml:"rain,omitempty"`

	// accumulator
	Variable string `yaml:"variable,omitempty"`
	Source   string `yaml:"source,omitempty"`

	// report
	Table     string   `yaml:"table,omitempty"`
	Variables []string `yaml:"variables,omitempty"`
	Event     string   `yaml:"event,omitempty"`
}

// Model types.
const (
	ModelSummary     = "summary"
	ModelWeather     = "weather"
	ModelAccumulator = "accumulator"
	ModelReport      = "report"
)

// Assertion checks one property of the result file.
type Assertion struct {
	// Type selects the check. See the package documentation.
	Type string `yaml:"type"`

	Table      string   `yaml:"table,omitempty"`
	Simulation string   `yaml:"simulation,omitempty"`
	Count      int      `yaml:"count,omitempty"`
	Text       string   `yaml:"text,omitempty"`
	Names      []string `yaml:"names,omitempty"`
}

// Assertion types.
const (
	AssertTableExists     = "table_exists"
	AssertRowCount        = "row_count"
	AssertMessageContains = "message_contains"
	AssertSimulations     = "simulations"
	AssertCompleted       = "completed"
)

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML. Unknown fields are
// rejected.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if len(s.Simulations) == 0 {
		return fmt.Errorf("simulations list is required and must be non-empty")
	}

	for i, sim := range s.Simulations {
		if sim.Name == "" {
			return fmt.Errorf("simulations[%d]: name is required", i)
		}
		start, err := time.Parse(DateLayout, sim.Start)
		if err != nil {
			return fmt.Errorf("simulations[%d]: start: %w", i, err)
		}
		end, err := time.Parse(DateLayout, sim.End)
		if err != nil {
			return fmt.Errorf("simulations[%d]: end: %w", i, err)
		}
		if end.Before(start) {
			return fmt.Errorf("simulations[%d]: end %s is before start %s", i, sim.End, sim.Start)
		}
		for j, m := range sim.Models {
			if err := validateModel(&m); err != nil {
				return fmt.Errorf("simulations[%d].models[%d]: %w", i, j, err)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateModel(m *ModelSpec) error {
	switch m.Type {
	case ModelSummary, ModelWeather:
	case ModelAccumulator:
		if m.Variable == "" || m.Source == "" {
			return fmt.Errorf("variable and source are required for accumulator")
		}
	case ModelReport:
		if m.Table == "" {
			return fmt.Errorf("table is required for report")
		}
		if len(m.Variables) == 0 {
			return fmt.Errorf("variables list is required for report")
		}
		if m.Event != "" && !engine.IsKnownEvent(engine.EventName(m.Event)) {
			return fmt.Errorf("unknown event %q", m.Event)
		}
	case "":
		return fmt.Errorf("type is required")
	default:
		return fmt.Errorf("unknown model type %q", m.Type)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTableExists:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for table_exists", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	case AssertMessageContains:
		if a.Simulation == "" || a.Text == "" {
			return fmt.Errorf("assertions[%d]: simulation and text are required for message_contains", index)
		}
	case AssertSimulations, AssertCompleted:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
