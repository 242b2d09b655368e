package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/atelierlabs/concierge/pkg/domain"
	"github.com/atelierlabs/concierge/pkg/schema"
)

// Default returns the built-in catalog covering the guided workflow and
// free exploration.
func Default() *Registry {
	r, err := New(
		ToolSpec{
			ID:           "upload_data",
			Description:  "Register an uploaded dataset for this session.",
			Precondition: domain.StageNoData,
			OnSuccess:    domain.StageDataReady,
			Keywords:     []string{"upload", "load", "import", "csv", "file", "dataset"},
		},
		ToolSpec{
			ID:           "list_columns",
			Description:  "List the columns of the active dataset.",
			Precondition: domain.StageDataReady,
			Keywords:     []string{"columns", "fields", "variables"},
		},
		ToolSpec{
			ID:           "show_summary",
			Description:  "Show a summary of the active dataset.",
			Precondition: domain.StageDataReady,
			Keywords:     []string{"summary", "describe", "overview"},
		},
		ToolSpec{
			ID:          "compute_indicators",
			Description: "Compute a derived indicator column from the uploaded data.",
			Args: schema.Args{
				"column": {Type: schema.String(), Required: true,
					Description: "source column to derive the indicator from"},
				"method": {Type: schema.Enum("per_capita", "zscore", "minmax"), Required: true,
					Description: "normalization method"},
			},
			Precondition: domain.StageDataReady,
			OnSuccess:    domain.StageIndicatorsReady,
			Keywords:     []string{"indicator", "indicators", "normalize", "derive", "compute"},
		},
		ToolSpec{
			ID:          "run_risk_model",
			Description: "Run the risk model over the computed indicators.",
			Args: schema.Args{
				"model": {Type: schema.Enum("weighted", "logistic"), Default: "weighted",
					Description: "risk model variant"},
				"threshold": {Type: schema.Range(0, 1), Default: 0.5,
					Description: "risk cut-off for the high-risk class"},
			},
			Precondition: domain.StageIndicatorsReady,
			OnSuccess:    domain.StageRiskScored,
			Keywords:     []string{"risk", "score", "model", "classify"},
		},
		ToolSpec{
			ID:          "plan_distribution",
			Description: "Plan a resource distribution based on risk scores.",
			Args: schema.Args{
				"resource": {Type: schema.String(), Required: true,
					Description: "resource to distribute"},
				"supply": {Type: schema.Int(), Required: true,
					Description: "total available units"},
				"strategy": {Type: schema.Enum("proportional", "priority"), Default: "proportional",
					Description: "allocation strategy"},
			},
			Precondition: domain.StageRiskScored,
			Keywords:     []string{"plan", "distribute", "distribution", "allocate", "allocation"},
		},
		ToolSpec{
			ID:          "analyze_data",
			Description: "Free-form analysis of the active dataset (sandboxed).",
			Args: schema.Args{
				"request": {Type: schema.String(), Required: true,
					Description: "what to analyze, in plain words"},
			},
			Precondition: domain.StageDataReady,
			Sandboxed:    true,
			Keywords:     []string{"analyze", "analysis", "explore", "plot", "chart", "correlate", "show"},
		},
	)
	if err != nil {
		// The built-in catalog is a compile-time artifact.
		panic(err)
	}
	return r
}

// catalog file structures for YAML loading.
type catalogFile struct {
	Tools []catalogTool `yaml:"tools"`
}

type catalogTool struct {
	ID           string       `yaml:"id"`
	Description  string       `yaml:"description"`
	Precondition string       `yaml:"precondition"`
	OnSuccess    string       `yaml:"on_success"`
	Sandboxed    bool         `yaml:"sandboxed"`
	Keywords     []string     `yaml:"keywords"`
	Args         []catalogArg `yaml:"args"`
}

type catalogArg struct {
	Name        string    `yaml:"name"`
	Type        string    `yaml:"type"`
	Enum        []string  `yaml:"enum"`
	Min         *float64  `yaml:"min"`
	Max         *float64  `yaml:"max"`
	Required    bool      `yaml:"required"`
	Default     any       `yaml:"default"`
	Description string    `yaml:"description"`
}

// Load reads a catalog from a YAML file, replacing the built-in one.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var cfg catalogFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	specs := make([]ToolSpec, 0, len(cfg.Tools))
	for _, tool := range cfg.Tools {
		args := make(schema.Args, len(tool.Args))
		for _, arg := range tool.Args {
			fieldType, err := parseArgType(arg)
			if err != nil {
				return nil, fmt.Errorf("tool %s: %w", tool.ID, err)
			}
			args[arg.Name] = schema.Field{
				Type:        fieldType,
				Required:    arg.Required,
				Default:     arg.Default,
				Description: arg.Description,
			}
		}
		pre := domain.Stage(tool.Precondition)
		if tool.Precondition == "" {
			pre = domain.StageNoData
		}
		specs = append(specs, ToolSpec{
			ID:           tool.ID,
			Description:  tool.Description,
			Args:         args,
			Precondition: pre,
			OnSuccess:    domain.Stage(tool.OnSuccess),
			Sandboxed:    tool.Sandboxed,
			Keywords:     tool.Keywords,
		})
	}

	return New(specs...)
}

func parseArgType(arg catalogArg) (schema.Type, error) {
	switch {
	case len(arg.Enum) > 0:
		return schema.Enum(arg.Enum...), nil
	case arg.Min != nil && arg.Max != nil:
		return schema.Range(*arg.Min, *arg.Max), nil
	case arg.Type != "":
		return schema.ParseType(arg.Type)
	default:
		return nil, fmt.Errorf("argument %s: no type, enum or range given", arg.Name)
	}
}
