package analysis

import (
	"encoding/json"
	"fmt"
	"strings"

	llmsdk "github.com/hoangvvo/llm-sdk/sdk-go"
)

const (
	KindText  = "text"
	KindChart = "chart"
)

const (
	AggSum   = "sum"
	AggAvg   = "avg"
	AggCount = "count"
	AggMin   = "min"
	AggMax   = "max"
	AggNone  = "none"
)

const (
	ChartBar  = "bar"
	ChartLine = "line"
	ChartPie  = "pie"
)

const (
	SortNone      = ""
	SortValueDesc = "value_desc"
	SortValueAsc  = "value_asc"
	SortLabelAsc  = "label_asc"
)

// Plan is what the model answers with: a description of the computation,
// never the computed values themselves.
type Plan struct {
	Kind        string   `json:"kind"`
	Aggregation string   `json:"aggregation"`
	Measure     string   `json:"measure"`
	GroupBy     string   `json:"group_by"`
	Filters     []Filter `json:"filters"`
	Sort        string   `json:"sort"`
	Limit       int      `json:"limit"`
	ChartType   string   `json:"chart_type"`
	Title       string   `json:"title"`
	Answer      string   `json:"answer"`
}

// Filter keeps rows whose column equals one of Values. Filters are ANDed.
type Filter struct {
	Column string   `json:"column"`
	Values []string `json:"values"`
}

func parsePlan(response string) (*Plan, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	var p Plan
	if err := json.Unmarshal([]byte(response), &p); err != nil {
		return nil, fmt.Errorf("failed to parse analysis plan: %w (response: %.200s)", err, response)
	}

	p.Kind = strings.ToLower(strings.TrimSpace(p.Kind))
	p.Aggregation = strings.ToLower(strings.TrimSpace(p.Aggregation))
	p.ChartType = strings.ToLower(strings.TrimSpace(p.ChartType))
	p.Sort = strings.ToLower(strings.TrimSpace(p.Sort))

	if p.Kind == "" {
		p.Kind = KindText
	}
	if p.Aggregation == "" {
		p.Aggregation = AggNone
	}
	if p.Kind == KindChart && p.ChartType == "" {
		p.ChartType = ChartBar
	}
	if p.Limit < 0 {
		p.Limit = 0
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Plan) validate() error {
	switch p.Kind {
	case KindText, KindChart:
	default:
		return fmt.Errorf("unknown plan kind %q", p.Kind)
	}
	switch p.Aggregation {
	case AggSum, AggAvg, AggCount, AggMin, AggMax, AggNone:
	default:
		return fmt.Errorf("unknown aggregation %q", p.Aggregation)
	}
	switch p.Sort {
	case SortNone, SortValueDesc, SortValueAsc, SortLabelAsc:
	default:
		return fmt.Errorf("unknown sort %q", p.Sort)
	}
	if p.Kind == KindChart {
		switch p.ChartType {
		case ChartBar, ChartLine, ChartPie:
		default:
			return fmt.Errorf("unknown chart type %q", p.ChartType)
		}
		if p.Aggregation == AggNone {
			return fmt.Errorf("chart plan needs an aggregation")
		}
	}
	if p.Aggregation == AggNone && strings.TrimSpace(p.Answer) == "" {
		return fmt.Errorf("plan has neither an aggregation nor an answer")
	}
	return nil
}

var planSchema = llmsdk.JSONSchema{
	"type": "object",
	"properties": map[string]any{
		"kind": map[string]any{
			"type":        "string",
			"enum":        []string{KindText, KindChart},
			"description": "chart when the user asks for a plot, graph or chart; text otherwise.",
		},
		"aggregation": map[string]any{
			"type":        "string",
			"enum":        []string{AggSum, AggAvg, AggCount, AggMin, AggMax, AggNone},
			"description": "none only when the question can be answered from the data summary alone.",
		},
		"measure": map[string]any{
			"type":        "string",
			"description": "Numeric column to aggregate. Empty for count and none.",
		},
		"group_by": map[string]any{
			"type":        "string",
			"description": "Column to group by. Empty for a single total.",
		},
		"filters": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"column": map[string]any{"type": "string"},
					"values": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
				"required":             []string{"column", "values"},
				"additionalProperties": false,
			},
		},
		"sort": map[string]any{
			"type": "string",
			"enum": []string{SortNone, SortValueDesc, SortValueAsc, SortLabelAsc},
		},
		"limit": map[string]any{
			"type":        "integer",
			"description": "Maximum number of groups to keep. 0 keeps all.",
		},
		"chart_type": map[string]any{
			"type": "string",
			"enum": []string{"", ChartBar, ChartLine, ChartPie},
		},
		"title": map[string]any{"type": "string"},
		"answer": map[string]any{
			"type":        "string",
			"description": "Direct answer when aggregation is none. May contain {value} as a placeholder for the computed result otherwise.",
		},
	},
	"required": []string{
		"kind", "aggregation", "measure", "group_by", "filters",
		"sort", "limit", "chart_type", "title", "answer",
	},
	"additionalProperties": false,
}
