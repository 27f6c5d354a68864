package output

// BlockInfo describes one sql block in list and check output.
type BlockInfo struct {
	File    string   `json:"file"`
	Name    string   `json:"name"`
	Line    int      `json:"line"`
	CondFor string   `json:"cond_for,omitempty"`
	Note    string   `json:"note,omitempty"`
	Params  []string `json:"params,omitempty"`
}

// TemplateInfo describes one template file.
type TemplateInfo struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Owner       string      `json:"owner,omitempty"`
	Tags        []string    `json:"tags,omitempty"`
	Blocks      []BlockInfo `json:"blocks"`
}

// ListOutput is the JSON output of the list command.
type ListOutput struct {
	Templates []TemplateInfo `json:"templates"`
	Summary   ListSummary    `json:"summary"`
}

// ListSummary totals the list command output.
type ListSummary struct {
	Templates  int `json:"templates"`
	Blocks     int `json:"blocks"`
	Conditions int `json:"conditions"`
}

// RenderOutput is the JSON output of the render command.
type RenderOutput struct {
	Template string         `json:"template"`
	Block    string         `json:"block"`
	SQL      string         `json:"sql"`
	Params   map[string]any `json:"params,omitempty"`
}

// CheckResult is the outcome of compiling one template.
type CheckResult struct {
	Name   string `json:"name"`
	Blocks int    `json:"blocks"`
	Error  string `json:"error,omitempty"`
}

// CheckOutput is the JSON output of the check command.
type CheckOutput struct {
	Results []CheckResult `json:"results"`
	Passed  int           `json:"passed"`
	Failed  int           `json:"failed"`
}

// ExecOutput is the JSON output of the exec command for statements.
type ExecOutput struct {
	SQL          string `json:"sql"`
	RowsAffected int64  `json:"rows_affected"`
}

// InitOutput is the JSON output of the init command.
type InitOutput struct {
	Dir      string   `json:"dir"`
	Template string   `json:"template"`
	Files    []string `json:"files"`
}
