package models

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CollectRequest is the optional body of a collection trigger.
type CollectRequest struct {
	Tickers []string `json:"tickers"`
}

// CollectResponse summarizes a collection run.
type CollectResponse struct {
	Requested int      `json:"requested"`
	Skipped   int      `json:"skipped"`
	Succeeded int      `json:"succeeded"`
	Failed    []string `json:"failed"`
}

// ScreenResponse summarizes screening for one analysis date.
type ScreenResponse struct {
	RunID        string           `json:"run_id"`
	AnalysisDate FlexibleDate     `json:"analysis_date"`
	Screened     int              `json:"screened"`
	NetNets      int              `json:"netnets"`
	Written      int              `json:"written"`
	FileRows     int              `json:"file_rows"`
	Skips        []Skip           `json:"skips,omitempty"`
	SkipCounts   map[SkipCode]int `json:"skip_counts"`
}

// ResultDatesResponse lists the analysis dates that have results.
type ResultDatesResponse struct {
	Source string         `json:"source"`
	Dates  []FlexibleDate `json:"dates"`
}

// ResultsResponse lists the net-nets found for an analysis date.
type ResultsResponse struct {
	AnalysisDate FlexibleDate      `json:"analysis_date"`
	Source       string            `json:"source"`
	Results      []ScreeningResult `json:"results"`
}
