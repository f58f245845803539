package model

import "time"

// Query holds the parameters of one pipeline run.
type Query struct {
	Text            string   `json:"query" yaml:"query"`
	Radius          int      `json:"radius" yaml:"radius"`
	Keywords        []string `json:"keywords" yaml:"keywords"`
	ClusterCount    int      `json:"cluster_count" yaml:"cluster_count"`
	AuxiliaryRadius int      `json:"auxiliary_radius" yaml:"auxiliary_radius"`
}

// Params flattens the query for error context and logging.
func (q Query) Params() map[string]any {
	return map[string]any{
		"query":            q.Text,
		"radius":           q.Radius,
		"keywords":         q.Keywords,
		"cluster_count":    q.ClusterCount,
		"auxiliary_radius": q.AuxiliaryRadius,
	}
}

// RunStatus represents the current state of a ranking run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Usage counts provider calls made during a run.
type Usage struct {
	NearbyCalls  int64   `json:"nearby_calls" yaml:"nearby_calls"`
	GeocodeCalls int64   `json:"geocode_calls" yaml:"geocode_calls"`
	CostUSD      float64 `json:"cost_usd" yaml:"cost_usd"`
}

// RunResult is the stored outcome of a completed run.
type RunResult struct {
	Center   Coordinate          `json:"center" yaml:"center"`
	Records  []CategorizedRecord `json:"records" yaml:"records"`
	Clusters []ClusterSummary    `json:"clusters" yaml:"clusters"`
	Usage    Usage               `json:"usage" yaml:"usage"`
}

// Run is a persisted ranking run.
type Run struct {
	ID          string     `json:"id"`
	Query       Query      `json:"query"`
	Status      RunStatus  `json:"status"`
	RecordCount int        `json:"record_count"`
	Usage       Usage      `json:"usage"`
	Result      *RunResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
