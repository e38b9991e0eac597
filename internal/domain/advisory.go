package domain

type Complexity string

const (
	ComplexityLow    Complexity = "low"
	ComplexityMedium Complexity = "medium"
	ComplexityHigh   Complexity = "high"
)

// Suggestion: рекомендация советника по новой заявке.
type Suggestion struct {
	SuggestedTasks []string   `json:"suggested_tasks"`
	Complexity     Complexity `json:"complexity"`
	EstimatedDays  int        `json:"estimated_days"`
	Risks          []string   `json:"risks"`
}

type AnalysisInput struct {
	Title       string
	Description string
	ClientName  string
}
