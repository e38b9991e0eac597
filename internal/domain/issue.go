package domain

// Issue: связка заявки с задачей во внешнем трекере.
type Issue struct {
	Key    string `json:"issueKey"`
	URL    string `json:"issueUrl"`
	Status string `json:"status,omitempty"`
}

type IssueInput struct {
	Summary     string
	Description string
	ClientName  string
	RequestID   string
}
