package ai

import "context"

// GradingRequest carries the bounded prompt material sent to a grading oracle.
type GradingRequest struct {
	Model          string
	Instructions   string
	RubricText     string
	SubmissionText string
	PointsBudget   int
}

// Usage reports token consumption of an oracle call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// GradingReply is the unparsed answer returned by the oracle.
type GradingReply struct {
	RawText string
	Model   string
	Usage   Usage
}

// Oracle scores free-text submissions against a rubric.
type Oracle interface {
	Grade(ctx context.Context, request GradingRequest) (GradingReply, error)
}
