package models

import (
	"time"

	"gorm.io/datatypes"
)

// OracleUsage records token consumption of a single grading oracle call.
type OracleUsage struct {
	ID               uint              `gorm:"primaryKey" json:"id"`
	SubmissionID     string            `gorm:"size:36;index" json:"submission_id"`
	AssignmentID     uint              `gorm:"index" json:"assignment_id"`
	SubmitterID      string            `gorm:"size:128" json:"submitter_id"`
	InstitutionID    *string           `gorm:"size:128;index" json:"institution_id"`
	Model            string            `gorm:"size:64" json:"model"`
	PromptTokens     int               `json:"prompt_tokens"`
	CompletionTokens int               `json:"completion_tokens"`
	TotalTokens      int               `json:"total_tokens"`
	Raw              datatypes.JSONMap `json:"raw"`
	CreatedAt        time.Time         `json:"created_at"`
}
