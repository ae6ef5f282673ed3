package models

import (
	"strings"
	"time"
)

// GradingMode selects how submissions for an assignment are scored.
type GradingMode string

const (
	// GradingModeOracle delegates free-text scoring to the external grading oracle.
	GradingModeOracle GradingMode = "oracle"
	// GradingModeFieldKey compares extracted form fields against an answer key.
	GradingModeFieldKey GradingMode = "field-key"
)

// ParseGradingMode normalises a stored or user supplied grading mode.
func ParseGradingMode(value string) (GradingMode, bool) {
	switch GradingMode(strings.ToLower(strings.TrimSpace(value))) {
	case GradingModeOracle:
		return GradingModeOracle, true
	case GradingModeFieldKey, "json", "fieldkey", "field_key":
		return GradingModeFieldKey, true
	default:
		return "", false
	}
}

// Assignment is the configuration governing how a submission is graded and released.
type Assignment struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	Title             string      `gorm:"size:255;not null;index" json:"title"`
	DisplayTitle      string      `gorm:"size:255;index" json:"display_title"`
	Slug              string      `gorm:"size:255;not null;uniqueIndex" json:"slug"`
	GradingMode       GradingMode `gorm:"size:32;not null" json:"grading_mode"`
	TotalPoints       int         `gorm:"not null" json:"total_points"`
	AnswerKeyURL      string      `gorm:"size:1024" json:"answer_key_url"`
	RubricURL         string      `gorm:"size:1024" json:"rubric_url"`
	RubricText        string      `gorm:"type:text" json:"rubric_text"`
	OracleModel       string      `gorm:"size:64" json:"oracle_model"`
	GradingDifficulty string      `gorm:"size:32" json:"grading_difficulty"`
	StudentLevel      string      `gorm:"size:32" json:"student_level"`
	FeedbackTone      string      `gorm:"size:32" json:"feedback_tone"`
	OracleNotes       string      `gorm:"type:text" json:"oracle_notes"`
	ReleaseDelay      string      `gorm:"size:16;not null;default:immediate" json:"release_delay"`
	RequiresApproval  bool        `gorm:"not null;default:false" json:"requires_approval"`
	InstitutionID     *string     `gorm:"size:128;index" json:"institution_id"`
	CourseID          *string     `gorm:"size:128;index" json:"course_id"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// Label returns the human facing title, preferring the display title.
func (a Assignment) Label() string {
	if strings.TrimSpace(a.DisplayTitle) != "" {
		return a.DisplayTitle
	}
	return a.Title
}

// IsGlobal reports whether the assignment is visible to every tenant.
func (a Assignment) IsGlobal() bool {
	return a.InstitutionID == nil && a.CourseID == nil
}
