package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// AssignmentCreateRequest describes the payload for creating an assignment configuration.
type AssignmentCreateRequest struct {
	Title             string  `json:"title" yaml:"title" validate:"required,min=1,max=255"`
	DisplayTitle      string  `json:"display_title" yaml:"display_title" validate:"omitempty,max=255"`
	Slug              string  `json:"slug" yaml:"slug" validate:"omitempty,max=255"`
	GradingMode       string  `json:"grading_mode" yaml:"grading_mode" validate:"required,oneof=oracle field-key json"`
	TotalPoints       int     `json:"total_points" yaml:"total_points" validate:"required,gt=0"`
	AnswerKeyURL      string  `json:"answer_key_url" yaml:"answer_key_url" validate:"omitempty,url"`
	RubricURL         string  `json:"rubric_url" yaml:"rubric_url" validate:"omitempty,url"`
	RubricText        string  `json:"rubric_text" yaml:"rubric_text"`
	OracleModel       string  `json:"oracle_model" yaml:"oracle_model" validate:"omitempty,max=64"`
	GradingDifficulty string  `json:"grading_difficulty" yaml:"grading_difficulty" validate:"omitempty,max=32"`
	StudentLevel      string  `json:"student_level" yaml:"student_level" validate:"omitempty,max=32"`
	FeedbackTone      string  `json:"feedback_tone" yaml:"feedback_tone" validate:"omitempty,max=32"`
	OracleNotes       string  `json:"oracle_notes" yaml:"oracle_notes"`
	ReleaseDelay      string  `json:"release_delay" yaml:"release_delay" validate:"omitempty,max=16"`
	RequiresApproval  bool    `json:"requires_approval" yaml:"requires_approval"`
	InstitutionID     *string `json:"institution_id" yaml:"institution_id" validate:"omitempty,max=128"`
	CourseID          *string `json:"course_id" yaml:"course_id" validate:"omitempty,max=128"`
}

// AssignmentUpdateRequest describes a partial update of an assignment configuration.
type AssignmentUpdateRequest struct {
	Title             *string `json:"title" validate:"omitempty,min=1,max=255"`
	DisplayTitle      *string `json:"display_title" validate:"omitempty,max=255"`
	GradingMode       *string `json:"grading_mode" validate:"omitempty,oneof=oracle field-key json"`
	TotalPoints       *int    `json:"total_points" validate:"omitempty,gt=0"`
	AnswerKeyURL      *string `json:"answer_key_url" validate:"omitempty,url"`
	RubricURL         *string `json:"rubric_url" validate:"omitempty,url"`
	RubricText        *string `json:"rubric_text"`
	OracleModel       *string `json:"oracle_model" validate:"omitempty,max=64"`
	GradingDifficulty *string `json:"grading_difficulty" validate:"omitempty,max=32"`
	StudentLevel      *string `json:"student_level" validate:"omitempty,max=32"`
	FeedbackTone      *string `json:"feedback_tone" validate:"omitempty,max=32"`
	OracleNotes       *string `json:"oracle_notes"`
	ReleaseDelay      *string `json:"release_delay" validate:"omitempty,max=16"`
	RequiresApproval  *bool   `json:"requires_approval"`
}

// AssignmentListQuery describes query string filters for listing assignments.
type AssignmentListQuery struct {
	Search   string `query:"search"`
	Mode     string `query:"mode" validate:"omitempty,oneof=oracle field-key json"`
	Sort     string `query:"sort"`
	Page     int    `query:"page" validate:"omitempty,gte=1"`
	PageSize int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID                uint      `json:"id"`
	Title             string    `json:"title"`
	DisplayTitle      string    `json:"display_title"`
	Slug              string    `json:"slug"`
	GradingMode       string    `json:"grading_mode"`
	TotalPoints       int       `json:"total_points"`
	AnswerKeyURL      string    `json:"answer_key_url,omitempty"`
	RubricURL         string    `json:"rubric_url,omitempty"`
	RubricText        string    `json:"rubric_text,omitempty"`
	OracleModel       string    `json:"oracle_model,omitempty"`
	GradingDifficulty string    `json:"grading_difficulty,omitempty"`
	StudentLevel      string    `json:"student_level,omitempty"`
	FeedbackTone      string    `json:"feedback_tone,omitempty"`
	OracleNotes       string    `json:"oracle_notes,omitempty"`
	ReleaseDelay      string    `json:"release_delay"`
	RequiresApproval  bool      `json:"requires_approval"`
	InstitutionID     *string   `json:"institution_id"`
	CourseID          *string   `json:"course_id"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// AnswerKeyResponse carries a generated answer key document.
type AnswerKeyResponse struct {
	FieldCount int             `json:"field_count"`
	AnswerKey  json.RawMessage `json:"answer_key"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:                model.ID,
		Title:             model.Title,
		DisplayTitle:      model.DisplayTitle,
		Slug:              model.Slug,
		GradingMode:       string(model.GradingMode),
		TotalPoints:       model.TotalPoints,
		AnswerKeyURL:      model.AnswerKeyURL,
		RubricURL:         model.RubricURL,
		RubricText:        model.RubricText,
		OracleModel:       model.OracleModel,
		GradingDifficulty: model.GradingDifficulty,
		StudentLevel:      model.StudentLevel,
		FeedbackTone:      model.FeedbackTone,
		OracleNotes:       model.OracleNotes,
		ReleaseDelay:      model.ReleaseDelay,
		RequiresApproval:  model.RequiresApproval,
		InstitutionID:     model.InstitutionID,
		CourseID:          model.CourseID,
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
