package dto

import (
	"fmt"
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// GradeSubmissionRequest carries the optional fields of a multipart submission.
type GradeSubmissionRequest struct {
	Text string `form:"text" validate:"omitempty,max=200000"`
	Slug string `query:"slug" validate:"omitempty,max=255"`
}

// ReviewUpdateRequest is used by instructors to override a grade.
type ReviewUpdateRequest struct {
	Score    *float64 `json:"score" validate:"omitempty,gte=0"`
	Feedback *string  `json:"feedback" validate:"omitempty,max=20000"`
}

// NotesRequest replaces the private instructor notes on a submission.
type NotesRequest struct {
	Notes string `json:"notes" validate:"max=20000"`
}

// SubmissionListQuery describes query string filters for the review queue.
type SubmissionListQuery struct {
	AssignmentID *uint  `query:"assignment_id"`
	SubmitterID  string `query:"submitter_id"`
	State        string `query:"state" validate:"omitempty,oneof=pending ready_to_release released"`
	Reviewed     *bool  `query:"reviewed"`
	Page         int    `query:"page" validate:"omitempty,gte=1"`
	PageSize     int    `query:"page_size" validate:"omitempty,gte=1,lte=100"`
}

// GradeResultResponse is returned to the submitter. Score and feedback are
// omitted while the result is held.
type GradeResultResponse struct {
	ID              string    `json:"id"`
	AssignmentID    uint      `json:"assignment_id"`
	AssignmentTitle string    `json:"assignment_title"`
	GradingMode     string    `json:"grading_mode"`
	State           string    `json:"state"`
	Visible         bool      `json:"visible"`
	ScoreObtained   *float64  `json:"score_obtained,omitempty"`
	ScoreMax        float64   `json:"score_max"`
	Feedback        string    `json:"feedback,omitempty"`
	IncorrectFields []string  `json:"incorrect_fields,omitempty"`
	ReleaseAt       time.Time `json:"release_at"`
	SubmittedAt     time.Time `json:"submitted_at"`
	Message         string    `json:"message,omitempty"`
}

// SubmissionResponse is the instructor view of a graded submission.
type SubmissionResponse struct {
	ID                string         `json:"id"`
	AssignmentID      uint           `json:"assignment_id"`
	Assignment        AssignmentLite `json:"assignment"`
	SubmitterID       string         `json:"submitter_id"`
	InstitutionID     *string        `json:"institution_id"`
	CourseID          *string        `json:"course_id"`
	GradingMode       string         `json:"grading_mode"`
	SubmissionType    string         `json:"submission_type"`
	SubmissionText    string         `json:"submission_text,omitempty"`
	FileURL           string         `json:"file_url,omitempty"`
	ScoreObtained     float64        `json:"score_obtained"`
	ScoreMax          float64        `json:"score_max"`
	Feedback          string         `json:"feedback"`
	IncorrectFields   []string       `json:"incorrect_fields"`
	ReleaseDelayHours float64        `json:"release_delay_hours"`
	ReleaseAt         time.Time      `json:"release_at"`
	RequiresApproval  bool           `json:"requires_approval"`
	State             string         `json:"state"`
	Reviewed          bool           `json:"reviewed"`
	InstructorNotes   string         `json:"instructor_notes"`
	Platform          string         `json:"platform,omitempty"`
	SubmittedAt       time.Time      `json:"submitted_at"`
	ReleasedAt        *time.Time     `json:"released_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID    uint   `json:"id"`
	Title string `json:"title"`
	Slug  string `json:"slug"`
}

// SweepResponse reports a manual release sweep.
type SweepResponse struct {
	Examined int       `json:"examined"`
	Advanced int       `json:"advanced"`
	Skipped  int       `json:"skipped"`
	Errors   int       `json:"errors"`
	RanAt    time.Time `json:"ran_at"`
}

// NewGradeResultResponse converts a submission into the submitter's view.
func NewGradeResultResponse(model models.Submission) GradeResultResponse {
	response := GradeResultResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		GradingMode:  string(model.GradingMode),
		State:        string(model.State),
		Visible:      model.IsVisible(),
		ScoreMax:     model.ScoreMax,
		ReleaseAt:    model.ReleaseAt,
		SubmittedAt:  model.SubmittedAt,
	}
	if model.Assignment.ID != 0 {
		response.AssignmentTitle = model.Assignment.Label()
	}

	if response.Visible {
		score := model.ScoreObtained
		response.ScoreObtained = &score
		response.Feedback = model.Feedback
		response.IncorrectFields = []string(model.IncorrectFields)
		return response
	}

	response.Message = pendingMessage(model)
	return response
}

func pendingMessage(model models.Submission) string {
	if model.RequiresApproval {
		return "Your submission was received and is awaiting instructor review. Your grade will appear once it has been approved."
	}
	return fmt.Sprintf("Your submission was received. Your grade will be released after %s.", model.ReleaseAt.UTC().Format("2006-01-02 15:04 MST"))
}

// NewSubmissionResponse converts a Submission model into the instructor DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:                model.ID,
		AssignmentID:      model.AssignmentID,
		SubmitterID:       model.SubmitterID,
		InstitutionID:     model.InstitutionID,
		CourseID:          model.CourseID,
		GradingMode:       string(model.GradingMode),
		SubmissionType:    model.SubmissionType,
		SubmissionText:    model.SubmissionText,
		FileURL:           model.FileURL,
		ScoreObtained:     model.ScoreObtained,
		ScoreMax:          model.ScoreMax,
		Feedback:          model.Feedback,
		IncorrectFields:   []string(model.IncorrectFields),
		ReleaseDelayHours: model.ReleaseDelayHours,
		ReleaseAt:         model.ReleaseAt,
		RequiresApproval:  model.RequiresApproval,
		State:             string(model.State),
		Reviewed:          model.Reviewed,
		InstructorNotes:   model.InstructorNotes,
		Platform:          model.Platform,
		SubmittedAt:       model.SubmittedAt,
		ReleasedAt:        model.ReleasedAt,
		UpdatedAt:         model.UpdatedAt,
	}
	if response.IncorrectFields == nil {
		response.IncorrectFields = []string{}
	}

	if model.Assignment.ID != 0 {
		response.Assignment = AssignmentLite{
			ID:    model.Assignment.ID,
			Title: model.Assignment.Label(),
			Slug:  model.Assignment.Slug,
		}
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(models []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(models))
	for _, submission := range models {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
