package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionState tracks where a graded submission is in its release lifecycle.
type SubmissionState string

const (
	// SubmissionStatePending holds the result until a delay elapses or an instructor approves it.
	SubmissionStatePending SubmissionState = "pending"
	// SubmissionStateReadyToRelease makes the result visible to the submitter.
	SubmissionStateReadyToRelease SubmissionState = "ready_to_release"
	// SubmissionStateReleased marks a result that has been approved and published.
	SubmissionStateReleased SubmissionState = "released"
)

func (s SubmissionState) rank() int {
	switch s {
	case SubmissionStatePending:
		return 0
	case SubmissionStateReadyToRelease:
		return 1
	case SubmissionStateReleased:
		return 2
	default:
		return -1
	}
}

// Valid reports whether the state is one of the known lifecycle states.
func (s SubmissionState) Valid() bool {
	return s.rank() >= 0
}

// CanTransitionTo reports whether moving to next is a forward transition.
func (s SubmissionState) CanTransitionTo(next SubmissionState) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.rank() > s.rank()
}

// Visible reports whether the submitter may see the score and feedback.
func (s SubmissionState) Visible() bool {
	return s == SubmissionStateReadyToRelease || s == SubmissionStateReleased
}

const (
	// SubmissionTypeFile marks an uploaded document.
	SubmissionTypeFile = "file"
	// SubmissionTypeInline marks text typed directly into the submission form.
	SubmissionTypeInline = "inline"
)

// Submission is one graded attempt together with its release policy.
type Submission struct {
	ID                string                      `gorm:"primaryKey;size:36" json:"id"`
	AssignmentID      uint                        `gorm:"not null;index" json:"assignment_id"`
	SubmitterID       string                      `gorm:"size:128;not null;index" json:"submitter_id"`
	InstitutionID     *string                     `gorm:"size:128;index" json:"institution_id"`
	CourseID          *string                     `gorm:"size:128;index" json:"course_id"`
	GradingMode       GradingMode                 `gorm:"size:32;not null" json:"grading_mode"`
	SubmittedAt       time.Time                   `gorm:"not null" json:"submitted_at"`
	SubmissionType    string                      `gorm:"size:16" json:"submission_type"`
	SubmissionText    string                      `gorm:"type:text" json:"submission_text"`
	FileURL           string                      `gorm:"size:1024" json:"file_url"`
	ScoreObtained     float64                     `gorm:"not null" json:"score_obtained"`
	ScoreMax          float64                     `gorm:"not null" json:"score_max"`
	Feedback          string                      `gorm:"type:text" json:"feedback"`
	IncorrectFields   datatypes.JSONSlice[string] `json:"incorrect_fields"`
	ReleaseDelayHours float64                     `gorm:"not null" json:"release_delay_hours"`
	ReleaseAt         time.Time                   `gorm:"index" json:"release_at"`
	RequiresApproval  bool                        `gorm:"not null;default:false" json:"requires_approval"`
	State             SubmissionState             `gorm:"size:32;not null;index" json:"state"`
	Reviewed          bool                        `gorm:"not null;default:false" json:"reviewed"`
	InstructorNotes   string                      `gorm:"type:text" json:"instructor_notes"`
	Platform          string                      `gorm:"size:64" json:"platform"`
	LineItemURL       string                      `gorm:"size:1024" json:"line_item_url"`
	ReleasedAt        *time.Time                  `json:"released_at"`
	CreatedAt         time.Time                   `json:"created_at"`
	UpdatedAt         time.Time                   `json:"updated_at"`
	Assignment        Assignment                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
}

// IsVisible reports whether the result can be shown to the submitter.
// A ready result that still needs approval stays hidden until it is released.
func (s Submission) IsVisible() bool {
	if s.State == SubmissionStateReadyToRelease && s.RequiresApproval {
		return false
	}
	return s.State.Visible()
}

// BeforeCreate assigns a UUID when the caller did not provide one.
func (s *Submission) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
