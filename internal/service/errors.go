package service

import (
	"errors"

	"github.com/noah-isme/gema-grader/internal/grading"
)

var (
	// ErrAssignmentNotFound indicates no assignment configuration matched the launch.
	ErrAssignmentNotFound = errors.New("assignment not found")
	// ErrAnswerKeyUnavailable indicates the answer key could not be fetched.
	ErrAnswerKeyUnavailable = errors.New("answer key unavailable")
	// ErrAnswerKeyMalformed indicates the answer key document has an unknown shape.
	ErrAnswerKeyMalformed = grading.ErrAnswerKeyMalformed
	// ErrRubricUnavailable indicates the rubric could not be fetched.
	ErrRubricUnavailable = errors.New("rubric unavailable")
	// ErrExtractionFailed indicates the submitted document could not be read.
	ErrExtractionFailed = errors.New("submission extraction failed")
	// ErrEmptySubmission indicates the submission carried no gradeable content.
	ErrEmptySubmission = errors.New("submission is empty")
	// ErrOracleUnavailable indicates the grading oracle did not answer.
	ErrOracleUnavailable = errors.New("grading oracle unavailable")
	// ErrOracleReplyMalformed indicates the oracle reply lacked the expected format.
	// The pipeline recovers from it with a zero score.
	ErrOracleReplyMalformed = grading.ErrOracleReplyMalformed
	// ErrPersistenceFailed indicates the graded submission could not be stored.
	ErrPersistenceFailed = errors.New("submission could not be saved")
	// ErrPassbackFailed indicates the grade could not be posted to the platform. Logged only.
	ErrPassbackFailed = errors.New("grade passback failed")
	// ErrSubmissionNotFound indicates the submission does not exist or is not visible to the caller.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrScoreOutOfRange indicates an instructor score outside [0, score_max].
	ErrScoreOutOfRange = errors.New("score out of range")
	// ErrInvalidAssignment indicates an assignment configuration failed validation.
	ErrInvalidAssignment = errors.New("invalid assignment configuration")
	// ErrSeedDisabled indicates the seeding tools are disabled by configuration.
	ErrSeedDisabled = errors.New("seeding is disabled")
	// ErrSeedUnauthorized indicates the provided token is invalid.
	ErrSeedUnauthorized = errors.New("invalid seed token")
)

const genericFailureMessage = "Something went wrong while grading your submission. Please contact your instructor."

var userMessages = []struct {
	err     error
	message string
}{
	{ErrAssignmentNotFound, "We could not find the assignment for this submission. Please contact your instructor."},
	{ErrAnswerKeyUnavailable, "The answer key for this assignment could not be loaded. Please try again later or contact your instructor."},
	{ErrAnswerKeyMalformed, "The answer key for this assignment is not set up correctly. Please contact your instructor."},
	{ErrRubricUnavailable, "The rubric for this assignment could not be loaded. Please try again later or contact your instructor."},
	{ErrExtractionFailed, "We could not read your file. Please upload a text, JSON or Word document."},
	{ErrEmptySubmission, "Your submission appears to be empty. Please add your work and submit again."},
	{ErrOracleUnavailable, "The grading service is busy right now. Please try submitting again in a few minutes."},
	{ErrPersistenceFailed, "Your submission was graded but could not be saved. Please submit again."},
	{ErrSubmissionNotFound, "We could not find that submission."},
	{ErrScoreOutOfRange, "The score must be between zero and the maximum score."},
}

// UserMessage maps an error to a fixed plain-language message safe to show users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range userMessages {
		if errors.Is(err, entry.err) {
			return entry.message
		}
	}
	return genericFailureMessage
}
