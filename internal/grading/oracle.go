package grading

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/noah-isme/gema-grader/pkg/ai"
)

const (
	// RubricCharLimit bounds the rubric text forwarded to the oracle.
	RubricCharLimit = 2000
	// SubmissionCharLimit bounds the submission text forwarded to the oracle.
	SubmissionCharLimit = 3000
)

// ErrOracleReplyMalformed indicates the oracle reply lacked the Score/Feedback shape.
var ErrOracleReplyMalformed = errors.New("oracle reply malformed")

var (
	scorePattern    = regexp.MustCompile(`Score:\s*(\d{1,3})`)
	feedbackPattern = regexp.MustCompile(`(?s)Feedback:\s*(.+)`)
)

// PromptInput describes the assignment context used to build an oracle request.
type PromptInput struct {
	AssignmentTitle   string
	GradingDifficulty string
	StudentLevel      string
	FeedbackTone      string
	InstructorNotes   string
	Model             string
	RubricText        string
	SubmissionText    string
	PointsBudget      int
}

// BuildOracleRequest assembles a bounded request for the grading oracle.
func BuildOracleRequest(input PromptInput) ai.GradingRequest {
	instructions := strings.Builder{}
	instructions.WriteString("You are a helpful AI grader.\n\n")
	instructions.WriteString(fmt.Sprintf("Assignment Title: %s\n", input.AssignmentTitle))
	instructions.WriteString(fmt.Sprintf("Grading Difficulty: %s\n", orDefault(input.GradingDifficulty, "balanced")))
	instructions.WriteString(fmt.Sprintf("Student Level: %s\n", orDefault(input.StudentLevel, "college")))
	instructions.WriteString(fmt.Sprintf("Feedback Tone: %s\n", orDefault(input.FeedbackTone, "supportive")))
	instructions.WriteString(fmt.Sprintf("Total Points: %d", input.PointsBudget))
	if notes := strings.TrimSpace(input.InstructorNotes); notes != "" {
		instructions.WriteString("\n\nInstructor Notes:\n")
		instructions.WriteString(notes)
	}

	return ai.GradingRequest{
		Model:          input.Model,
		Instructions:   instructions.String(),
		RubricText:     Truncate(input.RubricText, RubricCharLimit),
		SubmissionText: Truncate(input.SubmissionText, SubmissionCharLimit),
		PointsBudget:   input.PointsBudget,
	}
}

// OracleVerdict is the parsed oracle reply.
type OracleVerdict struct {
	Score    int
	Feedback string
}

// ParseOracleReply extracts the score and feedback from a raw oracle reply.
// A reply without both markers yields score 0, the whole reply as feedback and
// ErrOracleReplyMalformed so callers can log it and carry on.
func ParseOracleReply(raw string, budget int) (OracleVerdict, error) {
	text := strings.TrimSpace(raw)

	scoreMatch := scorePattern.FindStringSubmatch(text)
	feedbackMatch := feedbackPattern.FindStringSubmatch(text)
	if scoreMatch == nil || feedbackMatch == nil {
		return OracleVerdict{Score: 0, Feedback: text}, ErrOracleReplyMalformed
	}

	score, err := strconv.Atoi(scoreMatch[1])
	if err != nil {
		return OracleVerdict{Score: 0, Feedback: text}, ErrOracleReplyMalformed
	}
	if budget > 0 && score > budget {
		score = budget
	}

	return OracleVerdict{
		Score:    score,
		Feedback: strings.TrimSpace(feedbackMatch[1]),
	}, nil
}

// Rubric is rubric text plus the points budget it implies.
type Rubric struct {
	Text   string
	Points int
}

type rubricCriteria struct {
	Criteria []struct {
		Description string   `json:"description"`
		MaxPoints   *float64 `json:"max_points"`
	} `json:"criteria"`
}

// ParseRubric turns a rubric document into prompt text. JSON rubrics listing
// criteria set their own budget. Anything else is used verbatim with the
// assignment's total points.
func ParseRubric(content string, fallbackPoints int) Rubric {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		var doc rubricCriteria
		if err := json.Unmarshal([]byte(trimmed), &doc); err == nil && len(doc.Criteria) > 0 {
			lines := make([]string, 0, len(doc.Criteria))
			points := 0.0
			for _, criterion := range doc.Criteria {
				lines = append(lines, "- "+strings.TrimSpace(criterion.Description))
				if criterion.MaxPoints != nil {
					points += *criterion.MaxPoints
				} else {
					points++
				}
			}
			return Rubric{Text: strings.Join(lines, "\n"), Points: int(points)}
		}
	}

	return Rubric{Text: trimmed, Points: fallbackPoints}
}

// Truncate cuts text to at most limit runes.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}
