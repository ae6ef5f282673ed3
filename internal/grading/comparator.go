package grading

import (
	"fmt"
	"sort"
	"strings"
)

const (
	uncheckedValue  = "off"
	noDifferences   = "No differences found."
	groupSeparator  = "_"
	feedbackDivider = "\n"
)

// GradeResult is the outcome of comparing observed fields with an answer key.
type GradeResult struct {
	Score           int
	Total           int
	FeedbackLines   []string
	IncorrectFields []string
}

// Feedback renders the feedback lines as a single block of text.
func (r GradeResult) Feedback() string {
	if r.Total == 0 || len(r.FeedbackLines) == 0 {
		return noDifferences
	}
	return strings.Join(r.FeedbackLines, feedbackDivider)
}

// Compare scores observed form fields against the answer key in key order.
func Compare(observed map[string]string, key []FieldKey) GradeResult {
	result := GradeResult{
		FeedbackLines:   make([]string, 0, len(key)+2),
		IncorrectFields: make([]string, 0),
	}
	if len(key) == 0 {
		return result
	}

	names := sortedNames(observed)

	for _, entry := range key {
		result.Total++

		value := normalize(observed[entry.FieldName])
		if value == uncheckedValue {
			value = siblingValue(observed, names, entry.FieldName, false)
		}
		if value == "" {
			value = siblingValue(observed, names, entry.FieldName, true)
		}

		if value == "" {
			result.IncorrectFields = append(result.IncorrectFields, entry.FieldName)
			result.FeedbackLines = append(result.FeedbackLines, fmt.Sprintf("Field '%s' is empty or missing.", entry.FieldName))
			continue
		}

		expected := normalize(entry.ExpectedValue)
		if !matches(entry.MatchMode, value, expected) {
			result.IncorrectFields = append(result.IncorrectFields, entry.FieldName)
			result.FeedbackLines = append(result.FeedbackLines, fmt.Sprintf("Field '%s' appears incorrect. Expected '%s' but got '%s'.", entry.FieldName, expected, value))
			continue
		}

		result.Score++
	}

	errorCount := len(result.IncorrectFields)
	plural := "s"
	if errorCount == 1 {
		plural = ""
	}
	result.FeedbackLines = append(result.FeedbackLines,
		fmt.Sprintf("You have %d error%s in your submission.", errorCount, plural),
		fmt.Sprintf("Score: %d / %d", result.Score, result.Total),
	)

	return result
}

// matches compares normalised values. Exact is the only mode answer keys can declare.
func matches(_ MatchMode, value, expected string) bool {
	return value == expected
}

// siblingValue looks for a toggle-group sibling sharing the field's base name.
// When requireValue is set, empty siblings are skipped as well as unchecked ones.
func siblingValue(observed map[string]string, names []string, field string, requireValue bool) string {
	base := groupBase(field)
	for _, name := range names {
		if name != base && !strings.HasPrefix(name, base+groupSeparator) {
			continue
		}
		value := normalize(observed[name])
		if value == uncheckedValue {
			continue
		}
		if requireValue && value == "" {
			continue
		}
		return value
	}
	return ""
}

func groupBase(field string) string {
	if idx := strings.LastIndex(field, groupSeparator); idx > 0 {
		return field[:idx]
	}
	return field
}

func sortedNames(observed map[string]string) []string {
	names := make([]string, 0, len(observed))
	for name := range observed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func normalize(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
