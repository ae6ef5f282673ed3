package grading

import (
	"strings"
	"time"

	"github.com/noah-isme/gema-grader/internal/models"
)

// ReleaseDelay is the policy controlling how long a graded result is withheld.
type ReleaseDelay string

const (
	ReleaseImmediate ReleaseDelay = "immediate"
	ReleaseOneMinute ReleaseDelay = "1m"
	Release12Hours   ReleaseDelay = "12h"
	Release24Hours   ReleaseDelay = "24h"
	Release36Hours   ReleaseDelay = "36h"
	Release48Hours   ReleaseDelay = "48h"
)

var releaseDelayHours = map[ReleaseDelay]float64{
	ReleaseImmediate: 0,
	ReleaseOneMinute: 0.0166,
	Release12Hours:   12,
	Release24Hours:   24,
	Release36Hours:   36,
	Release48Hours:   48,
}

// ParseReleaseDelay normalises a configured delay. Unknown values fall back to immediate.
func ParseReleaseDelay(value string) ReleaseDelay {
	delay := ReleaseDelay(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := releaseDelayHours[delay]; ok {
		return delay
	}
	return ReleaseImmediate
}

// Hours returns the withholding period in hours.
func (d ReleaseDelay) Hours() float64 {
	return releaseDelayHours[ParseReleaseDelay(string(d))]
}

// ReleaseAt computes when a result submitted at submittedAt becomes eligible for release.
func ReleaseAt(submittedAt time.Time, delayHours float64) time.Time {
	return submittedAt.Add(time.Duration(delayHours * float64(time.Hour)))
}

// InitialState picks the state a freshly graded submission starts in.
func InitialState(delayHours float64, requiresApproval bool) models.SubmissionState {
	if delayHours == 0 && !requiresApproval {
		return models.SubmissionStateReadyToRelease
	}
	return models.SubmissionStatePending
}
