package grading

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-grader/internal/models"
)

func TestParseReleaseDelay(t *testing.T) {
	require.Equal(t, ReleaseImmediate, ParseReleaseDelay(""))
	require.Equal(t, ReleaseImmediate, ParseReleaseDelay("next week"))
	require.Equal(t, Release24Hours, ParseReleaseDelay(" 24H "))
	require.Equal(t, 48.0, Release48Hours.Hours())
	require.Equal(t, 0.0166, ReleaseOneMinute.Hours())
	require.Equal(t, 0.0, ReleaseDelay("bogus").Hours())
}

func TestReleaseAt(t *testing.T) {
	submitted := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	require.Equal(t, submitted.Add(12*time.Hour), ReleaseAt(submitted, 12))
	require.Equal(t, submitted, ReleaseAt(submitted, 0))
}

func TestInitialState(t *testing.T) {
	require.Equal(t, models.SubmissionStateReadyToRelease, InitialState(0, false))
	require.Equal(t, models.SubmissionStatePending, InitialState(0, true))
	require.Equal(t, models.SubmissionStatePending, InitialState(24, false))
	require.Equal(t, models.SubmissionStatePending, InitialState(0.0166, true))
}
