package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

var sweepNow = time.Date(2024, time.May, 1, 8, 0, 0, 0, time.UTC)

type releaseFixture struct {
	db         *gorm.DB
	service    ReleaseService
	poster     *recordingPoster
	publisher  *recordingPublisher
	assignment models.Assignment
}

func setupRelease(t *testing.T, lock *redis.Client) *releaseFixture {
	t.Helper()
	db := setupServiceDB(t)
	fx := &releaseFixture{
		db:         db,
		poster:     &recordingPoster{},
		publisher:  &recordingPublisher{},
		assignment: createAssignment(t, db, models.Assignment{Title: "Quiz", Slug: "quiz", ReleaseDelay: "12h"}),
	}

	svc := NewReleaseService(repository.NewSubmissionRepository(db), lock, time.Minute, time.Minute, inlineDispatcher(fx.poster, "canvas"), fx.publisher, testLogger())
	svc.(*releaseService).now = func() time.Time { return sweepNow }
	fx.service = svc
	return fx
}

func (fx *releaseFixture) state(t *testing.T, id string) models.SubmissionState {
	t.Helper()
	var stored models.Submission
	require.NoError(t, fx.db.First(&stored, "id = ?", id).Error)
	return stored.State
}

func TestSweepAdvancesDueSubmissions(t *testing.T) {
	fx := setupRelease(t, nil)
	due := seedSubmission(t, fx.db, models.Submission{
		AssignmentID: fx.assignment.ID,
		ReleaseAt:    sweepNow.Add(-time.Minute),
		Platform:     "canvas",
		LineItemURL:  "https://lms.test/line_items/2",
	})
	exact := seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow})
	future := seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow.Add(time.Hour)})
	approval := seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow.Add(-time.Hour), RequiresApproval: true})

	result, err := fx.service.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Examined: 4, Advanced: 3, Skipped: 1}, result)

	require.Equal(t, models.SubmissionStateReadyToRelease, fx.state(t, due.ID))
	require.Equal(t, models.SubmissionStateReadyToRelease, fx.state(t, exact.ID))
	require.Equal(t, models.SubmissionStatePending, fx.state(t, future.ID))
	require.Equal(t, models.SubmissionStateReadyToRelease, fx.state(t, approval.ID))

	require.Equal(t, 1, fx.poster.count())
	require.Equal(t, []string{SubjectSubmissionReleased, SubjectSubmissionReleased}, fx.publisher.subjects())
}

func TestSweepAdvancesApprovalHeldButKeepsThemHidden(t *testing.T) {
	fx := setupRelease(t, nil)
	held := seedSubmission(t, fx.db, models.Submission{
		AssignmentID:     fx.assignment.ID,
		ReleaseAt:        sweepNow.Add(-time.Hour),
		RequiresApproval: true,
		Platform:         "canvas",
		LineItemURL:      "https://lms.test/line_items/3",
	})

	result, err := fx.service.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Examined: 1, Advanced: 1}, result)

	var stored models.Submission
	require.NoError(t, fx.db.First(&stored, "id = ?", held.ID).Error)
	require.Equal(t, models.SubmissionStateReadyToRelease, stored.State)
	require.False(t, stored.IsVisible())
	require.Zero(t, fx.poster.count())
	require.Empty(t, fx.publisher.subjects())
}

func TestSweepIsIdempotent(t *testing.T) {
	fx := setupRelease(t, nil)
	seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow.Add(-time.Minute)})

	first, err := fx.service.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Equal(t, 1, first.Advanced)

	second, err := fx.service.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Equal(t, SweepResult{}, second)
}

func TestSweepCountsMalformedRecords(t *testing.T) {
	fx := setupRelease(t, nil)
	good := seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow.Add(-time.Minute)})
	broken := seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow.Add(-time.Minute)})
	require.NoError(t, fx.db.Model(&models.Submission{}).Where("id = ?", broken.ID).Update("submitter_id", "").Error)

	result, err := fx.service.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Equal(t, 2, result.Examined)
	require.Equal(t, 1, result.Advanced)
	require.Equal(t, 1, result.Errors)
	require.Equal(t, models.SubmissionStateReadyToRelease, fx.state(t, good.ID))
	require.Equal(t, models.SubmissionStatePending, fx.state(t, broken.ID))
}

func TestSweepNeverRegressesReleased(t *testing.T) {
	fx := setupRelease(t, nil)
	releasedAt := sweepNow.Add(-time.Hour)
	released := seedSubmission(t, fx.db, models.Submission{
		AssignmentID: fx.assignment.ID,
		State:        models.SubmissionStateReleased,
		ReleaseAt:    sweepNow.Add(-2 * time.Hour),
		ReleasedAt:   &releasedAt,
	})

	result, err := fx.service.Sweep(context.Background(), sweepNow)
	require.NoError(t, err)
	require.Zero(t, result.Examined)
	require.Equal(t, models.SubmissionStateReleased, fx.state(t, released.ID))
}

func TestRunOnceHoldsLock(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	fx := setupRelease(t, client)
	seedSubmission(t, fx.db, models.Submission{AssignmentID: fx.assignment.ID, ReleaseAt: sweepNow.Add(-time.Minute)})

	require.NoError(t, server.Set(releaseLockKey, "other-replica"))
	_, err = fx.service.RunOnce(context.Background())
	require.ErrorIs(t, err, ErrSweepLocked)

	server.Del(releaseLockKey)
	result, err := fx.service.RunOnce(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, result.Advanced)
	require.False(t, server.Exists(releaseLockKey))
}

func TestRunOnceLeavesForeignLock(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	fx := setupRelease(t, client)
	unlock, err := fx.service.(*releaseService).acquire(context.Background())
	require.NoError(t, err)

	// Simulate the lock expiring and another replica taking it.
	require.NoError(t, server.Set(releaseLockKey, "other-replica"))
	unlock()

	value, err := server.Get(releaseLockKey)
	require.NoError(t, err)
	require.Equal(t, "other-replica", value)
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := setupRelease(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		fx.service.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
