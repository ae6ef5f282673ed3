package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

func seedAssignment(t *testing.T, db *gorm.DB, assignment models.Assignment) models.Assignment {
	t.Helper()
	if assignment.GradingMode == "" {
		assignment.GradingMode = models.GradingModeOracle
	}
	if assignment.TotalPoints == 0 {
		assignment.TotalPoints = 10
	}
	if assignment.ReleaseDelay == "" {
		assignment.ReleaseDelay = "immediate"
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}

func TestFindBySlugScopesByTenant(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	global := seedAssignment(t, db, models.Assignment{Title: "Lab", Slug: "lab-1"})
	other := seedAssignment(t, db, models.Assignment{Title: "Other", Slug: "other", InstitutionID: strPtr("inst-b")})

	found, err := repo.FindBySlug(ctx, "lab-1", TenantScope{InstitutionID: "inst-a"})
	require.NoError(t, err)
	require.Equal(t, global.ID, found.ID)

	_, err = repo.FindBySlug(ctx, "other", TenantScope{InstitutionID: "inst-a"})
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound))

	found, err = repo.FindBySlug(ctx, "other", TenantScope{})
	require.NoError(t, err)
	require.Equal(t, other.ID, found.ID)
}

func TestFindByTitleOrdering(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	globalDisplay := seedAssignment(t, db, models.Assignment{Title: "x", DisplayTitle: "Essay 1", Slug: "g-display"})
	tenantTitle := seedAssignment(t, db, models.Assignment{Title: "Essay 1", Slug: "t-title", InstitutionID: strPtr("inst-a")})
	tenantDisplay := seedAssignment(t, db, models.Assignment{Title: "y", DisplayTitle: "Essay 1", Slug: "t-display", InstitutionID: strPtr("inst-a")})
	seedAssignment(t, db, models.Assignment{Title: "Essay 1", Slug: "t-other", InstitutionID: strPtr("inst-b")})

	found, err := repo.FindByTitle(ctx, "Essay 1", TenantScope{InstitutionID: "inst-a"})
	require.NoError(t, err)
	require.Equal(t, tenantDisplay.ID, found.ID, "tenant display_title match wins")

	require.NoError(t, db.Delete(&models.Assignment{}, tenantDisplay.ID).Error)
	found, err = repo.FindByTitle(ctx, "Essay 1", TenantScope{InstitutionID: "inst-a"})
	require.NoError(t, err)
	require.Equal(t, tenantTitle.ID, found.ID, "tenant rows beat global rows")

	found, err = repo.FindByTitle(ctx, "Essay 1", TenantScope{InstitutionID: "inst-c"})
	require.NoError(t, err)
	require.Equal(t, globalDisplay.ID, found.ID)
}

func TestFindByTitleLowestIDBreaksTies(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssignmentRepository(db)

	first := seedAssignment(t, db, models.Assignment{Title: "Quiz", Slug: "quiz-a"})
	seedAssignment(t, db, models.Assignment{Title: "Quiz", Slug: "quiz-b"})

	for i := 0; i < 5; i++ {
		found, err := repo.FindByTitle(context.Background(), "Quiz", TenantScope{})
		require.NoError(t, err)
		require.Equal(t, first.ID, found.ID)
	}
}

func TestCourseScopeHidesOtherCourses(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssignmentRepository(db)

	seedAssignment(t, db, models.Assignment{Title: "Lab", Slug: "lab-c2", InstitutionID: strPtr("inst-a"), CourseID: strPtr("c2")})

	_, err := repo.FindByTitle(context.Background(), "Lab", TenantScope{InstitutionID: "inst-a", CourseID: "c1"})
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSlugExistsAndUpsert(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssignmentRepository(db)
	ctx := context.Background()

	created := seedAssignment(t, db, models.Assignment{Title: "Lab", Slug: "lab"})

	exists, err := repo.SlugExists(ctx, "lab", 0)
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = repo.SlugExists(ctx, "lab", created.ID)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, repo.UpsertBySlug(ctx, &models.Assignment{Title: "Lab v2", Slug: "lab", GradingMode: models.GradingModeOracle, TotalPoints: 20, ReleaseDelay: "24h"}))

	var rows []models.Assignment
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	require.Equal(t, "Lab v2", rows[0].Title)
	require.Equal(t, 20, rows[0].TotalPoints)
}

func TestAssignmentListFilter(t *testing.T) {
	db := newTestDB(t)
	repo := NewAssignmentRepository(db)

	seedAssignment(t, db, models.Assignment{Title: "Essay", Slug: "essay"})
	seedAssignment(t, db, models.Assignment{Title: "Form", Slug: "form", GradingMode: models.GradingModeFieldKey, AnswerKeyURL: "https://keys/form.json"})

	items, total, err := repo.ListWithFilter(context.Background(), AssignmentFilter{Mode: "field-key", PageSize: 10})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	require.Equal(t, "form", items[0].Slug)

	require.ErrorIs(t, repo.Delete(context.Background(), 999), gorm.ErrRecordNotFound)
}
