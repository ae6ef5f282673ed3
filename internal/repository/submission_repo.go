package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// SubmissionFilter allows narrowing submission queries.
type SubmissionFilter struct {
	Scope        TenantScope
	AssignmentID *uint
	SubmitterID  string
	State        *models.SubmissionState
	Reviewed     *bool
	Page         int
	PageSize     int
}

// ReviewUpdate carries instructor edits. Nil fields are left untouched.
type ReviewUpdate struct {
	ScoreObtained *float64
	Feedback      *string
}

// SubmissionRepository defines data operations for graded submissions.
type SubmissionRepository interface {
	Create(ctx context.Context, submission *models.Submission) error
	GetByID(ctx context.Context, id string) (models.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error)
	ListPendingRelease(ctx context.Context, limit int) ([]models.Submission, error)
	AdvanceToReady(ctx context.Context, id string, now time.Time) (bool, error)
	Release(ctx context.Context, id string, releasedAt time.Time) (bool, error)
	UpdateReview(ctx context.Context, id string, update ReviewUpdate) error
	UpdateNotes(ctx context.Context, id string, notes string) error
	Delete(ctx context.Context, id string) error
}

type submissionRepository struct {
	db *gorm.DB
}

// NewSubmissionRepository instantiates the repository.
func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) baseQuery(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Model(&models.Submission{}).
		Preload("Assignment")
}

func (r *submissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(submission).Error
}

func (r *submissionRepository) GetByID(ctx context.Context, id string) (models.Submission, error) {
	var submission models.Submission
	if err := r.baseQuery(ctx).Where("id = ?", id).Take(&submission).Error; err != nil {
		return models.Submission{}, err
	}

	return submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]models.Submission, int64, error) {
	query := applyScope(r.db.WithContext(ctx).Model(&models.Submission{}), filter.Scope)

	if filter.AssignmentID != nil {
		query = query.Where("assignment_id = ?", *filter.AssignmentID)
	}

	if filter.SubmitterID != "" {
		query = query.Where("submitter_id = ?", filter.SubmitterID)
	}

	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}

	if filter.Reviewed != nil {
		query = query.Where("reviewed = ?", *filter.Reviewed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		query = query.Offset((page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	var submissions []models.Submission
	if err := query.Preload("Assignment").Order("submitted_at DESC").Find(&submissions).Error; err != nil {
		return nil, 0, err
	}

	return submissions, total, nil
}

// ListPendingRelease returns pending submissions ordered by release time.
func (r *submissionRepository) ListPendingRelease(ctx context.Context, limit int) ([]models.Submission, error) {
	query := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("state = ?", models.SubmissionStatePending).
		Order("release_at ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}

	var submissions []models.Submission
	if err := query.Find(&submissions).Error; err != nil {
		return nil, err
	}

	return submissions, nil
}

// AdvanceToReady moves a pending submission to ready_to_release when its
// release time has passed. It reports false when another writer got there first.
func (r *submissionRepository) AdvanceToReady(ctx context.Context, id string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Where("state = ?", models.SubmissionStatePending).
		Where("release_at <= ?", now).
		Updates(map[string]interface{}{
			"state":      models.SubmissionStateReadyToRelease,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

// Release publishes a pending or ready submission. Released rows are left as is.
func (r *submissionRepository) Release(ctx context.Context, id string, releasedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).
		Where("id = ?", id).
		Where("state IN ?", []models.SubmissionState{models.SubmissionStatePending, models.SubmissionStateReadyToRelease}).
		Updates(map[string]interface{}{
			"state":       models.SubmissionStateReleased,
			"reviewed":    true,
			"released_at": releasedAt,
			"updated_at":  releasedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}

	return result.RowsAffected == 1, nil
}

func (r *submissionRepository) UpdateReview(ctx context.Context, id string, update ReviewUpdate) error {
	values := map[string]interface{}{
		"reviewed":   true,
		"updated_at": time.Now().UTC(),
	}
	if update.ScoreObtained != nil {
		values["score_obtained"] = *update.ScoreObtained
	}
	if update.Feedback != nil {
		values["feedback"] = *update.Feedback
	}

	return r.updateColumns(ctx, id, values)
}

func (r *submissionRepository) UpdateNotes(ctx context.Context, id string, notes string) error {
	return r.updateColumns(ctx, id, map[string]interface{}{
		"instructor_notes": notes,
		"updated_at":       time.Now().UTC(),
	})
}

func (r *submissionRepository) updateColumns(ctx context.Context, id string, values map[string]interface{}) error {
	result := r.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *submissionRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Submission{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
