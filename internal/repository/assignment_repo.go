package repository

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/noah-isme/gema-grader/internal/models"
)

// TenantScope narrows lookups to an institution and course. Empty values
// disable the corresponding constraint.
type TenantScope struct {
	InstitutionID string
	CourseID      string
}

// AssignmentFilter describes pagination & search options.
type AssignmentFilter struct {
	Scope    TenantScope
	Search   string
	Mode     string
	Sort     string
	Page     int
	PageSize int
}

// AssignmentRepository defines persistence operations for assignment configurations.
type AssignmentRepository interface {
	ListWithFilter(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error)
	GetByID(ctx context.Context, id uint) (models.Assignment, error)
	FindBySlug(ctx context.Context, slug string, scope TenantScope) (models.Assignment, error)
	FindByTitle(ctx context.Context, title string, scope TenantScope) (models.Assignment, error)
	SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	UpsertBySlug(ctx context.Context, assignment *models.Assignment) error
	Delete(ctx context.Context, id uint) error
}

type assignmentRepository struct {
	db *gorm.DB
}

// NewAssignmentRepository instantiates a GORM-backed repository.
func NewAssignmentRepository(db *gorm.DB) AssignmentRepository {
	return &assignmentRepository{db: db}
}

// applyScope keeps global rows visible alongside the caller's tenant rows.
func applyScope(query *gorm.DB, scope TenantScope) *gorm.DB {
	if institution := strings.TrimSpace(scope.InstitutionID); institution != "" {
		query = query.Where("institution_id = ? OR institution_id IS NULL", institution)
	}
	if course := strings.TrimSpace(scope.CourseID); course != "" {
		query = query.Where("course_id = ? OR course_id IS NULL", course)
	}
	return query
}

// tenantFirst orders tenant-specific rows before global ones.
const tenantFirst = "CASE WHEN institution_id IS NULL THEN 1 ELSE 0 END, CASE WHEN course_id IS NULL THEN 1 ELSE 0 END"

func (r *assignmentRepository) ListWithFilter(ctx context.Context, filter AssignmentFilter) ([]models.Assignment, int64, error) {
	query := applyScope(r.db.WithContext(ctx).Model(&models.Assignment{}), filter.Scope)

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(strings.TrimSpace(filter.Search)) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(display_title) LIKE ? OR LOWER(slug) LIKE ?", pattern, pattern, pattern)
	}

	if mode, ok := models.ParseGradingMode(filter.Mode); ok {
		query = query.Where("grading_mode = ?", mode)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = query.Order(normalizeAssignmentSort(filter.Sort))

	if filter.PageSize > 0 {
		page := filter.Page
		if page <= 0 {
			page = 1
		}
		offset := (page - 1) * filter.PageSize
		query = query.Offset(offset).Limit(filter.PageSize)
	}

	var assignments []models.Assignment
	if err := query.Find(&assignments).Error; err != nil {
		return nil, 0, err
	}

	return assignments, total, nil
}

func (r *assignmentRepository) GetByID(ctx context.Context, id uint) (models.Assignment, error) {
	var assignment models.Assignment
	if err := r.db.WithContext(ctx).First(&assignment, id).Error; err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) FindBySlug(ctx context.Context, slug string, scope TenantScope) (models.Assignment, error) {
	var assignment models.Assignment
	err := applyScope(r.db.WithContext(ctx), scope).
		Where("slug = ?", strings.TrimSpace(slug)).
		Order(tenantFirst + ", id ASC").
		Take(&assignment).Error
	if err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

// FindByTitle matches display_title or title exactly. Tenant rows beat global
// rows, display_title matches beat title matches and the lowest id breaks ties.
func (r *assignmentRepository) FindByTitle(ctx context.Context, title string, scope TenantScope) (models.Assignment, error) {
	title = strings.TrimSpace(title)

	var assignment models.Assignment
	err := applyScope(r.db.WithContext(ctx), scope).
		Where("display_title = ? OR title = ?", title, title).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                tenantFirst + ", CASE WHEN display_title = ? THEN 0 ELSE 1 END, id ASC",
			Vars:               []interface{}{title},
			WithoutParentheses: true,
		}}).
		Take(&assignment).Error
	if err != nil {
		return models.Assignment{}, err
	}

	return assignment, nil
}

func (r *assignmentRepository) SlugExists(ctx context.Context, slug string, excludeID uint) (bool, error) {
	query := r.db.WithContext(ctx).Model(&models.Assignment{}).Where("slug = ?", slug)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *assignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *assignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Save(assignment).Error
}

// UpsertBySlug inserts the assignment or overwrites the row sharing its slug.
func (r *assignmentRepository) UpsertBySlug(ctx context.Context, assignment *models.Assignment) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"title", "display_title", "grading_mode", "total_points", "answer_key_url",
			"rubric_url", "rubric_text", "oracle_model", "grading_difficulty", "student_level",
			"feedback_tone", "oracle_notes", "release_delay", "requires_approval",
			"institution_id", "course_id", "updated_at",
		}),
	}).Create(assignment).Error
}

func (r *assignmentRepository) Delete(ctx context.Context, id uint) error {
	result := r.db.WithContext(ctx).Delete(&models.Assignment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func normalizeAssignmentSort(sort string) string {
	switch strings.ToLower(strings.TrimSpace(sort)) {
	case "updated_at", "updated_at:asc", "updated_at.asc":
		return "updated_at ASC"
	case "-updated_at", "updated_at:desc", "updated_at.desc":
		return "updated_at DESC"
	case "title", "title:asc", "title.asc":
		return "title ASC"
	case "-title", "title:desc", "title.desc":
		return "title DESC"
	case "-created_at", "created_at:desc", "created_at.desc":
		return "created_at DESC"
	default:
		return "created_at ASC"
	}
}
