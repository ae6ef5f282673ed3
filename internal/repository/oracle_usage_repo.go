package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
)

// OracleUsageRepository stores token usage of oracle calls.
type OracleUsageRepository interface {
	Create(ctx context.Context, usage *models.OracleUsage) error
}

type oracleUsageRepository struct {
	db *gorm.DB
}

// NewOracleUsageRepository builds the repository.
func NewOracleUsageRepository(db *gorm.DB) OracleUsageRepository {
	return &oracleUsageRepository{db: db}
}

func (r *oracleUsageRepository) Create(ctx context.Context, usage *models.OracleUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}
