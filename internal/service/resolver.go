package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// LaunchContext is the caller identity and launch data of a submission.
type LaunchContext struct {
	SubmitterID       string
	InstitutionID     string
	CourseID          string
	Platform          string
	LineItemURL       string
	ResourceLinkTitle string
	CustomSlug        string
	SlugOverride      string
}

// Scope returns the tenant scope used for lookups.
func (l LaunchContext) Scope() repository.TenantScope {
	return repository.TenantScope{InstitutionID: l.InstitutionID, CourseID: l.CourseID}
}

// AssignmentResolver finds the assignment configuration for a launch.
type AssignmentResolver interface {
	Resolve(ctx context.Context, launch LaunchContext) (models.Assignment, error)
}

type assignmentResolver struct {
	repo   repository.AssignmentRepository
	logger zerolog.Logger
}

// NewAssignmentResolver builds a resolver over the assignment repository.
func NewAssignmentResolver(repo repository.AssignmentRepository, logger zerolog.Logger) AssignmentResolver {
	return &assignmentResolver{
		repo:   repo,
		logger: logger.With().Str("component", "assignment_resolver").Logger(),
	}
}

type resolveStep struct {
	source string
	value  string
	lookup func(ctx context.Context, value string, scope repository.TenantScope) (models.Assignment, error)
}

// Resolve tries the slug override, then the launch slug, then the resource link title.
func (r *assignmentResolver) Resolve(ctx context.Context, launch LaunchContext) (models.Assignment, error) {
	steps := []resolveStep{
		{source: "slug_override", value: launch.SlugOverride, lookup: r.repo.FindBySlug},
		{source: "custom_slug", value: launch.CustomSlug, lookup: r.repo.FindBySlug},
		{source: "resource_link_title", value: launch.ResourceLinkTitle, lookup: r.repo.FindByTitle},
	}

	scope := launch.Scope()
	for _, step := range steps {
		value := strings.TrimSpace(step.value)
		if value == "" {
			continue
		}

		assignment, err := step.lookup(ctx, value, scope)
		if err == nil {
			r.logger.Debug().
				Str("source", step.source).
				Str("value", value).
				Uint("assignment_id", assignment.ID).
				Msg("assignment resolved")
			return assignment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Assignment{}, fmt.Errorf("resolve assignment by %s: %w", step.source, err)
		}
	}

	r.logger.Info().
		Str("slug_override", launch.SlugOverride).
		Str("custom_slug", launch.CustomSlug).
		Str("title", launch.ResourceLinkTitle).
		Str("institution_id", launch.InstitutionID).
		Msg("no assignment matched launch")

	return models.Assignment{}, ErrAssignmentNotFound
}
