package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/gema-grader/internal/dto"
	"github.com/noah-isme/gema-grader/internal/repository"
)

// SeedService loads assignment configurations from YAML fixtures.
type SeedService interface {
	SeedAssignments(ctx context.Context, token string, document []byte) (dto.SeedResponse, error)
}

type seedService struct {
	repo      repository.AssignmentRepository
	validator *validator.Validate
	enabled   bool
	token     string
	logger    zerolog.Logger
}

// NewSeedService constructs a seeding service.
func NewSeedService(repo repository.AssignmentRepository, validate *validator.Validate, enabled bool, token string, logger zerolog.Logger) SeedService {
	return &seedService{
		repo:      repo,
		validator: validate,
		enabled:   enabled,
		token:     token,
		logger:    logger.With().Str("component", "seed_service").Logger(),
	}
}

// SeedAssignments upserts every assignment in the fixture by slug.
// The whole document is validated before anything is written.
func (s *seedService) SeedAssignments(ctx context.Context, token string, document []byte) (dto.SeedResponse, error) {
	if !s.enabled {
		return dto.SeedResponse{}, ErrSeedDisabled
	}
	if !s.validateToken(token) {
		return dto.SeedResponse{}, ErrSeedUnauthorized
	}

	var fixture dto.SeedAssignmentsDocument
	if err := yaml.Unmarshal(document, &fixture); err != nil {
		return dto.SeedResponse{}, fmt.Errorf("%w: %v", ErrInvalidAssignment, err)
	}
	if err := s.validator.Struct(fixture); err != nil {
		return dto.SeedResponse{}, err
	}

	response := dto.SeedResponse{Slugs: make([]string, 0, len(fixture.Assignments))}
	seen := make(map[string]struct{}, len(fixture.Assignments))
	for i, item := range fixture.Assignments {
		assignment, err := assignmentFromRequest(item)
		if err != nil {
			return dto.SeedResponse{}, fmt.Errorf("assignment %d: %w", i, err)
		}
		if assignment.Slug == "" {
			assignment.Slug = Slugify(assignment.Title)
		}
		if assignment.Slug == "" {
			return dto.SeedResponse{}, fmt.Errorf("%w: assignment %d has no usable slug", ErrInvalidAssignment, i)
		}
		if _, dup := seen[assignment.Slug]; dup {
			return dto.SeedResponse{}, fmt.Errorf("%w: duplicate slug %q", ErrInvalidAssignment, assignment.Slug)
		}
		seen[assignment.Slug] = struct{}{}
		fixture.Assignments[i].Slug = assignment.Slug
	}

	for _, item := range fixture.Assignments {
		assignment, _ := assignmentFromRequest(item)
		if err := s.repo.UpsertBySlug(ctx, &assignment); err != nil {
			return response, err
		}
		response.Upserted++
		response.Slugs = append(response.Slugs, assignment.Slug)
	}

	s.logger.Info().Int("upserted", response.Upserted).Msg("assignments seeded")
	return response, nil
}

func (s *seedService) validateToken(token string) bool {
	expected := strings.TrimSpace(s.token)
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.TrimSpace(token))) == 1
}
