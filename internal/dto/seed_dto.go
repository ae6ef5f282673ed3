package dto

// SeedAssignmentsDocument is the YAML fixture format for assignment seeding.
type SeedAssignmentsDocument struct {
	Assignments []AssignmentCreateRequest `yaml:"assignments" validate:"required,min=1,dive"`
}

// SeedResponse reports the result of a seed run.
type SeedResponse struct {
	Upserted int      `json:"upserted"`
	Slugs    []string `json:"slugs"`
}
