package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/observability"
)

const (
	// SubjectSubmissionGraded is published after a submission is graded and stored.
	SubjectSubmissionGraded = "submission.graded"
	// SubjectSubmissionReleased is published when a held result becomes visible.
	SubjectSubmissionReleased = "submission.released"
)

// SubmissionEvent is the payload of submission lifecycle events.
type SubmissionEvent struct {
	SubmissionID  string    `json:"submission_id"`
	AssignmentID  uint      `json:"assignment_id"`
	SubmitterID   string    `json:"submitter_id"`
	InstitutionID *string   `json:"institution_id,omitempty"`
	State         string    `json:"state"`
	ScoreObtained float64   `json:"score_obtained"`
	ScoreMax      float64   `json:"score_max"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// NewSubmissionEvent builds an event snapshot of a submission.
func NewSubmissionEvent(submission models.Submission, at time.Time) SubmissionEvent {
	return SubmissionEvent{
		SubmissionID:  submission.ID,
		AssignmentID:  submission.AssignmentID,
		SubmitterID:   submission.SubmitterID,
		InstitutionID: submission.InstitutionID,
		State:         string(submission.State),
		ScoreObtained: submission.ScoreObtained,
		ScoreMax:      submission.ScoreMax,
		OccurredAt:    at.UTC(),
	}
}

// EventPublisher publishes submission lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, event SubmissionEvent)
}

type natsEventPublisher struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATSEventPublisher publishes events under prefix on conn. A nil conn
// turns publishing into a no-op.
func NewNATSEventPublisher(conn *nats.Conn, prefix string, logger zerolog.Logger) EventPublisher {
	return &natsEventPublisher{
		conn:   conn,
		prefix: strings.Trim(prefix, "."),
		logger: logger.With().Str("component", "event_publisher").Logger(),
	}
}

func (p *natsEventPublisher) subject(name string) string {
	if p.prefix == "" {
		return name
	}
	return p.prefix + "." + name
}

// Publish never fails the caller. Errors are logged and counted.
func (p *natsEventPublisher) Publish(_ context.Context, subject string, event SubmissionEvent) {
	if p.conn == nil {
		return
	}

	full := p.subject(subject)
	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn().Err(err).Str("subject", full).Msg("failed to encode event")
		observability.EventPublishFailures().WithLabelValues(subject).Inc()
		return
	}

	if err := p.conn.Publish(full, payload); err != nil {
		p.logger.Warn().Err(err).Str("subject", full).Str("submission_id", event.SubmissionID).Msg("failed to publish event")
		observability.EventPublishFailures().WithLabelValues(subject).Inc()
	}
}
