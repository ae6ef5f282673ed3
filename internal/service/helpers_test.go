package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/pkg/ai"
	"github.com/noah-isme/gema-grader/pkg/passback"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

func setupServiceDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:svc_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Assignment{}, &models.Submission{}, &models.OracleUsage{}))
	return db
}

func strPtr(value string) *string {
	return &value
}

type fakeFetcher struct {
	docs  map[string][]byte
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.docs[url]
	if !ok {
		return nil, errors.New("unexpected status 404")
	}
	return data, nil
}

type fakeOracle struct {
	reply    string
	err      error
	requests []ai.GradingRequest
}

func (o *fakeOracle) Grade(_ context.Context, request ai.GradingRequest) (ai.GradingReply, error) {
	o.requests = append(o.requests, request)
	if o.err != nil {
		return ai.GradingReply{}, o.err
	}
	return ai.GradingReply{
		RawText: o.reply,
		Model:   "test-model",
		Usage:   ai.Usage{PromptTokens: 120, CompletionTokens: 30, TotalTokens: 150},
	}, nil
}

type fakeUploader struct {
	url   string
	err   error
	names []string
}

func (u *fakeUploader) Upload(_ context.Context, name string, reader io.Reader) (string, error) {
	if _, err := io.ReadAll(reader); err != nil {
		return "", err
	}
	u.names = append(u.names, name)
	if u.err != nil {
		return "", u.err
	}
	return u.url, nil
}

type recordingPoster struct {
	mu     sync.Mutex
	err    error
	scores []passback.Score
	urls   []string
}

func (p *recordingPoster) PostScore(_ context.Context, lineItemURL string, score passback.Score) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.urls = append(p.urls, lineItemURL)
	p.scores = append(p.scores, score)
	return p.err
}

func (p *recordingPoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.scores)
}

type publishedEvent struct {
	subject string
	event   SubmissionEvent
}

type recordingPublisher struct {
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, subject string, event SubmissionEvent) {
	p.events = append(p.events, publishedEvent{subject: subject, event: event})
}

func (p *recordingPublisher) subjects() []string {
	subjects := make([]string, 0, len(p.events))
	for _, e := range p.events {
		subjects = append(subjects, e.subject)
	}
	return subjects
}

// inlineDispatcher runs passback synchronously so tests can assert on it.
func inlineDispatcher(poster passback.Poster, platforms ...string) *PassbackDispatcher {
	dispatcher := NewPassbackDispatcher(poster, platforms, time.Second, testLogger())
	dispatcher.RunInline()
	return dispatcher
}

func createAssignment(t *testing.T, db *gorm.DB, assignment models.Assignment) models.Assignment {
	t.Helper()
	if assignment.GradingMode == "" {
		assignment.GradingMode = models.GradingModeOracle
	}
	if assignment.TotalPoints == 0 {
		assignment.TotalPoints = 100
	}
	if assignment.ReleaseDelay == "" {
		assignment.ReleaseDelay = "immediate"
	}
	require.NoError(t, db.Create(&assignment).Error)
	return assignment
}
