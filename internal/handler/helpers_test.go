package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/gema-grader/internal/config"
	"github.com/noah-isme/gema-grader/internal/handler"
	"github.com/noah-isme/gema-grader/internal/middleware"
	"github.com/noah-isme/gema-grader/internal/models"
	"github.com/noah-isme/gema-grader/internal/repository"
	"github.com/noah-isme/gema-grader/internal/router"
	"github.com/noah-isme/gema-grader/internal/service"
	"github.com/noah-isme/gema-grader/pkg/ai"
	"github.com/noah-isme/gema-grader/pkg/extract"
)

const seedToken = "seed-secret"

type stubOracle struct {
	reply string
	err   error
}

func (o *stubOracle) Grade(_ context.Context, _ ai.GradingRequest) (ai.GradingReply, error) {
	if o.err != nil {
		return ai.GradingReply{}, o.err
	}
	return ai.GradingReply{RawText: o.reply, Model: "test-model"}, nil
}

type stubFetcher struct {
	docs map[string][]byte
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	if data, ok := f.docs[url]; ok {
		return data, nil
	}
	return nil, errors.New("unexpected status 404")
}

type graderApp struct {
	app    *fiber.App
	db     *gorm.DB
	oracle *stubOracle
	fetch  *stubFetcher
}

// caller is the identity a test request carries through the fake auth middleware.
type caller struct {
	user        string
	role        string
	institution string
	course      string
}

var (
	learner    = caller{user: "learner-1", role: middleware.RoleLearner, institution: "inst-1", course: "course-1"}
	instructor = caller{user: "instructor-1", role: middleware.RoleInstructor, institution: "inst-1", course: "course-1"}
	admin      = caller{user: "admin-1", role: middleware.RoleAdmin}
)

func setupGraderApp(t *testing.T) *graderApp {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:handler_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Assignment{}, &models.Submission{}, &models.OracleUsage{}))

	validate := validator.New(validator.WithRequiredStructEnabled())
	logger := zerolog.New(io.Discard)
	oracle := &stubOracle{reply: "Score: 8\nFeedback: Solid argument."}
	fetcher := &stubFetcher{docs: map[string][]byte{}}

	assignmentRepo := repository.NewAssignmentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	extractor := extract.NewDefaultExtractor(5, logger)
	dispatcher := service.NewPassbackDispatcher(nil, nil, time.Second, logger)

	gradingService := service.NewGradingService(service.GradingDependencies{
		Resolver:    service.NewAssignmentResolver(assignmentRepo, logger),
		Submissions: submissionRepo,
		Usage:       repository.NewOracleUsageRepository(db),
		Extractor:   extractor,
		Fetcher:     fetcher,
		Oracle:      oracle,
		Passback:    dispatcher,
		Logger:      logger,
	})
	reviewService := service.NewReviewService(submissionRepo, validate, dispatcher, nil, logger)
	assignmentService := service.NewAssignmentService(assignmentRepo, extractor, validate, logger)
	releaseService := service.NewReleaseService(submissionRepo, nil, time.Minute, time.Minute, dispatcher, nil, logger)
	seedService := service.NewSeedService(assignmentRepo, validate, true, seedToken, logger)

	app := fiber.New()
	router.Register(app, config.Config{AppName: "Test", JWTSecret: "secret", SubmissionRateLimit: 100}, router.Dependencies{
		GradingHandler:    handler.NewGradingHandler(gradingService, reviewService, validate, 1, logger),
		ReviewHandler:     handler.NewReviewHandler(reviewService, validate, logger),
		AssignmentHandler: handler.NewAssignmentHandler(assignmentService, validate, 1, logger),
		ReleaseHandler:    handler.NewReleaseHandler(releaseService, logger),
		SeedHandler:       handler.NewSeedHandler(seedService, logger),
		JWTMiddleware:     fakeAuth,
	})

	return &graderApp{app: app, db: db, oracle: oracle, fetch: fetcher}
}

// fakeAuth reads the caller from test headers in place of a signed token.
func fakeAuth(c *fiber.Ctx) error {
	user := c.Get("X-Test-User")
	if user == "" {
		return fiber.NewError(fiber.StatusUnauthorized, "missing test user")
	}
	middleware.SetLaunch(c, middleware.Launch{
		UserID:            user,
		Role:              c.Get("X-Test-Role"),
		InstitutionID:     c.Get("X-Test-Institution"),
		CourseID:          c.Get("X-Test-Course"),
		Platform:          c.Get("X-Test-Platform"),
		ResourceLinkTitle: c.Get("X-Test-Title"),
		AssignmentSlug:    c.Get("X-Test-Slug"),
	})
	return c.Next()
}

func (g *graderApp) createAssignment(t *testing.T, assignment models.Assignment) models.Assignment {
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
	require.NoError(t, g.db.Create(&assignment).Error)
	return assignment
}

func newRequest(t *testing.T, who caller, method, path string, body io.Reader, contentType string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if who.user != "" {
		req.Header.Set("X-Test-User", who.user)
		req.Header.Set("X-Test-Role", who.role)
		req.Header.Set("X-Test-Institution", who.institution)
		req.Header.Set("X-Test-Course", who.course)
	}
	return req
}

func (g *graderApp) do(t *testing.T, who caller, method, path string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	resp, err := g.app.Test(newRequest(t, who, method, path, body, contentType), -1)
	require.NoError(t, err)
	return resp
}

func (g *graderApp) doJSON(t *testing.T, who caller, method, path string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(data)
	}
	return g.do(t, who, method, path, body, fiber.MIMEApplicationJSON)
}

// submitForm posts a multipart submission with optional text and file parts.
func (g *graderApp) submitForm(t *testing.T, who caller, path, text, filename string, file []byte) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if text != "" {
		require.NoError(t, writer.WriteField("text", text))
	}
	if filename != "" {
		part, err := writer.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, writer.Close())
	return g.do(t, who, http.MethodPost, path, body, writer.FormDataContentType())
}

type envelope[T any] struct {
	Success bool              `json:"success"`
	Data    T                 `json:"data"`
	Meta    map[string]int64  `json:"meta"`
	Details map[string]string `json:"details"`
	Message string            `json:"message"`
}

func decodeResponse(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, json.Unmarshal(data, target))
}
