package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	oracleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "grader",
		Subsystem: "oracle",
		Name:      "request_duration_seconds",
		Help:      "Duration of grading oracle requests",
	}, []string{"model"})

	oracleFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "grader",
		Subsystem: "oracle",
		Name:      "request_failures_total",
		Help:      "Number of grading oracle failures",
	}, []string{"model"})
)

// OpenAIConfig defines configuration options for the OpenAI oracle.
type OpenAIConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAIOracle implements Oracle against the OpenAI chat completion API.
type OpenAIOracle struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIOracle builds a new oracle using the provided configuration.
func NewOpenAIOracle(cfg OpenAIConfig) (*OpenAIOracle, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 1000
	}

	if cfg.Temperature == 0 {
		cfg.Temperature = 0.5
	}

	tracer := otel.Tracer("github.com/noah-isme/gema-grader/pkg/ai/openai")
	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIOracle{
		client: client,
		cfg:    cfg,
		tracer: tracer,
		logger: logger.With().Str("component", "openai_oracle").Logger(),
	}, nil
}

// Grade sends the grading prompt to OpenAI and returns the raw reply text.
func (o *OpenAIOracle) Grade(parent context.Context, input GradingRequest) (GradingReply, error) {
	model := o.cfg.Model
	if strings.TrimSpace(input.Model) != "" {
		model = strings.TrimSpace(input.Model)
	}

	ctx, span := o.tracer.Start(parent, "openai.grade", trace.WithAttributes(
		attribute.String("model", model),
		attribute.Int("points_budget", input.PointsBudget),
	))
	defer span.End()

	start := time.Now()
	request := openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: BuildPrompt(input),
			},
		},
	}

	resp, err := o.client.CreateChatCompletion(ctx, request)
	oracleDuration.WithLabelValues(model).Observe(time.Since(start).Seconds())
	if err != nil {
		oracleFailures.WithLabelValues(model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradingReply{}, fmt.Errorf("openai grade: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := fmt.Errorf("no choices returned from openai")
		oracleFailures.WithLabelValues(model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return GradingReply{}, err
	}

	o.logger.Debug().Str("model", model).Int("total_tokens", resp.Usage.TotalTokens).Msg("oracle reply received")

	return GradingReply{
		RawText: strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:   model,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

// BuildPrompt renders the request into the single user message sent to the model.
func BuildPrompt(input GradingRequest) string {
	builder := strings.Builder{}
	builder.WriteString(strings.TrimSpace(input.Instructions))
	builder.WriteString("\n\nRubric:\n")
	builder.WriteString(input.RubricText)
	builder.WriteString("\n\nStudent Submission:\n---\n")
	builder.WriteString(input.SubmissionText)
	builder.WriteString("\n---\n\nReturn your response in this format:\n\n")
	builder.WriteString(fmt.Sprintf("Score: <number from 0 to %d>\n", input.PointsBudget))
	builder.WriteString("Feedback: <detailed, helpful feedback>")
	return builder.String()
}
