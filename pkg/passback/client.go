package passback

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	scoreContentType = "application/vnd.ims.lis.v1.score+json"
	scoreScope       = "https://purl.imsglobal.org/spec/lti-ags/scope/score"
)

// ErrNotConfigured indicates no platform credentials were provided.
var ErrNotConfigured = errors.New("grade passback not configured")

// Score is the grade posted back to the launching platform.
type Score struct {
	UserID       string
	ScoreGiven   float64
	ScoreMaximum float64
	Comment      string
	Timestamp    time.Time
}

type scorePayload struct {
	UserID           string  `json:"userId"`
	ScoreGiven       float64 `json:"scoreGiven"`
	ScoreMaximum     float64 `json:"scoreMaximum"`
	Comment          string  `json:"comment,omitempty"`
	Timestamp        string  `json:"timestamp"`
	ActivityProgress string  `json:"activityProgress"`
	GradingProgress  string  `json:"gradingProgress"`
}

// Poster posts scores to a platform gradebook.
type Poster interface {
	PostScore(ctx context.Context, lineItemURL string, score Score) error
}

// Config holds the platform OAuth2 client credentials.
type Config struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// Client posts scores through the LTI Assignment and Grade Services API.
type Client struct {
	http   *http.Client
	logger zerolog.Logger
}

// New builds a client authenticated with the client-credentials grant.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.TokenURL == "" || cfg.ClientID == "" {
		return nil, ErrNotConfigured
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{scoreScope}
	}

	cc := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       scopes,
	}
	httpClient := cc.Client(context.Background())
	if cfg.Timeout > 0 {
		httpClient.Timeout = cfg.Timeout
	}

	return NewWithHTTPClient(httpClient, logger), nil
}

// NewWithHTTPClient wraps an already authenticated HTTP client.
func NewWithHTTPClient(httpClient *http.Client, logger zerolog.Logger) *Client {
	return &Client{
		http:   httpClient,
		logger: logger.With().Str("component", "passback").Logger(),
	}
}

// PostScore sends a fully graded score to {lineItemURL}/scores.
func (c *Client) PostScore(ctx context.Context, lineItemURL string, score Score) error {
	endpoint, err := scoresURL(lineItemURL)
	if err != nil {
		return err
	}

	timestamp := score.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	body, err := json.Marshal(scorePayload{
		UserID:           score.UserID,
		ScoreGiven:       score.ScoreGiven,
		ScoreMaximum:     score.ScoreMaximum,
		Comment:          score.Comment,
		Timestamp:        timestamp.UTC().Format(time.RFC3339),
		ActivityProgress: "Completed",
		GradingProgress:  "FullyGraded",
	})
	if err != nil {
		return fmt.Errorf("encode score: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build score request: %w", err)
	}
	req.Header.Set("Content-Type", scoreContentType)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post score: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode/100 != 2 {
		return fmt.Errorf("post score: %s", res.Status)
	}

	c.logger.Debug().Str("user_id", score.UserID).Str("endpoint", endpoint).Msg("score posted")
	return nil
}

// scoresURL appends /scores to the line item path, keeping any query string.
func scoresURL(lineItemURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(lineItemURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid line item url %q", lineItemURL)
	}
	parsed.Path = strings.TrimSuffix(parsed.Path, "/") + "/scores"
	return parsed.String(), nil
}
