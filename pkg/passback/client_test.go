package passback

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestPostScoreUsesClientCredentials(t *testing.T) {
	var (
		received    map[string]interface{}
		authHeader  string
		contentType string
		path        string
		rawQuery    string
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"platform-token","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/lineitems/7/scores", func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		path = r.URL.Path
		rawQuery = r.URL.RawQuery
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusNoContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(Config{TokenURL: server.URL + "/token", ClientID: "tool", ClientSecret: "secret", Timeout: time.Second}, zerolog.Nop())
	require.NoError(t, err)

	err = client.PostScore(context.Background(), server.URL+"/lineitems/7?type_id=1", Score{
		UserID:       "learner-1",
		ScoreGiven:   8,
		ScoreMaximum: 10,
		Comment:      "Nice work",
		Timestamp:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Equal(t, "Bearer platform-token", authHeader)
	require.Equal(t, scoreContentType, contentType)
	require.Equal(t, "/lineitems/7/scores", path)
	require.Equal(t, "type_id=1", rawQuery)
	require.Equal(t, "learner-1", received["userId"])
	require.Equal(t, 8.0, received["scoreGiven"])
	require.Equal(t, "FullyGraded", received["gradingProgress"])
	require.Equal(t, "2024-05-01T12:00:00Z", received["timestamp"])
}

func TestPostScoreReportsPlatformRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := NewWithHTTPClient(server.Client(), zerolog.Nop())
	err := client.PostScore(context.Background(), server.URL+"/lineitems/1", Score{UserID: "u"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestScoresURLRejectsRelative(t *testing.T) {
	_, err := scoresURL("/lineitems/1")
	require.Error(t, err)
}
