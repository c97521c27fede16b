package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/interview"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestArgsReorder(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		expected []string
	}{
		{"flags after text are moved first", []string{"feature store", "-limit", "5"}, []string{"-limit", "5", "feature store"}},
		{"flags first returns unchanged", []string{"-limit", "5", "feature store"}, []string{"-limit", "5", "feature store"}},
		{"text only returns unchanged", []string{"feature store"}, []string{"feature store"}},
		{"empty args returns unchanged", []string{}, []string{}},
		{"multiple positionals then flags", []string{"one", "two", "-fuzzy"}, []string{"-fuzzy", "one", "two"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, argsReorder(tt.args))
		})
	}
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "kubernetes experience", joinArgs([]string{"kubernetes", "experience"}))
	assert.Equal(t, "kubernetes experience", joinArgs([]string{"kubernetes experience"}))
	assert.Equal(t, "", joinArgs([]string{" ", " "}))
	assert.Equal(t, "", joinArgs(nil))
}

func TestLoadConfig_explicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9191\ninterview:\n  style: flat\n"), 0o600))

	cfg, resolved, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, path, resolved)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "flat", cfg.Interview.Style)
}

func TestLoadConfig_missingExplicitPath(t *testing.T) {
	_, _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestFeedbackJudge(t *testing.T) {
	logger := zap.NewNop()
	chain := llm.NewChain(logger)

	assert.Nil(t, feedbackJudge("none", chain, logger))
	assert.IsType(t, feedback.HeuristicJudge{}, feedbackJudge("heuristic", chain, logger))
	assert.IsType(t, feedback.HeuristicJudge{}, feedbackJudge("llm", nil, logger))
	assert.IsType(t, &llm.Judge{}, feedbackJudge("llm", chain, logger))
}

func TestParseCategories(t *testing.T) {
	got, err := parseCategories([]string{"technical", "behavioral"})
	require.NoError(t, err)
	assert.Equal(t, []models.Category{models.CategoryTechnical, models.CategoryBehavioral}, got)

	_, err = parseCategories([]string{"technical", "trivia"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func memoryConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Backend = "memory"
	cfg.Vector.Backend = "memory"
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 64
	cfg.Embedding.CacheSize = 0
	cfg.Events.NATSURL = ""
	cfg.LLM.Providers = nil
	cfg.Feedback.Judge = "heuristic"
	return cfg
}

func TestInitializeComponents_memory(t *testing.T) {
	ctx := context.Background()
	c, err := initializeComponents(ctx, memoryConfig(t), zap.NewNop())
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.LLM)
	stats, err := c.Banks.Stats(ctx, "")
	require.NoError(t, err)
	assert.Positive(t, stats.Total)

	sess, reply, err := c.Interviews.Start(ctx, interview.StartRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.StateGreeting, reply.State)
	assert.Equal(t, models.StyleMenu, sess.Config.Style)
}

func TestInitializeComponents_rejectsBadCategory(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Interview.Categories = []string{"trivia"}
	_, err := initializeComponents(context.Background(), cfg, zap.NewNop())
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestStatsViaHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/stats" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("rag_id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "personalized rag not found: missing"})
			return
		}
		_ = json.NewEncoder(w).Encode(questionbank.Stats{Total: 42, PersonalizedBanks: 2})
	}))
	defer srv.Close()

	stats, err := statsViaHTTP(srv.URL+"/", "")
	require.NoError(t, err)
	assert.Equal(t, 42, stats.Total)
	assert.Equal(t, 2, stats.PersonalizedBanks)

	_, err = statsViaHTTP(srv.URL, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}
