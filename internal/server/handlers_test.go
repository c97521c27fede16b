package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kaiwa/internal/chunker"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/events"
	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/interview"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/search"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 64

const resumeText = `Summary
Backend engineer with six years of Go and Kubernetes experience.

Experience
Built a payments platform handling 2M requests per day. Led a team of four engineers.

Skills
Go, PostgreSQL, Kafka, Kubernetes, gRPC`

const jobText = `Requirements
Strong Go skills and experience operating Kubernetes clusters in production.`

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Close() error { return nil }

func (r *recordingPublisher) has(typ string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

type testServer struct {
	handler http.Handler
	events  *recordingPublisher
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()
	vectors, err := vector.NewMemoryStore(testDims)
	require.NoError(t, err)
	embedder := embedding.NewHashEmbedder(testDims)
	idx, err := keyword.NewQuestionIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	general := questionbank.NewGeneralBank(vectors, embedder, idx, "", nil)
	require.NoError(t, general.EnsureGeneral(ctx))
	store := storage.NewMemoryStore()
	personalized := questionbank.NewPersonalizedBank(vectors, embedder, store, questionbank.PersonalizedOptions{}, nil)
	banks := questionbank.NewManager(general, personalized)
	ret := retrieval.NewService(vectors, embedder, chunker.NewChunker(500, 50), retrieval.Options{}, nil)
	agg := feedback.NewAggregator(feedback.HeuristicJudge{}, store, feedback.Options{}, nil)
	pub := &recordingPublisher{}

	svc := interview.NewService(interview.Deps{
		Store:      store,
		Banks:      banks,
		Context:    ret,
		Aggregator: agg,
		Events:     pub,
	}, interview.Options{})

	srv := NewServer(Deps{
		Retrieval:  ret,
		Banks:      banks,
		Interviews: svc,
		Events:     pub,
	}, &config.ServerConfig{})
	return &testServer{handler: srv.Handler(), events: pub}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out), w.Body.String())
	return out
}

func TestHandleHealth(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, w)["status"])
}

func TestContext_buildAndQuery(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/context", contextRequest{
		UserID:     "jane@example.com",
		ResumeText: resumeText,
		JobText:    jobText,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	stats := decode[retrieval.BuildStats](t, w)
	assert.Equal(t, retrieval.NamespaceForUser("jane@example.com"), stats.Namespace)
	assert.Positive(t, stats.ResumeChunks)
	assert.Positive(t, stats.JobChunks)

	w = ts.do(t, http.MethodPost, "/api/v1/context/query", queryContextRequest{
		UserID: "jane@example.com",
		Query:  "Kubernetes experience",
		K:      2,
		Source: models.SourceResume,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	out := decode[queryContextResponse](t, w)
	require.NotEmpty(t, out.Results)
	assert.LessOrEqual(t, len(out.Results), 2)
	assert.True(t, strings.HasPrefix(out.Context, "[RESUME]: "))
	for _, hit := range out.Results {
		assert.Nil(t, hit.Record.Vector)
	}
}

func TestContext_queryUnknownNamespaceIsEmpty(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/context/query", queryContextRequest{UserID: "nobody", Query: "Go"})
	require.Equal(t, http.StatusOK, w.Code)
	out := decode[queryContextResponse](t, w)
	assert.Empty(t, out.Results)
	assert.Empty(t, out.Context)
}

func TestContext_validation(t *testing.T) {
	ts := newTestServer(t)
	tests := []struct {
		name string
		path string
		body any
	}{
		{"no user", "/api/v1/context", contextRequest{ResumeText: resumeText}},
		{"no text", "/api/v1/context", contextRequest{UserID: "u1"}},
		{"bad json", "/api/v1/context", "{"},
		{"no query", "/api/v1/context/query", queryContextRequest{UserID: "u1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.NotEmpty(t, decode[map[string]any](t, w)["error"])
		})
	}
}

func TestContext_upload(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("user_id", "u-upload"))
	require.NoError(t, mw.WriteField("job_text", jobText))
	fw, err := mw.CreateFormFile("resume", "resume.txt")
	require.NoError(t, err)
	_, err = fw.Write([]byte(resumeText))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/api/v1/context/upload", &body)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, r)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	stats := decode[retrieval.BuildStats](t, w)
	assert.Equal(t, retrieval.NamespaceForUser("u-upload"), stats.Namespace)
	assert.Positive(t, stats.ResumeChunks)
	assert.Positive(t, stats.JobChunks)
}

func TestContext_uploadRejectsNonMultipart(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/context/upload", contextRequest{UserID: "u1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessions_lifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions", interview.StartRequest{UserID: "u1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	started := decode[startResponse](t, w)
	require.NotNil(t, started.Session)
	id := started.Session.ID
	assert.Equal(t, models.StateGreeting, started.Reply.State)
	assert.True(t, ts.events.has(events.SessionStarted))

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", messageRequest{Message: "ready"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, models.StateMenu, decode[interview.Reply](t, w).State)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", messageRequest{Message: "1"})
	require.Equal(t, http.StatusOK, w.Code)
	reply := decode[interview.Reply](t, w)
	assert.Equal(t, models.StateSelfIntro, reply.State)
	require.NotNil(t, reply.Question)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/messages", messageRequest{
		Message: "When I joined the team I had to migrate billing. I did the design and the result was zero downtime.",
	})
	require.Equal(t, http.StatusOK, w.Code)
	reply = decode[interview.Reply](t, w)
	require.NotNil(t, reply.Feedback)

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess := decode[models.Session](t, w)
	assert.Len(t, sess.AskedQuestionIDs, 2)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions/"+id+"/end", nil)
	require.Equal(t, http.StatusOK, w.Code)
	ended := decode[interview.Reply](t, w)
	assert.True(t, ended.SessionComplete)
	assert.True(t, ts.events.has(events.SessionCompleted))

	w = ts.do(t, http.MethodGet, "/api/v1/sessions/"+id+"/feedback", nil)
	require.Equal(t, http.StatusOK, w.Code)
	summary := decode[models.SessionSummary](t, w)
	assert.Equal(t, 1, summary.QuestionsAnswered)
	assert.Equal(t, 2, summary.TotalQuestions)
}

func TestSessions_errors(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/sessions", interview.StartRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodPost, "/api/v1/sessions", map[string]any{"user_id": "u1", "style": "carousel"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, path := range []string{"/api/v1/sessions/missing", "/api/v1/sessions/missing/feedback"} {
		w = ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w = ts.do(t, http.MethodPost, "/api/v1/sessions/missing/messages", messageRequest{Message: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodPost, "/api/v1/sessions/missing/end", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRAGs_lifecycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/rags", models.PersonalizedRAGRequest{
		UserID: "u1",
		Analysis: models.MatchAnalysis{
			Strengths:       []string{"Go microservices"},
			Gaps:            []string{"Terraform"},
			KeywordsMatched: []string{"kubernetes"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rag := decode[models.PersonalizedRAG](t, w)
	require.NotEmpty(t, rag.RAGID)
	assert.Positive(t, rag.QuestionCount)
	assert.True(t, ts.events.has(events.RAGBuilt))

	w = ts.do(t, http.MethodGet, "/api/v1/rags/"+rag.RAGID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", decode[models.PersonalizedRAG](t, w).UserID)

	w = ts.do(t, http.MethodPost, "/api/v1/rags/"+rag.RAGID+"/question", questionRequest{})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[models.Question](t, w).ID)

	w = ts.do(t, http.MethodPost, "/api/v1/rags/"+rag.RAGID+"/query", semanticRequest{Query: "Terraform", K: 3})
	require.Equal(t, http.StatusOK, w.Code)
	qs := decode[questionsResponse](t, w).Questions
	assert.NotEmpty(t, qs)
	assert.LessOrEqual(t, len(qs), 3)

	w = ts.do(t, http.MethodGet, "/api/v1/stats?rag_id="+rag.RAGID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, rag.QuestionCount, decode[questionbank.Stats](t, w).Total)

	w = ts.do(t, http.MethodDelete, "/api/v1/rags/"+rag.RAGID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.events.has(events.RAGDeleted))

	w = ts.do(t, http.MethodGet, "/api/v1/rags/"+rag.RAGID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = ts.do(t, http.MethodDelete, "/api/v1/rags/"+rag.RAGID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRAGs_buildRequiresUser(t *testing.T) {
	ts := newTestServer(t)
	w := ts.do(t, http.MethodPost, "/api/v1/rags", models.PersonalizedRAGRequest{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestions_random(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/questions/random", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, decode[models.Question](t, w).ID)

	w = ts.do(t, http.MethodPost, "/api/v1/questions/random", questionRequest{Category: "technical", Difficulty: "hard"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	q := decode[models.Question](t, w)
	assert.Equal(t, models.CategoryTechnical, q.Category)
	assert.Equal(t, models.DifficultyHard, q.Difficulty)

	w = ts.do(t, http.MethodPost, "/api/v1/questions/random", questionRequest{Category: "astrology"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQuestions_queryAndSearch(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/v1/questions/query", semanticRequest{Query: "feature store design", K: 2, Category: "technical"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	qs := decode[questionsResponse](t, w).Questions
	require.NotEmpty(t, qs)
	for _, q := range qs {
		assert.Equal(t, models.CategoryTechnical, q.Category)
	}

	w = ts.do(t, http.MethodGet, "/api/v1/questions/search?q=feature+store&limit=3&semantic_weight=0", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[search.Response](t, w)
	require.NotEmpty(t, res.Results)
	assert.LessOrEqual(t, len(res.Results), 3)
	assert.Contains(t, res.Results[0].Question.Text, "feature store")
	assert.Equal(t, 1, res.Results[0].Rank)
	assert.Equal(t, 0.0, res.Results[0].SemanticScore)

	w = ts.do(t, http.MethodGet, "/api/v1/questions/search?q=feature+store&category=technical", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res = decode[search.Response](t, w)
	require.NotEmpty(t, res.Results)
	for _, r := range res.Results {
		assert.Equal(t, models.CategoryTechnical, r.Question.Category)
	}

	for _, path := range []string{
		"/api/v1/questions/search",
		"/api/v1/questions/search?q=x&limit=zero",
		"/api/v1/questions/search?q=x&difficulty=impossible",
		"/api/v1/questions/search?q=x&keyword_weight=heavy",
		"/api/v1/questions/search?q=x&keyword_weight=0&semantic_weight=0",
	} {
		w = ts.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
}

func TestQuestions_rebuildAndStats(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	before := decode[questionbank.Stats](t, w)
	assert.Positive(t, before.Total)

	w = ts.do(t, http.MethodPost, "/api/v1/questions/rebuild", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	after := decode[questionbank.Stats](t, w)
	assert.Equal(t, before.Total, after.Total)
	assert.Equal(t, before.ByCategory, after.ByCategory)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{models.NewNotFound("session", "s1"), http.StatusNotFound},
		{fmt.Errorf("wrapped: %w", models.ErrInvalidState), http.StatusConflict},
		{fmt.Errorf("%w: bad", models.ErrInvalidArgument), http.StatusBadRequest},
		{fmt.Errorf("embed: %w", models.NewCollaboratorError("embedding", "embed", errors.New("timeout"))), http.StatusServiceUnavailable},
		{&models.DimensionError{Expected: 64, Got: 3}, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestFail_collaboratorBody(t *testing.T) {
	srv := NewServer(Deps{}, nil)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	srv.fail(w, r, models.NewCollaboratorError("llm", "chat", errors.New("all providers failed")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "llm", body["collaborator"])
	assert.Equal(t, true, body["retryable"])
}
