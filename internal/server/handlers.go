package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kaiwa/internal/events"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/retrieval"
	"github.com/hyperjump/kaiwa/internal/search"
	"go.uber.org/zap"
)

type contextRequest struct {
	UserID     string `json:"user_id"`
	Namespace  string `json:"namespace,omitempty"`
	ResumeText string `json:"resume_text"`
	JobText    string `json:"job_text"`
}

// namespace resolves the target namespace, preferring an explicit one over the user's.
func namespace(userID, ns string) (string, error) {
	if ns = strings.TrimSpace(ns); ns != "" {
		return ns, nil
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		return retrieval.NamespaceForUser(userID), nil
	}
	return "", fmt.Errorf("%w: user_id or namespace is required", models.ErrInvalidArgument)
}

func (s *Server) handleBuildContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	s.buildContext(w, r, req)
}

// handleUploadContext accepts multipart "resume" and "job" files, with "resume_text" and
// "job_text" form values as alternatives.
func (s *Server) handleUploadContext(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(s.maxUploadBytes()); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := contextRequest{
		UserID:     r.FormValue("user_id"),
		Namespace:  r.FormValue("namespace"),
		ResumeText: r.FormValue("resume_text"),
		JobText:    r.FormValue("job_text"),
	}
	for field, dst := range map[string]*string{"resume": &req.ResumeText, "job": &req.JobText} {
		fhs := r.MultipartForm.File[field]
		if len(fhs) == 0 {
			continue
		}
		text, err := s.extractUpload(fhs[0])
		if err != nil {
			s.fail(w, r, err)
			return
		}
		s.logger.Debug("extracted upload",
			zap.String("field", field),
			zap.String("filename", fhs[0].Filename),
			zap.Int("chars", len(text)))
		*dst = text
	}
	s.buildContext(w, r, req)
}

func (s *Server) extractUpload(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("read upload %s: %w", fh.Filename, err)
	}
	return s.extractor.ExtractNamed(fh.Filename, content)
}

func (s *Server) buildContext(w http.ResponseWriter, r *http.Request, req contextRequest) {
	ns, err := namespace(req.UserID, req.Namespace)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.ResumeText) == "" && strings.TrimSpace(req.JobText) == "" {
		s.respondError(w, http.StatusBadRequest, "resume or job text is required")
		return
	}
	stats, err := s.retrieval.BuildContext(r.Context(), ns, req.ResumeText, req.JobText)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, stats)
}

type queryContextRequest struct {
	UserID    string `json:"user_id"`
	Namespace string `json:"namespace,omitempty"`
	Query     string `json:"query"`
	K         int    `json:"k,omitempty"`
	Source    string `json:"source,omitempty"`
}

type queryContextResponse struct {
	Namespace string                `json:"namespace"`
	Context   string                `json:"context"`
	Results   []models.ScoredRecord `json:"results"`
}

func (s *Server) handleQueryContext(w http.ResponseWriter, r *http.Request) {
	var req queryContextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ns, err := namespace(req.UserID, req.Namespace)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	hits, err := s.retrieval.QueryRecords(r.Context(), ns, req.Query, req.K, req.Source)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if hits == nil {
		hits = []models.ScoredRecord{}
	}
	for i := range hits {
		hits[i].Record.Vector = nil
	}
	s.respondJSON(w, http.StatusOK, queryContextResponse{
		Namespace: ns,
		Context:   retrieval.JoinContext(hits),
		Results:   hits,
	})
}

func (s *Server) handleBuildRAG(w http.ResponseWriter, r *http.Request) {
	var req models.PersonalizedRAGRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	rag, err := s.banks.Personalized.Build(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, events.Event{Type: events.RAGBuilt, UserID: rag.UserID, RAGID: rag.RAGID})
	s.respondJSON(w, http.StatusCreated, rag)
}

func (s *Server) handleGetRAG(w http.ResponseWriter, r *http.Request) {
	rag, err := s.banks.Personalized.Info(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rag)
}

func (s *Server) handleDeleteRAG(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete rag request", zap.String("rag_id", id))
	if err := s.banks.Personalized.Delete(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, events.Event{Type: events.RAGDeleted, RAGID: id})
	s.respondJSON(w, http.StatusOK, map[string]string{"rag_id": id, "status": "deleted"})
}

type questionRequest struct {
	Category   string   `json:"category,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
	Exclude    []string `json:"exclude,omitempty"`
}

func (q questionRequest) parse() (models.Category, models.Difficulty, error) {
	var cat models.Category
	if q.Category != "" {
		c, err := models.ParseCategory(q.Category)
		if err != nil {
			return "", "", err
		}
		cat = c
	}
	d, err := models.ParseDifficulty(q.Difficulty)
	if err != nil {
		return "", "", err
	}
	return cat, d, nil
}

func (s *Server) handleRAGQuestion(w http.ResponseWriter, r *http.Request) {
	s.randomQuestion(w, r, chi.URLParam(r, "id"))
}

func (s *Server) handleRandomQuestion(w http.ResponseWriter, r *http.Request) {
	s.randomQuestion(w, r, "")
}

func (s *Server) randomQuestion(w http.ResponseWriter, r *http.Request, ragID string) {
	var req questionRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		s.fail(w, r, err)
		return
	}
	cat, difficulty, err := req.parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q, err := s.banks.GetRandom(r.Context(), ragID, cat, difficulty, req.Exclude)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, q)
}

type semanticRequest struct {
	Query    string `json:"query"`
	K        int    `json:"k,omitempty"`
	Category string `json:"category,omitempty"`
}

type questionsResponse struct {
	Questions []*models.Question `json:"questions"`
}

func (s *Server) handleRAGQuery(w http.ResponseWriter, r *http.Request) {
	s.querySemantic(w, r, chi.URLParam(r, "id"))
}

func (s *Server) handleQueryQuestions(w http.ResponseWriter, r *http.Request) {
	s.querySemantic(w, r, "")
}

func (s *Server) querySemantic(w http.ResponseWriter, r *http.Request, ragID string) {
	var req semanticRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	var (
		qs  []*models.Question
		err error
	)
	if ragID == "" && req.Category != "" {
		cat, perr := models.ParseCategory(req.Category)
		if perr != nil {
			s.fail(w, r, perr)
			return
		}
		qs, err = s.banks.General.Query(r.Context(), req.Query, req.K, cat)
	} else {
		qs, err = s.banks.QuerySemantic(r.Context(), ragID, req.Query, req.K)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if qs == nil {
		qs = []*models.Question{}
	}
	s.respondJSON(w, http.StatusOK, questionsResponse{Questions: qs})
}

// handleSearchQuestions runs a hybrid search over the general bank:
// ?q=text&limit=10&category=&difficulty=&fuzzy=true&keyword_weight=0.5&semantic_weight=0.5&min_score=0.
func (s *Server) handleSearchQuestions(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()
	query := &search.Query{Text: params.Get("q"), Limit: 10}
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		query.Limit = n
	}
	var err error
	query.Category, query.Difficulty, err = questionRequest{Category: params.Get("category"), Difficulty: params.Get("difficulty")}.parse()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	query.Fuzzy, _ = strconv.ParseBool(params.Get("fuzzy"))
	for name, dst := range map[string]**float64{"keyword_weight": &query.KeywordWeight, "semantic_weight": &query.SemanticWeight} {
		if v := params.Get(name); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				s.respondError(w, http.StatusBadRequest, name+" must be a number")
				return
			}
			*dst = &f
		}
	}
	if v := params.Get("min_score"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "min_score must be a number")
			return
		}
		query.MinScore = f
	}

	resp, err := s.search.Search(r.Context(), query)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	if err := s.banks.General.Rebuild(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	stats, err := s.banks.Stats(r.Context(), "")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

// handleStats reports the general bank, or the personalized bank named by ?rag_id=.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.banks.Stats(r.Context(), r.URL.Query().Get("rag_id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, stats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) publish(r *http.Request, e events.Event) {
	e.At = s.now().UTC()
	if err := s.events.Publish(r.Context(), e); err != nil {
		s.logger.Warn("publish event failed", zap.String("type", e.Type), zap.Error(err))
	}
}
