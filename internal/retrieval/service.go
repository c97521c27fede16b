// Package retrieval builds per-user résumé/job-posting vector namespaces and answers
// semantic context queries over them.
package retrieval

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/hyperjump/kaiwa/internal/chunker"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/hyperjump/kaiwa/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Canned context queries.
const (
	TechnicalQuery  = "technical skills programming tools technologies"
	SoftSkillsQuery = "teamwork communication leadership collaboration"
)

// contextSeparator joins retrieved fragments.
const contextSeparator = "\n\n---\n\n"

// BuildStats reports what BuildContext indexed.
type BuildStats struct {
	Namespace    string `json:"namespace"`
	ResumeChunks int    `json:"resume_chunks"`
	JobChunks    int    `json:"job_chunks"`
	TotalChunks  int    `json:"total_chunks"`
}

// Options tunes query sizes. Zero values fall back to 5 and 4.
type Options struct {
	DefaultK int
	ContextK int
}

// Service orchestrates chunking, embedding and namespace population.
type Service struct {
	store    vector.Store
	embedder embedding.Embedder
	chunker  *chunker.Chunker
	locks    *utils.KeyedMutex
	defaultK int
	contextK int
	logger   *zap.Logger
}

// NewService creates a retrieval service over store and embedder.
func NewService(store vector.Store, embedder embedding.Embedder, ch *chunker.Chunker, opts Options, logger *zap.Logger) *Service {
	if opts.DefaultK <= 0 {
		opts.DefaultK = 5
	}
	if opts.ContextK <= 0 {
		opts.ContextK = 4
	}
	return &Service{
		store:    store,
		embedder: embedder,
		chunker:  ch,
		locks:    utils.NewKeyedMutex(),
		defaultK: opts.DefaultK,
		contextK: opts.ContextK,
		logger:   utils.OrNop(logger),
	}
}

// BuildContext section-chunks the résumé and the job posting, embeds both sets concurrently and
// replaces namespace with the result.
func (s *Service) BuildContext(ctx context.Context, namespace, resumeText, jobText string) (*BuildStats, error) {
	resume := s.chunker.ChunkBySections(models.SourceResume, chunker.Preprocess(resumeText))
	job := s.chunker.ChunkBySections(models.SourceJobPosting, chunker.Preprocess(jobText))

	var resumeVecs, jobVecs [][]float32
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		resumeVecs, err = s.embedder.EmbedBatch(gctx, texts(resume))
		return err
	})
	g.Go(func() error {
		var err error
		jobVecs, err = s.embedder.EmbedBatch(gctx, texts(job))
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("embed context: %w", err)
	}

	records := append(toRecords(resume, resumeVecs), toRecords(job, jobVecs)...)
	if err := s.replace(ctx, namespace, records); err != nil {
		return nil, err
	}
	stats := &BuildStats{
		Namespace:    namespace,
		ResumeChunks: len(resume),
		JobChunks:    len(job),
		TotalChunks:  len(records),
	}
	s.logger.Info("context built",
		zap.String("namespace", namespace),
		zap.Int("resume_chunks", stats.ResumeChunks),
		zap.Int("job_chunks", stats.JobChunks))
	return stats, nil
}

// BuildFromChunks embeds pre-made chunks and replaces namespace with them.
func (s *Service) BuildFromChunks(ctx context.Context, namespace string, chunks []models.Chunk) (*BuildStats, error) {
	vecs, err := s.embedder.EmbedBatch(ctx, texts(chunks))
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	if err := s.replace(ctx, namespace, toRecords(chunks, vecs)); err != nil {
		return nil, err
	}
	stats := &BuildStats{Namespace: namespace, TotalChunks: len(chunks)}
	for _, c := range chunks {
		switch c.Source {
		case models.SourceResume:
			stats.ResumeChunks++
		case models.SourceJobPosting:
			stats.JobChunks++
		}
	}
	return stats, nil
}

// replace commits records even if ctx is cancelled after embedding finished.
func (s *Service) replace(ctx context.Context, namespace string, records []models.VectorRecord) error {
	unlock := s.locks.Lock(namespace)
	defer unlock()
	if err := s.store.Upsert(context.WithoutCancel(ctx), namespace, records); err != nil {
		return fmt.Errorf("upsert namespace %s: %w", namespace, err)
	}
	return nil
}

// QueryRecords returns the top-k records for queryText, optionally restricted to one source label.
// An absent namespace yields no records and no error.
func (s *Service) QueryRecords(ctx context.Context, namespace, queryText string, k int, source string) ([]models.ScoredRecord, error) {
	ok, err := s.store.Exists(ctx, namespace)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if k <= 0 {
		k = s.defaultK
	}
	vec, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	var filter map[string]string
	if source != "" {
		filter = map[string]string{models.MetaSource: source}
	}
	return s.store.Query(ctx, namespace, vec, k, filter)
}

// Query returns the top-k fragments as one string, each prefixed with its upper-cased source
// label and separated by "---" rules. An absent namespace yields "".
func (s *Service) Query(ctx context.Context, namespace, queryText string, k int, source string) (string, error) {
	hits, err := s.QueryRecords(ctx, namespace, queryText, k, source)
	if err != nil {
		return "", err
	}
	return JoinContext(hits), nil
}

// TechnicalContext retrieves fragments about tools and technologies.
func (s *Service) TechnicalContext(ctx context.Context, namespace string) (string, error) {
	return s.Query(ctx, namespace, TechnicalQuery, s.contextK, "")
}

// SoftSkillsContext retrieves fragments about teamwork and communication.
func (s *Service) SoftSkillsContext(ctx context.Context, namespace string) (string, error) {
	return s.Query(ctx, namespace, SoftSkillsQuery, s.contextK, "")
}

// HasContext reports whether namespace has been built.
func (s *Service) HasContext(ctx context.Context, namespace string) (bool, error) {
	return s.store.Exists(ctx, namespace)
}

// DeleteContext removes namespace. Deleting an absent namespace is not an error.
func (s *Service) DeleteContext(ctx context.Context, namespace string) error {
	unlock := s.locks.Lock(namespace)
	defer unlock()
	return s.store.Delete(ctx, namespace)
}

// JoinContext renders hits as "[SOURCE]: document" fragments.
func JoinContext(hits []models.ScoredRecord) string {
	parts := make([]string, 0, len(hits))
	for _, h := range hits {
		label := h.Record.Metadata[models.MetaSource]
		if label == "" {
			label = "unknown"
		}
		parts = append(parts, fmt.Sprintf("[%s]: %s", strings.ToUpper(label), h.Record.Document))
	}
	return strings.Join(parts, contextSeparator)
}

const maxNamespaceLen = 50

// NamespaceForUser derives a store-safe namespace from a user id. Names longer than 50 bytes are
// cut on a rune boundary and end in 8 hex digits of md5(userID), so distinct ids stay distinct.
func NamespaceForUser(userID string) string {
	clean := strings.NewReplacer("-", "_", "@", "_at_").Replace(userID)
	ns := "user_" + clean
	if len(ns) <= maxNamespaceLen {
		return ns
	}
	sum := md5.Sum([]byte(userID))
	suffix := "_" + hex.EncodeToString(sum[:4])
	cut := maxNamespaceLen - len(suffix)
	for cut > 0 && !utf8.RuneStart(ns[cut]) {
		cut--
	}
	return ns[:cut] + suffix
}

func texts(chunks []models.Chunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func toRecords(chunks []models.Chunk, vecs [][]float32) []models.VectorRecord {
	out := make([]models.VectorRecord, len(chunks))
	for i, c := range chunks {
		out[i] = models.VectorRecord{
			ID:       c.ID,
			Vector:   vecs[i],
			Document: c.Text,
			Metadata: models.Metadata{
				models.MetaSource:     c.Source,
				models.MetaChunkIndex: strconv.Itoa(c.Ordinal),
			},
		}
	}
	return out
}
