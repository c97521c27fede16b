package questionbank

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubProvider struct {
	name  string
	q     *models.Question
	err   error
	calls int
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Next(context.Context, Request) (*models.Question, error) {
	s.calls++
	return s.q, s.err
}

func TestChain_FirstHitWins(t *testing.T) {
	miss := &stubProvider{name: "miss", err: models.ErrNotFound}
	broken := &stubProvider{name: "broken", err: errors.New("boom")}
	hit := &stubProvider{name: "hit", q: &models.Question{ID: "q1"}}
	never := &stubProvider{name: "never", q: &models.Question{ID: "q2"}}

	q, from, err := NewChain(zap.NewNop(), miss, broken, hit, never).Next(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "q1", q.ID)
	assert.Equal(t, "hit", from)
	assert.Equal(t, 1, miss.calls)
	assert.Equal(t, 1, broken.calls)
	assert.Zero(t, never.calls)
}

func TestChain_AllMiss(t *testing.T) {
	_, _, err := NewChain(nil, &stubProvider{name: "a", err: models.ErrNotFound}).Next(context.Background(), Request{Category: models.CategoryTechnical})
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestChain_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	later := &stubProvider{name: "later", q: &models.Question{ID: "q"}}
	_, _, err := NewChain(nil, &stubProvider{name: "a", err: context.Canceled}, later).Next(ctx, Request{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, later.calls)
}

func TestChain_PersonalizedThenGeneralThenFallback(t *testing.T) {
	general, _ := newGeneralBank(t, "")
	personal, _, _, _ := newPersonalizedBank(t)
	ctx := context.Background()
	rag, err := personal.Build(ctx, sampleRequest())
	require.NoError(t, err)

	chain := NewChain(zap.NewNop(), PersonalizedProvider{Bank: personal}, GeneralProvider{Bank: general}, FallbackProvider{})

	q, from, err := chain.Next(ctx, Request{RAGID: rag.RAGID, Category: models.CategoryTechnical})
	require.NoError(t, err)
	assert.Equal(t, "personalized", from)
	assert.Equal(t, models.CategoryTechnical, q.Category)

	q, from, err = chain.Next(ctx, Request{RAGID: rag.RAGID, Category: models.CategoryScenario})
	require.NoError(t, err)
	assert.Equal(t, "general", from, "personalized bank has no scenario questions")
	assert.Equal(t, models.CategoryScenario, q.Category)

	q, from, err = chain.Next(ctx, Request{Category: models.CategoryTechnical, Difficulty: models.DifficultyHard})
	require.NoError(t, err)
	assert.Equal(t, "general", from)

	var exclude []string
	for _, gq := range general.Questions(models.CategoryScenario) {
		exclude = append(exclude, gq.ID)
	}
	q, from, err = chain.Next(ctx, Request{Category: models.CategoryScenario, Exclude: exclude})
	require.NoError(t, err)
	assert.Equal(t, "fallback", from)
	assert.Equal(t, FallbackQuestion, q.Text)
	assert.Equal(t, "fallback_6", q.ID)
	assert.Equal(t, []string{"general", "behavioral"}, q.Tags)
}

func TestStaticProvider(t *testing.T) {
	p := StaticProvider{Label: "self_intro", Category: models.CategorySelfIntroduction, Questions: []string{"Who are you?", "Why us?"}}

	q, err := p.Next(context.Background(), Request{Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "self_intro_1", q.ID)
	assert.Equal(t, "Why us?", q.Text)

	_, err = p.Next(context.Background(), Request{Index: 2})
	assert.ErrorIs(t, err, models.ErrNotFound)

	_, err = p.Next(context.Background(), Request{Index: 0, Exclude: []string{"self_intro_0"}})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

type stubContext struct {
	technical, soft string
}

func (s stubContext) TechnicalContext(context.Context, string) (string, error)  { return s.technical, nil }
func (s stubContext) SoftSkillsContext(context.Context, string) (string, error) { return s.soft, nil }

type stubGenerator struct {
	gotCategory models.Category
	gotContext  string
	gotNumber   int
	gotTotal    int
}

func (g *stubGenerator) GenerateQuestion(_ context.Context, cat models.Category, summary string, number, total int) (string, error) {
	g.gotCategory, g.gotContext, g.gotNumber, g.gotTotal = cat, summary, number, total
	return "  How did you scale the PyTorch training jobs?\n", nil
}

func TestGeneratedProvider(t *testing.T) {
	gen := &stubGenerator{}
	p := GeneratedProvider{Generator: gen, Context: stubContext{technical: "[RESUME]: PyTorch", soft: "[JOB_POSTING]: teamwork"}}

	q, err := p.Next(context.Background(), Request{Category: models.CategoryTechnical, ContextNamespace: "user_1", Index: 2, Total: 5})
	require.NoError(t, err)
	assert.Equal(t, "How did you scale the PyTorch training jobs?", q.Text)
	assert.Regexp(t, `^generated_technical_[0-9a-f]{8}$`, q.ID)
	assert.Equal(t, "[RESUME]: PyTorch", gen.gotContext)
	assert.Equal(t, 3, gen.gotNumber)
	assert.Equal(t, 5, gen.gotTotal)

	_, err = p.Next(context.Background(), Request{Category: models.CategorySoftSkills, ContextNamespace: "user_1"})
	require.NoError(t, err)
	assert.Equal(t, "[JOB_POSTING]: teamwork", gen.gotContext)

	_, err = p.Next(context.Background(), Request{Category: models.CategoryTechnical})
	assert.ErrorIs(t, err, models.ErrNotFound, "no namespace")

	empty := GeneratedProvider{Generator: gen, Context: stubContext{}}
	_, err = empty.Next(context.Background(), Request{Category: models.CategoryTechnical, ContextNamespace: "user_1"})
	assert.ErrorIs(t, err, models.ErrNotFound, "no context built yet")
}
