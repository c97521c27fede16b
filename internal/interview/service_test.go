package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/events"
	"github.com/hyperjump/kaiwa/internal/feedback"
	"github.com/hyperjump/kaiwa/internal/keyword"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/questionbank"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/vector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDims = 64

const goodAnswer = "When our checkout latency doubled I had to find the cause. I did a profiling pass, " +
	"I created a caching layer and the result was a 40% faster page."

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

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type stubTexter struct {
	text string
	err  error
}

func (s stubTexter) GenerateFeedbackText(context.Context, string, string) (string, error) {
	return s.text, s.err
}

type stubContext struct{}

func (stubContext) TechnicalContext(context.Context, string) (string, error) { return "Go, Kafka", nil }
func (stubContext) SoftSkillsContext(context.Context, string) (string, error) {
	return "Led a team of five", nil
}

type stubGenerator struct{}

func (stubGenerator) GenerateQuestion(_ context.Context, cat models.Category, _ string, n, total int) (string, error) {
	return fmt.Sprintf("Generated %s question %d of %d?", cat, n, total), nil
}

type fixture struct {
	svc       *Service
	store     *storage.MemoryStore
	events    *recordingPublisher
	banks     *questionbank.Manager
	aggregate *feedback.Aggregator
}

func newFixture(t *testing.T, opts Options, tweak func(*Deps)) *fixture {
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
	agg := feedback.NewAggregator(feedback.HeuristicJudge{}, store, feedback.Options{}, nil)
	pub := &recordingPublisher{}

	deps := Deps{Store: store, Banks: banks, Aggregator: agg, Events: pub}
	if tweak != nil {
		tweak(&deps)
	}
	return &fixture{svc: NewService(deps, opts), store: store, events: pub, banks: banks, aggregate: agg}
}

func (f *fixture) send(t *testing.T, id, text string) *Reply {
	t.Helper()
	r, err := f.svc.Message(context.Background(), id, text)
	require.NoError(t, err)
	return r
}

func TestMenu_FullSelfIntroSection(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	sess, r, err := f.svc.Start(ctx, StartRequest{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, models.StateGreeting, r.State)
	assert.Equal(t, greetingText, r.Response)
	assert.Equal(t, models.StyleMenu, sess.Config.Style)
	assert.Equal(t, 5, sess.Config.SectionLimit)

	r = f.send(t, sess.ID, "hmm, give me a second")
	assert.Equal(t, models.StateGreeting, r.State)
	assert.Equal(t, notReadyText, r.Response)

	r = f.send(t, sess.ID, "I'm READY")
	assert.Equal(t, models.StateMenu, r.State)
	assert.Equal(t, menuText, r.Response)

	r = f.send(t, sess.ID, "1")
	assert.Equal(t, models.StateSelfIntro, r.State)
	assert.Equal(t, SelfIntroQuestions[0], r.Response)
	require.NotNil(t, r.Question)
	assert.Equal(t, "self_intro_0", r.Question.ID)

	for i := 1; i < 5; i++ {
		r = f.send(t, sess.ID, goodAnswer)
		assert.Equal(t, models.StateSelfIntro, r.State)
		assert.Equal(t, i, r.SectionQuestionIndex)
		assert.Equal(t, fallbackFeedbackText+"\n\n---\n\n"+SelfIntroQuestions[i], r.Response)
		require.NotNil(t, r.Feedback)
	}

	r = f.send(t, sess.ID, goodAnswer)
	assert.Equal(t, models.StateMenu, r.State)
	assert.Equal(t, 0, r.SectionQuestionIndex)
	assert.Equal(t, fallbackFeedbackText+"\n\n"+sectionEndText+menuText, r.Response)
	assert.Nil(t, r.Question)

	got, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, 1+3+5)
	assert.Len(t, got.Responses, 5)
	assert.Len(t, got.FeedbackHistory, 5)
	assert.Len(t, got.AskedQuestionIDs, 5)
	assert.Nil(t, got.CurrentQuestion)
	for i, turn := range got.History[1:] {
		assert.NotEmpty(t, turn.Reply, "turn %d", i)
	}

	summary, err := f.svc.Feedback(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.QuestionsAnswered)
	assert.Equal(t, feedback.PolicyStarWeighted, feedback.Policy(summary.ScoringPolicy))

	_, history, err := f.store.LoadFeedback(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, history, 5)
	assert.Equal(t, []string{events.SessionStarted,
		events.SessionAnswered, events.SessionAnswered, events.SessionAnswered,
		events.SessionAnswered, events.SessionAnswered}, f.events.types())
}

func TestMenu_StopWinsOutsideGreeting(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	sess, _, err := f.svc.Start(context.Background(), StartRequest{UserID: "u1"})
	require.NoError(t, err)

	r := f.send(t, sess.ID, "please stop")
	assert.Equal(t, models.StateGreeting, r.State)
	assert.Equal(t, notReadyText, r.Response)

	f.send(t, sess.ID, "yes")
	r = f.send(t, sess.ID, "2 please")
	assert.Equal(t, models.StateTechnical, r.State)
	require.NotNil(t, r.Question)
	assert.Equal(t, models.CategoryTechnical, r.Question.Category)

	f.send(t, sess.ID, goodAnswer)
	r = f.send(t, sess.ID, "STOP, I need a break")
	assert.Equal(t, models.StateMenu, r.State)
	assert.Equal(t, stopText, r.Response)
	assert.Equal(t, 0, r.SectionQuestionIndex)

	r = f.send(t, sess.ID, "stop")
	assert.Equal(t, models.StateMenu, r.State)
	assert.Equal(t, stopText, r.Response)
}

func TestMenu_UnrecognizedChoiceRePrompts(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	sess, _, err := f.svc.Start(context.Background(), StartRequest{UserID: "u1"})
	require.NoError(t, err)
	f.send(t, sess.ID, "ok")

	r := f.send(t, sess.ID, "maybe later")
	assert.Equal(t, models.StateMenu, r.State)
	assert.Equal(t, badChoiceText, r.Response)

	r = f.send(t, sess.ID, "behavioral questions")
	assert.Equal(t, models.StateSoftSkill, r.State)
	assert.Equal(t, models.CategorySoftSkills, r.Question.Category)
}

func TestMenu_GeneratedQuestionsAndFeedbackText(t *testing.T) {
	f := newFixture(t, Options{SectionLimit: 2}, func(d *Deps) {
		d.Context = stubContext{}
		d.Generator = stubGenerator{}
		d.Texter = stubTexter{text: "Nice structure."}
	})
	sess, _, err := f.svc.Start(context.Background(), StartRequest{UserID: "u1"})
	require.NoError(t, err)
	f.send(t, sess.ID, "ready")

	r := f.send(t, sess.ID, "tech")
	assert.Equal(t, "Generated technical question 1 of 2?", r.Response)
	assert.True(t, strings.HasPrefix(r.Question.ID, "generated_technical_"))

	r = f.send(t, sess.ID, goodAnswer)
	assert.Equal(t, "Nice structure.\n\n---\n\nGenerated technical question 2 of 2?", r.Response)

	r = f.send(t, sess.ID, goodAnswer)
	assert.Equal(t, models.StateMenu, r.State)
	assert.True(t, strings.HasPrefix(r.Response, "Nice structure.\n\nSection complete! "))
}

func TestMenu_FeedbackTextFailureFallsBack(t *testing.T) {
	f := newFixture(t, Options{}, func(d *Deps) {
		d.Texter = stubTexter{err: errors.New("llm down")}
	})
	sess, _, err := f.svc.Start(context.Background(), StartRequest{UserID: "u1"})
	require.NoError(t, err)
	f.send(t, sess.ID, "sure")
	f.send(t, sess.ID, "self intro")

	r := f.send(t, sess.ID, goodAnswer)
	assert.True(t, strings.HasPrefix(r.Response, fallbackFeedbackText))
}

func TestMenu_EndCompletesSession(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	sess, _, err := f.svc.Start(ctx, StartRequest{UserID: "u1"})
	require.NoError(t, err)
	f.send(t, sess.ID, "ready")
	f.send(t, sess.ID, "3")
	f.send(t, sess.ID, goodAnswer)

	r, err := f.svc.End(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateComplete, r.State)
	assert.True(t, r.SessionComplete)
	assert.Equal(t, "complete", r.NextAction)
	assert.Equal(t, completionText, r.Response)
	require.NotNil(t, r.Summary)
	assert.Equal(t, 1, r.Summary.QuestionsAnswered)
	assert.Equal(t, 2, r.Summary.TotalQuestions)

	r = f.send(t, sess.ID, "1")
	assert.Equal(t, models.StateComplete, r.State)
	assert.Equal(t, endedText, r.Response)

	r, err = f.svc.End(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, endedText, r.Response)
	assert.Contains(t, f.events.types(), events.SessionCompleted)
}

func TestFlat_RotatesAndCompletes(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	sess, r, err := f.svc.Start(ctx, StartRequest{
		UserID:       "u1",
		Style:        models.StyleFlat,
		MaxQuestions: 3,
		Categories:   []models.Category{models.CategoryTechnical, models.CategoryBehavioral},
	})
	require.NoError(t, err)
	assert.Equal(t, models.StateStarted, r.State)
	assert.Empty(t, r.Response)

	r = f.send(t, sess.ID, "hello")
	assert.Equal(t, models.StateInProgress, r.State)
	assert.True(t, strings.HasPrefix(r.Response, firstQuestionPrefix))
	assert.Equal(t, models.CategoryTechnical, r.Question.Category)
	assert.Nil(t, r.Feedback)

	r = f.send(t, sess.ID, goodAnswer)
	assert.True(t, strings.HasPrefix(r.Response, nextQuestionPrefix))
	assert.Equal(t, models.CategoryBehavioral, r.Question.Category)
	assert.Equal(t, 1, r.QuestionIndex)
	require.NotNil(t, r.Feedback)

	r = f.send(t, sess.ID, goodAnswer)
	assert.Equal(t, models.CategoryTechnical, r.Question.Category)
	assert.Equal(t, 2, r.QuestionIndex)

	r = f.send(t, sess.ID, goodAnswer)
	assert.Equal(t, models.StateCompleted, r.State)
	assert.Equal(t, completionText, r.Response)
	require.NotNil(t, r.Summary)
	assert.Equal(t, 3, r.Summary.QuestionsAnswered)
	assert.True(t, r.SessionComplete)

	r = f.send(t, sess.ID, "anything else?")
	assert.Equal(t, models.StateCompleted, r.State)
	assert.Equal(t, endedText, r.Response)

	got, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.AskedQuestionIDs, 3)
	assert.Len(t, got.History, 5)
	assert.Equal(t, []string{events.SessionStarted, events.SessionAnswered, events.SessionAnswered,
		events.SessionAnswered, events.SessionCompleted}, f.events.types())
}

func TestFlat_FallsBackWhenBankExhausted(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	sess, _, err := f.svc.Start(context.Background(), StartRequest{
		UserID:       "u1",
		Style:        models.StyleFlat,
		MaxQuestions: 10,
		Categories:   []models.Category{models.CategorySelfIntroduction},
	})
	require.NoError(t, err)

	f.send(t, sess.ID, "go")
	var last *Reply
	for i := 0; i < 7; i++ {
		last = f.send(t, sess.ID, goodAnswer)
	}
	require.NotNil(t, last.Question)
	assert.Equal(t, questionbank.FallbackQuestion, last.Question.Text)

	got, err := f.svc.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, id := range got.AskedQuestionIDs {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, got.AskedQuestionIDs, 8)
}

func TestFlat_PersonalizedBankBuiltAtStart(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	sess, _, err := f.svc.Start(ctx, StartRequest{
		UserID:       "u1",
		Style:        models.StyleFlat,
		MaxQuestions: 10,
		Categories:   []models.Category{models.CategoryTechnical},
		Analysis: &models.MatchAnalysis{
			Strengths:       []string{"Python", "ML pipelines"},
			Gaps:            []string{"Kubernetes"},
			KeywordsMatched: []string{"PyTorch"},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Config.RAGID)

	rag, err := f.banks.Personalized.Info(ctx, sess.Config.RAGID)
	require.NoError(t, err)
	assert.Equal(t, 10, rag.QuestionCount)

	r := f.send(t, sess.ID, "start")
	assert.Regexp(t, `^(strength|skill|generic)_\d+$`, r.Question.ID)
	assert.Equal(t, []string{events.RAGBuilt, events.SessionStarted}, f.events.types())
}

func TestService_ConcurrentMessagesSerialize(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	sess, _, err := f.svc.Start(ctx, StartRequest{UserID: "u1", Style: models.StyleFlat, MaxQuestions: 50})
	require.NoError(t, err)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Message(ctx, sess.ID, goodAnswer)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := f.svc.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, got.History, n)
	assert.Len(t, got.FeedbackHistory, n-1)
	assert.Len(t, got.AskedQuestionIDs, n)
	assert.Equal(t, n-1, got.CurrentQuestionIndex)
}

func TestService_Errors(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()

	_, _, err := f.svc.Start(ctx, StartRequest{})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, _, err = f.svc.Start(ctx, StartRequest{UserID: "u1", Style: "freeform"})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
	_, _, err = f.svc.Start(ctx, StartRequest{UserID: "u1", Categories: []models.Category{"trivia"}})
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	_, err = f.svc.Message(ctx, "missing", "hi")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.End(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = f.svc.Feedback(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

// goneSessions forgets every session, as after expiry.
type goneSessions struct{ storage.SessionStore }

func (goneSessions) GetSession(_ context.Context, id string) (*models.Session, error) {
	return nil, models.NewNotFound("session", id)
}

func TestService_FeedbackAfterSessionExpiry(t *testing.T) {
	f := newFixture(t, Options{}, nil)
	ctx := context.Background()
	require.NoError(t, f.store.AppendFeedback(ctx, "old", "u1", &models.QuestionFeedback{
		QuestionID: "q1", OverallScore: 80, ActiveListening: 4,
		STAR: models.STARScores{Situation: 4, Task: 4, Action: 4, Result: 4},
	}))
	svc := NewService(Deps{Store: goneSessions{f.store}, Banks: f.banks, Aggregator: f.aggregate}, Options{})

	summary, err := svc.Feedback(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, 1, summary.QuestionsAnswered)
	assert.Equal(t, 80.0, summary.OverallScore)
	assert.Equal(t, "u1", summary.UserID)
}

func TestParseSection(t *testing.T) {
	cases := map[string]models.State{
		"1":                   models.StateSelfIntro,
		"Self-Introduction":   models.StateSelfIntro,
		"2":                   models.StateTechnical,
		"technical please":    models.StateTechnical,
		"3":                   models.StateSoftSkill,
		"soft skills":         models.StateSoftSkill,
		"behavior please":     models.StateSoftSkill,
		"intro then tech (2)": models.StateSelfIntro,
	}
	for in, want := range cases {
		got, ok := parseSection(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := parseSection("none of these")
	assert.False(t, ok)
}

func TestIsReady(t *testing.T) {
	assert.True(t, isReady("Okay let's go"))
	assert.True(t, isReady("YES"))
	assert.False(t, isReady("not now"))
}
