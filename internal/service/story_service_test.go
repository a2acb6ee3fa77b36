package service_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"storybook-server/internal/ai"
	"storybook-server/internal/assets"
	"storybook-server/internal/ledger"
	"storybook-server/internal/rollout"
	"storybook-server/internal/service"
	sharedMocks "storybook-server/shared/interfaces/mocks"
	"storybook-server/shared/models"
)

// memCredits - журнал кредитов в памяти с теми же гарантиями, что и Postgres-реализация.
type memCredits struct {
	mu  sync.Mutex
	txs []models.CreditTransaction
}

func (m *memCredits) balance(userID string) int64 {
	var sum int64
	for _, tx := range m.txs {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum
}

func (m *memCredits) GetAccount(_ context.Context, userID string) (*models.CreditAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &models.CreditAccount{UserID: userID, Balance: m.balance(userID)}, nil
}

func (m *memCredits) Apply(_ context.Context, userID string, amount int64, reason models.CreditReason, ref *string) (*models.CreditTransaction, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ref != nil {
		for _, tx := range m.txs {
			if tx.UserID == userID && tx.Reason == reason && tx.Reference != nil && *tx.Reference == *ref {
				return nil, 0, models.ErrDuplicateTransaction
			}
		}
	}
	if amount < 0 && m.balance(userID)+amount < 0 {
		return nil, 0, models.ErrInsufficientCredits
	}
	tx := models.CreditTransaction{ID: uuid.New(), UserID: userID, Amount: amount, Reason: reason, Reference: ref}
	m.txs = append(m.txs, tx)
	return &tx, m.balance(userID), nil
}

func (m *memCredits) ListTransactions(_ context.Context, userID string, _, _ int) ([]models.CreditTransaction, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.CreditTransaction
	for _, tx := range m.txs {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, len(out), nil
}

// memGraph - граф историй в памяти, реализует StoryRepository.
type memGraph struct {
	mu       sync.Mutex
	stories  map[uuid.UUID]*models.Story
	segments map[uuid.UUID][]models.Segment
}

func newMemGraph() *memGraph {
	return &memGraph{stories: map[uuid.UUID]*models.Story{}, segments: map[uuid.UUID][]models.Segment{}}
}

func (g *memGraph) CreateWithFirstSegment(_ context.Context, story *models.Story, first *models.Segment) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	story.SegmentCount = 1
	story.IsCompleted = first.IsEnd
	cp := *story
	g.stories[story.ID] = &cp
	g.segments[story.ID] = []models.Segment{*first}
	return nil
}

func (g *memGraph) GetByID(_ context.Context, id uuid.UUID) (*models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.stories[id]
	if !ok {
		return nil, models.ErrStoryNotFound
	}
	cp := *st
	return &cp, nil
}

func (g *memGraph) ListByUser(_ context.Context, userID string, _ models.StoryFilter) (models.StoryPage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var page models.StoryPage
	for _, st := range g.stories {
		if st.UserID == userID {
			page.Stories = append(page.Stories, *st)
		}
	}
	page.Total = len(page.Stories)
	return page, nil
}

// memSegments - представление memGraph как SegmentRepository.
type memSegments struct{ *memGraph }

func (g memSegments) GetByID(_ context.Context, id uuid.UUID) (*models.Segment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.segmentByID(id)
}

func (g *memGraph) segmentByID(id uuid.UUID) (*models.Segment, error) {
	for _, segs := range g.segments {
		for i := range segs {
			if segs[i].ID == id {
				cp := segs[i]
				return &cp, nil
			}
		}
	}
	return nil, models.ErrSegmentNotFound
}

func (g *memGraph) ListByStory(_ context.Context, storyID uuid.UUID) ([]models.Segment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := append([]models.Segment(nil), g.segments[storyID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (g *memGraph) GetLatest(_ context.Context, storyID uuid.UUID) (*models.Segment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	segs := g.segments[storyID]
	if len(segs) == 0 {
		return nil, models.ErrSegmentNotFound
	}
	cp := segs[len(segs)-1]
	return &cp, nil
}

func (g *memGraph) Append(_ context.Context, storyID uuid.UUID, draft models.SegmentDraft) (*models.Segment, *models.Story, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	st, ok := g.stories[storyID]
	if !ok {
		return nil, nil, models.ErrStoryNotFound
	}
	if st.IsCompleted {
		return nil, nil, models.ErrStoryCompleted
	}
	segs := g.segments[storyID]
	parent := &segs[len(segs)-1]
	draft.TargetChapters = st.TargetChapters
	seg := draft.Finalize(storyID, parent.Position+1, &parent.ID)
	if draft.ChoiceIndex != nil {
		idx := *draft.ChoiceIndex
		if idx < 0 || idx >= len(parent.Choices) {
			return nil, nil, models.ErrInvalidChoice
		}
		parent.Choices[idx].NextSegmentID = &seg.ID
	}
	g.segments[storyID] = append(segs, seg)
	st.SegmentCount++
	st.IsCompleted = seg.IsEnd
	cp := *st
	return &seg, &cp, nil
}

func (g *memGraph) TransitionAsset(_ context.Context, segmentID uuid.UUID, _ models.AssetKind, _ []models.AssetStatus, _ models.AssetStatus, _, _ *string) (*models.Segment, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.segmentByID(segmentID)
}

type fakeGenerator struct {
	err      error
	requests []ai.StoryRequest
}

func (f *fakeGenerator) GenerateSegment(_ context.Context, _ string, req ai.StoryRequest) (*ai.GeneratedSegment, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GeneratedSegment{
		Draft: models.SegmentDraft{
			Content:     fmt.Sprintf("Chapter %d: Mila and the fox followed the glowing river.", req.Position),
			Choices:     []string{"Cross the mossy bridge", "Ask the owl for directions"},
			ImagePrompt: "A girl and a fox beside a glowing river",
		},
		Version:  rollout.VersionLegacy,
		Provider: "openai",
	}, nil
}

type fakeDispatcher struct {
	mu    sync.Mutex
	kinds []models.AssetKind
	err   error
}

func (f *fakeDispatcher) Enqueue(_ context.Context, _ *models.Story, seg *models.Segment, kind models.AssetKind, _ assets.EnqueueOptions) (*models.Segment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
	if f.err != nil {
		return nil, f.err
	}
	out := *seg
	if kind == models.AssetKindImage {
		out.ImageStatus = models.AssetStatusInProgress
	} else {
		out.AudioStatus = models.AssetStatusInProgress
	}
	return &out, nil
}

type harness struct {
	svc     service.StoryService
	graph   *memGraph
	credits *memCredits
	ledger  *ledger.Service
	gen     *fakeGenerator
	disp    *fakeDispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{graph: newMemGraph(), credits: &memCredits{}, gen: &fakeGenerator{}, disp: &fakeDispatcher{}}
	h.ledger = ledger.NewService(h.credits, 0, zap.NewNop())
	h.svc = service.NewStoryService(h.graph, memSegments{h.graph}, h.gen, h.disp, h.ledger, zap.NewNop())
	return h
}

func (h *harness) fund(t *testing.T, userID string, amount int64) {
	t.Helper()
	_, err := h.ledger.Grant(context.Background(), userID, amount, models.ReasonPurchase, nil)
	require.NoError(t, err)
}

var owner = models.AuthUser{ID: "user-owner", Role: models.RoleUser}

func TestCreateStory_DebitsQuotedCost(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 50)
	ctx := context.Background()

	params := models.StoryParams{
		Title:           "Mila and the River Fox",
		Genre:           "Adventure",
		AgeGroup:        "7-9",
		WordsPerChapter: 120,
		IncludeImages:   true,
		Characters:      []models.StoryCharacter{{Name: " Mila "}, {Name: ""}},
	}
	res, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: params})
	require.NoError(t, err)

	want := ledger.Quote(models.StoryLengthMedium, true, false)
	assert.Equal(t, want, res.Quote)
	balance, err := h.ledger.GetBalance(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 50-want.TotalCost, balance)

	assert.Equal(t, 1, res.FirstSegment.Position)
	assert.NotEmpty(t, res.FirstSegment.Choices)
	assert.Equal(t, models.AssetStatusInProgress, res.FirstSegment.ImageStatus)
	assert.Equal(t, models.AssetStatusInProgress, res.Story.ImageStatus)
	assert.Equal(t, []models.AssetKind{models.AssetKindImage}, h.disp.kinds)

	assert.Equal(t, "adventure", res.Story.Genre)
	assert.Equal(t, 120, res.Story.WordsPerChapter)
	assert.Equal(t, 10, res.Story.TargetChapters)
	require.Len(t, res.Story.Characters, 1)
	assert.Equal(t, "Mila", res.Story.Characters[0].Name)
	assert.Equal(t, 1, h.gen.requests[0].Position)
}

func TestCreateStory_WithoutAssetQueue(t *testing.T) {
	ctx := context.Background()
	params := models.StoryParams{Title: "Mila and the River Fox", Genre: "adventure", AgeGroup: "7-9"}

	tests := []struct {
		name   string
		images bool
		audio  bool
	}{
		{"иллюстрации", true, false},
		{"озвучка", false, true},
		{"оба дополнения", true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.svc = service.NewStoryService(h.graph, memSegments{h.graph}, h.gen, nil, h.ledger, zap.NewNop())
			h.fund(t, owner.ID, 100)

			p := params
			p.IncludeImages, p.IncludeAudio = tt.images, tt.audio
			_, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: p})
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrMisconfigured)

			balance, err := h.ledger.GetBalance(ctx, owner.ID)
			require.NoError(t, err)
			assert.Equal(t, int64(100), balance)
			assert.Empty(t, h.graph.stories)
			assert.Empty(t, h.gen.requests)
		})
	}

	t.Run("текстовая история создается", func(t *testing.T) {
		h := newHarness(t)
		h.svc = service.NewStoryService(h.graph, memSegments{h.graph}, h.gen, nil, h.ledger, zap.NewNop())
		h.fund(t, owner.ID, 100)

		res, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: params})
		require.NoError(t, err)
		balance, err := h.ledger.GetBalance(ctx, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, 100-res.Quote.TotalCost, balance)
		assert.Equal(t, models.AssetStatusNotStarted, res.FirstSegment.ImageStatus)
	})
}

func TestCreateStory_InsufficientCredits(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 3)
	ctx := context.Background()

	_, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{
		Title:  "Too expensive",
		Length: models.StoryLengthShort,
	}})
	require.ErrorIs(t, err, models.ErrInsufficientCredits)

	balance, err := h.ledger.GetBalance(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), balance)
	assert.Empty(t, h.graph.stories)
	assert.Empty(t, h.gen.requests, "generation must not start without payment")
	assert.Len(t, h.credits.txs, 1)
}

func TestCreateStory_RefundsOnGenerationFailure(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 20)
	h.gen.err = fmt.Errorf("%w: both backends down", models.ErrAIProvider)
	ctx := context.Background()

	_, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{
		Params:         models.StoryParams{Title: "Lost in the clouds", Length: models.StoryLengthShort},
		IdempotencyKey: "req-42",
	})
	require.ErrorIs(t, err, models.ErrAIProvider)

	balance, err := h.ledger.GetBalance(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(20), balance)
	assert.Empty(t, h.graph.stories)

	require.Len(t, h.credits.txs, 3)
	debit, refund := h.credits.txs[1], h.credits.txs[2]
	assert.Equal(t, models.ReasonStoryCreation, debit.Reason)
	assert.Equal(t, int64(-5), debit.Amount)
	assert.Equal(t, models.ReasonStoryRefund, refund.Reason)
	assert.Equal(t, int64(5), refund.Amount)
	assert.Equal(t, "req-42", *refund.Reference)
}

func TestCreateStory_IdempotencyKeyPreventsDoubleCharge(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 30)
	ctx := context.Background()
	in := service.CreateStoryInput{Params: models.StoryParams{Title: "Twice", Length: models.StoryLengthShort}, IdempotencyKey: "same"}

	_, err := h.svc.CreateStory(ctx, owner, in)
	require.NoError(t, err)
	_, err = h.svc.CreateStory(ctx, owner, in)
	require.ErrorIs(t, err, models.ErrDuplicateTransaction)

	balance, _ := h.ledger.GetBalance(ctx, owner.ID)
	assert.Equal(t, int64(25), balance)
	assert.Len(t, h.graph.stories, 1)
}

func TestCreateStory_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "  "}})
	assert.ErrorIs(t, err, models.ErrMissingField)

	_, err = h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "x", WordsPerChapter: 5000}})
	assert.ErrorIs(t, err, models.ErrInvalidField)

	_, err = h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "x", Length: "epic"}})
	assert.ErrorIs(t, err, models.ErrInvalidField)

	assert.Empty(t, h.credits.txs)
}

func TestGenerateSegment_TenSequentialChapters(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 100)
	ctx := context.Background()

	created, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "Ten chapters"}})
	require.NoError(t, err)
	storyID := created.Story.ID

	var last *models.Segment
	for i := 0; i < 9; i++ {
		choice := i % 2
		res, err := h.svc.GenerateSegment(ctx, owner, service.GenerateSegmentInput{StoryID: storyID, ChoiceIndex: &choice})
		require.NoError(t, err)
		last = res.Segment
	}
	require.Len(t, h.gen.requests, 10)
	assert.Equal(t, "Cross the mossy bridge", h.gen.requests[9].ChoiceText)
	assert.Equal(t, "Ask the owl for directions", h.gen.requests[8].ChoiceText)

	assert.True(t, last.IsEnd)
	assert.Empty(t, last.Choices)

	story, err := h.svc.GetStory(ctx, owner, storyID)
	require.NoError(t, err)
	require.Len(t, story.Segments, 10)
	for i, seg := range story.Segments {
		assert.Equal(t, i+1, seg.Position)
	}
	assert.True(t, story.IsCompleted)
	require.NotNil(t, story.Segments[0].Choices[0].NextSegmentID)
	assert.Equal(t, story.Segments[1].ID, *story.Segments[0].Choices[0].NextSegmentID)

	_, err = h.svc.GenerateSegment(ctx, owner, service.GenerateSegmentInput{StoryID: storyID})
	assert.ErrorIs(t, err, models.ErrStoryCompleted)

	balance, _ := h.ledger.GetBalance(ctx, owner.ID)
	assert.Equal(t, int64(90), balance, "chapters are prepaid at creation")
}

func TestGenerateSegment_InvalidChoice(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 10)
	ctx := context.Background()
	created, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "Choices", Length: models.StoryLengthShort}})
	require.NoError(t, err)

	idx := 7
	_, err = h.svc.GenerateSegment(ctx, owner, service.GenerateSegmentInput{StoryID: created.Story.ID, ChoiceIndex: &idx})
	assert.ErrorIs(t, err, models.ErrInvalidChoice)
	assert.Len(t, h.gen.requests, 1)
}

func TestOwnershipIsolation(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 10)
	ctx := context.Background()
	created, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "Mine", Length: models.StoryLengthShort}})
	require.NoError(t, err)

	stranger := models.AuthUser{ID: "user-stranger", Role: models.RoleUser}
	_, err = h.svc.GetStory(ctx, stranger, created.Story.ID)
	assert.ErrorIs(t, err, models.ErrNotResourceOwner)
	_, err = h.svc.GenerateSegment(ctx, stranger, service.GenerateSegmentInput{StoryID: created.Story.ID})
	assert.ErrorIs(t, err, models.ErrNotResourceOwner)
	_, err = h.svc.RequestAsset(ctx, stranger, created.FirstSegment.ID, models.AssetKindAudio, assets.EnqueueOptions{})
	assert.ErrorIs(t, err, models.ErrNotResourceOwner)

	admin := models.AuthUser{ID: "ops", Role: models.RoleAdmin}
	story, err := h.svc.GetStory(ctx, admin, created.Story.ID)
	require.NoError(t, err)
	assert.Len(t, story.Segments, 1)

	_, err = h.svc.GetStory(ctx, owner, uuid.New())
	assert.ErrorIs(t, err, models.ErrStoryNotFound)
}

func TestRequestAsset_ChargesOnceOutsidePlan(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 10)
	ctx := context.Background()
	created, err := h.svc.CreateStory(ctx, owner, service.CreateStoryInput{Params: models.StoryParams{Title: "Quiet", Length: models.StoryLengthShort}})
	require.NoError(t, err)
	assert.Empty(t, h.disp.kinds)

	for i := 0; i < 2; i++ {
		seg, err := h.svc.RequestAsset(ctx, owner, created.FirstSegment.ID, models.AssetKindAudio, assets.EnqueueOptions{Voice: "grandma"})
		require.NoError(t, err)
		assert.Equal(t, models.AssetStatusInProgress, seg.AudioStatus)
	}
	balance, _ := h.ledger.GetBalance(ctx, owner.ID)
	assert.Equal(t, int64(4), balance)

	_, err = h.svc.RequestAsset(ctx, owner, created.FirstSegment.ID, "video", assets.EnqueueOptions{})
	assert.ErrorIs(t, err, models.ErrInvalidField)
}

func TestGenerateSegment_RetriesPositionConflictOnce(t *testing.T) {
	ctx := context.Background()
	stories := sharedMocks.NewMockStoryRepository(t)
	segments := sharedMocks.NewMockSegmentRepository(t)
	gen := &fakeGenerator{}
	svc := service.NewStoryService(stories, segments, gen, nil, &ledgerStub{}, zap.NewNop())

	story := &models.Story{ID: uuid.New(), UserID: owner.ID, TargetChapters: 5}
	first := models.SegmentDraft{Content: "x", Choices: []string{"a"}}.Finalize(story.ID, 1, nil)
	stories.On("GetByID", ctx, story.ID).Return(story, nil).Once()
	segments.On("ListByStory", ctx, story.ID).Return([]models.Segment{first}, nil).Once()

	appended := models.SegmentDraft{Content: "y", Choices: []string{"b"}}.Finalize(story.ID, 2, &first.ID)
	segments.On("Append", ctx, story.ID, mock.Anything).Return(nil, nil, models.ErrPositionConflict).Once()
	segments.On("Append", ctx, story.ID, mock.Anything).Return(&appended, story, nil).Once()

	res, err := svc.GenerateSegment(ctx, owner, service.GenerateSegmentInput{StoryID: story.ID})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Segment.Position)

	stories.On("GetByID", ctx, story.ID).Return(story, nil).Once()
	segments.On("ListByStory", ctx, story.ID).Return([]models.Segment{first}, nil).Once()
	segments.On("Append", ctx, story.ID, mock.Anything).Return(nil, nil, models.ErrPositionConflict).Twice()
	_, err = svc.GenerateSegment(ctx, owner, service.GenerateSegmentInput{StoryID: story.ID})
	assert.ErrorIs(t, err, models.ErrPositionConflict)
}

func TestCreateStory_AssetQueueFailureKeepsText(t *testing.T) {
	h := newHarness(t)
	h.fund(t, owner.ID, 30)
	h.disp.err = errors.New("broker unreachable")

	res, err := h.svc.CreateStory(context.Background(), owner, service.CreateStoryInput{Params: models.StoryParams{
		Title: "Pictures later", Length: models.StoryLengthShort, IncludeImages: true, IncludeAudio: true,
	}})
	require.NoError(t, err)
	assert.Equal(t, models.AssetStatusNotStarted, res.FirstSegment.ImageStatus)
	assert.ElementsMatch(t, []models.AssetKind{models.AssetKindImage, models.AssetKindAudio}, h.disp.kinds)
	assert.Len(t, h.graph.stories, 1)
}

type ledgerStub struct{}

func (ledgerStub) Debit(context.Context, string, int64, models.CreditReason, *string) (*models.CreditTransaction, error) {
	return &models.CreditTransaction{}, nil
}

func (ledgerStub) Refund(context.Context, string, int64, *string) error { return nil }
