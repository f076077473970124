package learning

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
)

// memStore implements only the base interface, so the classifier falls
// back to per-word reads and read-modify-write training
type memStore struct {
	mu    sync.Mutex
	words map[string]WordInfo
	state *State

	// returned by SetState when set
	setStateErr error
}

func newMemStore() *memStore {
	return &memStore{words: make(map[string]WordInfo)}
}

func (m *memStore) Word(_ context.Context, token string) (WordInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[token], nil
}

func (m *memStore) SetWord(_ context.Context, token string, info WordInfo) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words[token] = info
	return nil
}

func (m *memStore) State(context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		m.state = &State{}
	}
	return *m.state, nil
}

func (m *memStore) SetState(_ context.Context, state State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setStateErr != nil {
		return m.setStateErr
	}
	m.state = &state
	return nil
}

func (m *memStore) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words = make(map[string]WordInfo)
	m.state = &State{}
	return nil
}

func (m *memStore) Close() error { return nil }

func trainedClassifier(t *testing.T, store WordStatsStore) *Classifier {
	t.Helper()
	ctx := context.Background()

	c, err := NewClassifier(ctx, store, nil)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}
	if err := c.Learn(ctx, "very bad spam", true); err != nil {
		t.Fatalf("Failed to train spam: %v", err)
	}
	if err := c.Learn(ctx, "awesome tasty ham", false); err != nil {
		t.Fatalf("Failed to train ham: %v", err)
	}
	return c
}

func TestScoreUntrained(t *testing.T) {
	c, err := NewClassifier(context.Background(), newMemStore(), nil)
	if err != nil {
		t.Fatalf("Failed to create classifier: %v", err)
	}

	_, err = c.Score(context.Background(), "anything at all")
	if !errors.Is(err, ErrInsufficientTrainingData) {
		t.Errorf("expected ErrInsufficientTrainingData, got %v", err)
	}
}

func TestScoreAfterTraining(t *testing.T) {
	c := trainedClassifier(t, newMemStore())
	ctx := context.Background()

	tests := []struct {
		text string
		min  float64
		max  float64
	}{
		{"very bad spam", 0.9, 1.0},
		{"bad spam", 0.85, 1.0},
		{"awesome spam", 0.49, 0.51},
		{"foo bar", 0.5, 0.5},
		{"", 0.5, 0.5},
		{"awesome tasty ham", 0.0, 0.1},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			score, err := c.Score(ctx, tt.text)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if score < tt.min || score > tt.max {
				t.Errorf("Score(%q) = %.4f, want within [%.2f, %.2f]", tt.text, score, tt.min, tt.max)
			}
		})
	}
}

func TestTrainUpdatesCounts(t *testing.T) {
	store := newMemStore()
	c := trainedClassifier(t, store)
	ctx := context.Background()

	if got := c.Counts(); got != (State{SpamCount: 1, HamCount: 1}) {
		t.Errorf("Counts() = %+v", got)
	}

	// same text twice counts twice
	if err := c.Learn(ctx, "bad bad offer", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Learn(ctx, "bad offer", true); err != nil {
		t.Fatal(err)
	}

	info, _ := store.Word(ctx, "bad")
	if info.SpamCount != 3 || info.HamCount != 0 {
		t.Errorf("bad = %+v, want 3 spam", info)
	}
	state, _ := store.State(ctx)
	if state.SpamCount != 3 || state.HamCount != 1 {
		t.Errorf("persisted state = %+v", state)
	}
}

func TestTrainWithoutStoreIsNotPersisted(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()

	c, err := NewClassifier(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Train(ctx, "cheap pills", true); err != nil {
		t.Fatal(err)
	}

	state, _ := store.State(ctx)
	if state.SpamCount != 0 {
		t.Errorf("state persisted before Store: %+v", state)
	}
	if c.Counts().SpamCount != 1 {
		t.Errorf("in-memory count not updated")
	}

	if err := c.Store(ctx); err != nil {
		t.Fatal(err)
	}
	reloaded, err := NewClassifier(ctx, store, nil)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.Counts().SpamCount != 1 {
		t.Errorf("reloaded counts = %+v", reloaded.Counts())
	}
}

func TestUnlearnRestoresCounts(t *testing.T) {
	store := newMemStore()
	c := trainedClassifier(t, store)
	ctx := context.Background()

	if err := c.Learn(ctx, "bad offer", true); err != nil {
		t.Fatal(err)
	}
	if err := c.Unlearn(ctx, "bad offer", true); err != nil {
		t.Fatal(err)
	}

	if got := c.Counts(); got != (State{SpamCount: 1, HamCount: 1}) {
		t.Errorf("Counts() = %+v", got)
	}
	if info, _ := store.Word(ctx, "bad"); info != (WordInfo{SpamCount: 1}) {
		t.Errorf("bad = %+v, want 1 spam", info)
	}
	if info, _ := store.Word(ctx, "offer"); info != (WordInfo{}) {
		t.Errorf("offer = %+v, want zero", info)
	}
	if state, _ := store.State(ctx); state != (State{SpamCount: 1, HamCount: 1}) {
		t.Errorf("persisted state = %+v", state)
	}
}

func TestLearnTakesBackTrainingWhenStoreFails(t *testing.T) {
	store := newMemStore()
	c := trainedClassifier(t, store)
	ctx := context.Background()

	store.setStateErr = errors.New("disk full")
	if err := c.Learn(ctx, "bad offer", true); err == nil {
		t.Fatal("expected Learn to fail")
	}
	store.setStateErr = nil

	if got := c.Counts(); got != (State{SpamCount: 1, HamCount: 1}) {
		t.Errorf("Counts() = %+v after failed Learn", got)
	}
	if info, _ := store.Word(ctx, "bad"); info.SpamCount != 1 {
		t.Errorf("bad = %+v after failed Learn", info)
	}
	if info, _ := store.Word(ctx, "offer"); info != (WordInfo{}) {
		t.Errorf("offer = %+v after failed Learn", info)
	}
}

func TestMoreSpamTrainingRaisesScore(t *testing.T) {
	c := trainedClassifier(t, newMemStore())
	ctx := context.Background()

	text := "cheap watches online"
	if err := c.Learn(ctx, "other stuff", false); err != nil {
		t.Fatal(err)
	}

	prev := -1.0
	for i := 0; i < 4; i++ {
		if err := c.Learn(ctx, text, true); err != nil {
			t.Fatal(err)
		}
		score, err := c.Score(ctx, text)
		if err != nil {
			t.Fatal(err)
		}
		if score < prev {
			t.Errorf("score dropped after more spam training: %.4f -> %.4f", prev, score)
		}
		prev = score
	}
	if prev <= 0.7 {
		t.Errorf("expected spam score after repeated training, got %.4f", prev)
	}
}

func TestClues(t *testing.T) {
	c := trainedClassifier(t, newMemStore())

	clues, err := c.Clues(context.Background(), "foo very bad")
	if err != nil {
		t.Fatal(err)
	}
	if len(clues) != 2 {
		t.Fatalf("expected 2 clues, got %v", clues)
	}
	// equal strength, ordered by token
	if clues[0].Token != "bad" || clues[1].Token != "very" {
		t.Errorf("unexpected clue order: %v", clues)
	}
	if clues[0].Prob <= 0.5 || clues[0].Info.SpamCount != 1 {
		t.Errorf("unexpected clue: %+v", clues[0])
	}
}

func TestMaxDiscriminators(t *testing.T) {
	ctx := context.Background()
	config := DefaultConfig()
	config.MaxDiscriminators = 2

	c, err := NewClassifier(ctx, newMemStore(), config)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Learn(ctx, "one two three four", true); err != nil {
		t.Fatal(err)
	}

	clues, err := c.Clues(ctx, "one two three four")
	if err != nil {
		t.Fatal(err)
	}
	if len(clues) != 2 {
		t.Errorf("expected 2 clues, got %d", len(clues))
	}
}

func TestClassifierClear(t *testing.T) {
	store := newMemStore()
	c := trainedClassifier(t, store)
	ctx := context.Background()

	if err := c.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	if c.Counts() != (State{}) {
		t.Errorf("counts not reset: %+v", c.Counts())
	}
	if _, err := c.Score(ctx, "very bad spam"); !errors.Is(err, ErrInsufficientTrainingData) {
		t.Errorf("expected ErrInsufficientTrainingData after clear, got %v", err)
	}
}

func TestChi2Combine(t *testing.T) {
	if got := chi2Combine(nil); got != 0.5 {
		t.Errorf("empty = %v", got)
	}

	// symmetric evidence cancels out
	if got := chi2Combine([]float64{0.2, 0.8}); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("symmetric = %v", got)
	}

	// thousands of strong clues must not underflow into NaN
	probs := make([]float64, 2000)
	for i := range probs {
		probs[i] = 0.99
	}
	got := chi2Combine(probs)
	if math.IsNaN(got) || got < 0.99 {
		t.Errorf("many spam clues = %v", got)
	}
}

func TestChi2Q(t *testing.T) {
	if got := chi2Q(0, 4); got != 1.0 {
		t.Errorf("chi2Q(0, 4) = %v", got)
	}
	// Q(2, 2) = exp(-1)
	if got := chi2Q(2, 2); math.Abs(got-math.Exp(-1)) > 1e-12 {
		t.Errorf("chi2Q(2, 2) = %v", got)
	}
}

func BenchmarkScore(b *testing.B) {
	ctx := context.Background()
	c, _ := NewClassifier(ctx, newMemStore(), nil)
	_ = c.Learn(ctx, "win free money now click here", true)
	_ = c.Learn(ctx, "meeting notes from yesterday attached", false)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Score(ctx, "free money attached")
	}
}
