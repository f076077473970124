package learning

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Classifier is a Bayesian spam classifier over a WordStatsStore.
//
// Word counts are read from and written to the store directly. The global
// document counts are mirrored in memory. With a WordIncrementer store they
// are updated in the same atomic step as the words and the mirror is
// refreshed from the result, so several processes can train one store.
// Other stores only bump the mirror, and Store must be called to make the
// counts durable.
type Classifier struct {
	mu sync.Mutex

	store  WordStatsStore
	config *Config

	nspam int
	nham  int
}

// Config holds classifier parameters
type Config struct {
	Tokenizer Tokenizer `json:"tokenizer" yaml:"tokenizer"`

	// Probability assumed for a token never trained
	UnknownWordProb float64 `json:"unknown_word_prob" yaml:"unknown_word_prob"`
	// Weight of UnknownWordProb against the observed counts
	UnknownWordStrength float64 `json:"unknown_word_strength" yaml:"unknown_word_strength"`
	// Tokens closer than this to 0.5 are ignored when scoring
	MinimumProbStrength float64 `json:"minimum_prob_strength" yaml:"minimum_prob_strength"`
	// Upper bound on the number of tokens combined into a score
	MaxDiscriminators int `json:"max_discriminators" yaml:"max_discriminators"`
}

// DefaultConfig returns default classifier configuration
func DefaultConfig() *Config {
	return &Config{
		Tokenizer:           DefaultTokenizer(),
		UnknownWordProb:     0.5,
		UnknownWordStrength: 0.45,
		MinimumProbStrength: 0.1,
		MaxDiscriminators:   150,
	}
}

// Clue is a token that contributed to a score
type Clue struct {
	Token string   `json:"token"`
	Prob  float64  `json:"prob"`
	Info  WordInfo `json:"info"`
}

// NewClassifier creates a classifier and loads its state from store
func NewClassifier(ctx context.Context, store WordStatsStore, config *Config) (*Classifier, error) {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Classifier{
		store:  store,
		config: config,
	}
	if err := c.Load(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Load replaces the in-memory counts with the persisted state
func (c *Classifier) Load(ctx context.Context) error {
	state, err := c.store.State(ctx)
	if err != nil {
		return fmt.Errorf("failed to load classifier state: %w", err)
	}

	c.mu.Lock()
	c.nspam = state.SpamCount
	c.nham = state.HamCount
	c.mu.Unlock()
	return nil
}

// Store makes the document counts durable. With a WordIncrementer store
// they already are, and Store only refreshes the in-memory copy; otherwise
// the in-memory counts are written.
func (c *Classifier) Store(ctx context.Context) error {
	if _, ok := c.store.(WordIncrementer); ok {
		return c.Load(ctx)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.SetState(ctx, State{SpamCount: c.nspam, HamCount: c.nham}); err != nil {
		return fmt.Errorf("failed to store classifier state: %w", err)
	}
	return nil
}

// Counts returns the in-memory document counts
func (c *Classifier) Counts() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{SpamCount: c.nspam, HamCount: c.nham}
}

// Tokenize exposes the tokenizer used for training and scoring
func (c *Classifier) Tokenize(text string) []string {
	return c.config.Tokenizer.Tokenize(text)
}

// Train adds one document to the statistics. Every distinct token gets one
// more spam (or ham) occurrence and the matching document counter grows by
// one. Training the same text twice counts it twice.
func (c *Classifier) Train(ctx context.Context, text string, isSpam bool) error {
	if err := c.apply(ctx, text, isSpam, 1); err != nil {
		return fmt.Errorf("training failed: %w", err)
	}
	return nil
}

// Untrain takes back a document added by Train with the same arguments
func (c *Classifier) Untrain(ctx context.Context, text string, isSpam bool) error {
	if err := c.apply(ctx, text, isSpam, -1); err != nil {
		return fmt.Errorf("untraining failed: %w", err)
	}
	return nil
}

// Learn trains one document and makes the result durable. If the document
// counts cannot be stored the training is taken back, so a failed Learn
// leaves the statistics as they were.
func (c *Classifier) Learn(ctx context.Context, text string, isSpam bool) error {
	if err := c.Train(ctx, text, isSpam); err != nil {
		return err
	}
	if _, ok := c.store.(WordIncrementer); ok {
		return nil
	}
	if err := c.Store(ctx); err != nil {
		if uerr := c.Untrain(ctx, text, isSpam); uerr != nil {
			return errors.Join(err, uerr)
		}
		return err
	}
	return nil
}

// Unlearn takes back a document added by Learn and makes the result durable
func (c *Classifier) Unlearn(ctx context.Context, text string, isSpam bool) error {
	if err := c.Untrain(ctx, text, isSpam); err != nil {
		return err
	}
	if _, ok := c.store.(WordIncrementer); ok {
		return nil
	}
	return c.Store(ctx)
}

func (c *Classifier) apply(ctx context.Context, text string, isSpam bool, delta int) error {
	tokens := c.Tokenize(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if inc, ok := c.store.(WordIncrementer); ok {
		state, err := inc.IncrWords(ctx, tokens, isSpam, delta)
		if err != nil {
			return err
		}
		c.nspam, c.nham = state.SpamCount, state.HamCount
		return nil
	}

	if err := c.addWords(ctx, tokens, isSpam, delta); err != nil {
		return err
	}
	if isSpam {
		c.nspam = max(c.nspam+delta, 0)
	} else {
		c.nham = max(c.nham+delta, 0)
	}
	return nil
}

// Clear wipes all statistics from the store and memory
func (c *Classifier) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear classifier: %w", err)
	}
	c.nspam = 0
	c.nham = 0
	return nil
}

// Score returns the spam probability of text in [0, 1]. It fails with
// ErrInsufficientTrainingData while no document has been trained.
func (c *Classifier) Score(ctx context.Context, text string) (float64, error) {
	clues, err := c.Clues(ctx, text)
	if err != nil {
		return 0, err
	}

	probs := make([]float64, len(clues))
	for i, clue := range clues {
		probs[i] = clue.Prob
	}
	return chi2Combine(probs), nil
}

// Clues returns the tokens of text that take part in scoring, strongest first
func (c *Classifier) Clues(ctx context.Context, text string) ([]Clue, error) {
	c.mu.Lock()
	nspam, nham := c.nspam, c.nham
	c.mu.Unlock()

	if nspam == 0 && nham == 0 {
		return nil, ErrInsufficientTrainingData
	}

	tokens := c.Tokenize(text)
	infos, err := c.words(ctx, tokens)
	if err != nil {
		return nil, fmt.Errorf("failed to get token stats: %w", err)
	}

	clues := make([]Clue, 0, len(tokens))
	for i, token := range tokens {
		prob := c.probability(infos[i], nspam, nham)
		if math.Abs(prob-0.5) < c.config.MinimumProbStrength {
			continue
		}
		clues = append(clues, Clue{Token: token, Prob: prob, Info: infos[i]})
	}

	sort.SliceStable(clues, func(i, j int) bool {
		di, dj := math.Abs(clues[i].Prob-0.5), math.Abs(clues[j].Prob-0.5)
		if di != dj {
			return di > dj
		}
		return clues[i].Token < clues[j].Token
	})
	if limit := c.config.MaxDiscriminators; limit > 0 && len(clues) > limit {
		clues = clues[:limit]
	}

	return clues, nil
}

// probability estimates how spammy a single token is. The raw ratio of its
// spam and ham frequencies is pulled towards UnknownWordProb in proportion to
// how rarely the token has been seen.
func (c *Classifier) probability(info WordInfo, nspam, nham int) float64 {
	n := float64(info.SpamCount + info.HamCount)
	if n == 0 {
		return c.config.UnknownWordProb
	}

	spamRatio := float64(info.SpamCount) / float64(max(nspam, 1))
	hamRatio := float64(info.HamCount) / float64(max(nham, 1))
	prob := spamRatio / (spamRatio + hamRatio)

	s := c.config.UnknownWordStrength
	return (s*c.config.UnknownWordProb + n*prob) / (s + n)
}

func (c *Classifier) words(ctx context.Context, tokens []string) ([]WordInfo, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	if br, ok := c.store.(WordBatchReader); ok {
		return br.Words(ctx, tokens)
	}

	infos := make([]WordInfo, len(tokens))
	for i, token := range tokens {
		info, err := c.store.Word(ctx, token)
		if err != nil {
			return nil, err
		}
		infos[i] = info
	}
	return infos, nil
}

// addWords is the read-modify-write path for stores without a
// WordIncrementer. It must be called with c.mu held.
func (c *Classifier) addWords(ctx context.Context, tokens []string, isSpam bool, delta int) error {
	for _, token := range tokens {
		info, err := c.store.Word(ctx, token)
		if err != nil {
			return err
		}
		if isSpam {
			info.SpamCount = max(info.SpamCount+delta, 0)
		} else {
			info.HamCount = max(info.HamCount+delta, 0)
		}
		if err := c.store.SetWord(ctx, token, info); err != nil {
			return err
		}
	}
	return nil
}

// chi2Combine merges token probabilities with Fisher's method: it tests the
// hypotheses "all tokens are spammy" and "all tokens are hammy" and returns
// the balance between them. No clues means no opinion (0.5).
func chi2Combine(probs []float64) float64 {
	if len(probs) == 0 {
		return 0.5
	}

	// products underflow quickly, so keep the exponents aside
	s, h := 1.0, 1.0
	var sexp, hexp int
	for _, p := range probs {
		s *= 1.0 - p
		h *= p
		if s < 1e-200 {
			var e int
			s, e = math.Frexp(s)
			sexp += e
		}
		if h < 1e-200 {
			var e int
			h, e = math.Frexp(h)
			hexp += e
		}
	}

	lnS := math.Log(s) + float64(sexp)*math.Ln2
	lnH := math.Log(h) + float64(hexp)*math.Ln2

	n := 2 * len(probs)
	spamminess := 1.0 - chi2Q(-2.0*lnS, n)
	hamminess := 1.0 - chi2Q(-2.0*lnH, n)

	return (spamminess - hamminess + 1.0) / 2.0
}

// chi2Q returns the probability that a chi-squared variable with v (even)
// degrees of freedom is at least x2.
func chi2Q(x2 float64, v int) float64 {
	m := x2 / 2.0
	term := math.Exp(-m)
	sum := term
	for i := 1; i < v/2; i++ {
		term *= m / float64(i)
		sum += term
	}
	return math.Min(sum, 1.0)
}
