package learning

import (
	"context"
	"errors"
)

// ErrInsufficientTrainingData is returned by Score while nothing has been
// trained yet. Callers treat it as an "unsure" outcome.
var ErrInsufficientTrainingData = errors.New("classifier has no training data")

// WordInfo holds the per-token training counts
type WordInfo struct {
	SpamCount int `json:"spam_count" db:"spam_count"`
	HamCount  int `json:"ham_count" db:"ham_count"`
}

// State holds the number of documents trained as spam and as ham
type State struct {
	SpamCount int `json:"spam_count" db:"spam_count"`
	HamCount  int `json:"ham_count" db:"ham_count"`
}

// WordStatsStore persists word statistics and the global trained counts.
// Missing records read as zero; only backend failures are returned as errors.
type WordStatsStore interface {
	// Word returns the counts of token, zero if it was never trained
	Word(ctx context.Context, token string) (WordInfo, error)
	// SetWord creates or replaces the counts of token
	SetWord(ctx context.Context, token string, info WordInfo) error
	// State returns the global counts, creating them with zeros if absent
	State(ctx context.Context) (State, error)
	// SetState replaces the global counts
	SetState(ctx context.Context, state State) error
	// Clear deletes every word and resets the global counts to zero
	Clear(ctx context.Context) error
	Close() error
}

// WordBatchReader is implemented by stores that can fetch many tokens in
// one round trip. Results are in the order of tokens.
type WordBatchReader interface {
	Words(ctx context.Context, tokens []string) ([]WordInfo, error)
}

// WordIncrementer is implemented by stores that apply a whole document in
// one atomic step: the spam (or ham) count of every token and the matching
// global document count move by delta together. Delta is 1 to train and -1
// to take a document back; counts never drop below zero. The global counts
// after the change are returned, so every process sharing the store sees
// the same totals.
type WordIncrementer interface {
	IncrWords(ctx context.Context, tokens []string, isSpam bool, delta int) (State, error)
}

// Ensure both backends satisfy the interfaces
var (
	_ WordStatsStore  = (*SQLStore)(nil)
	_ WordBatchReader = (*SQLStore)(nil)
	_ WordIncrementer = (*SQLStore)(nil)

	_ WordStatsStore  = (*RedisStore)(nil)
	_ WordBatchReader = (*RedisStore)(nil)
	_ WordIncrementer = (*RedisStore)(nil)
)
