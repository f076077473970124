package learning

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps word statistics as plain integer keys in Redis
type RedisStore struct {
	client *redis.Client
	config *RedisConfig
}

// RedisConfig holds Redis backend configuration
type RedisConfig struct {
	RedisURL    string `json:"redis_url" yaml:"redis_url"`
	KeyPrefix   string `json:"key_prefix" yaml:"key_prefix"`
	DatabaseNum int    `json:"database_num" yaml:"database_num"`

	// Keys deleted per pipeline when clearing
	BatchSize int `json:"batch_size" yaml:"batch_size"`
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() *RedisConfig {
	return &RedisConfig{
		RedisURL:    "redis://localhost:6379",
		KeyPrefix:   "moderator:bayes:",
		DatabaseNum: 0,
		BatchSize:   1000,
	}
}

// NewRedisStore connects to Redis and checks the connection
func NewRedisStore(ctx context.Context, config *RedisConfig) (*RedisStore, error) {
	if config == nil {
		config = DefaultRedisConfig()
	}

	opt, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %w", err)
	}
	opt.DB = config.DatabaseNum

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redis connection failed: %w", err)
	}

	return NewRedisStoreWithClient(client, config), nil
}

// NewRedisStoreWithClient uses an existing client
func NewRedisStoreWithClient(client *redis.Client, config *RedisConfig) *RedisStore {
	if config == nil {
		config = DefaultRedisConfig()
	}
	return &RedisStore{client: client, config: config}
}

func (s *RedisStore) spamKey(token string) string {
	return s.config.KeyPrefix + token + "_spam_count"
}

func (s *RedisStore) hamKey(token string) string {
	return s.config.KeyPrefix + token + "_ham_count"
}

// word keys end in _spam_count or _ham_count after the token, so a state
// key can only collide with a token spelled "state:spam" or "state:ham",
// which the tokenizer cannot produce
func (s *RedisStore) stateSpamKey() string {
	return s.config.KeyPrefix + "state:spam_count"
}

func (s *RedisStore) stateHamKey() string {
	return s.config.KeyPrefix + "state:ham_count"
}

func (s *RedisStore) Word(ctx context.Context, token string) (WordInfo, error) {
	infos, err := s.Words(ctx, []string{token})
	if err != nil {
		return WordInfo{}, err
	}
	return infos[0], nil
}

// Words reads the counts of all tokens with one MGET
func (s *RedisStore) Words(ctx context.Context, tokens []string) ([]WordInfo, error) {
	if len(tokens) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, 2*len(tokens))
	for _, token := range tokens {
		keys = append(keys, s.spamKey(token), s.hamKey(token))
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read words: %w", err)
	}

	infos := make([]WordInfo, len(tokens))
	for i := range tokens {
		if infos[i].SpamCount, err = parseCount(vals[2*i]); err != nil {
			return nil, err
		}
		if infos[i].HamCount, err = parseCount(vals[2*i+1]); err != nil {
			return nil, err
		}
	}
	return infos, nil
}

func (s *RedisStore) SetWord(ctx context.Context, token string, info WordInfo) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.spamKey(token), info.SpamCount, 0)
		pipe.Set(ctx, s.hamKey(token), info.HamCount, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write word %q: %w", token, err)
	}
	return nil
}

// incrWordsScript moves KEYS[ARGV[2]] (a state key) and every word key from
// KEYS[3] on by ARGV[1], flooring at zero, and returns both state values
var incrWordsScript = redis.NewScript(`
local delta = tonumber(ARGV[1])
local function bump(key)
	if redis.call('INCRBY', key, delta) < 0 then
		redis.call('SET', key, 0)
	end
end
bump(KEYS[tonumber(ARGV[2])])
for i = 3, #KEYS do
	bump(KEYS[i])
end
return redis.call('MGET', KEYS[1], KEYS[2])
`)

// IncrWords applies delta to the token counters and the global document
// counter in one Lua script, which Redis runs atomically
func (s *RedisStore) IncrWords(ctx context.Context, tokens []string, isSpam bool, delta int) (State, error) {
	key, target := s.hamKey, 2
	if isSpam {
		key, target = s.spamKey, 1
	}

	keys := make([]string, 0, len(tokens)+2)
	keys = append(keys, s.stateSpamKey(), s.stateHamKey())
	for _, token := range tokens {
		keys = append(keys, key(token))
	}

	vals, err := incrWordsScript.Run(ctx, s.client, keys, delta, target).Slice()
	if err != nil {
		return State{}, fmt.Errorf("failed to increment words: %w", err)
	}
	if len(vals) != 2 {
		return State{}, fmt.Errorf("unexpected script reply of %d values", len(vals))
	}

	var state State
	if state.SpamCount, err = parseCount(vals[0]); err != nil {
		return State{}, err
	}
	if state.HamCount, err = parseCount(vals[1]); err != nil {
		return State{}, err
	}
	return state, nil
}

func (s *RedisStore) State(ctx context.Context) (State, error) {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SetNX(ctx, s.stateSpamKey(), 0, 0)
		pipe.SetNX(ctx, s.stateHamKey(), 0, 0)
		return nil
	})
	if err != nil {
		return State{}, fmt.Errorf("failed to create classifier state: %w", err)
	}

	vals, err := s.client.MGet(ctx, s.stateSpamKey(), s.stateHamKey()).Result()
	if err != nil {
		return State{}, fmt.Errorf("failed to read classifier state: %w", err)
	}

	var state State
	if state.SpamCount, err = parseCount(vals[0]); err != nil {
		return State{}, err
	}
	if state.HamCount, err = parseCount(vals[1]); err != nil {
		return State{}, err
	}
	return state, nil
}

func (s *RedisStore) SetState(ctx context.Context, state State) error {
	err := s.client.MSet(ctx, s.stateSpamKey(), state.SpamCount, s.stateHamKey(), state.HamCount).Err()
	if err != nil {
		return fmt.Errorf("failed to write classifier state: %w", err)
	}
	return nil
}

// Clear deletes every key under the prefix, then recreates a zero state
func (s *RedisStore) Clear(ctx context.Context) error {
	batch := s.config.BatchSize
	if batch <= 0 {
		batch = 1000
	}

	iter := s.client.Scan(ctx, 0, s.config.KeyPrefix+"*", int64(batch)).Iterator()
	keys := make([]string, 0, batch)

	flush := func() error {
		if len(keys) == 0 {
			return nil
		}
		if err := s.client.Unlink(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete keys: %w", err)
		}
		keys = keys[:0]
		return nil
	}

	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) >= batch {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	return s.SetState(ctx, State{})
}

// Ping checks that Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func parseCount(v interface{}) (int, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("corrupt counter value %q: %w", val, err)
		}
		return n, nil
	}
	return 0, errors.New("unexpected counter type")
}
