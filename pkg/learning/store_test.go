package learning

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/zpam/comment-moderator/pkg/store"
)

// Redis test configuration
var testRedisConfig = &RedisConfig{
	RedisURL:    "redis://localhost:6379",
	KeyPrefix:   "moderator:test:bayes:",
	DatabaseNum: 1, // Use separate database for testing
	BatchSize:   10,
}

func newSQLTestStore(t *testing.T) *SQLStore {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := store.Open(context.Background(), store.DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name), nil)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewSQLStore(db.X())
}

func newRedisTestStore(t *testing.T) *RedisStore {
	t.Helper()
	if !isRedisAvailable() {
		t.Skip("Redis not available, skipping test")
	}
	s, err := NewRedisStore(context.Background(), testRedisConfig)
	if err != nil {
		t.Fatalf("Failed to create Redis store: %v", err)
	}
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("Failed to clear Redis store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Clear(context.Background())
		_ = s.Close()
	})
	return s
}

func isRedisAvailable() bool {
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   1, // Use test database
	})
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := client.Ping(ctx).Err()
	return err == nil
}

type storeFactory func(t *testing.T) WordStatsStore

func storeBackends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) WordStatsStore { return newMemStore() },
		"sql":    func(t *testing.T) WordStatsStore { return newSQLTestStore(t) },
		"redis":  func(t *testing.T) WordStatsStore { return newRedisTestStore(t) },
	}
}

func TestWordStatsStoreContract(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			info, err := s.Word(ctx, "never")
			if err != nil {
				t.Fatalf("Word failed: %v", err)
			}
			if info != (WordInfo{}) {
				t.Errorf("missing word = %+v, want zero", info)
			}

			state, err := s.State(ctx)
			if err != nil {
				t.Fatalf("State failed: %v", err)
			}
			if state != (State{}) {
				t.Errorf("initial state = %+v, want zero", state)
			}

			if err := s.SetWord(ctx, "cheap", WordInfo{SpamCount: 4, HamCount: 1}); err != nil {
				t.Fatalf("SetWord failed: %v", err)
			}
			if err := s.SetWord(ctx, "cheap", WordInfo{SpamCount: 5, HamCount: 2}); err != nil {
				t.Fatalf("SetWord overwrite failed: %v", err)
			}
			info, _ = s.Word(ctx, "cheap")
			if info != (WordInfo{SpamCount: 5, HamCount: 2}) {
				t.Errorf("cheap = %+v", info)
			}

			if err := s.SetState(ctx, State{SpamCount: 7, HamCount: 3}); err != nil {
				t.Fatalf("SetState failed: %v", err)
			}
			state, _ = s.State(ctx)
			if state != (State{SpamCount: 7, HamCount: 3}) {
				t.Errorf("state = %+v", state)
			}

			if err := s.Clear(ctx); err != nil {
				t.Fatalf("Clear failed: %v", err)
			}
			info, _ = s.Word(ctx, "cheap")
			state, _ = s.State(ctx)
			if info != (WordInfo{}) || state != (State{}) {
				t.Errorf("after Clear word=%+v state=%+v", info, state)
			}
		})
	}
}

func TestBatchOperations(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			inc, ok := s.(WordIncrementer)
			if !ok {
				t.Skip("store has no batch support")
			}
			br := s.(WordBatchReader)

			if _, err := inc.IncrWords(ctx, []string{"free", "money"}, true, 1); err != nil {
				t.Fatalf("IncrWords failed: %v", err)
			}
			if _, err := inc.IncrWords(ctx, []string{"free", "lunch"}, false, 1); err != nil {
				t.Fatalf("IncrWords failed: %v", err)
			}
			state, err := inc.IncrWords(ctx, []string{"free"}, true, 1)
			if err != nil {
				t.Fatalf("IncrWords failed: %v", err)
			}
			if state != (State{SpamCount: 2, HamCount: 1}) {
				t.Errorf("IncrWords state = %+v, want {2 1}", state)
			}
			if persisted, _ := s.State(ctx); persisted != state {
				t.Errorf("State() = %+v, IncrWords returned %+v", persisted, state)
			}

			infos, err := br.Words(ctx, []string{"lunch", "unknown", "free", "money"})
			if err != nil {
				t.Fatalf("Words failed: %v", err)
			}
			expected := []WordInfo{
				{SpamCount: 0, HamCount: 1},
				{},
				{SpamCount: 2, HamCount: 1},
				{SpamCount: 1, HamCount: 0},
			}
			for i := range expected {
				if infos[i] != expected[i] {
					t.Errorf("Words()[%d] = %+v, want %+v", i, infos[i], expected[i])
				}
			}
		})
	}
}

func TestClassifierOnEveryBackend(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)
			c := trainedClassifier(t, s)

			spam, err := c.Score(ctx, "very bad spam")
			if err != nil {
				t.Fatal(err)
			}
			ham, err := c.Score(ctx, "awesome tasty ham")
			if err != nil {
				t.Fatal(err)
			}
			if spam <= 0.9 || ham >= 0.1 {
				t.Errorf("spam=%.4f ham=%.4f", spam, ham)
			}

			reloaded, err := NewClassifier(ctx, s, nil)
			if err != nil {
				t.Fatal(err)
			}
			if reloaded.Counts() != (State{SpamCount: 1, HamCount: 1}) {
				t.Errorf("reloaded counts = %+v", reloaded.Counts())
			}
		})
	}
}

func TestIncrWordsTakesBackDocuments(t *testing.T) {
	for name, factory := range storeBackends() {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			inc, ok := s.(WordIncrementer)
			if !ok {
				t.Skip("store has no batch support")
			}

			if _, err := inc.IncrWords(ctx, []string{"cheap", "pills"}, true, 1); err != nil {
				t.Fatal(err)
			}
			state, err := inc.IncrWords(ctx, []string{"cheap", "pills", "never"}, true, -1)
			if err != nil {
				t.Fatal(err)
			}
			if state != (State{}) {
				t.Errorf("state after take back = %+v", state)
			}

			// nothing goes below zero
			state, err = inc.IncrWords(ctx, []string{"cheap"}, true, -1)
			if err != nil {
				t.Fatal(err)
			}
			if state != (State{}) {
				t.Errorf("state after extra take back = %+v", state)
			}
			for _, token := range []string{"cheap", "pills", "never"} {
				info, err := s.Word(ctx, token)
				if err != nil {
					t.Fatal(err)
				}
				if info != (WordInfo{}) {
					t.Errorf("%s = %+v, want zero", token, info)
				}
			}
		})
	}
}

func TestClassifiersSharingStoreKeepEveryDocument(t *testing.T) {
	backends := storeBackends()
	delete(backends, "memory")

	for name, factory := range backends {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := factory(t)

			batch, err := NewClassifier(ctx, s, nil)
			if err != nil {
				t.Fatal(err)
			}
			live, err := NewClassifier(ctx, s, nil)
			if err != nil {
				t.Fatal(err)
			}

			for i := 0; i < 5; i++ {
				if err := batch.Learn(ctx, "cheap pills", true); err != nil {
					t.Fatal(err)
				}
			}
			if err := live.Learn(ctx, "tasty lunch", false); err != nil {
				t.Fatal(err)
			}
			// a flush from the instance that trained first must not roll back the other
			if err := batch.Store(ctx); err != nil {
				t.Fatal(err)
			}

			want := State{SpamCount: 5, HamCount: 1}
			state, err := s.State(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if state != want {
				t.Errorf("persisted state = %+v, want %+v", state, want)
			}
			if live.Counts() != want {
				t.Errorf("live counts = %+v, want %+v", live.Counts(), want)
			}
			if batch.Counts() != want {
				t.Errorf("batch counts = %+v, want %+v", batch.Counts(), want)
			}
			if info, _ := s.Word(ctx, "cheap"); info.SpamCount != want.SpamCount {
				t.Errorf("cheap = %+v, want spam count %d", info, want.SpamCount)
			}
		})
	}
}

func TestSQLWordsManyTokens(t *testing.T) {
	ctx := context.Background()
	s := newSQLTestStore(t)

	tokens := make([]string, 1200)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token%d", i)
	}
	if _, err := s.IncrWords(ctx, tokens, false, 1); err != nil {
		t.Fatal(err)
	}

	infos, err := s.Words(ctx, tokens)
	if err != nil {
		t.Fatal(err)
	}
	for i, info := range infos {
		if info.HamCount != 1 {
			t.Fatalf("token %d = %+v", i, info)
		}
	}
}

func TestRedisClearKeepsOtherPrefixes(t *testing.T) {
	s := newRedisTestStore(t)
	ctx := context.Background()

	other := fmt.Sprintf("moderator:test:other:%d", time.Now().UnixNano())
	if err := s.client.Set(ctx, other, "1", time.Minute).Err(); err != nil {
		t.Fatal(err)
	}
	defer s.client.Del(ctx, other)

	for i := 0; i < 25; i++ {
		if err := s.SetWord(ctx, fmt.Sprintf("word%d", i), WordInfo{SpamCount: 1}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Clear(ctx); err != nil {
		t.Fatal(err)
	}

	info, _ := s.Word(ctx, "word3")
	if info != (WordInfo{}) {
		t.Errorf("word3 survived Clear: %+v", info)
	}
	if n, _ := s.client.Exists(ctx, other).Result(); n != 1 {
		t.Errorf("Clear removed a key outside its prefix")
	}
}
