package learning

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// words per IN (...) query
const sqlChunkSize = 500

const stateRowID = 1

// SQLStore keeps word statistics in the moderator_words and
// moderator_classifier_state tables of the comment database
type SQLStore struct {
	db *sqlx.DB
}

// NewSQLStore wraps an already migrated database handle
func NewSQLStore(db *sqlx.DB) *SQLStore {
	return &SQLStore{db: db}
}

type wordRow struct {
	Word      string `db:"word"`
	SpamCount int    `db:"spam_count"`
	HamCount  int    `db:"ham_count"`
}

func (s *SQLStore) Word(ctx context.Context, token string) (WordInfo, error) {
	var info WordInfo
	err := s.db.GetContext(ctx, &info, s.db.Rebind(`SELECT spam_count, ham_count FROM moderator_words WHERE word = ?`), token)
	if errors.Is(err, sql.ErrNoRows) {
		return WordInfo{}, nil
	}
	if err != nil {
		return WordInfo{}, fmt.Errorf("failed to read word %q: %w", token, err)
	}
	return info, nil
}

// Words fetches the counts of many tokens with a few IN queries
func (s *SQLStore) Words(ctx context.Context, tokens []string) ([]WordInfo, error) {
	found := make(map[string]WordInfo, len(tokens))

	for start := 0; start < len(tokens); start += sqlChunkSize {
		end := min(start+sqlChunkSize, len(tokens))

		query, args, err := sqlx.In(`SELECT word, spam_count, ham_count FROM moderator_words WHERE word IN (?)`, tokens[start:end])
		if err != nil {
			return nil, err
		}
		var rows []wordRow
		if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
			return nil, fmt.Errorf("failed to read words: %w", err)
		}
		for _, r := range rows {
			found[r.Word] = WordInfo{SpamCount: r.SpamCount, HamCount: r.HamCount}
		}
	}

	infos := make([]WordInfo, len(tokens))
	for i, token := range tokens {
		infos[i] = found[token]
	}
	return infos, nil
}

func (s *SQLStore) SetWord(ctx context.Context, token string, info WordInfo) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
INSERT INTO moderator_words (word, spam_count, ham_count) VALUES (?, ?, ?)
ON CONFLICT (word) DO UPDATE SET spam_count = excluded.spam_count, ham_count = excluded.ham_count
`), token, info.SpamCount, info.HamCount)
	if err != nil {
		return fmt.Errorf("failed to write word %q: %w", token, err)
	}
	return nil
}

// IncrWords applies delta to the token counts and the global document
// count in a single transaction
func (s *SQLStore) IncrWords(ctx context.Context, tokens []string, isSpam bool, delta int) (State, error) {
	column := "ham_count"
	if isSpam {
		column = "spam_count"
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return State{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// a word that was never trained has nothing to take back
	query := fmt.Sprintf(`UPDATE moderator_words SET %[1]s = CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END WHERE word = ?`, column)
	if delta > 0 {
		query = fmt.Sprintf(`
INSERT INTO moderator_words (word, %[1]s) VALUES (?, ?)
ON CONFLICT (word) DO UPDATE SET %[1]s = moderator_words.%[1]s + excluded.%[1]s
`, column)
	}

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(query))
	if err != nil {
		return State{}, err
	}
	defer stmt.Close()

	for _, token := range tokens {
		if delta > 0 {
			_, err = stmt.ExecContext(ctx, token, delta)
		} else {
			_, err = stmt.ExecContext(ctx, delta, delta, token)
		}
		if err != nil {
			return State{}, fmt.Errorf("failed to update word %q: %w", token, err)
		}
	}

	if _, err := tx.ExecContext(ctx, s.db.Rebind(`
INSERT INTO moderator_classifier_state (id, spam_count, ham_count) VALUES (?, 0, 0)
ON CONFLICT (id) DO NOTHING
`), stateRowID); err != nil {
		return State{}, fmt.Errorf("failed to create classifier state: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(fmt.Sprintf(
		`UPDATE moderator_classifier_state SET %[1]s = CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END WHERE id = ?`, column,
	)), delta, delta, stateRowID); err != nil {
		return State{}, fmt.Errorf("failed to update classifier state: %w", err)
	}

	var state State
	if err := tx.GetContext(ctx, &state, s.db.Rebind(`SELECT spam_count, ham_count FROM moderator_classifier_state WHERE id = ?`), stateRowID); err != nil {
		return State{}, fmt.Errorf("failed to read classifier state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return State{}, err
	}
	return state, nil
}

func (s *SQLStore) State(ctx context.Context) (State, error) {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
INSERT INTO moderator_classifier_state (id, spam_count, ham_count) VALUES (?, 0, 0)
ON CONFLICT (id) DO NOTHING
`), stateRowID)
	if err != nil {
		return State{}, fmt.Errorf("failed to create classifier state: %w", err)
	}

	var state State
	err = s.db.GetContext(ctx, &state, s.db.Rebind(`SELECT spam_count, ham_count FROM moderator_classifier_state WHERE id = ?`), stateRowID)
	if err != nil {
		return State{}, fmt.Errorf("failed to read classifier state: %w", err)
	}
	return state, nil
}

func (s *SQLStore) SetState(ctx context.Context, state State) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`
INSERT INTO moderator_classifier_state (id, spam_count, ham_count) VALUES (?, ?, ?)
ON CONFLICT (id) DO UPDATE SET spam_count = excluded.spam_count, ham_count = excluded.ham_count
`), stateRowID, state.SpamCount, state.HamCount)
	if err != nil {
		return fmt.Errorf("failed to write classifier state: %w", err)
	}
	return nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM moderator_words`); err != nil {
		return fmt.Errorf("failed to clear words: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.db.Rebind(`
INSERT INTO moderator_classifier_state (id, spam_count, ham_count) VALUES (?, 0, 0)
ON CONFLICT (id) DO UPDATE SET spam_count = 0, ham_count = 0
`), stateRowID); err != nil {
		return fmt.Errorf("failed to reset classifier state: %w", err)
	}
	return tx.Commit()
}

// Close is a no-op; the database handle belongs to the caller
func (s *SQLStore) Close() error {
	return nil
}
