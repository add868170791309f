package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/recallkit/recallkit/internal/domain"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn *sql.DB
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(dsn string) (*DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &DB{conn: db}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Source represents a deck source, either a local path or a git URL.
type Source struct {
	ID          int64
	Path        string
	Type        string
	LastScanned sql.NullTime
}

// Learner is an enrolled learner. The ID is the opaque identifier supplied
// by the identity collaborator.
type Learner struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// InsertSource inserts a new source path into the database and returns its ID.
func (db *DB) InsertSource(path, sourceType string) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO sources (path, type)
		VALUES (?, ?)
	`, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a source by its path, or nil if absent.
func (db *DB) FindSourceByPath(path string) (*Source, error) {
	var s Source
	row := db.conn.QueryRow(`
		SELECT id, path, type, last_scanned
		FROM sources WHERE path = ?
	`, path)

	err := row.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &s, nil
}

// GetAllSources retrieves all stored sources from the database.
func (db *DB) GetAllSources() ([]Source, error) {
	rows, err := db.conn.Query(`
		SELECT id, path, type, last_scanned
		FROM sources
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []Source
	for rows.Next() {
		var s Source
		if err := rows.Scan(&s.ID, &s.Path, &s.Type, &s.LastScanned); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (db *DB) UpdateSourceLastScanned(sourceID int64) error {
	_, err := db.conn.Exec(`
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, time.Now().UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a source together with its cards and their
// scheduling records.
func (db *DB) DeleteSource(sourceID int64) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete of source %d: %w", sourceID, err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM review_log WHERE card_hash IN (SELECT hash FROM cards WHERE source_id = ?)`,
		`DELETE FROM memory_states WHERE card_hash IN (SELECT hash FROM cards WHERE source_id = ?)`,
		`DELETE FROM cards WHERE source_id = ?`,
		`DELETE FROM sources WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, sourceID); err != nil {
			return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
		}
	}
	return tx.Commit()
}

// UpsertCard inserts a card or refreshes its tags and source. The content
// hash is the primary key, so question/answer/context never change under
// an existing hash.
func (db *DB) UpsertCard(card domain.Card, sourceID int64) error {
	_, err := db.conn.Exec(`
		INSERT INTO cards (hash, question, answer, context, tags, source_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET tags = excluded.tags, source_id = excluded.source_id
	`,
		card.Hash,
		card.Question,
		card.Answer,
		card.Context,
		joinTags(card.Tags),
		sourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert card %s: %w", card.Hash, err)
	}
	return nil
}

// FindCardByHash retrieves a card by its hash, or nil if absent.
func (db *DB) FindCardByHash(hash string) (*domain.Card, error) {
	var (
		c    domain.Card
		tags sql.NullString
		ctx  sql.NullString
	)
	row := db.conn.QueryRow(`
		SELECT hash, question, answer, context, tags
		FROM cards WHERE hash = ?
	`, hash)

	err := row.Scan(&c.Hash, &c.Question, &c.Answer, &ctx, &tags)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find card by hash %s: %w", hash, err)
	}
	c.Context = ctx.String
	c.Tags = splitTags(tags.String)
	return &c, nil
}

// GetCardsBySourceID retrieves all cards associated with a specific source ID.
func (db *DB) GetCardsBySourceID(sourceID int64) ([]domain.Card, error) {
	rows, err := db.conn.Query(`
		SELECT hash, question, answer, context, tags
		FROM cards WHERE source_id = ?
	`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cards for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()
	return scanCards(rows)
}

// GetAllCards retrieves every card keyed by hash.
func (db *DB) GetAllCards() (map[string]domain.Card, error) {
	rows, err := db.conn.Query(`SELECT hash, question, answer, context, tags FROM cards`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all cards: %w", err)
	}
	defer rows.Close()

	cards, err := scanCards(rows)
	if err != nil {
		return nil, err
	}
	byHash := make(map[string]domain.Card, len(cards))
	for _, c := range cards {
		byHash[c.Hash] = c
	}
	return byHash, nil
}

// DeleteCardByHash removes a card and its scheduling records.
func (db *DB) DeleteCardByHash(hash string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete of card %s: %w", hash, err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM review_log WHERE card_hash = ?`,
		`DELETE FROM memory_states WHERE card_hash = ?`,
		`DELETE FROM cards WHERE hash = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, hash); err != nil {
			return fmt.Errorf("failed to delete card %s: %w", hash, err)
		}
	}
	return tx.Commit()
}

// CreateLearner registers a learner. Creating an existing learner is an error.
func (db *DB) CreateLearner(id, displayName string, now time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO learners (id, display_name, created_at)
		VALUES (?, ?, ?)
	`, id, displayName, now.UTC())
	if err != nil {
		return fmt.Errorf("failed to create learner %s: %w", id, err)
	}
	return nil
}

// GetLearner retrieves a learner. Returns ErrNotFound if absent.
func (db *DB) GetLearner(id string) (*Learner, error) {
	var l Learner
	row := db.conn.QueryRow(`
		SELECT id, display_name, created_at
		FROM learners WHERE id = ?
	`, id)

	err := row.Scan(&l.ID, &l.DisplayName, &l.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("learner %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get learner %s: %w", id, err)
	}
	return &l, nil
}

// ListLearners retrieves all registered learners.
func (db *DB) ListLearners() ([]Learner, error) {
	rows, err := db.conn.Query(`SELECT id, display_name, created_at FROM learners ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list learners: %w", err)
	}
	defer rows.Close()

	var learners []Learner
	for rows.Next() {
		var l Learner
		if err := rows.Scan(&l.ID, &l.DisplayName, &l.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan learner row: %w", err)
		}
		learners = append(learners, l)
	}
	return learners, rows.Err()
}

// DeleteLearner removes a learner together with all their memory states and
// review history. This is the only path that deletes memory states for a
// live card.
func (db *DB) DeleteLearner(id string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin delete of learner %s: %w", id, err)
	}
	defer tx.Rollback()

	stmts := []string{
		`DELETE FROM review_log WHERE learner_id = ?`,
		`DELETE FROM memory_states WHERE learner_id = ?`,
		`DELETE FROM learners WHERE id = ?`,
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("failed to delete learner %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// EnrollLearner seeds a memory state for every card the learner does not
// yet track. Seed states are due immediately. Returns the number of states
// created.
func (db *DB) EnrollLearner(learnerID string, now time.Time) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO memory_states (learner_id, card_hash, due_at, interval_days, ease_factor, repetitions)
		SELECT ?, c.hash, ?, 0, ?, 0
		FROM cards c
		WHERE NOT EXISTS (
			SELECT 1 FROM memory_states ms
			WHERE ms.learner_id = ? AND ms.card_hash = c.hash
		)
	`, learnerID, now.UTC(), domain.SeedEaseFactor, learnerID)
	if err != nil {
		return 0, fmt.Errorf("failed to enroll learner %s: %w", learnerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count enrollments for learner %s: %w", learnerID, err)
	}
	return n, nil
}

// SeedStatesForCard seeds a memory state for the given card for every
// learner not yet tracking it. Used when sync discovers a new card.
func (db *DB) SeedStatesForCard(cardHash string, now time.Time) error {
	_, err := db.conn.Exec(`
		INSERT INTO memory_states (learner_id, card_hash, due_at, interval_days, ease_factor, repetitions)
		SELECT l.id, ?, ?, 0, ?, 0
		FROM learners l
		WHERE NOT EXISTS (
			SELECT 1 FROM memory_states ms
			WHERE ms.learner_id = l.id AND ms.card_hash = ?
		)
	`, cardHash, now.UTC(), domain.SeedEaseFactor, cardHash)
	if err != nil {
		return fmt.Errorf("failed to seed states for card %s: %w", cardHash, err)
	}
	return nil
}

// GetState retrieves the memory state for a (learner, card) pair.
// Returns ErrNotFound if absent.
func (db *DB) GetState(learnerID, cardHash string) (*domain.MemoryState, error) {
	row := db.conn.QueryRow(stateColumns+` WHERE learner_id = ? AND card_hash = ?`,
		learnerID, cardHash)
	return scanState(row, fmt.Sprintf("state for learner %s card %s", learnerID, cardHash))
}

// GetStateByID retrieves a memory state by its record ID.
// Returns ErrNotFound if absent.
func (db *DB) GetStateByID(id int64) (*domain.MemoryState, error) {
	row := db.conn.QueryRow(stateColumns+` WHERE id = ?`, id)
	return scanState(row, fmt.Sprintf("state %d", id))
}

// ListStates retrieves every memory state for a learner.
func (db *DB) ListStates(learnerID string) ([]domain.MemoryState, error) {
	rows, err := db.conn.Query(stateColumns+` WHERE learner_id = ?`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list states for learner %s: %w", learnerID, err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// ListDue retrieves the learner's due memory states ordered ascending by
// due date, ties broken by ascending card hash. A non-empty tag restricts
// the result to cards carrying that tag. limit 0 means unbounded; a
// negative limit returns ErrInvalidArgument. An unknown learner yields an
// empty result.
func (db *DB) ListDue(learnerID string, now time.Time, tag string, limit int) ([]domain.MemoryState, error) {
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit %d must be positive", domain.ErrInvalidArgument, limit)
	}

	query := `
		SELECT s.id, s.learner_id, s.card_hash, s.due_at, s.interval_days,
		       s.ease_factor, s.repetitions, s.last_reviewed_at, s.version
		FROM memory_states s
		JOIN cards c ON c.hash = s.card_hash
		WHERE s.learner_id = ? AND s.due_at <= ?`
	args := []any{learnerID, now.UTC()}

	if tag != "" {
		query += ` AND (',' || IFNULL(c.tags, '') || ',') LIKE ('%,' || ? || ',%')`
		args = append(args, tag)
	}
	query += ` ORDER BY s.due_at ASC, s.card_hash ASC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list due states for learner %s: %w", learnerID, err)
	}
	defer rows.Close()
	return scanStates(rows)
}

// RecordOptions carries the capability flags for a review write.
type RecordOptions struct {
	// LogHistory appends a review_log row in the same transaction as the
	// state update.
	LogHistory bool
}

// RecordReview persists a post-review memory state. The write is an
// optimistic compare-and-swap: state.Version must be the version that was
// read before the scheduler ran. On a version mismatch the whole
// transaction is abandoned and ErrConflict is returned, so the caller can
// re-read and retry; nothing is committed partially.
func (db *DB) RecordReview(state domain.MemoryState, grade domain.Grade, opts RecordOptions) error {
	if state.LastReviewedAt == nil {
		return fmt.Errorf("%w: state %d has no review timestamp", domain.ErrInvalidArgument, state.ID)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin review write for state %d: %w", state.ID, err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`
		UPDATE memory_states
		SET due_at = ?, interval_days = ?, ease_factor = ?, repetitions = ?,
		    last_reviewed_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`,
		state.DueAt.UTC(),
		state.IntervalDays,
		state.EaseFactor,
		state.Repetitions,
		state.LastReviewedAt.UTC(),
		state.ID,
		state.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update state %d: %w", state.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for state %d: %w", state.ID, err)
	}
	if n == 0 {
		var exists bool
		if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM memory_states WHERE id = ?)`, state.ID).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check state %d: %w", state.ID, err)
		}
		if exists {
			return fmt.Errorf("state %d version %d: %w", state.ID, state.Version, domain.ErrConflict)
		}
		return fmt.Errorf("state %d: %w", state.ID, domain.ErrNotFound)
	}

	if opts.LogHistory {
		_, err = tx.Exec(`
			INSERT INTO review_log (state_id, learner_id, card_hash, grade, interval_days, ease_factor, reviewed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`,
			state.ID,
			state.LearnerID,
			state.CardHash,
			grade.String(),
			state.IntervalDays,
			state.EaseFactor,
			state.LastReviewedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to log review for state %d: %w", state.ID, err)
		}
	}

	return tx.Commit()
}

// GetReviewLog retrieves the review history for a learner, oldest first.
func (db *DB) GetReviewLog(learnerID string) ([]domain.ReviewLog, error) {
	rows, err := db.conn.Query(`
		SELECT id, state_id, learner_id, card_hash, grade, interval_days, ease_factor, reviewed_at
		FROM review_log WHERE learner_id = ? ORDER BY reviewed_at ASC, id ASC
	`, learnerID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review log for learner %s: %w", learnerID, err)
	}
	defer rows.Close()

	var logs []domain.ReviewLog
	for rows.Next() {
		var (
			entry domain.ReviewLog
			token string
		)
		if err := rows.Scan(&entry.ID, &entry.StateID, &entry.LearnerID, &entry.CardHash,
			&token, &entry.IntervalDays, &entry.EaseFactor, &entry.ReviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		grade, err := domain.ParseGrade(token)
		if err != nil {
			return nil, fmt.Errorf("review log row %d: %w", entry.ID, err)
		}
		entry.Grade = grade
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}

const stateColumns = `
	SELECT id, learner_id, card_hash, due_at, interval_days,
	       ease_factor, repetitions, last_reviewed_at, version
	FROM memory_states`

func scanState(row *sql.Row, what string) (*domain.MemoryState, error) {
	var (
		st       domain.MemoryState
		reviewed sql.NullTime
	)
	err := row.Scan(&st.ID, &st.LearnerID, &st.CardHash, &st.DueAt, &st.IntervalDays,
		&st.EaseFactor, &st.Repetitions, &reviewed, &st.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", what, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", what, err)
	}
	if reviewed.Valid {
		at := reviewed.Time
		st.LastReviewedAt = &at
	}
	return &st, nil
}

func scanStates(rows *sql.Rows) ([]domain.MemoryState, error) {
	var states []domain.MemoryState
	for rows.Next() {
		var (
			st       domain.MemoryState
			reviewed sql.NullTime
		)
		if err := rows.Scan(&st.ID, &st.LearnerID, &st.CardHash, &st.DueAt, &st.IntervalDays,
			&st.EaseFactor, &st.Repetitions, &reviewed, &st.Version); err != nil {
			return nil, fmt.Errorf("failed to scan memory state row: %w", err)
		}
		if reviewed.Valid {
			at := reviewed.Time
			st.LastReviewedAt = &at
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

func scanCards(rows *sql.Rows) ([]domain.Card, error) {
	var cards []domain.Card
	for rows.Next() {
		var (
			c    domain.Card
			ctx  sql.NullString
			tags sql.NullString
		)
		if err := rows.Scan(&c.Hash, &c.Question, &c.Answer, &ctx, &tags); err != nil {
			return nil, fmt.Errorf("failed to scan card row: %w", err)
		}
		c.Context = ctx.String
		c.Tags = splitTags(tags.String)
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
