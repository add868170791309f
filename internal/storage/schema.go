package storage

const schema = `
-- The 'sources' table tracks deck origins, either a local directory or a git repository.
CREATE TABLE IF NOT EXISTS sources (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    type TEXT NOT NULL DEFAULT 'local',
    last_scanned DATETIME
);

-- The 'cards' table stores deck content, keyed by content hash.
CREATE TABLE IF NOT EXISTS cards (
    hash TEXT PRIMARY KEY,
    question TEXT NOT NULL,
    answer TEXT NOT NULL,
    context TEXT,
    tags TEXT, -- comma-separated tag names
    source_id INTEGER,

    FOREIGN KEY(source_id) REFERENCES sources(id)
);

CREATE TABLE IF NOT EXISTS learners (
    id TEXT PRIMARY KEY,
    display_name TEXT,
    created_at DATETIME NOT NULL
);

-- One scheduling record per (learner, card). 'version' backs the
-- optimistic compare-and-swap on review writes.
CREATE TABLE IF NOT EXISTS memory_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    learner_id TEXT NOT NULL,
    card_hash TEXT NOT NULL,
    due_at DATETIME NOT NULL,
    interval_days INTEGER NOT NULL DEFAULT 0,
    ease_factor REAL NOT NULL DEFAULT 2.5,
    repetitions INTEGER NOT NULL DEFAULT 0,
    last_reviewed_at DATETIME,
    version INTEGER NOT NULL DEFAULT 0,

    UNIQUE(learner_id, card_hash),
    FOREIGN KEY(learner_id) REFERENCES learners(id),
    FOREIGN KEY(card_hash) REFERENCES cards(hash)
);

CREATE INDEX IF NOT EXISTS idx_memory_states_due
    ON memory_states(learner_id, due_at, card_hash);

-- Append-only history of graded reviews.
CREATE TABLE IF NOT EXISTS review_log (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    state_id INTEGER NOT NULL,
    learner_id TEXT NOT NULL,
    card_hash TEXT NOT NULL,
    grade TEXT NOT NULL,
    interval_days INTEGER NOT NULL,
    ease_factor REAL NOT NULL,
    reviewed_at DATETIME NOT NULL,

    FOREIGN KEY(state_id) REFERENCES memory_states(id)
);
`
