package sqlite

// schema contains the database schema DDL. Times are Unix milliseconds.
const schema = `
-- Glucose readings
CREATE TABLE IF NOT EXISTS readings (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    source TEXT NOT NULL,
    timestamp_ms INTEGER NOT NULL,
    value REAL NOT NULL,
    UNIQUE(source, timestamp_ms)
);
CREATE INDEX IF NOT EXISTS idx_readings_source_time ON readings(source, timestamp_ms);

-- Source sync state
CREATE TABLE IF NOT EXISTS source_state (
    source TEXT PRIMARY KEY,
    last_sync_ms INTEGER NOT NULL DEFAULT 0,
    last_reading_ms INTEGER NOT NULL DEFAULT 0,
    error_count INTEGER DEFAULT 0,
    last_error TEXT
);
`
