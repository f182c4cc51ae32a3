package alerthistory

const schema = `
CREATE TABLE IF NOT EXISTS alert_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    alert_id TEXT NOT NULL,
    repository_id TEXT NOT NULL,
    repository_name TEXT,
    session_id TEXT,
    reason TEXT NOT NULL,
    severity TEXT NOT NULL,
    transition TEXT NOT NULL,
    stuck_duration_seconds INTEGER NOT NULL DEFAULT 0,
    acknowledged BOOLEAN DEFAULT FALSE,
    recorded_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_alert_events_repository ON alert_events(repository_id);
CREATE INDEX IF NOT EXISTS idx_alert_events_alert ON alert_events(alert_id);
CREATE INDEX IF NOT EXISTS idx_alert_events_recorded_at ON alert_events(recorded_at);
`
