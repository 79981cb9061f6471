package ledger

import (
	"time"
)

// Gift is the durable proof of a completed transfer.
type Gift struct {
	ID             int64     `json:"id"`
	Day            string    `json:"day"` // YYYY-MM-DD in the bot's timezone
	Invoker        string    `json:"invoker"`
	Recipient      string    `json:"recipient"`
	SourcePosition uint64    `json:"source_position"` // Stream position of the invoking event
	CreatedAt      time.Time `json:"created_at"`
}

// DecisionRecord is a logged policy evaluation.
type DecisionRecord struct {
	ID        int64     `json:"id"`
	TraceID   string    `json:"trace_id,omitempty"`
	Position  uint64    `json:"position"`
	Invoker   string    `json:"invoker"`
	Recipient string    `json:"recipient"`
	Tier      int       `json:"tier"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

const Schema = `
CREATE TABLE IF NOT EXISTS gifts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	date TEXT NOT NULL,
	invoker TEXT NOT NULL,
	recipient TEXT NOT NULL,
	source_position INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_gifts_position ON gifts(source_position);
CREATE INDEX IF NOT EXISTS idx_gifts_invoker_date ON gifts(invoker, date);

CREATE TABLE IF NOT EXISTS policy_decisions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	trace_id TEXT,
	position INTEGER NOT NULL,
	invoker TEXT NOT NULL,
	recipient TEXT,
	tier INTEGER NOT NULL,
	allowed BOOLEAN NOT NULL,
	reason TEXT,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_policy_position ON policy_decisions(position);
CREATE INDEX IF NOT EXISTS idx_policy_invoker ON policy_decisions(invoker);
CREATE INDEX IF NOT EXISTS idx_policy_trace ON policy_decisions(trace_id);
`
