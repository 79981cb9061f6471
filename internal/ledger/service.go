// Package ledger stores every gift the bot has sent.
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DayFormat is the layout of Gift.Day.
const DayFormat = "2006-01-02"

// Day returns the calendar day of t in loc.
func Day(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DayFormat)
}

type Service struct {
	db *sql.DB
}

// Open opens (or creates) the gift database at dbPath and applies the schema.
func Open(dbPath string) (*Service, error) {
	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open gift db: %w", err)
	}
	// One connection keeps every read behind the last committed write.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Service{db: db}, nil
}

// New wraps an already opened database. The schema is not applied.
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// DB returns the underlying *sql.DB.
func (s *Service) DB() *sql.DB { return s.db }

func (s *Service) Close() error {
	return s.db.Close()
}

// RecordGift appends a gift. It returns only after the insert is committed.
func (s *Service) RecordGift(ctx context.Context, g Gift) error {
	if g.Invoker == g.Recipient {
		return fmt.Errorf("record gift: invoker and recipient are both %q", g.Invoker)
	}
	if g.CreatedAt.IsZero() {
		g.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO gifts (date, invoker, recipient, source_position, created_at) VALUES (?, ?, ?, ?, ?)`,
		g.Day, g.Invoker, g.Recipient, int64(g.SourcePosition), g.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record gift for position %d: %w", g.SourcePosition, err)
	}
	return nil
}

// CountToday returns how many gifts invoker sent on day.
func (s *Service) CountToday(ctx context.Context, invoker, day string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM gifts WHERE date = ? AND invoker = ?`, day, invoker,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count gifts for %s on %s: %w", invoker, day, err)
	}
	return n, nil
}

// GiftForPosition returns the gift recorded for the event at pos, if any.
func (s *Service) GiftForPosition(ctx context.Context, pos uint64) (Gift, bool, error) {
	var g Gift
	var p int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, date, invoker, recipient, source_position, created_at FROM gifts WHERE source_position = ?`, int64(pos),
	).Scan(&g.ID, &g.Day, &g.Invoker, &g.Recipient, &p, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Gift{}, false, nil
	}
	if err != nil {
		return Gift{}, false, fmt.Errorf("lookup gift for position %d: %w", pos, err)
	}
	g.SourcePosition = uint64(p)
	return g, true, nil
}

type FilterArgs struct {
	Invoker   string
	Recipient string
	Day       string
	Limit     int
	Offset    int
}

// ListGifts returns gifts newest first.
func (s *Service) ListGifts(ctx context.Context, filter FilterArgs) ([]Gift, error) {
	query := `SELECT id, date, invoker, recipient, source_position, created_at FROM gifts WHERE 1=1`
	args := []interface{}{}

	if filter.Invoker != "" {
		query += " AND invoker = ?"
		args = append(args, filter.Invoker)
	}
	if filter.Recipient != "" {
		query += " AND recipient = ?"
		args = append(args, filter.Recipient)
	}
	if filter.Day != "" {
		query += " AND date = ?"
		args = append(args, filter.Day)
	}

	query += " ORDER BY source_position DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET ?"
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var gifts []Gift
	for rows.Next() {
		var g Gift
		var pos int64
		if err := rows.Scan(&g.ID, &g.Day, &g.Invoker, &g.Recipient, &pos, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.SourcePosition = uint64(pos)
		gifts = append(gifts, g)
	}
	return gifts, rows.Err()
}

// LogDecision persists a policy evaluation for later reporting. Only the
// first evaluation of a position is kept; redeliveries are ignored.
func (s *Service) LogDecision(ctx context.Context, rec *DecisionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO policy_decisions (trace_id, position, invoker, recipient, tier, allowed, reason) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, int64(rec.Position), rec.Invoker, rec.Recipient, rec.Tier, rec.Allowed, rec.Reason,
	)
	return err
}

// ListDecisions returns logged decisions for invoker, newest first.
func (s *Service) ListDecisions(ctx context.Context, invoker string, limit int) ([]DecisionRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, COALESCE(trace_id,''), position, invoker, COALESCE(recipient,''), tier, allowed, COALESCE(reason,''), created_at
		 FROM policy_decisions WHERE invoker = ? ORDER BY id DESC LIMIT ?`, invoker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var r DecisionRecord
		var pos int64
		if err := rows.Scan(&r.ID, &r.TraceID, &pos, &r.Invoker, &r.Recipient, &r.Tier, &r.Allowed, &r.Reason, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.Position = uint64(pos)
		out = append(out, r)
	}
	return out, rows.Err()
}
