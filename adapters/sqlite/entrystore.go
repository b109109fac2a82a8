package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chatforge/planledger/domain/entry"
	"github.com/chatforge/planledger/domain/plan"
	"github.com/chatforge/planledger/ports"
)

// EntryStore implements ports.EntryStore with SQLite.
// Plans are stored as a JSON column and replaced wholesale on write;
// the single UPDATE keeps each write atomic.
type EntryStore struct {
	db *DB
}

// NewEntryStore creates a new SQLite entry store.
func NewEntryStore(db *DB) *EntryStore {
	return &EntryStore{db: db}
}

// Get retrieves an entry by reference.
func (s *EntryStore) Get(ctx context.Context, ref entry.Ref) (entry.Entry, error) {
	row := s.db.DB.QueryRowContext(ctx, `
		SELECT kind, id, plan_json, sub_since, sub_expires, contact_verified,
			   created_at, updated_at
		FROM entries WHERE kind = ? AND id = ?
	`, string(ref.Kind), ref.ID)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entry.Entry{}, ports.ErrNotFound
	}
	return e, err
}

// Put upserts a whole entry.
func (s *EntryStore) Put(ctx context.Context, e entry.Entry) error {
	planJSON, err := marshalPlan(e.Plan)
	if err != nil {
		return err
	}

	var since, expires any
	if e.Subscription != nil {
		since = e.Subscription.Since.UTC()
		expires = e.Subscription.Expires.UTC()
	}

	now := time.Now().UTC()
	createdAt := e.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.DB.ExecContext(ctx, `
		INSERT INTO entries (kind, id, plan_json, sub_since, sub_expires, contact_verified, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			plan_json = excluded.plan_json,
			sub_since = excluded.sub_since,
			sub_expires = excluded.sub_expires,
			contact_verified = excluded.contact_verified,
			updated_at = excluded.updated_at
	`, string(e.Kind), e.ID, planJSON, since, expires, boolToInt(e.ContactVerified), createdAt, now)
	if err != nil {
		return fmt.Errorf("put entry: %w", err)
	}
	return nil
}

// UpdatePlan replaces the entry's plan wholesale and returns the updated
// entry. The entry is created if it does not exist.
func (s *EntryStore) UpdatePlan(ctx context.Context, ref entry.Ref, p plan.Plan) (entry.Entry, error) {
	planJSON, err := marshalPlan(&p)
	if err != nil {
		return entry.Entry{}, err
	}

	now := time.Now().UTC()
	_, err = s.db.DB.ExecContext(ctx, `
		INSERT INTO entries (kind, id, plan_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, id) DO UPDATE SET
			plan_json = excluded.plan_json,
			updated_at = excluded.updated_at
	`, string(ref.Kind), ref.ID, planJSON, now, now)
	if err != nil {
		return entry.Entry{}, fmt.Errorf("update plan: %w", err)
	}

	return s.Get(ctx, ref)
}

// List returns entries of a kind ordered by ID.
func (s *EntryStore) List(ctx context.Context, kind entry.Kind, limit, offset int) ([]entry.Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.DB.QueryContext(ctx, `
		SELECT kind, id, plan_json, sub_since, sub_expires, contact_verified,
			   created_at, updated_at
		FROM entries WHERE kind = ?
		ORDER BY id ASC LIMIT ? OFFSET ?
	`, string(kind), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []entry.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (entry.Entry, error) {
	var (
		kind, id        string
		planJSON        sql.NullString
		since, expires  sql.NullTime
		contactVerified int
		createdAt       time.Time
		updatedAt       time.Time
	)
	if err := row.Scan(&kind, &id, &planJSON, &since, &expires, &contactVerified, &createdAt, &updatedAt); err != nil {
		return entry.Entry{}, err
	}

	e := entry.Entry{
		Ref:             entry.Ref{Kind: entry.Kind(kind), ID: id},
		ContactVerified: contactVerified != 0,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
	}

	if planJSON.Valid && planJSON.String != "" {
		p, err := unmarshalPlan(planJSON.String)
		if err == nil {
			e.Plan = &p
		}
		// Only a syntactically corrupt plan column reads as "no plan";
		// wrong-shape fields degrade inside unmarshalPlan instead.
	}

	if since.Valid && expires.Valid {
		e.Subscription = &entry.Subscription{Since: since.Time, Expires: expires.Time}
	}

	return e, nil
}

func marshalPlan(p *plan.Plan) (any, error) {
	if p == nil {
		return nil, nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	return string(data), nil
}

// planRecord decodes the plan column field by field. Expenses and
// history are kept raw so a wrong-shape payload in either degrades to
// an empty slice with the balance preserved, rather than dropping the
// whole plan and reading the entry as not provisioned.
type planRecord struct {
	Total    float64         `json:"total"`
	Used     float64         `json:"used"`
	Expenses json.RawMessage `json:"expenses"`
	History  json.RawMessage `json:"history"`
}

func unmarshalPlan(raw string) (plan.Plan, error) {
	var rec planRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		// Type mismatches on total/used zero the field but leave the
		// rest decoded; only syntactically invalid JSON is unreadable.
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return plan.Plan{}, fmt.Errorf("unmarshal plan: %w", err)
		}
	}

	p := plan.Plan{Total: rec.Total, Used: rec.Used}
	if len(rec.Expenses) > 0 {
		if err := json.Unmarshal(rec.Expenses, &p.Expenses); err != nil {
			p.Expenses = nil
		}
	}
	if len(rec.History) > 0 {
		if err := json.Unmarshal(rec.History, &p.History); err != nil {
			p.History = nil
		}
	}
	return plan.Normalize(p), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Ensure interface compliance.
var _ ports.EntryStore = (*EntryStore)(nil)
