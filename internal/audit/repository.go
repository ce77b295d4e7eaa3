package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// timeLayout is fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const selectColumns = "id, action, entity_type, entity_id, severity, source, details, created_at"

// ErrNotFound is returned by Get for an unknown ID.
var ErrNotFound = errors.New("audit: entry not found")

// AuditLog is one journal entry.
type AuditLog struct { //nolint:revive // audit.AuditLog reads better than audit.Log at call sites
	ID         string         `json:"id"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Severity   string         `json:"severity,omitempty"`
	Source     string         `json:"source"`
	Details    map[string]any `json:"details,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter selects entries for List. Zero fields match everything.
type Filter struct {
	Action     string
	EntityType string
	EntityID   string
	Severity   string
	Since      time.Time // inclusive
	Until      time.Time // exclusive
	Limit      int       // default 50, max 200
	Offset     int
}

func (f *Filter) clamp() {
	switch {
	case f.Limit <= 0:
		f.Limit = defaultPageSize
	case f.Limit > maxPageSize:
		f.Limit = maxPageSize
	}
	f.Offset = max(f.Offset, 0)
}

// ListResult is one page of entries, newest first.
type ListResult struct {
	Logs   []AuditLog `json:"logs"`
	Total  int        `json:"total"`
	Limit  int        `json:"limit"`
	Offset int        `json:"offset"`
}

// Repository stores and reads back journal entries.
type Repository interface {
	Create(ctx context.Context, log *AuditLog) error
	Get(ctx context.Context, id string) (*AuditLog, error)
	List(ctx context.Context, filter Filter) (*ListResult, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// SQLiteRepository keeps entries in the audit_logs table.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository returns a repository over a migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts log, filling in ID and CreatedAt when they are empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *AuditLog) error {
	if log.ID == "" {
		log.ID = "aud-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	var details sql.NullString
	if log.Details != nil {
		b, err := json.Marshal(log.Details)
		if err != nil {
			return fmt.Errorf("encoding audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO audit_logs ("+selectColumns+") VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		log.ID, log.Action, log.EntityType,
		nullString(log.EntityID), nullString(log.Severity),
		log.Source, details, stamp(log.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting audit log %s: %w", log.ID, err)
	}
	return nil
}

// Get returns one entry by ID.
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*AuditLog, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+selectColumns+" FROM audit_logs WHERE id = ?", id)
	log, err := scanLog(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return log, nil
}

// List returns a page of entries matching filter, newest first. Total counts
// every match, not just the page.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	filter.clamp()

	var w where
	w.eq("action", filter.Action)
	w.eq("entity_type", filter.EntityType)
	w.eq("entity_id", filter.EntityID)
	w.eq("severity", filter.Severity)
	if !filter.Since.IsZero() {
		w.add("created_at >= ?", stamp(filter.Since))
	}
	if !filter.Until.IsZero() {
		w.add("created_at < ?", stamp(filter.Until))
	}

	res := &ListResult{Logs: []AuditLog{}, Limit: filter.Limit, Offset: filter.Offset}

	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_logs"+w.String(), w.args...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting audit logs: %w", err)
	}
	if res.Total == 0 {
		return res, nil
	}

	query := "SELECT " + selectColumns + " FROM audit_logs" + w.String() +
		" ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(w.args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying audit logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		log, err := scanLog(rows)
		if err != nil {
			return nil, err
		}
		res.Logs = append(res.Logs, *log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit logs: %w", err)
	}
	return res, nil
}

// Prune deletes entries created before the cutoff and returns how many
// were removed.
func (r *SQLiteRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM audit_logs WHERE created_at < ?", stamp(before))
	if err != nil {
		return 0, fmt.Errorf("pruning audit logs: %w", err)
	}
	return res.RowsAffected()
}

// where accumulates AND-ed conditions with their bind arguments. Column
// names are compile-time constants; values are always bound.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, arg any) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, arg)
}

func (w *where) eq(column, value string) {
	if value != "" {
		w.add(column+" = ?", value)
	}
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLog(s scanner) (*AuditLog, error) {
	var (
		log                         AuditLog
		entityID, severity, details sql.NullString
		createdAt                   string
	)
	err := s.Scan(&log.ID, &log.Action, &log.EntityType, &entityID, &severity, &log.Source, &details, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning audit log: %w", err)
	}

	log.EntityID = entityID.String
	log.Severity = severity.String
	if details.Valid && details.String != "" {
		// A corrupt blob leaves Details nil; the entry itself is still returned.
		if json.Unmarshal([]byte(details.String), &log.Details) != nil {
			log.Details = nil
		}
	}

	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing audit timestamp %q: %w", createdAt, err)
	}
	log.CreatedAt = t
	return &log, nil
}

func stamp(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
