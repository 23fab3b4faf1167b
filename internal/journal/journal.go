// Package journal records billing API operations made by the CLI
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/alexbotov/gaming-billing/pkg/billing"
	"github.com/google/uuid"
)

// Entry is one recorded operation
type Entry struct {
	ID         string
	Timestamp  time.Time
	Service    string
	Resource   billing.Resource
	Verb       billing.Verb
	Method     string
	Path       string
	StatusCode int
	Error      string
}

// Service provides journal functionality
type Service struct {
	db *sql.DB
}

// New creates a new journal service
func New(db *sql.DB) *Service {
	return &Service{db: db}
}

// Record stores an entry
func (s *Service) Record(ctx context.Context, entry *Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operations (id, timestamp, service, resource, verb, method, path, status_code, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, entry.ID, entry.Timestamp, entry.Service, string(entry.Resource), string(entry.Verb),
		entry.Method, entry.Path, entry.StatusCode, entry.Error)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}
	return nil
}

// Log is a convenience method for recording one operation on a family
func (s *Service) Log(ctx context.Context, service string, res billing.Resource, verb billing.Verb, opts ...EntryOption) error {
	entry := &Entry{
		Service:  service,
		Resource: res,
		Verb:     verb,
		Method:   verb.Method(),
		Path:     res.Path(verb),
	}

	for _, opt := range opts {
		opt(entry)
	}

	return s.Record(ctx, entry)
}

// EntryOption is a functional option for configuring entries
type EntryOption func(*Entry)

// WithPath overrides the request path, e.g. to keep the query
func WithPath(path string) EntryOption {
	return func(e *Entry) {
		e.Path = path
	}
}

// WithResult sets the status code and error text from an operation's outcome
func WithResult(resp *billing.Response, err error) EntryOption {
	return func(e *Entry) {
		if resp != nil {
			e.StatusCode = resp.StatusCode
		}
		if err != nil {
			e.Error = err.Error()
			var tErr *billing.TransportError
			if errors.As(err, &tErr) && tErr.StatusCode != 0 {
				e.StatusCode = tErr.StatusCode
			}
		}
	}
}

// WithTimestamp sets the time of the entry
func WithTimestamp(t time.Time) EntryOption {
	return func(e *Entry) {
		e.Timestamp = t
	}
}

// Entries retrieves entries with optional filtering, newest first
func (s *Service) Entries(ctx context.Context, filter *Filter) ([]*Entry, error) {
	query := `SELECT id, timestamp, service, resource, verb, method, path, status_code, error
			  FROM operations WHERE 1=1`
	args := []any{}
	paramIdx := 1

	if filter != nil {
		if filter.Resource != "" {
			query += fmt.Sprintf(" AND resource = $%d", paramIdx)
			args = append(args, string(filter.Resource))
			paramIdx++
		}
		if filter.Verb != "" {
			query += fmt.Sprintf(" AND verb = $%d", paramIdx)
			args = append(args, string(filter.Verb))
			paramIdx++
		}
		if !filter.From.IsZero() {
			query += fmt.Sprintf(" AND timestamp >= $%d", paramIdx)
			args = append(args, filter.From)
			paramIdx++
		}
		if !filter.To.IsZero() {
			query += fmt.Sprintf(" AND timestamp <= $%d", paramIdx)
			args = append(args, filter.To)
			paramIdx++
		}
	}

	query += " ORDER BY timestamp DESC"

	if filter != nil && filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", paramIdx)
		args = append(args, filter.Limit)
	} else {
		query += " LIMIT 100"
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var (
			e        Entry
			resource string
			verb     string
		)
		err := rows.Scan(&e.ID, &e.Timestamp, &e.Service, &resource, &verb,
			&e.Method, &e.Path, &e.StatusCode, &e.Error)
		if err != nil {
			return nil, err
		}
		e.Resource = billing.Resource(resource)
		e.Verb = billing.Verb(verb)
		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Filter defines criteria for filtering entries
type Filter struct {
	Resource billing.Resource
	Verb     billing.Verb
	From     time.Time
	To       time.Time
	Limit    int
}
