package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/docsight/docsight/internal/domain"
	"github.com/docsight/docsight/internal/port"
)

// PostgresStore implements port.DocumentStore on a single documents table
// with a JSONB body per record. Change events are pushed through a Notifier
// so live views never have to poll.
type PostgresStore struct {
	db       *sql.DB
	notifier Notifier
}

// NewPostgresStore opens a connection and returns a store instance.
func NewPostgresStore(databaseURL string, notifier Notifier) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &PostgresStore{db: db, notifier: notifier}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables the store needs if they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id         TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			data       JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_documents_collection ON documents (collection, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS audit_logs (
			id          TEXT PRIMARY KEY,
			user_id     TEXT NOT NULL,
			action      TEXT NOT NULL,
			resource    TEXT NOT NULL,
			resource_id TEXT NOT NULL,
			details     TEXT NOT NULL DEFAULT '',
			ip          TEXT NOT NULL DEFAULT '',
			user_agent  TEXT NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// Query returns documents matching every equality filter, newest first.
func (s *PostgresStore) Query(ctx context.Context, collection string, filters []port.Filter, orderBy string, limit int) ([]port.Document, error) {
	var sb strings.Builder
	sb.WriteString(`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1`)
	args := []any{collection}

	for _, f := range filters {
		args = append(args, filterValue(f.Value))
		fmt.Fprintf(&sb, ` AND data->>'%s' = $%d`, sanitizeField(f.Field), len(args))
	}

	fmt.Fprintf(&sb, ` ORDER BY %s DESC`, orderColumn(orderBy))
	if limit > 0 {
		args = append(args, limit)
		fmt.Fprintf(&sb, ` LIMIT $%d`, len(args))
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mapStoreErr("query documents", err)
	}
	defer rows.Close()

	var docs []port.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, mapStoreErr("query documents", err)
	}
	return docs, nil
}

// Get returns a single document by id.
func (s *PostgresStore) Get(ctx context.Context, collection, id string) (port.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, data, created_at, updated_at FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	)
	return scanDocument(row)
}

// Create inserts a new document with a store-assigned id.
func (s *PostgresStore) Create(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := uuid.New().String()
	body, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, data) VALUES ($1, $2, $3)`,
		id, collection, body,
	)
	if err != nil {
		return "", mapStoreErr("create document", err)
	}

	s.publish(collection, id, port.OpCreate)
	return id, nil
}

// Put writes the document under a caller-chosen id, replacing any existing body.
func (s *PostgresStore) Put(ctx context.Context, collection, id string, fields map[string]any) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal document: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (id, collection, data) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
		id, collection, body,
	)
	if err != nil {
		return mapStoreErr("put document", err)
	}

	s.publish(collection, id, port.OpUpdate)
	return nil
}

// Update merges partial fields into an existing document and bumps updated_at.
func (s *PostgresStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal patch: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
		 WHERE collection = $1 AND id = $2`,
		collection, id, patch,
	)
	if err != nil {
		return mapStoreErr("update document", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return port.NewStoreError(port.StoreCodeNotFound, fmt.Errorf("document %s/%s", collection, id))
	}

	s.publish(collection, id, port.OpUpdate)
	return nil
}

// Subscribe registers for change events on a collection via the notifier.
func (s *PostgresStore) Subscribe(collection string, fn func(port.ChangeEvent)) (port.UnsubscribeFunc, error) {
	return s.notifier.Subscribe(collection, fn)
}

func (s *PostgresStore) publish(collection, id, op string) {
	evt := port.ChangeEvent{Collection: collection, DocID: id, Op: op}
	if err := s.notifier.Publish(context.Background(), evt); err != nil {
		slog.Error("publish change event", "collection", collection, "doc_id", id, "error", err)
	}
}

// --- Audit ---

// WriteAudit persists one audit record.
func (s *PostgresStore) WriteAudit(entry domain.AuditLog) error {
	_, err := s.db.Exec(
		`INSERT INTO audit_logs (id, user_id, action, resource, resource_id, details, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New().String(), entry.UserID, entry.Action, entry.Resource,
		entry.ResourceID, entry.Details, entry.IP, entry.UserAgent,
	)
	if err != nil {
		return fmt.Errorf("write audit: %w", err)
	}
	return nil
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (port.Document, error) {
	var (
		doc  port.Document
		body []byte
	)
	err := row.Scan(&doc.ID, &body, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return port.Document{}, port.NewStoreError(port.StoreCodeNotFound, err)
	}
	if err != nil {
		return port.Document{}, mapStoreErr("scan document", err)
	}
	if err := json.Unmarshal(body, &doc.Data); err != nil {
		return port.Document{}, port.NewStoreError(port.StoreCodeMalformed, err)
	}
	return doc, nil
}

// filterValue renders a filter value the way Postgres renders JSONB text.
func filterValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return fmt.Sprint(v)
	}
}

// sanitizeField keeps only characters valid in a document field name, so
// filter fields can never break out of the JSONB accessor.
func sanitizeField(field string) string {
	var sb strings.Builder
	for _, r := range field {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '_' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func orderColumn(orderBy string) string {
	switch orderBy {
	case "", "createdAt":
		return "created_at"
	case "updatedAt":
		return "updated_at"
	default:
		return fmt.Sprintf("data->>'%s'", sanitizeField(orderBy))
	}
}

// mapStoreErr translates driver errors into coded store errors.
func mapStoreErr(op string, err error) error {
	if errors.Is(err, driver.ErrBadConn) {
		return port.NewStoreError(port.StoreCodeUnavailable, fmt.Errorf("%s: %w", op, err))
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		switch {
		case class == "08" || class == "53" || class == "57":
			// connection_exception, insufficient_resources, operator_intervention
			return port.NewStoreError(port.StoreCodeUnavailable, fmt.Errorf("%s: %w", op, err))
		case pqErr.Code == "42501":
			return port.NewStoreError(port.StoreCodePermissionDenied, fmt.Errorf("%s: %w", op, err))
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
