package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	pq "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/internal/config"
	"github.com/siddhantgarodia/Web-Crawler-AI-Chatbot/pkg/types"
)

// SQLMirror copies records and edges into a relational database alongside
// the file snapshots. Supported drivers are "postgres" (lib/pq) and
// "sqlite" (modernc.org/sqlite).
type SQLMirror struct {
	db          *sql.DB
	runID       string
	autoMigrate bool
}

// NewSQLMirror opens the database and, when configured, applies the schema.
func NewSQLMirror(cfg config.SQLConfig, runID string) (*SQLMirror, error) {
	if cfg.Driver == "" || cfg.DSN == "" {
		return nil, errors.New("sql config missing driver or dsn")
	}
	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sql connection: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime.Duration > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime.Duration)
	}

	mirror := &SQLMirror{db: db, runID: runID, autoMigrate: cfg.AutoMigrate}
	if cfg.AutoMigrate {
		if err := mirror.ensureSchema(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
	}
	return mirror, nil
}

// SaveRecord upserts one resource record keyed by (run_id, url).
func (m *SQLMirror) SaveRecord(rec types.ResourceRecord) error {
	if m == nil || m.db == nil {
		return nil
	}
	if err := m.upsertRecord(rec); err != nil {
		if m.autoMigrate && isUndefinedTableErr(err) {
			if schemaErr := m.ensureSchema(context.Background()); schemaErr != nil {
				return fmt.Errorf("ensure schema: %w", schemaErr)
			}
			if retryErr := m.upsertRecord(rec); retryErr != nil {
				return fmt.Errorf("insert record: %w", retryErr)
			}
			return nil
		}
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (m *SQLMirror) upsertRecord(rec types.ResourceRecord) error {
	saved, err := json.Marshal(rec.Saved)
	if err != nil {
		return err
	}
	query := `
        INSERT INTO resources (run_id, url, depth, type, parent, anchor, status, saved, note, recorded_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
        ON CONFLICT (run_id, url) DO UPDATE SET
            depth = EXCLUDED.depth,
            type = EXCLUDED.type,
            parent = EXCLUDED.parent,
            anchor = EXCLUDED.anchor,
            status = EXCLUDED.status,
            saved = EXCLUDED.saved,
            note = EXCLUDED.note,
            recorded_at = EXCLUDED.recorded_at
    `
	_, err = m.db.Exec(query,
		m.runID,
		rec.URL,
		rec.Depth,
		string(rec.Type),
		rec.Parent,
		rec.Anchor,
		rec.Status,
		string(saved),
		rec.Note,
		rec.Timestamp,
	)
	return err
}

// SaveEdges inserts the discovered edges; edges are never deduplicated.
func (m *SQLMirror) SaveEdges(edges []types.LinkEdge) error {
	if m == nil || m.db == nil || len(edges) == 0 {
		return nil
	}
	query := `
        INSERT INTO link_edges (run_id, parent, child, depth, anchor, note, discovered_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
    `
	for _, edge := range edges {
		if _, err := m.db.Exec(query,
			m.runID,
			edge.Parent,
			edge.Child,
			edge.Depth,
			edge.Anchor,
			edge.Note,
			edge.DiscoveredAt,
		); err != nil {
			return fmt.Errorf("insert edge: %w", err)
		}
	}
	return nil
}

// Close closes the underlying DB connection.
func (m *SQLMirror) Close() error {
	if m == nil || m.db == nil {
		return nil
	}
	return m.db.Close()
}

func (m *SQLMirror) ensureSchema(ctx context.Context) error {
	if m == nil || m.db == nil || !m.autoMigrate {
		return nil
	}
	schemaCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS resources (
		    run_id TEXT NOT NULL,
		    url TEXT NOT NULL,
		    depth INTEGER,
		    type TEXT,
		    parent TEXT,
		    anchor TEXT,
		    status INTEGER,
		    saved TEXT,
		    note TEXT,
		    recorded_at TIMESTAMP,
		    PRIMARY KEY (run_id, url)
		)`,
		`CREATE TABLE IF NOT EXISTS link_edges (
		    run_id TEXT NOT NULL,
		    parent TEXT,
		    child TEXT NOT NULL,
		    depth INTEGER,
		    anchor TEXT,
		    note TEXT,
		    discovered_at TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_link_edges_parent ON link_edges (run_id, parent)`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(schemaCtx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func isUndefinedTableErr(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "42P01"
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "no such table") {
		return true
	}
	return strings.Contains(lower, "relation") && strings.Contains(lower, "does not exist")
}
