package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/oldiberezkoo/0xLider/models"
)

// ErrUnknownSet is returned by Members for a set name the store does not track.
var ErrUnknownSet = errors.New("storage: unknown set")

const (
	counterProcessed = "globalProcessed"
	metaLastUpdated  = "lastUpdated"
)

// dialect captures the few places where PostgreSQL and SQLite disagree.
type dialect struct {
	driver       string
	serialPK     string
	positional   bool
	snapshotOpts *sql.TxOptions
}

var (
	postgresDialect = dialect{
		driver:       "postgres",
		serialPK:     "BIGSERIAL PRIMARY KEY",
		positional:   true,
		snapshotOpts: &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true},
	}
	sqliteDialect = dialect{
		driver:   "sqlite",
		serialPK: "INTEGER PRIMARY KEY AUTOINCREMENT",
	}
)

// rebind rewrites ? placeholders into $1..$n for drivers that need it.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SQLStore is a StateStore backed by a SQL database, so several processes can
// share one ledger and state survives a crash until it is finalized.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
}

// NewPostgresStore connects to PostgreSQL, retrying the ping while the server starts.
func NewPostgresStore(dsn string) (*SQLStore, error) {
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	return newSQLStore(db, postgresDialect)
}

// NewSQLiteStore opens (or creates) the SQLite database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteStore(path string) (*SQLStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}

	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// SQLite has one writer; a single connection also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return newSQLStore(db, sqliteDialect)
}

func newSQLStore(db *sql.DB, d dialect) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%s: migrate: %w", d.driver, err)
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	_, err := s.db.Exec(fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS link_state (
			set_name TEXT   NOT NULL,
			link     TEXT   NOT NULL,
			added_at BIGINT NOT NULL,
			PRIMARY KEY (set_name, link)
		);

		CREATE INDEX IF NOT EXISTS idx_link_state_link ON link_state(link);

		CREATE TABLE IF NOT EXISTS processed_objects (
			id      %s,
			link    TEXT NOT NULL,
			payload TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_counters (
			name  TEXT PRIMARY KEY,
			value BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS run_meta (
			name  TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`, s.dialect.serialPK))
	return err
}

func (s *SQLStore) q(query string) string { return s.dialect.rebind(query) }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) addLink(ctx context.Context, ex execer, set SetName, link string) error {
	_, err := ex.ExecContext(ctx, s.q(`
		INSERT INTO link_state (set_name, link, added_at)
		VALUES (?, ?, ?)
		ON CONFLICT (set_name, link) DO NOTHING
	`), string(set), link, time.Now().UnixNano())
	return err
}

func (s *SQLStore) AddDiscovered(ctx context.Context, links ...string) error {
	if len(links) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.driver, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, l := range links {
		if err := s.addLink(ctx, tx, SetAll, l); err != nil {
			return fmt.Errorf("%s: add discovered %s: %w", s.dialect.driver, l, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) RecordClassification(ctx context.Context, rec models.ClassificationRecord) error {
	if rec.MatchedKeywords == nil {
		rec.MatchedKeywords = []string{}
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("%s: encode record: %w", s.dialect.driver, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin: %w", s.dialect.driver, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.q(`INSERT INTO processed_objects (link, payload) VALUES (?, ?)`),
		rec.Link, string(payload)); err != nil {
		return fmt.Errorf("%s: append record: %w", s.dialect.driver, err)
	}
	if err := s.addLink(ctx, tx, SetAll, rec.Link); err != nil {
		return fmt.Errorf("%s: add link: %w", s.dialect.driver, err)
	}
	for _, set := range staleSets(rec) {
		if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM link_state WHERE set_name = ? AND link = ?`),
			string(set), rec.Link); err != nil {
			return fmt.Errorf("%s: remove from %s: %w", s.dialect.driver, set, err)
		}
	}
	for _, set := range terminalSets(rec) {
		if err := s.addLink(ctx, tx, set, rec.Link); err != nil {
			return fmt.Errorf("%s: add to %s: %w", s.dialect.driver, set, err)
		}
	}
	if _, err := tx.ExecContext(ctx, s.q(`
		INSERT INTO run_meta (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`), metaLastUpdated, time.Now().UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("%s: stamp last updated: %w", s.dialect.driver, err)
	}
	return tx.Commit()
}

// IncrementGlobalProcessed runs as one upsert statement so concurrent callers,
// in this process or another, never lose an increment.
func (s *SQLStore) IncrementGlobalProcessed(ctx context.Context) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, s.q(`
		INSERT INTO run_counters (name, value) VALUES (?, 1)
		ON CONFLICT (name) DO UPDATE SET value = run_counters.value + 1
		RETURNING value
	`), counterProcessed).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("%s: increment counter: %w", s.dialect.driver, err)
	}
	return value, nil
}

func (s *SQLStore) ResetGlobalProcessed(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO run_counters (name, value) VALUES (?, 0)
		ON CONFLICT (name) DO UPDATE SET value = 0
	`), counterProcessed)
	if err != nil {
		return fmt.Errorf("%s: reset counter: %w", s.dialect.driver, err)
	}
	return nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLStore) members(ctx context.Context, q querier, set SetName) ([]string, error) {
	rows, err := q.QueryContext(ctx, s.q(`
		SELECT link FROM link_state WHERE set_name = ? ORDER BY added_at, link
	`), string(set))
	if err != nil {
		return nil, fmt.Errorf("%s: members %s: %w", s.dialect.driver, set, err)
	}
	defer rows.Close()

	links := []string{}
	for rows.Next() {
		var l string
		if err := rows.Scan(&l); err != nil {
			return nil, fmt.Errorf("%s: scan link: %w", s.dialect.driver, err)
		}
		links = append(links, l)
	}
	return links, rows.Err()
}

func (s *SQLStore) Members(ctx context.Context, set SetName) ([]string, error) {
	known := false
	for _, name := range AllSets {
		if name == set {
			known = true
			break
		}
	}
	if !known {
		return nil, ErrUnknownSet
	}
	return s.members(ctx, s.db, set)
}

// Snapshot reads every table inside a single transaction.
func (s *SQLStore) Snapshot(ctx context.Context) (*models.Report, error) {
	tx, err := s.db.BeginTx(ctx, s.dialect.snapshotOpts)
	if err != nil {
		return nil, fmt.Errorf("%s: begin snapshot: %w", s.dialect.driver, err)
	}
	defer func() { _ = tx.Rollback() }()

	sets := make(map[SetName][]string, len(AllSets))
	for _, name := range AllSets {
		links, err := s.members(ctx, tx, name)
		if err != nil {
			return nil, err
		}
		sets[name] = links
	}

	rows, err := tx.QueryContext(ctx, `SELECT payload FROM processed_objects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("%s: read records: %w", s.dialect.driver, err)
	}
	defer rows.Close()

	objects := []models.ClassificationRecord{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("%s: scan record: %w", s.dialect.driver, err)
		}
		var rec models.ClassificationRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, fmt.Errorf("%s: decode record: %w", s.dialect.driver, err)
		}
		objects = append(objects, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var lastUpdated time.Time
	var raw string
	err = tx.QueryRowContext(ctx, s.q(`SELECT value FROM run_meta WHERE name = ?`), metaLastUpdated).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("%s: read last updated: %w", s.dialect.driver, err)
	default:
		lastUpdated, _ = time.Parse(time.RFC3339Nano, raw)
	}

	return &models.Report{
		AllLinks:            sets[SetAll],
		ProcessedLinks:      sets[SetProcessed],
		UnavailableLinks:    sets[SetUnavailable],
		KeywordMatchedLinks: sets[SetKeywordMatched],
		NonMatchedLinks:     sets[SetNonMatched],
		ReadyForUse:         sets[SetReadyForUse],
		ProcessedObjects:    objects,
		LastUpdated:         lastUpdated,
	}, nil
}

func (s *SQLStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%s: begin clear: %w", s.dialect.driver, err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"link_state", "processed_objects", "run_counters", "run_meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("%s: clear %s: %w", s.dialect.driver, table, err)
		}
	}
	return tx.Commit()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
