package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"agentworld.ai/internal/protocol"
)

// SQLiteArchive is the read-model event archive: every published event lands
// here so history queries can reach past the in-memory ring buffers. Writes
// go through a single writer goroutine and are dropped rather than ever
// blocking the engine loop.
type SQLiteArchive struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqEvents reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	events   []protocol.Event
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Tick    uint64
	Path    string
	Regions int
	Agents  int
}

func Open(path string) (*SQLiteArchive, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteArchive{
		db: db,
		// High buffer: event bursts (crowded regions) must not stall the sim.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS events (
			region TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL,
			source TEXT,
			target TEXT,
			ts TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (region, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_events_source_tick ON events(source, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			regions INTEGER NOT NULL,
			agents INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteArchive) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// ArchiveEvents implements world.EventArchive. Never blocks.
func (s *SQLiteArchive) ArchiveEvents(events []protocol.Event) {
	if s == nil || s.closed.Load() || len(events) == 0 {
		return
	}
	cp := make([]protocol.Event, len(events))
	copy(cp, events)
	select {
	case s.ch <- req{kind: reqEvents, events: cp}:
	default:
		// Drop if the archiver falls behind; JSONL logs remain the source of truth.
	}
}

func (s *SQLiteArchive) RecordSnapshot(path string, tick uint64, regions, agents int) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: snapshotRow{Tick: tick, Path: path, Regions: regions, Agents: agents}}:
	default:
	}
}

func (s *SQLiteArchive) loop() {
	for r := range s.ch {
		switch r.kind {
		case reqEvents:
			s.insertEvents(r.events)
		case reqSnapshot:
			s.insertSnapshot(r.snapshot)
		case reqFlush:
			close(r.done)
		}
	}
}

func (s *SQLiteArchive) insertEvents(events []protocol.Event) {
	tx, err := s.db.Begin()
	if err != nil {
		return
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO events
		(region, tick, seq, type, source, target, ts, raw_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return
	}
	for _, e := range events {
		raw, err := json.Marshal(e)
		if err != nil {
			continue
		}
		_, _ = stmt.Exec(e.Region, e.Tick, e.Seq, e.Type, e.Source, e.Target,
			e.TS.UTC().Format(time.RFC3339Nano), string(raw))
	}
	_ = stmt.Close()
	_ = tx.Commit()
}

func (s *SQLiteArchive) insertSnapshot(row snapshotRow) {
	_, _ = s.db.Exec(`INSERT OR REPLACE INTO snapshots (tick, path, regions, agents, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		row.Tick, row.Path, row.Regions, row.Agents, time.Now().UTC().Format(time.RFC3339))
}

// EventsSince returns archived events for a region with tick > sinceTick, in
// (tick, seq) order. This is the history query that outlives the in-memory
// ring buffer.
func (s *SQLiteArchive) EventsSince(ctx context.Context, region string, sinceTick uint64, limit int) ([]protocol.Event, error) {
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `SELECT raw_json FROM events
		WHERE region = ? AND tick > ?
		ORDER BY tick ASC, seq ASC LIMIT ?`, region, sinceTick, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []protocol.Event
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var e protocol.Event
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Flush waits until the writer has drained everything queued so far. For
// tests.
func (s *SQLiteArchive) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, done: done}
	<-done
}
