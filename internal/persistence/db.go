// Package persistence provides a SQLite run journal: every run's config,
// completed structures, agent checkpoints and events, for offline analysis.
package persistence

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/timberline/internal/agents"
	"github.com/talgya/timberline/internal/engine"
	"github.com/talgya/timberline/internal/registry"
)

// DB wraps a SQLite connection for the run journal.
type DB struct {
	conn *sqlx.DB

	mu    sync.Mutex        // serializes checkpoints
	saved map[string]uint64 // run id -> last journaled event seq
}

// Run is one simulation run.
type Run struct {
	ID        string `db:"id" json:"id"`
	Seed      int64  `db:"seed" json:"seed"`
	Config    string `db:"config_yaml" json:"config"`
	StartedAt int64  `db:"started_at" json:"started_at"` // Unix seconds
	EndedAt   *int64 `db:"ended_at" json:"ended_at,omitempty"`
	LastTick  uint64 `db:"last_tick" json:"last_tick"`
}

// StructureRow is a completed structure as journaled.
type StructureRow struct {
	ID    uint64  `db:"id" json:"id"`
	Owner uint64  `db:"owner" json:"owner"`
	X     float64 `db:"x" json:"x"`
	Y     float64 `db:"y" json:"y"`
	Z     float64 `db:"z" json:"z"`
	Tick  uint64  `db:"tick" json:"tick"`
}

// AgentRow is one agent at one checkpoint.
type AgentRow struct {
	Tick      uint64  `db:"tick" json:"tick"`
	AgentID   uint64  `db:"agent_id" json:"agent_id"`
	Name      string  `db:"name" json:"name"`
	State     string  `db:"state" json:"state"`
	Inventory int     `db:"inventory" json:"inventory"`
	Harvested int     `db:"harvested" json:"harvested"`
	Built     int     `db:"built" json:"built"`
	X         float64 `db:"x" json:"x"`
	Z         float64 `db:"z" json:"z"`
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn, saved: make(map[string]uint64)}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		config_yaml TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		last_tick INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS structures (
		run_id TEXT NOT NULL,
		id INTEGER NOT NULL,
		owner INTEGER NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		z REAL NOT NULL,
		tick INTEGER NOT NULL,
		PRIMARY KEY (run_id, id)
	);

	CREATE TABLE IF NOT EXISTS events (
		run_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		kind TEXT NOT NULL,
		category TEXT NOT NULL,
		description TEXT NOT NULL,
		PRIMARY KEY (run_id, seq)
	);

	CREATE TABLE IF NOT EXISTS agent_checkpoints (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		agent_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		state TEXT NOT NULL,
		inventory INTEGER NOT NULL,
		harvested INTEGER NOT NULL,
		built INTEGER NOT NULL,
		x REAL NOT NULL,
		z REAL NOT NULL,
		PRIMARY KEY (run_id, tick, agent_id)
	);

	CREATE INDEX IF NOT EXISTS idx_events_tick ON events(run_id, tick);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun records a new run and returns its id.
func (db *DB) BeginRun(seed int64, configYAML string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (id, seed, config_yaml, started_at) VALUES (?, ?, ?, ?)",
		id, seed, configYAML, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// EndRun marks a run finished at tick.
func (db *DB) EndRun(runID string, tick uint64) error {
	_, err := db.conn.Exec(
		"UPDATE runs SET ended_at = ?, last_tick = ? WHERE id = ?",
		time.Now().Unix(), tick, runID,
	)
	return err
}

// Runs lists runs, newest first.
func (db *DB) Runs() ([]Run, error) {
	var runs []Run
	err := db.conn.Select(&runs,
		"SELECT id, seed, config_yaml, started_at, ended_at, last_tick FROM runs ORDER BY started_at DESC, rowid DESC")
	return runs, err
}

// SaveEvents appends events to the journal. Already journaled sequence
// numbers are skipped.
func (db *DB) SaveEvents(runID string, events []engine.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR IGNORE INTO events
		(run_id, seq, tick, agent_id, kind, category, description)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.Exec(runID, e.Seq, e.Tick, uint64(e.AgentID), e.Kind, e.Category, e.Description); err != nil {
			return fmt.Errorf("insert event %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

// SaveStructures records completed structures. Structures are immutable,
// so rows already present are left alone.
func (db *DB) SaveStructures(runID string, structures []registry.Structure) error {
	if len(structures) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, s := range structures {
		_, err := tx.Exec(`INSERT OR IGNORE INTO structures
			(run_id, id, owner, x, y, z, tick) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, uint64(s.ID), uint64(s.Owner), s.Position.X, s.Position.Y, s.Position.Z, s.Tick,
		)
		if err != nil {
			return fmt.Errorf("insert structure %d: %w", s.ID, err)
		}
	}

	return tx.Commit()
}

// SaveAgents records every agent's state at tick.
func (db *DB) SaveAgents(runID string, tick uint64, crew []agents.Snapshot) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT OR REPLACE INTO agent_checkpoints
		(run_id, tick, agent_id, name, state, inventory, harvested, built, x, z)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range crew {
		_, err := stmt.Exec(
			runID, tick, uint64(a.ID), a.Name, a.State.String(),
			a.Inventory, a.Harvested, a.Built, a.Position.X, a.Position.Z,
		)
		if err != nil {
			return fmt.Errorf("insert agent %d: %w", a.ID, err)
		}
	}

	return tx.Commit()
}

// SaveCheckpoint journals everything new since the run's previous
// checkpoint: events, structures, and a snapshot of every agent. Returns
// the highest event sequence saved so far.
func (db *DB) SaveCheckpoint(runID string, sim *engine.Simulation) (uint64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	lastSeq := db.saved[runID]
	snap := sim.Snapshot(false)
	events := sim.EventsSince(lastSeq, 0)
	if len(events) > 0 && events[0].Seq > lastSeq+1 {
		slog.Warn("event log overran between checkpoints",
			"run", runID, "missing", events[0].Seq-lastSeq-1)
	}

	if err := db.SaveEvents(runID, events); err != nil {
		return lastSeq, fmt.Errorf("save events: %w", err)
	}
	if err := db.SaveStructures(runID, snap.Registry.Structures); err != nil {
		return lastSeq, fmt.Errorf("save structures: %w", err)
	}
	if err := db.SaveAgents(runID, snap.Tick, snap.Agents); err != nil {
		return lastSeq, fmt.Errorf("save agents: %w", err)
	}
	if _, err := db.conn.Exec("UPDATE runs SET last_tick = ? WHERE id = ?", snap.Tick, runID); err != nil {
		return lastSeq, fmt.Errorf("save run tick: %w", err)
	}

	if len(events) > 0 {
		lastSeq = events[len(events)-1].Seq
		db.saved[runID] = lastSeq
	}
	slog.Debug("checkpoint saved", "run", runID, "tick", snap.Tick, "events", len(events),
		"structures", len(snap.Registry.Structures))
	return lastSeq, nil
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]engine.Event, error) {
	var events []engine.Event
	err := db.conn.Select(&events,
		`SELECT seq, tick, agent_id, kind, category, description FROM events
		 WHERE run_id = ? ORDER BY seq DESC LIMIT ?`,
		runID, limit,
	)
	return events, err
}

// Structures returns a run's completed structures in completion order.
func (db *DB) Structures(runID string) ([]StructureRow, error) {
	var rows []StructureRow
	err := db.conn.Select(&rows,
		"SELECT id, owner, x, y, z, tick FROM structures WHERE run_id = ? ORDER BY id",
		runID,
	)
	return rows, err
}

// AgentHistory returns one agent's checkpoints in tick order.
func (db *DB) AgentHistory(runID string, id agents.AgentID) ([]AgentRow, error) {
	var rows []AgentRow
	err := db.conn.Select(&rows,
		`SELECT tick, agent_id, name, state, inventory, harvested, built, x, z
		 FROM agent_checkpoints WHERE run_id = ? AND agent_id = ? ORDER BY tick`,
		runID, uint64(id),
	)
	return rows, err
}
