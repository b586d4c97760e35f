package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/mvp-joe/defindex/internal/indexer"
)

var definitionColumns = []string{"run_id", "seq", "name", "file", "line", `"column"`, "indexed_at"}

// DefinitionWriter appends definition records to SQLite. It implements
// indexer.Sink: records emitted between two flushes share one
// transaction, committed by Flush.
type DefinitionWriter struct {
	db     *sql.DB
	ownsDB bool
	runID  string
	seq    int

	tx   *sql.Tx
	stmt *sql.Stmt
}

// OpenDefinitionWriter opens or creates the SQLite database at dbPath.
// Existing rows are kept; every writer starts a new run.
func OpenDefinitionWriter(dbPath string) (*DefinitionWriter, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: the writer holds at most one transaction at a time.
	db.SetMaxOpenConns(1)

	// Enable foreign keys (required for FK constraints)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	w, err := NewDefinitionWriter(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	w.ownsDB = true
	return w, nil
}

func ensureSchema(db *sql.DB) error {
	version, err := GetSchemaVersion(db)
	if err != nil {
		return fmt.Errorf("failed to check schema version: %w", err)
	}

	switch version {
	case "0":
		if err := CreateSchema(db); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return nil
	case SchemaVersion:
		return nil
	default:
		return fmt.Errorf("unsupported schema version %q (want %q)", version, SchemaVersion)
	}
}

// NewDefinitionWriter starts a new run on db. DB must have schema already
// created via CreateSchema(). The caller keeps ownership of db.
func NewDefinitionWriter(db *sql.DB) (*DefinitionWriter, error) {
	runID := uuid.NewString()

	_, err := sq.Insert("runs").
		Columns("run_id", "started_at").
		Values(runID, time.Now().UTC().Format(time.RFC3339)).
		RunWith(db).
		Exec()
	if err != nil {
		return nil, fmt.Errorf("failed to register run: %w", err)
	}

	return &DefinitionWriter{db: db, runID: runID}, nil
}

// RunID returns the UUID shared by every row this writer inserts.
func (w *DefinitionWriter) RunID() string {
	return w.runID
}

// Emit inserts one record into the current transaction.
func (w *DefinitionWriter) Emit(rec indexer.Record) error {
	if w.tx == nil {
		if err := w.begin(); err != nil {
			return err
		}
	}

	w.seq++
	_, err := w.stmt.Exec(
		w.runID,
		w.seq,
		rec.Name,
		rec.File,
		rec.Line,
		rec.Column,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert definition %s: %w", rec.Name, err)
	}
	return nil
}

func (w *DefinitionWriter) begin() error {
	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	// Build the query once with Squirrel, then get SQL for preparation
	sqlStr, _, err := sq.Insert("definitions").
		Columns(definitionColumns...).
		Values("", 0, "", "", 0, 0, "").
		ToSql()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to build SQL: %w", err)
	}

	stmt, err := tx.Prepare(sqlStr)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement: %w", err)
	}

	w.tx, w.stmt = tx, stmt
	return nil
}

// Flush commits the records emitted since the last flush.
func (w *DefinitionWriter) Flush() error {
	if w.tx == nil {
		return nil
	}

	w.stmt.Close()
	tx := w.tx
	w.tx, w.stmt = nil, nil

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit definitions: %w", err)
	}
	return nil
}

// Close commits pending records and closes the database if the writer
// opened it.
func (w *DefinitionWriter) Close() error {
	err := w.Flush()
	if w.ownsDB {
		if closeErr := w.db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close database: %w", closeErr)
		}
	}
	return err
}
