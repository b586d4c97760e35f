package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/defindex/internal/indexer"
)

// Test Plan for DefinitionWriter:
// - records are stored in emission order with the writer's run id
// - nothing is visible before Flush; Flush commits
// - Flush with nothing pending is a no-op
// - two writers on the same file append as two runs
// - Close commits pending records
// - opening a database with an unknown schema version fails

var _ indexer.Sink = (*DefinitionWriter)(nil)

func countDefinitions(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM definitions").Scan(&n))
	return n
}

func TestDefinitionWriter_EmitAndFlush(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)
	w, err := NewDefinitionWriter(db)
	require.NoError(t, err)

	_, err = uuid.Parse(w.RunID())
	require.NoError(t, err)

	require.NoError(t, w.Flush())

	require.NoError(t, w.Emit(indexer.Record{Name: "Foo", File: "foo.cpp", Line: 0, Column: 7}))
	require.NoError(t, w.Emit(indexer.Record{Name: "Foo::bar", File: "foo.cpp", Line: 0, Column: 18}))
	require.NoError(t, w.Flush())

	require.NoError(t, w.Emit(indexer.Record{Name: "main", File: "main.cpp", Line: 4, Column: 4}))
	require.NoError(t, w.Close())

	records, err := ReadDefinitions(db, w.RunID())
	require.NoError(t, err)
	assert.Equal(t, []indexer.Record{
		{Name: "Foo", File: "foo.cpp", Line: 0, Column: 7},
		{Name: "Foo::bar", File: "foo.cpp", Line: 0, Column: 18},
		{Name: "main", File: "main.cpp", Line: 4, Column: 4},
	}, records)

	var maxSeq int
	require.NoError(t, db.QueryRow("SELECT MAX(seq) FROM definitions WHERE run_id = ?", w.RunID()).Scan(&maxSeq))
	assert.Equal(t, 3, maxSeq)
}

func TestDefinitionWriter_FileAppendsRuns(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")

	var runIDs []string
	for run := 0; run < 2; run++ {
		w, err := OpenDefinitionWriter(path)
		require.NoError(t, err)
		require.NoError(t, w.Emit(indexer.Record{Name: "f", File: "a.c", Line: 1, Column: 4}))
		require.NoError(t, w.Close())
		runIDs = append(runIDs, w.RunID())
	}
	assert.NotEqual(t, runIDs[0], runIDs[1])

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, 2, countDefinitions(t, db))

	runs, err := ListRuns(db)
	require.NoError(t, err)
	assert.Equal(t, runIDs, runs)

	all, err := ReadDefinitions(db, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestDefinitionWriter_UncommittedUntilFlush(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	w, err := OpenDefinitionWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Emit(indexer.Record{Name: "f", File: "a.c"}))

	reader, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, 0, countDefinitions(t, reader))
	require.NoError(t, w.Flush())
	assert.Equal(t, 1, countDefinitions(t, reader))
}

func TestOpenDefinitionWriter_UnknownSchemaVersion(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.db")
	w, err := OpenDefinitionWriter(path)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec("UPDATE index_metadata SET value = '99' WHERE key = 'schema_version'")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenDefinitionWriter(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported schema version")
}

func TestCreateSchema_Tables(t *testing.T) {
	t.Parallel()

	db := NewTestDB(t)

	for _, table := range []string{"runs", "definitions", "index_metadata"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}
