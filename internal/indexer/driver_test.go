package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/defindex/internal/sourcemodel"
)

// Test Plan for Driver:
// - all files succeed: records in file order, one flush per file, units closed
// - a parse failure is counted, reported and skipped; the run continues
// - a sink failure aborts the run before later files are parsed
// - a flush failure aborts the run
// - a cancelled context stops before the next file
// - an empty command list succeeds with zero stats

func TestDriver_Run_AllFilesSucceed(t *testing.T) {
	t.Parallel()

	// Setup
	a := (&fakeUnit{file: "/src/a.cpp"}).
		add(sourcemodel.DeclRecord, true, "A", 1, 7).
		add(sourcemodel.DeclFunction, true, "A::f", 2, 8)
	b := (&fakeUnit{file: "/src/b.cpp"}).
		add(sourcemodel.DeclFunction, true, "g", 1, 6)

	fe := &fakeFrontend{units: map[string]*fakeUnit{a.file: a, b.file: b}}
	sink := &memorySink{}
	progress := &recordingReporter{}

	// Execute
	stats, err := NewDriver(fe, sink, progress).Run(context.Background(), commandsFor(a.file, b.file))

	// Verify
	require.NoError(t, err)
	assert.Equal(t, 2, stats.FilesTotal)
	assert.Equal(t, 0, stats.FilesFailed)
	assert.Equal(t, 3, stats.RecordsEmitted)

	assert.Equal(t, []Record{
		{Name: "A", File: "/src/a.cpp", Line: 0, Column: 6},
		{Name: "A::f", File: "/src/a.cpp", Line: 1, Column: 7},
		{Name: "g", File: "/src/b.cpp", Line: 0, Column: 5},
	}, sink.records)
	assert.Equal(t, 2, sink.flushes)
	assert.True(t, a.closed)
	assert.True(t, b.closed)

	assert.Equal(t, 2, progress.total)
	assert.Equal(t, []string{a.file, b.file}, progress.processed)
	assert.Same(t, stats, progress.completed)
}

func TestDriver_Run_ParseFailureContinues(t *testing.T) {
	t.Parallel()

	a := (&fakeUnit{file: "/src/a.cpp"}).add(sourcemodel.DeclFunction, true, "a", 1, 1)
	c := (&fakeUnit{file: "/src/c.cpp"}).add(sourcemodel.DeclFunction, true, "c", 1, 1)

	fe := &fakeFrontend{units: map[string]*fakeUnit{a.file: a, c.file: c}}
	sink := &memorySink{}
	progress := &recordingReporter{}

	stats, err := NewDriver(fe, sink, progress).Run(context.Background(), commandsFor(a.file, "/src/missing.cpp", c.file))

	require.ErrorIs(t, err, ErrFilesFailed)
	assert.Contains(t, err.Error(), "1 of 3")
	assert.Equal(t, 1, stats.FilesFailed)
	assert.Equal(t, 2, stats.RecordsEmitted)

	assert.Equal(t, []string{a.file, "/src/missing.cpp", c.file}, fe.parsed)
	assert.Equal(t, []string{"/src/missing.cpp"}, progress.failed)
	assert.Equal(t, []string{a.file, c.file}, progress.processed)
	require.NotNil(t, progress.completed)

	var names []string
	for _, r := range sink.records {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"a", "c"}, names)
}

func TestDriver_Run_SinkFailureAborts(t *testing.T) {
	t.Parallel()

	a := (&fakeUnit{file: "/src/a.cpp"}).
		add(sourcemodel.DeclFunction, true, "a1", 1, 1).
		add(sourcemodel.DeclFunction, true, "a2", 2, 1)
	b := (&fakeUnit{file: "/src/b.cpp"}).add(sourcemodel.DeclFunction, true, "b", 1, 1)

	fe := &fakeFrontend{units: map[string]*fakeUnit{a.file: a, b.file: b}}
	sink := &memorySink{failAfter: 2}

	stats, err := NewDriver(fe, sink, nil).Run(context.Background(), commandsFor(a.file, b.file))

	require.ErrorIs(t, err, ErrSink)
	assert.ErrorIs(t, err, errDiskFull)
	assert.False(t, errors.Is(err, ErrFilesFailed))
	assert.Equal(t, 1, stats.RecordsEmitted)
	assert.Equal(t, []string{a.file}, fe.parsed)
	assert.True(t, a.closed)
}

func TestDriver_Run_FlushFailureAborts(t *testing.T) {
	t.Parallel()

	a := (&fakeUnit{file: "/src/a.cpp"}).add(sourcemodel.DeclFunction, true, "a", 1, 1)
	b := (&fakeUnit{file: "/src/b.cpp"}).add(sourcemodel.DeclFunction, true, "b", 1, 1)

	fe := &fakeFrontend{units: map[string]*fakeUnit{a.file: a, b.file: b}}
	sink := &memorySink{flushErr: errDiskFull}

	_, err := NewDriver(fe, sink, nil).Run(context.Background(), commandsFor(a.file, b.file))

	require.ErrorIs(t, err, ErrSink)
	assert.Equal(t, 1, sink.flushes)
	assert.Equal(t, []string{a.file}, fe.parsed)
}

func TestDriver_Run_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fe := &fakeFrontend{}
	stats, err := NewDriver(fe, &memorySink{}, nil).Run(ctx, commandsFor("/src/a.cpp"))

	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fe.parsed)
	assert.Equal(t, 0, stats.RecordsEmitted)
}

func TestDriver_Run_NoCommands(t *testing.T) {
	t.Parallel()

	sink := &memorySink{}
	stats, err := NewDriver(&fakeFrontend{}, sink, nil).Run(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, &Stats{Duration: stats.Duration}, stats)
	assert.Zero(t, sink.flushes)
}
