package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/mvp-joe/defindex/internal/compdb"
	"github.com/mvp-joe/defindex/internal/sourcemodel"
)

var (
	// ErrFilesFailed indicates at least one file could not be indexed.
	ErrFilesFailed = errors.New("files failed to index")

	// ErrSink indicates the output rejected a record or a flush.
	ErrSink = errors.New("failed to write index")
)

// Sink receives records. Emit is called once per record in scan order and
// Flush once after every file. Closing is the owner's job.
type Sink interface {
	Emit(rec Record) error
	Flush() error
}

// Stats summarizes one Driver run.
type Stats struct {
	FilesTotal     int
	FilesFailed    int
	RecordsEmitted int
	Duration       time.Duration
}

// Driver scans compile commands one at a time and writes their records to
// a sink.
type Driver struct {
	frontend sourcemodel.Frontend
	sink     Sink
	progress ProgressReporter
}

// NewDriver creates a driver. A nil progress reporter disables reporting.
func NewDriver(frontend sourcemodel.Frontend, sink Sink, progress ProgressReporter) *Driver {
	if progress == nil {
		progress = &NoOpProgressReporter{}
	}
	return &Driver{
		frontend: frontend,
		sink:     sink,
		progress: progress,
	}
}

// Run indexes cmds in order. A file that fails to parse is reported and
// counted, and the run moves on; a sink failure stops the run at once.
// When any file failed the returned error wraps ErrFilesFailed.
// Cancelling ctx stops the run before the next file.
func (d *Driver) Run(ctx context.Context, cmds []compdb.Command) (*Stats, error) {
	start := time.Now()
	stats := &Stats{FilesTotal: len(cmds)}

	d.progress.OnFileProcessingStart(len(cmds))

	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			stats.Duration = time.Since(start)
			return stats, err
		}

		n, err := d.indexFile(ctx, cmd)
		stats.RecordsEmitted += n
		if errors.Is(err, ErrSink) {
			stats.Duration = time.Since(start)
			return stats, err
		}
		if err != nil {
			stats.FilesFailed++
			log.Printf("Error: %v", err)
			d.progress.OnFileFailed(cmd.File, err)
			continue
		}
		d.progress.OnFileProcessed(cmd.File, n)
	}

	stats.Duration = time.Since(start)
	d.progress.OnComplete(stats)

	if stats.FilesFailed > 0 {
		return stats, fmt.Errorf("%w: %d of %d", ErrFilesFailed, stats.FilesFailed, stats.FilesTotal)
	}
	return stats, nil
}

// indexFile parses and scans one file. Records already emitted stay in
// the sink even if a later write fails.
func (d *Driver) indexFile(ctx context.Context, cmd compdb.Command) (int, error) {
	tu, err := d.frontend.Parse(ctx, cmd)
	if err != nil {
		return 0, err
	}
	defer tu.Close()

	n := 0
	for rec := range Scan(tu) {
		if err := d.sink.Emit(rec); err != nil {
			return n, fmt.Errorf("%w: %w", ErrSink, err)
		}
		n++
	}

	if err := d.sink.Flush(); err != nil {
		return n, fmt.Errorf("%w: %w", ErrSink, err)
	}
	return n, nil
}
