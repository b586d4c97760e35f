package cli

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/defindex/internal/compdb"
	"github.com/mvp-joe/defindex/internal/config"
	"github.com/mvp-joe/defindex/internal/emitter"
	"github.com/mvp-joe/defindex/internal/indexer"
	"github.com/mvp-joe/defindex/internal/sourcemodel"
	"github.com/mvp-joe/defindex/internal/storage"
)

// ErrNoInput indicates there was nothing to index.
var ErrNoInput = errors.New("no source files to index")

// indexOptions is everything one indexing run needs, resolved from flags,
// config and positional arguments.
type indexOptions struct {
	workDir   string
	sources   []string
	buildPath string

	// compilerArgs come after "--"; fixedArgs is set when "--" was given.
	compilerArgs []string
	fixedArgs    bool

	cfg     *config.Config
	quiet   bool
	verbose bool
}

func runIndex(cmd *cobra.Command, args []string) error {
	// Set up context with cancellation for Ctrl+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle interrupt signals gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nInterrupted! Stopping after the current file...")
			cancel()
		case <-ctx.Done():
		}
	}()

	workDir, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	loaderOpts := []config.LoaderOption{config.WithFlags(cmd.Flags(), flagKeys)}
	if cfgFile != "" {
		loaderOpts = append(loaderOpts, config.WithConfigFile(cfgFile))
	}
	cfg, err := config.NewLoader(workDir, loaderOpts...).Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	opts := indexOptions{
		workDir:   workDir,
		sources:   args,
		buildPath: buildPath,
		cfg:       cfg,
		quiet:     quietFlag,
		verbose:   verboseFlag,
	}
	if dash := cmd.ArgsLenAtDash(); dash >= 0 {
		opts.sources = args[:dash]
		opts.compilerArgs = args[dash:]
		opts.fixedArgs = true
	}

	return executeIndex(ctx, opts)
}

// executeIndex runs one indexing pass. The sink is opened before the first
// file and closed when the pass ends, whatever the outcome.
func executeIndex(ctx context.Context, opts indexOptions) error {
	cfg := opts.cfg

	db, err := resolveDatabase(opts)
	if err != nil {
		return err
	}

	var progress indexer.ProgressReporter = &indexer.NoOpProgressReporter{}
	if !opts.quiet {
		progress = NewCLIProgressReporter(opts.quiet)
	}

	progress.OnDiscoveryStart()
	files, err := resolveFiles(opts, db)
	if err != nil {
		return err
	}
	progress.OnDiscoveryComplete(len(files))

	frontend, err := sourcemodel.New(cfg.Frontend.Name, cfg.FrontendOptions())
	if err != nil {
		return err
	}

	sink, err := openSink(cfg.Output, opts.workDir)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sink.Close(); cerr != nil {
			log.Printf("Error: failed to close output: %v", cerr)
		}
	}()

	cmds := make([]compdb.Command, 0, len(files))
	for _, file := range files {
		cmds = append(cmds, compdb.CommandFor(db, file))
	}

	if opts.verbose {
		log.Printf("Indexing %d files with the %s front end", len(cmds), frontend.Name())
	}

	driver := indexer.NewDriver(frontend, sink, progress)
	stats, err := driver.Run(ctx, cmds)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("indexing cancelled")
		}
		return fmt.Errorf("indexing failed: %w", err)
	}

	if opts.verbose {
		log.Printf("Wrote %d records from %d files in %.2fs",
			stats.RecordsEmitted, stats.FilesTotal, stats.Duration.Seconds())
	}
	return nil
}

// resolveDatabase picks where compile commands come from: arguments after
// "--", then -p, then the nearest compile_commands.json. With source
// arguments and no database, commands are inferred per file.
func resolveDatabase(opts indexOptions) (compdb.Database, error) {
	if opts.fixedArgs {
		return compdb.NewFixed(opts.workDir, opts.compilerArgs), nil
	}

	if opts.buildPath != "" {
		db, err := compdb.LoadFromDirectory(absPath(opts.workDir, opts.buildPath))
		if err != nil {
			return nil, fmt.Errorf("failed to load compilation database: %w", err)
		}
		logDatabase(opts, db)
		return db, nil
	}

	start := opts.workDir
	if len(opts.sources) > 0 {
		start = absPath(opts.workDir, opts.sources[0])
	}
	db, err := compdb.AutoDetect(start)
	switch {
	case err == nil:
		logDatabase(opts, db)
		return db, nil
	case errors.Is(err, compdb.ErrNotFound) && len(opts.sources) > 0:
		if opts.verbose {
			log.Printf("No %s found, inferring compile commands", compdb.DatabaseFile)
		}
		return nil, nil
	default:
		return nil, fmt.Errorf("failed to load compilation database: %w", err)
	}
}

func logDatabase(opts indexOptions, db *compdb.JSONDatabase) {
	if opts.verbose {
		log.Printf("Using compilation database %s", db.Path())
	}
}

// resolveFiles expands source arguments, or lists the whole database when
// there are none.
func resolveFiles(opts indexOptions, db compdb.Database) ([]string, error) {
	if len(opts.sources) == 0 {
		if db == nil {
			return nil, ErrNoInput
		}
		files := db.AllFiles()
		if len(files) == 0 {
			return nil, ErrNoInput
		}
		return files, nil
	}

	discovery, err := indexer.NewFileDiscovery(opts.cfg.Discovery.Include, opts.cfg.Discovery.Ignore)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(opts.sources))
	for _, src := range opts.sources {
		paths = append(paths, absPath(opts.workDir, src))
	}
	files, err := discovery.Expand(paths)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoInput
	}
	return files, nil
}

// outputSink is an indexer sink the CLI owns and closes.
type outputSink interface {
	indexer.Sink
	Close() error
}

func openSink(out config.OutputConfig, workDir string) (outputSink, error) {
	switch out.Format {
	case config.FormatSQLite:
		w, err := storage.OpenDefinitionWriter(absPath(workDir, out.Path))
		if err != nil {
			return nil, fmt.Errorf("failed to open output: %w", err)
		}
		return w, nil
	default:
		path := out.Path
		if path != emitter.Stdout {
			path = absPath(workDir, path)
		}
		w, err := emitter.OpenJSONL(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open output: %w", err)
		}
		return w, nil
	}
}

func absPath(dir, path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(dir, path)
}
