package indexer

// ProgressReporter provides callbacks for reporting indexing progress.
// Implementations can display progress bars, log messages, or remain silent.
type ProgressReporter interface {
	// OnDiscoveryStart is called when source file discovery begins.
	OnDiscoveryStart()

	// OnDiscoveryComplete is called when source file discovery finishes.
	OnDiscoveryComplete(sourceFiles int)

	// OnFileProcessingStart is called before processing files.
	OnFileProcessingStart(totalFiles int)

	// OnFileProcessed is called after each file is scanned.
	OnFileProcessed(fileName string, records int)

	// OnFileFailed is called when a file could not be parsed.
	OnFileFailed(fileName string, err error)

	// OnComplete is called when the run ends, whether or not files failed.
	OnComplete(stats *Stats)
}

// NoOpProgressReporter is a progress reporter that does nothing.
// Used when progress reporting is disabled (e.g., --quiet flag).
type NoOpProgressReporter struct{}

func (n *NoOpProgressReporter) OnDiscoveryStart()                            {}
func (n *NoOpProgressReporter) OnDiscoveryComplete(sourceFiles int)          {}
func (n *NoOpProgressReporter) OnFileProcessingStart(totalFiles int)         {}
func (n *NoOpProgressReporter) OnFileProcessed(fileName string, records int) {}
func (n *NoOpProgressReporter) OnFileFailed(fileName string, err error)      {}
func (n *NoOpProgressReporter) OnComplete(stats *Stats)                      {}
