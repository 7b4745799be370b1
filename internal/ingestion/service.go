// Package ingestion orchestrates one pipeline run: discover source files,
// skip already-loaded content, and fan the rest out to parallel workers
// that each parse, normalize, and load a whole file.
package ingestion

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pharmovig/icsr-ingest/internal/config"
	"github.com/pharmovig/icsr-ingest/internal/database"
	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/pkg/blob"
	"github.com/pharmovig/icsr-ingest/pkg/checksum"
)

// StatusSkipped is a run-summary-only outcome: the file's content hash was
// already loaded, so no history row is written for it.
const StatusSkipped = "skipped"

type Service struct {
	cfg        *config.Config
	loader     database.Loader
	source     blob.Store
	quarantine blob.Store
	log        zerolog.Logger
	runID      string
}

func NewService(cfg *config.Config, loader database.Loader, source, quarantine blob.Store, log zerolog.Logger) *Service {
	runID := uuid.NewString()
	return &Service{
		cfg:        cfg,
		loader:     loader,
		source:     source,
		quarantine: quarantine,
		log:        log.With().Str("run_id", runID).Logger(),
		runID:      runID,
	}
}

// RunSummary aggregates the terminal state of every discovered file.
type RunSummary struct {
	RunID       string
	Discovered  int
	Skipped     int
	Completed   int
	Failed      int
	Quarantined int
	Rows        int
	Outcomes    []models.FileOutcome
}

// Execute runs the pipeline over every file the source locator expands to.
// Discovery failure aborts the run before any file is touched; after that,
// each file succeeds or fails independently and the error is carried in its
// outcome, never returned.
func (s *Service) Execute(ctx context.Context) (*RunSummary, error) {
	paths, err := s.source.List(ctx, s.cfg.SourceURI)
	if err != nil {
		return nil, &models.DiscoveryError{URI: s.cfg.SourceURI, Err: err}
	}
	s.log.Info().Int("files", len(paths)).Str("source", s.cfg.SourceURI).Msg("source discovery complete")

	summary := &RunSummary{RunID: s.runID, Discovered: len(paths)}
	if len(paths) == 0 {
		return summary, nil
	}

	loaded := map[string]bool{}
	if s.cfg.LoadMode == database.ModeDelta {
		loaded, err = s.loader.GetCompletedFileHashes(ctx)
		if err != nil {
			return nil, err
		}
	} else {
		// Full refresh: empty the targets once, before any file is
		// dispatched, then reload everything unconditionally.
		if err := s.loader.ResetTargets(ctx, s.cfg.SchemaType); err != nil {
			return nil, err
		}
	}

	jobs := make(chan models.FileJob)
	results := make(chan models.FileOutcome)

	var workerWg sync.WaitGroup
	for i := 1; i <= s.cfg.NumWorkers; i++ {
		workerWg.Add(1)
		go s.fileWorker(ctx, i, jobs, results, &workerWg)
	}

	var dispatchWg sync.WaitGroup
	dispatchWg.Add(1)
	go s.dispatchJobs(ctx, paths, loaded, jobs, results, &dispatchWg)

	collectorDone := make(chan struct{})
	go func() {
		defer close(collectorDone)
		for outcome := range results {
			summary.Outcomes = append(summary.Outcomes, outcome)
			summary.Rows += outcome.Rows
			switch outcome.Status {
			case StatusSkipped:
				summary.Skipped++
			case database.StatusCompleted:
				summary.Completed++
			case database.StatusQuarantined:
				summary.Quarantined++
			default:
				summary.Failed++
			}
		}
	}()

	dispatchWg.Wait()
	close(jobs)
	workerWg.Wait()
	close(results)
	<-collectorDone

	s.log.Info().
		Int("completed", summary.Completed).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Int("quarantined", summary.Quarantined).
		Int("rows", summary.Rows).
		Msg("run finished")
	return summary, nil
}

// dispatchJobs hashes each discovered file and either skips it (content
// already loaded) or queues it for a worker. Hash failures become failed
// outcomes rather than stalling the run.
func (s *Service) dispatchJobs(ctx context.Context, paths []string, loaded map[string]bool, jobs chan<- models.FileJob, results chan<- models.FileOutcome, wg *sync.WaitGroup) {
	defer wg.Done()

	for _, path := range paths {
		hash, err := s.hashFile(ctx, path)
		if err != nil {
			s.log.Error().Err(err).Str("file", path).Msg("cannot hash source file")
			results <- models.FileOutcome{Path: path, Status: database.StatusFailed, Err: err}
			continue
		}
		if loaded[hash] {
			s.log.Info().Str("file", path).Str("hash", hash).Msg("content already loaded, skipping")
			results <- models.FileOutcome{Path: path, Hash: hash, Status: StatusSkipped}
			continue
		}
		jobs <- models.FileJob{Path: path, Hash: hash}
	}
}

func (s *Service) hashFile(ctx context.Context, path string) (string, error) {
	rc, err := s.source.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return checksum.SHA256(rc)
}
