package ingestion

import (
	"context"
	"sync"
	"time"

	"github.com/pharmovig/icsr-ingest/internal/config"
	"github.com/pharmovig/icsr-ingest/internal/database"
	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/internal/normalize"
	"github.com/pharmovig/icsr-ingest/internal/parser"
)

func (s *Service) fileWorker(ctx context.Context, id int, jobs <-chan models.FileJob, results chan<- models.FileOutcome, wg *sync.WaitGroup) {
	defer wg.Done()
	log := s.log.With().Int("worker", id).Logger()

	for job := range jobs {
		log.Info().Str("file", job.Path).Msg("worker picked up file")
		outcome := s.processFile(ctx, job)
		log.Info().
			Str("file", job.Path).
			Str("status", outcome.Status).
			Int("rows", outcome.Rows).
			Dur("took", outcome.Duration).
			Msg("worker finished file")
		results <- outcome
	}
}

// processFile takes one file to its terminal state: quarantined (rejected
// before load), failed (pipeline or load error), or completed. Every
// non-completed file is moved to quarantine with a sidecar; the recorded
// status tells the two shapes apart. The file's own error never escapes
// this function; it travels in the outcome.
func (s *Service) processFile(ctx context.Context, job models.FileJob) models.FileOutcome {
	start := time.Now()
	outcome := models.FileOutcome{Path: job.Path, Hash: job.Hash}
	finish := func(status string, rows int, err error) models.FileOutcome {
		outcome.Status = status
		outcome.Rows = rows
		outcome.Err = err
		outcome.Duration = time.Since(start)
		return outcome
	}

	if s.cfg.ValidateXSD {
		valid, findings, err := s.validateFile(ctx, job.Path)
		if err != nil {
			s.quarantineFile(ctx, job, err, database.StatusFailed)
			return finish(database.StatusFailed, 0, err)
		}
		if !valid {
			cause := &models.SchemaValidationError{Path: job.Path, Errors: findings}
			s.quarantineFile(ctx, job, cause, database.StatusQuarantined)
			return finish(database.StatusQuarantined, 0, cause)
		}
	}

	rc, err := s.source.Open(ctx, job.Path)
	if err != nil {
		s.quarantineFile(ctx, job, err, database.StatusFailed)
		return finish(database.StatusFailed, 0, err)
	}
	defer rc.Close()

	if s.cfg.SchemaType == config.SchemaAudit {
		rows, errs := normalize.NormalizeAudit(parser.ParseAudit(rc))
		for _, recErr := range errs {
			s.log.Warn().Err(recErr).Str("file", job.Path).Msg("audit record rejected")
		}
		if len(rows) == 0 && len(errs) == 0 {
			cause := &models.StructuralParseError{Path: job.Path, Err: errNoCaseRecords}
			s.quarantineFile(ctx, job, cause, database.StatusQuarantined)
			return finish(database.StatusQuarantined, 0, cause)
		}
		n, err := s.loader.LoadAudit(ctx, rows, s.cfg.LoadMode, job.Path, job.Hash)
		if err != nil {
			s.quarantineFile(ctx, job, err, database.StatusFailed)
			return finish(database.StatusFailed, 0, err)
		}
		return finish(database.StatusCompleted, n, nil)
	}

	batch := normalize.Normalize(parser.Parse(rc))
	for _, recErr := range batch.Errors {
		s.log.Warn().
			Str("file", job.Path).
			Str("sender", recErr.SenderID).
			Str("messagedate", recErr.MessageDate).
			Msg(recErr.Message)
	}
	// Zero items at all means the top-level structure was unusable or the
	// file holds no cases; a file with only record errors still completes
	// (with zero rows) so its per-case failures stay visible in the logs
	// without blocking reruns.
	if batch.TotalRows() == 0 && len(batch.Errors) == 0 {
		cause := &models.StructuralParseError{Path: job.Path, Err: errNoCaseRecords}
		s.quarantineFile(ctx, job, cause, database.StatusQuarantined)
		return finish(database.StatusQuarantined, 0, cause)
	}
	n, err := s.loader.LoadNormalized(ctx, batch, s.cfg.LoadMode, job.Path, job.Hash)
	if err != nil {
		// The loader already recorded the failed history row on its own
		// connection; quarantining moves the file and writes the sidecar
		// without changing that status.
		s.quarantineFile(ctx, job, err, database.StatusFailed)
		return finish(database.StatusFailed, 0, err)
	}
	return finish(database.StatusCompleted, n, nil)
}

// validateFile streams the file once through the schema checker before any
// parse work.
func (s *Service) validateFile(ctx context.Context, path string) (bool, []string, error) {
	rc, err := s.source.Open(ctx, path)
	if err != nil {
		return false, nil, err
	}
	defer rc.Close()
	return parser.ValidateStream(rc, s.cfg.XSDSchemaPath)
}
