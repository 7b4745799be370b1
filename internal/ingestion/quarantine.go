package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/pharmovig/icsr-ingest/internal/models"
)

var errNoCaseRecords = errors.New("no case records found")

// quarantineMeta is the .meta.json sidecar written next to each
// quarantined file.
type quarantineMeta struct {
	FailedAt     time.Time `json:"failed_at"`
	SourceFile   string    `json:"source_file"`
	FileHash     string    `json:"file_hash"`
	ErrorType    string    `json:"error_type"`
	ErrorMessage string    `json:"error_message"`
	RunID        string    `json:"run_id"`
}

// quarantineFile moves the file and its sidecar into the quarantine
// location and records the terminal status: "quarantined" for files
// rejected before load, "failed" for files whose load or validation pass
// errored. Every step is best-effort: quarantine must never turn a bad
// file into a crashed run, so failures are logged and swallowed.
func (s *Service) quarantineFile(ctx context.Context, job models.FileJob, cause error, status string) {
	log := s.log.With().Str("file", job.Path).Str("status", status).Logger()
	log.Warn().Err(cause).Msg("quarantining file")

	name := filepath.Base(job.Path)
	dest := s.quarantine.Join(s.cfg.QuarantineURI, name)

	copied := false
	rc, err := s.source.Open(ctx, job.Path)
	if err != nil {
		log.Error().Err(err).Msg("cannot reopen file for quarantine copy")
	} else {
		if err := s.quarantine.Write(ctx, dest, rc); err != nil {
			log.Error().Err(err).Str("dest", dest).Msg("cannot write quarantine copy")
		} else {
			copied = true
		}
		rc.Close()
	}

	meta := quarantineMeta{
		FailedAt:     time.Now().UTC(),
		SourceFile:   job.Path,
		FileHash:     job.Hash,
		ErrorType:    errorType(cause),
		ErrorMessage: cause.Error(),
		RunID:        s.runID,
	}
	payload, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("cannot serialize quarantine sidecar")
	} else if err := s.quarantine.Write(ctx, dest+".meta.json", bytes.NewReader(payload)); err != nil {
		log.Error().Err(err).Msg("cannot write quarantine sidecar")
	}

	// Remove the source only after a successful copy, so the file is moved
	// out of the discovery path rather than reprocessed every run.
	if copied {
		if err := s.source.Remove(ctx, job.Path); err != nil {
			log.Error().Err(err).Msg("cannot remove quarantined source file")
		}
	}

	if err := s.loader.RecordFileStatus(ctx, job.Hash, job.Path, status, 0); err != nil {
		log.Error().Err(err).Msg("cannot record terminal file status")
	}
}

func errorType(err error) string {
	var structural *models.StructuralParseError
	var schema *models.SchemaValidationError
	var load *models.LoadError
	switch {
	case errors.As(err, &structural):
		return "structural_parse_error"
	case errors.As(err, &schema):
		return "schema_validation_error"
	case errors.As(err, &load):
		return "load_error"
	default:
		return "pipeline_error"
	}
}
