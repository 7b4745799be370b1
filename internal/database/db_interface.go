package database

import (
	"context"
	"time"

	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/internal/normalize"
)

// File history statuses. A hash reaches "completed" exactly once; reruns
// over the same content are skipped in delta mode.
const (
	StatusRunning     = "running"
	StatusCompleted   = "completed"
	StatusFailed      = "failed"
	StatusQuarantined = "quarantined"
)

// Load modes.
const (
	ModeDelta = "delta"
	ModeFull  = "full"
)

// TombstonePolicy decides what happens to the version marker when a
// nullification arrives with a stale (same-or-older) version. Regulatory
// guidance is ambiguous here, so the behavior is explicit configuration.
type TombstonePolicy string

const (
	// TombstoneAdvance sets the version marker from the incoming row
	// whenever the merge fires, even for a stale nullification.
	TombstoneAdvance TombstonePolicy = "advance"
	// TombstonePreserve keeps the greater of the two version markers.
	TombstonePreserve TombstonePolicy = "preserve"
)

// FileHistoryRow is one etl_file_history record.
type FileHistoryRow struct {
	ID            int       `json:"id"`
	Filename      string    `json:"filename"`
	FileHash      string    `json:"file_hash"`
	Status        string    `json:"status"`
	RowsProcessed int       `json:"rows_processed"`
	LoadTimestamp time.Time `json:"load_timestamp"`
}

// CaseSummary is the read-model for one loaded case.
type CaseSummary struct {
	SafetyReportID string `json:"safetyreportid"`
	ReceiptDate    string `json:"receiptdate"`
	Nullified      bool   `json:"is_nullified"`
	SenderID       string `json:"senderidentifier"`
	ReactionCount  int    `json:"reaction_count"`
	DrugCount      int    `json:"drug_count"`
	TestCount      int    `json:"test_count"`
}

// Loader is the contract between the ingestion pipeline and the relational
// backend.
type Loader interface {
	CreateAllTables(ctx context.Context) error
	GetCompletedFileHashes(ctx context.Context) (map[string]bool, error)
	// ResetTargets truncates the destination tables for the given schema
	// type as one committed step. Called once per full-refresh run, before
	// any file is dispatched; never touches history rows.
	ResetTargets(ctx context.Context, schemaType string) error
	// LoadNormalized applies one file's normalized row batches in a single
	// transaction and returns the number of rows staged.
	LoadNormalized(ctx context.Context, batch *normalize.Batch, mode, path, hash string) (int, error)
	// LoadAudit applies one file's audit rows in a single transaction.
	LoadAudit(ctx context.Context, rows []models.AuditRow, mode, path, hash string) (int, error)
	// RecordFileStatus upserts one history row keyed by content hash,
	// outside any data transaction.
	RecordFileStatus(ctx context.Context, hash, filename, status string, rows int) error
	RecentHistory(ctx context.Context, limit int) ([]FileHistoryRow, error)
	CaseSummary(ctx context.Context, reportID string) (*CaseSummary, error)
	Close()
}
