// Package normalize projects parsed case records onto the relational
// destination tables.
package normalize

import (
	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/internal/schema"
)

// CaseSource is the parse stream consumed by the normalizer; satisfied by
// parser.CaseScanner.
type CaseSource interface {
	Scan() bool
	Item() models.ParseItem
}

// Batch holds the per-table row sets produced from one source file. Row
// values follow the column order in the schema registry.
type Batch struct {
	Rows   map[string][][]any
	Counts map[string]int
	// ReportIDs are the distinct valid safetyreportids, in first-seen
	// order; the loader uses them to retire child rows of amended cases.
	ReportIDs []string
	// Errors are the per-record failures, passed through for the caller
	// to report or quarantine. They contribute no rows.
	Errors []*models.RecordError
}

// Normalize drains src into relational row batches. Every valid record
// yields exactly one case_master and one patient row, plus child rows as
// present; drugs receive an incrementing per-case sequence number starting
// at 1 since they carry no natural key.
func Normalize(src CaseSource) *Batch {
	batch := &Batch{
		Rows:   make(map[string][][]any),
		Counts: make(map[string]int),
	}
	for _, name := range schema.NormalizedTables {
		batch.Rows[name] = nil
		batch.Counts[name] = 0
	}

	for src.Scan() {
		item := src.Item()
		if item.Err != nil {
			batch.Errors = append(batch.Errors, item.Err)
			continue
		}
		appendRecord(batch, item.Record)
	}
	return batch
}

func appendRecord(batch *Batch, rec *models.CaseRecord) {
	batch.ReportIDs = append(batch.ReportIDs, rec.SafetyReportID)

	// is_nullified is a typed bool, never nil: the bulk-load encoding must
	// not conflate "false" with "absent".
	add(batch, schema.CaseMaster, []any{
		rec.SafetyReportID, rec.ReceiptDate, rec.Nullified,
		rec.SenderID, rec.ReceiverID, rec.ReporterCountry, rec.Qualification,
	})

	// The patient row is emitted even when all fields are empty; its
	// presence marks "patient section processed" for downstream joins.
	add(batch, schema.Patient, []any{
		rec.SafetyReportID, rec.Patient.Initials, rec.Patient.OnsetAge, rec.Patient.Sex,
	})

	for _, reaction := range rec.Reactions {
		add(batch, schema.Reaction, []any{
			rec.SafetyReportID, reaction.PrimarySourceReaction, reaction.MedDRAPT,
		})
	}

	for i, drug := range rec.Drugs {
		seq := i + 1
		add(batch, schema.Drug, []any{
			rec.SafetyReportID, seq, drug.Characterization, drug.MedicinalProduct,
			drug.DosageNumb, drug.DosageUnit, drug.DosageText,
		})
		for _, substance := range drug.Substances {
			add(batch, schema.DrugSubstance, []any{
				rec.SafetyReportID, seq, substance.Name,
			})
		}
	}

	for _, test := range rec.Tests {
		add(batch, schema.TestResultTbl, []any{
			rec.SafetyReportID, test.Date, test.Name, test.Result, test.Unit, test.Comments,
		})
	}

	if rec.Narrative != "" {
		add(batch, schema.Narrative, []any{rec.SafetyReportID, rec.Narrative})
	}
}

func add(batch *Batch, table string, row []any) {
	batch.Rows[table] = append(batch.Rows[table], row)
	batch.Counts[table]++
}

// TotalRows sums the row counts across all tables.
func (b *Batch) TotalRows() int {
	total := 0
	for _, n := range b.Counts {
		total += n
	}
	return total
}
