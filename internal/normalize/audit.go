package normalize

import (
	"fmt"

	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/internal/parser"
	"github.com/pharmovig/icsr-ingest/pkg/checksum"
)

// AuditSource is the audit extraction stream; satisfied by
// parser.AuditScanner.
type AuditSource interface {
	Scan() bool
	Item() parser.AuditItem
}

// NormalizeAudit drains src into audit_log rows, deduplicating within the
// batch by safetyreportid: only the occurrence with the lexicographically
// greatest receiptdate survives. One source file therefore yields at most
// one audit row per distinct report.
func NormalizeAudit(src AuditSource) ([]models.AuditRow, []error) {
	var (
		order  []string
		latest = make(map[string]*models.Document)
		errs   []error
	)

	for src.Scan() {
		item := src.Item()
		if item.Err != nil {
			errs = append(errs, item.Err)
			continue
		}
		doc := item.Doc
		id := scalar(doc, "safetyreportid")
		if id == "" {
			errs = append(errs, fmt.Errorf("audit record without safetyreportid dropped"))
			continue
		}
		existing, seen := latest[id]
		if !seen {
			order = append(order, id)
			latest[id] = doc
			continue
		}
		if scalar(doc, "receiptdate") > scalar(existing, "receiptdate") {
			latest[id] = doc
		}
	}

	rows := make([]models.AuditRow, 0, len(order))
	for _, id := range order {
		doc := latest[id]
		payload, err := doc.MarshalJSON()
		if err != nil {
			errs = append(errs, fmt.Errorf("serializing audit payload for %s: %w", id, err))
			continue
		}
		rows = append(rows, models.AuditRow{
			SafetyReportID: id,
			ReceiptDate:    scalar(doc, "receiptdate"),
			ReceiveDate:    scalar(doc, "receivedate"),
			Payload:        payload,
			PayloadHash:    checksum.XXHash(payload),
		})
	}
	return rows, errs
}

// scalar looks up the first scalar under name anywhere in the document.
func scalar(doc *models.Document, name string) string {
	if s, ok := doc.Get(name).(string); ok {
		return s
	}
	for _, key := range doc.Keys() {
		switch v := doc.Get(key).(type) {
		case *models.Document:
			if s := scalar(v, name); s != "" {
				return s
			}
		case []any:
			for _, item := range v {
				if child, ok := item.(*models.Document); ok {
					if s := scalar(child, name); s != "" {
						return s
					}
				}
			}
		}
	}
	return ""
}
