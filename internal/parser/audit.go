package parser

import (
	"fmt"
	"io"

	"github.com/pharmovig/icsr-ingest/internal/models"
)

// AuditItem is one element of the audit extraction stream: a full-fidelity
// generic document for a case, or the parse failure for that case.
type AuditItem struct {
	Doc *models.Document
	Err error
}

// AuditScanner streams generic case documents with no schema-aware field
// selection, for full-fidelity audit storage. Unlike the recovering case
// scanner, any syntax error inside a case is surfaced as a typed failure
// for that case.
type AuditScanner struct {
	split *splitter
	item  AuditItem
}

// ParseAudit wraps r in an audit extraction scanner.
func ParseAudit(r io.Reader) *AuditScanner {
	return &AuditScanner{split: newSplitter(r)}
}

// Scan advances to the next case document or per-case failure; false means
// the stream is exhausted.
func (s *AuditScanner) Scan() bool {
	chunk, err := s.split.next()
	if err == io.EOF {
		return false
	}
	if err != nil {
		if err == errCaseTooLarge {
			s.item = AuditItem{Err: err}
			return true
		}
		return false
	}

	doc, err := decodeDocument(chunk)
	if err != nil {
		s.item = AuditItem{Err: fmt.Errorf("audit extraction failed: %w", err)}
		return true
	}
	s.item = AuditItem{Doc: doc}
	return true
}

// Item returns the result produced by the last successful Scan.
func (s *AuditScanner) Item() AuditItem { return s.item }
