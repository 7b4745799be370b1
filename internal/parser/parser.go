// Package parser turns E2B(R3) ICSR XML byte streams into case records.
//
// The parser is built for untrusted input: entity expansion is rejected,
// external entities and DTDs are never resolved, nesting depth and subtree
// size are bounded, and a structurally broken case yields a per-record
// error instead of aborting the file.
package parser

import (
	"io"
	"strings"

	"github.com/pharmovig/icsr-ingest/internal/models"
)

// CaseScanner streams parse results one case at a time, in the style of
// bufio.Scanner. A finite, single-pass, non-restartable sequence: each
// case's subtree is released before the next is read.
type CaseScanner struct {
	split *splitter
	item  models.ParseItem
}

// Parse wraps r in a recovering case scanner.
func Parse(r io.Reader) *CaseScanner {
	return &CaseScanner{split: newSplitter(r)}
}

// Scan advances to the next case record or record error. It returns false
// when the stream is exhausted; a fatal top-level syntax problem simply
// exhausts the stream with zero items.
func (s *CaseScanner) Scan() bool {
	for {
		chunk, err := s.split.next()
		if err == io.EOF {
			return false
		}
		if err != nil {
			if err == errCaseTooLarge {
				s.item = models.ParseItem{Err: &models.RecordError{Message: "case subtree exceeds size limit"}}
				return true
			}
			// Truncated or otherwise unusable remainder: stop the stream.
			return false
		}

		record, recErr := decodeCase(chunk)
		if recErr != nil {
			s.item = models.ParseItem{Err: recErr}
		} else {
			s.item = models.ParseItem{Record: record}
		}
		return true
	}
}

// Item returns the result produced by the last successful Scan.
func (s *CaseScanner) Item() models.ParseItem { return s.item }

// decodeCase parses one raw case chunk into a CaseRecord, or a RecordError
// carrying best-effort partial context.
func decodeCase(chunk []byte) (*models.CaseRecord, *models.RecordError) {
	doc, err := decodeDocument(chunk)
	if err != nil {
		return nil, &models.RecordError{
			Message:     "malformed case XML: " + err.Error(),
			SenderID:    findScalar(doc, "senderidentifier"),
			MessageDate: firstNonEmpty(findScalar(doc, "messagedate"), findScalar(doc, "receiptdate")),
		}
	}

	record := recordFromDocument(doc)
	if record.SafetyReportID == "" {
		return nil, &models.RecordError{
			Message:     "missing required field: safetyreportid",
			SenderID:    record.SenderID,
			MessageDate: firstNonEmpty(findScalar(doc, "messagedate"), record.ReceiptDate),
		}
	}
	return record, nil
}

// recordFromDocument projects the generic document onto the schema-aware
// CaseRecord. Field selection matches by local element name anywhere in the
// case subtree, so R2/R3 nesting differences do not matter.
func recordFromDocument(doc *models.Document) *models.CaseRecord {
	record := &models.CaseRecord{
		SafetyReportID:  findScalar(doc, "safetyreportid"),
		ReceiptDate:     firstNonEmpty(findScalar(doc, "receiptdate"), findScalar(doc, "dateofmostrecentinformation")),
		Nullified:       isNullification(findScalar(doc, "casenullification")),
		SenderID:        findScalar(doc, "senderidentifier"),
		ReceiverID:      findScalar(doc, "receiveridentifier"),
		ReporterCountry: findScalar(doc, "reportercountry"),
		Qualification:   findScalar(doc, "qualification"),
		Reactions:       []models.Reaction{},
		Drugs:           []models.Drug{},
		Tests:           []models.TestResult{},
		Narrative:       findScalar(doc, "narrativeincludeclinical"),
	}

	if patient, ok := doc.Get("patient").(*models.Document); ok {
		record.Patient = models.Patient{
			Initials: findScalar(patient, "patientinitials"),
			OnsetAge: findScalar(patient, "patientonsetage"),
			Sex:      findScalar(patient, "patientsex"),
		}
	} else {
		record.Patient = models.Patient{
			Initials: findScalar(doc, "patientinitials"),
			OnsetAge: findScalar(doc, "patientonsetage"),
			Sex:      findScalar(doc, "patientsex"),
		}
	}

	for _, reaction := range collectDocs(doc, "reaction") {
		record.Reactions = append(record.Reactions, models.Reaction{
			PrimarySourceReaction: findScalar(reaction, "primarysourcereaction"),
			MedDRAPT:              findScalar(reaction, "reactionmeddrapt"),
		})
	}

	for _, drug := range collectDocs(doc, "drug") {
		d := models.Drug{
			Characterization: findScalar(drug, "drugcharacterization"),
			MedicinalProduct: findScalar(drug, "medicinalproduct"),
			DosageNumb:       findScalar(drug, "drugstructuredosagenumb"),
			DosageUnit:       findScalar(drug, "drugstructuredosageunit"),
			DosageText:       findScalar(drug, "drugdosagetext"),
			Substances:       []models.Substance{},
		}
		for _, substance := range collectDocs(drug, "activesubstance") {
			if name := findScalar(substance, "activesubstancename"); name != "" {
				d.Substances = append(d.Substances, models.Substance{Name: name})
			}
		}
		record.Drugs = append(record.Drugs, d)
	}

	for _, test := range collectDocs(doc, "test") {
		record.Tests = append(record.Tests, models.TestResult{
			Date:     findScalar(test, "testdate"),
			Name:     findScalar(test, "testname"),
			Result:   findScalar(test, "testresult"),
			Unit:     findScalar(test, "testresultunit"),
			Comments: findScalar(test, "testcomments"),
		})
	}

	return record
}

// isNullification interprets the C.1.11.1 case nullification code.
func isNullification(code string) bool {
	switch strings.TrimSpace(strings.ToLower(code)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
