package models

import (
	"fmt"
	"time"
)

// CaseRecord is one parsed Individual Case Safety Report.
type CaseRecord struct {
	SafetyReportID  string `json:"safetyreportid"`
	ReceiptDate     string `json:"receiptdate"`
	Nullified       bool   `json:"is_nullified"`
	SenderID        string `json:"senderidentifier"`
	ReceiverID      string `json:"receiveridentifier"`
	ReporterCountry string `json:"reportercountry,omitempty"`
	Qualification   string `json:"qualification,omitempty"`

	Patient   Patient    `json:"patient"`
	Reactions []Reaction `json:"reactions"`
	Drugs     []Drug     `json:"drugs"`
	Tests     []TestResult `json:"tests"`
	Narrative string     `json:"narrative,omitempty"`
}

type Patient struct {
	Initials string `json:"patientinitials,omitempty"`
	OnsetAge string `json:"patientonsetage,omitempty"`
	Sex      string `json:"patientsex,omitempty"`
}

type Reaction struct {
	PrimarySourceReaction string `json:"primarysourcereaction,omitempty"`
	MedDRAPT              string `json:"reactionmeddrapt"`
}

type Drug struct {
	Characterization string      `json:"drugcharacterization,omitempty"`
	MedicinalProduct string      `json:"medicinalproduct,omitempty"`
	DosageNumb       string      `json:"drugstructuredosagenumb,omitempty"`
	DosageUnit       string      `json:"drugstructuredosageunit,omitempty"`
	DosageText       string      `json:"drugdosagetext,omitempty"`
	Substances       []Substance `json:"substances"`
}

type Substance struct {
	Name string `json:"activesubstancename"`
}

type TestResult struct {
	Date     string `json:"testdate,omitempty"`
	Name     string `json:"testname"`
	Result   string `json:"testresult,omitempty"`
	Unit     string `json:"testresultunit,omitempty"`
	Comments string `json:"testcomments,omitempty"`
}

// RecordError is a case that failed structural validation. It travels in the
// parse stream next to valid records so one bad case never aborts a file.
type RecordError struct {
	Message     string
	SenderID    string
	MessageDate string
}

func (e *RecordError) Error() string {
	if e.SenderID != "" {
		return fmt.Sprintf("%s (sender=%s, messagedate=%s)", e.Message, e.SenderID, e.MessageDate)
	}
	return e.Message
}

// ParseItem is one element of the parser output stream: exactly one of
// Record or Err is set.
type ParseItem struct {
	Record *CaseRecord
	Err    *RecordError
}

// StructuralParseError marks a file whose top-level XML structure is
// unusable. The file yields zero records and is quarantined.
type StructuralParseError struct {
	Path string
	Err  error
}

func (e *StructuralParseError) Error() string {
	return fmt.Sprintf("unparseable XML in %s: %v", e.Path, e.Err)
}

func (e *StructuralParseError) Unwrap() error { return e.Err }

// SchemaValidationError marks a file that failed the XSD check before load.
type SchemaValidationError struct {
	Path   string
	Errors []string
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("schema validation failed for %s: %d error(s)", e.Path, len(e.Errors))
}

// LoadError wraps a database failure during staging or merge. The file's
// transaction has been rolled back when this surfaces.
type LoadError struct {
	Table string
	Err   error
}

func (e *LoadError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("load failed on table %s: %v", e.Table, e.Err)
	}
	return fmt.Sprintf("load failed: %v", e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// DiscoveryError aborts the whole run: no files were processed.
type DiscoveryError struct {
	URI string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("cannot enumerate source %s: %v", e.URI, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// FileJob is one unit of work for the ingestion worker pool.
type FileJob struct {
	Path string
	Hash string
}

// FileOutcome is the terminal state of one file within a run.
type FileOutcome struct {
	Path     string
	Hash     string
	Status   string
	Rows     int
	Err      error
	Duration time.Duration
}

// AuditRow is one deduplicated audit_log row: the full payload of the
// highest-version occurrence of a report within one source file.
type AuditRow struct {
	SafetyReportID string
	ReceiptDate    string
	ReceiveDate    string
	Payload        []byte
	PayloadHash    string
}
