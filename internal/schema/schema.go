// Package schema is the single registry of destination tables: DDL, column
// order for bulk loads, declared keys, and parent-before-child insert
// order. Loader SQL is compiled from this registry, never from caller
// strings, so identifier injection is structurally impossible.
package schema

// Table describes one destination table.
type Table struct {
	Name string
	// Columns is the bulk-load column order; server-defaulted columns
	// (load_timestamp, serial ids) are excluded.
	Columns []string
	// PrimaryKey is the declared key, used as a fallback when live
	// introspection is unavailable.
	PrimaryKey []string
	// VersionKey is the monotonic ordering column, empty when the table
	// has no versioning concept (first write wins).
	VersionKey string
	// TombstoneCol is the nullification flag column, empty when absent.
	TombstoneCol string
	// Parent names the FK parent, establishing insert order.
	Parent string
	DDL    string
}

const (
	CaseMaster    = "case_master"
	Patient       = "patient"
	Reaction      = "reaction"
	Drug          = "drug"
	DrugSubstance = "drug_substance"
	TestResultTbl = "test_result"
	Narrative     = "narrative"
	AuditLog      = "audit_log"
	FileHistory   = "etl_file_history"
)

// Tables lists every data and audit table in parent-before-child order.
var Tables = []Table{
	{
		Name:         CaseMaster,
		Columns:      []string{"safetyreportid", "receiptdate", "is_nullified", "senderidentifier", "receiveridentifier", "reportercountry", "qualification"},
		PrimaryKey:   []string{"safetyreportid"},
		VersionKey:   "receiptdate",
		TombstoneCol: "is_nullified",
		DDL: `CREATE TABLE IF NOT EXISTS case_master (
	safetyreportid VARCHAR(255) PRIMARY KEY,
	receiptdate VARCHAR(255),
	is_nullified BOOLEAN NOT NULL DEFAULT FALSE,
	senderidentifier VARCHAR(255),
	receiveridentifier VARCHAR(255),
	reportercountry VARCHAR(255),
	qualification VARCHAR(255),
	load_timestamp TIMESTAMP NOT NULL DEFAULT NOW()
);`,
	},
	{
		Name:       Patient,
		Columns:    []string{"safetyreportid", "patientinitials", "patientonsetage", "patientsex"},
		PrimaryKey: []string{"safetyreportid"},
		Parent:     CaseMaster,
		DDL: `CREATE TABLE IF NOT EXISTS patient (
	safetyreportid VARCHAR(255) PRIMARY KEY REFERENCES case_master (safetyreportid),
	patientinitials VARCHAR(255),
	patientonsetage VARCHAR(255),
	patientsex VARCHAR(50)
);`,
	},
	{
		Name:       Reaction,
		Columns:    []string{"safetyreportid", "primarysourcereaction", "reactionmeddrapt"},
		PrimaryKey: []string{"safetyreportid", "reactionmeddrapt"},
		Parent:     CaseMaster,
		DDL: `CREATE TABLE IF NOT EXISTS reaction (
	safetyreportid VARCHAR(255) REFERENCES case_master (safetyreportid),
	primarysourcereaction TEXT,
	reactionmeddrapt TEXT,
	PRIMARY KEY (safetyreportid, reactionmeddrapt)
);`,
	},
	{
		Name:       Drug,
		Columns:    []string{"safetyreportid", "drug_seq", "drugcharacterization", "medicinalproduct", "drugstructuredosagenumb", "drugstructuredosageunit", "drugdosagetext"},
		PrimaryKey: []string{"safetyreportid", "drug_seq"},
		Parent:     CaseMaster,
		DDL: `CREATE TABLE IF NOT EXISTS drug (
	safetyreportid VARCHAR(255) REFERENCES case_master (safetyreportid),
	drug_seq INTEGER NOT NULL,
	drugcharacterization VARCHAR(255),
	medicinalproduct TEXT,
	drugstructuredosagenumb VARCHAR(255),
	drugstructuredosageunit VARCHAR(255),
	drugdosagetext TEXT,
	PRIMARY KEY (safetyreportid, drug_seq)
);`,
	},
	{
		Name:       DrugSubstance,
		Columns:    []string{"safetyreportid", "drug_seq", "activesubstancename"},
		PrimaryKey: []string{"safetyreportid", "drug_seq", "activesubstancename"},
		Parent:     Drug,
		DDL: `CREATE TABLE IF NOT EXISTS drug_substance (
	safetyreportid VARCHAR(255),
	drug_seq INTEGER NOT NULL,
	activesubstancename TEXT,
	PRIMARY KEY (safetyreportid, drug_seq, activesubstancename),
	FOREIGN KEY (safetyreportid, drug_seq) REFERENCES drug (safetyreportid, drug_seq)
);`,
	},
	{
		Name:       TestResultTbl,
		Columns:    []string{"safetyreportid", "testdate", "testname", "testresult", "testresultunit", "testcomments"},
		PrimaryKey: []string{"safetyreportid", "testname"},
		Parent:     CaseMaster,
		DDL: `CREATE TABLE IF NOT EXISTS test_result (
	safetyreportid VARCHAR(255) REFERENCES case_master (safetyreportid),
	testdate VARCHAR(255),
	testname TEXT,
	testresult TEXT,
	testresultunit TEXT,
	testcomments TEXT,
	PRIMARY KEY (safetyreportid, testname)
);`,
	},
	{
		Name:       Narrative,
		Columns:    []string{"safetyreportid", "narrative"},
		PrimaryKey: []string{"safetyreportid"},
		Parent:     CaseMaster,
		DDL: `CREATE TABLE IF NOT EXISTS narrative (
	safetyreportid VARCHAR(255) PRIMARY KEY REFERENCES case_master (safetyreportid),
	narrative TEXT
);`,
	},
	{
		Name:       AuditLog,
		Columns:    []string{"safetyreportid", "receiptdate", "receivedate", "payload", "payload_hash"},
		PrimaryKey: []string{"safetyreportid"},
		VersionKey: "receiptdate",
		DDL: `CREATE TABLE IF NOT EXISTS audit_log (
	safetyreportid VARCHAR(255) PRIMARY KEY,
	receiptdate VARCHAR(255),
	receivedate VARCHAR(255),
	payload JSONB,
	payload_hash VARCHAR(16),
	load_timestamp TIMESTAMP NOT NULL DEFAULT NOW()
);`,
	},
}

// HistoryDDL creates the file-history table. It is part of the persisted
// contract: rows are never deleted by the pipeline.
const HistoryDDL = `CREATE TABLE IF NOT EXISTS etl_file_history (
	id SERIAL PRIMARY KEY,
	filename VARCHAR(255) NOT NULL,
	file_hash VARCHAR(64) NOT NULL UNIQUE,
	status VARCHAR(50) NOT NULL,
	rows_processed INTEGER,
	load_timestamp TIMESTAMP NOT NULL DEFAULT NOW()
);`

// NormalizedTables is the parent-first load order for the normalized
// projection.
var NormalizedTables = []string{CaseMaster, Patient, Reaction, Drug, DrugSubstance, TestResultTbl, Narrative}

// ChildTables lists every table FK-dependent on case_master, in delete-safe
// (child-before-parent) order.
var ChildTables = []string{DrugSubstance, Drug, Patient, Reaction, TestResultTbl, Narrative}

// ByName returns the registry entry for name.
func ByName(name string) (Table, bool) {
	for _, t := range Tables {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// KnownTable reports whether name belongs to the registry, the allow-list
// every runtime-assembled identifier is checked against.
func KnownTable(name string) bool {
	_, ok := ByName(name)
	return ok || name == FileHistory
}
