// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Schema types selectable per run.
const (
	SchemaNormalized = "normalized"
	SchemaAudit      = "audit"
)

type Config struct {
	DatabaseURL string

	// SourceURI points at the input files: a directory, a glob, or an
	// s3://bucket/prefix URI.
	SourceURI string
	// QuarantineURI receives rejected files plus their .meta.json sidecars.
	QuarantineURI string

	// SchemaType selects the destination representation: "normalized" or
	// "audit".
	SchemaType string
	// LoadMode is "delta" (skip already-loaded content) or "full"
	// (truncate and reload).
	LoadMode string

	NumWorkers int

	// XSDSchemaPath enables pre-parse schema validation when ValidateXSD
	// is set.
	XSDSchemaPath string
	ValidateXSD   bool

	// TombstonePolicy is "advance" or "preserve"; see the loader for the
	// semantics.
	TombstonePolicy string

	LogLevel string
	APIPort  int
}

// New reads configuration from the environment. DATABASE_URL is mandatory;
// everything else has a working default. SOURCE_URI is only required by the
// ingestion entrypoint, which checks it itself.
func New() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SCHEMA_TYPE", SchemaNormalized)
	v.SetDefault("LOAD_MODE", "delta")
	v.SetDefault("NUM_WORKERS", 4)
	v.SetDefault("QUARANTINE_URI", "quarantine")
	v.SetDefault("VALIDATE_XSD", false)
	v.SetDefault("TOMBSTONE_VERSION_POLICY", "advance")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("API_PORT", 8080)

	cfg := &Config{
		DatabaseURL:     v.GetString("DATABASE_URL"),
		SourceURI:       v.GetString("SOURCE_URI"),
		QuarantineURI:   v.GetString("QUARANTINE_URI"),
		SchemaType:      strings.ToLower(v.GetString("SCHEMA_TYPE")),
		LoadMode:        strings.ToLower(v.GetString("LOAD_MODE")),
		NumWorkers:      v.GetInt("NUM_WORKERS"),
		XSDSchemaPath:   v.GetString("XSD_SCHEMA_PATH"),
		ValidateXSD:     v.GetBool("VALIDATE_XSD"),
		TombstonePolicy: strings.ToLower(v.GetString("TOMBSTONE_VERSION_POLICY")),
		LogLevel:        strings.ToLower(v.GetString("LOG_LEVEL")),
		APIPort:         v.GetInt("API_PORT"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}
	if cfg.SchemaType != SchemaNormalized && cfg.SchemaType != SchemaAudit {
		return nil, fmt.Errorf("invalid SCHEMA_TYPE %q: expected %q or %q", cfg.SchemaType, SchemaNormalized, SchemaAudit)
	}
	if cfg.LoadMode != "delta" && cfg.LoadMode != "full" {
		return nil, fmt.Errorf("invalid LOAD_MODE %q: expected \"delta\" or \"full\"", cfg.LoadMode)
	}
	if cfg.NumWorkers < 1 {
		return nil, fmt.Errorf("NUM_WORKERS must be at least 1, got %d", cfg.NumWorkers)
	}
	if cfg.TombstonePolicy != "advance" && cfg.TombstonePolicy != "preserve" {
		return nil, fmt.Errorf("invalid TOMBSTONE_VERSION_POLICY %q: expected \"advance\" or \"preserve\"", cfg.TombstonePolicy)
	}
	if cfg.ValidateXSD && cfg.XSDSchemaPath == "" {
		return nil, fmt.Errorf("VALIDATE_XSD is set but XSD_SCHEMA_PATH is empty")
	}

	return cfg, nil
}
