package batch

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is the Parquet row schema.
type Record struct {
	ID   int64  `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// Mode selects the direction of processing.
type Mode string

const (
	ModeRedact  Mode = "redact"
	ModeRestore Mode = "restore"
)

// Config contains batch pipeline configuration
type Config struct {
	Mode           Mode     `yaml:"mode" mapstructure:"mode"`
	Columns        []string `yaml:"columns" mapstructure:"columns"` // CSV columns / JSON fields to process
	DryRun         bool     `yaml:"dry_run" mapstructure:"dry_run"`
	ProgressReport int      `yaml:"progress_report" mapstructure:"progress_report"`
}

// ProcessingResult represents the result of processing a dataset
type ProcessingResult struct {
	TotalRecords  int64          `json:"total_records"`
	FieldsChanged int64          `json:"fields_changed"`
	Findings      map[string]int `json:"findings,omitempty"` // category -> count
	Duration      time.Duration  `json:"duration"`
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSONL   FileFormat = "jsonl"
	FormatUnknown FileFormat = "unknown"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) FileFormat {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV
	case ".parquet":
		return FormatParquet
	case ".json", ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatUnknown
	}
}
