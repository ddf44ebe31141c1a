package batch

import (
	"errors"
	"path/filepath"
	"strings"
	"time"
)

// ErrUnsupportedFormat is returned for input or output files with an unknown extension
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// Record is one input row
type Record struct {
	ID   string `parquet:"id" json:"id"`
	Text string `parquet:"text" json:"text"`
}

// OutputRecord is one redacted row. Categories lists the categories found,
// comma-separated in evaluation order.
type OutputRecord struct {
	ID          string `parquet:"id" json:"id"`
	Redacted    string `parquet:"redacted" json:"redacted"`
	EntityCount int64  `parquet:"entity_count" json:"entity_count"`
	Categories  string `parquet:"categories" json:"categories"`
}

// Result represents the outcome of processing a dataset
type Result struct {
	TotalRecords int64            `json:"total_records"`
	Processed    int64            `json:"processed"`
	Failed       int64            `json:"failed"`
	Entities     int64            `json:"entities"`
	Counts       map[string]int64 `json:"counts"`
	Duration     time.Duration    `json:"duration"`
	Errors       []string         `json:"errors,omitempty"`
}

// maxReportedErrors caps Result.Errors
const maxReportedErrors = 20

func (r *Result) fail(err error) {
	r.Failed++
	r.TotalRecords++
	if len(r.Errors) < maxReportedErrors {
		r.Errors = append(r.Errors, err.Error())
	}
}

// FileFormat represents supported file formats
type FileFormat string

const (
	FormatCSV     FileFormat = "csv"
	FormatParquet FileFormat = "parquet"
	FormatJSON    FileFormat = "json"
)

// DetectFileFormat detects file format from extension
func DetectFileFormat(filename string) (FileFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return FormatCSV, nil
	case ".parquet":
		return FormatParquet, nil
	case ".json", ".jsonl", ".ndjson":
		return FormatJSON, nil
	default:
		return "", ErrUnsupportedFormat
	}
}
