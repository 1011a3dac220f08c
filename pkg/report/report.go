// Package report holds what every analyzer shares: the result header, report
// metadata and the JSON and Markdown writers.
package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/agentic-turing/atm/pkg/atmerr"
)

// DateLayout is the date format stored in report metadata.
const DateLayout = "2006-01-02"

// Result is the header every analyzer returns: two headline metrics and a
// one-line summary.
type Result struct {
	Name    string  `json:"name"`
	Metric1 float64 `json:"metric1"`
	Metric2 float64 `json:"metric2"`
	Summary string  `json:"summary"`
}

// Metadata describes a report file.
type Metadata struct {
	AnalysisType string `json:"analysis_type"`
	Date         string `json:"date"`
	Description  string `json:"description,omitempty"`
	Version      string `json:"version,omitempty"`
}

// NewMetadata stamps analysisType with the date of now.
func NewMetadata(analysisType, description string, now time.Time) Metadata {
	return Metadata{
		AnalysisType: analysisType,
		Date:         now.Format(DateLayout),
		Description:  description,
	}
}

// WriteJSON writes v as indented JSON, creating parent directories.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "cannot encode report", atmerr.Details{"path": path})
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "cannot create report directory", atmerr.Details{"path": path})
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "cannot write report", atmerr.Details{"path": path})
	}
	return nil
}

// ReadJSON decodes the report at path into v. A missing file is an analysis
// error so callers can tell the user which step to run first.
func ReadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return atmerr.New(atmerr.KindAnalysis, "results file not found: "+path, atmerr.Details{"path": path})
	}
	if err != nil {
		return atmerr.Wrap(err, atmerr.KindFileOperation, "cannot read report", atmerr.Details{"path": path})
	}
	if err := json.Unmarshal(data, v); err != nil {
		return atmerr.Wrap(err, atmerr.KindAnalysis, "failed to load results", atmerr.Details{"path": path})
	}
	return nil
}
