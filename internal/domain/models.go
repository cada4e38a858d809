package domain

import (
	"encoding/json"
	"time"
)

// Batch response statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// BatchRequest carries the inputs of one analysis request. Rows are processed as given;
// callers substitute the demo row when no structured data was uploaded.
type BatchRequest struct {
	RequestID string          `json:"request_id,omitempty"`
	Rows      []StructuredRow `json:"rows"`
	Genomics  string          `json:"genomics"`
	Pathology string          `json:"pathology"`
}

// BatchResponse wraps the per-patient results of a request.
type BatchResponse struct {
	Status  string          `json:"status"`
	BatchID string          `json:"batch_id,omitempty"`
	Message string          `json:"message,omitempty"`
	Results []PatientResult `json:"results"`
}

// MarshalJSON renders a nil fused vector as an empty object.
func (r PatientResult) MarshalJSON() ([]byte, error) {
	type wire struct {
		PatientID string         `json:"patient_id"`
		Fused     any            `json:"fused"`
		Analysis  AnalysisResult `json:"analysis"`
	}
	w := wire{PatientID: r.PatientID, Analysis: r.Analysis}
	if r.Fused != nil {
		w.Fused = r.Fused
	} else {
		w.Fused = struct{}{}
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts the empty-object form produced for failed rows.
func (r *PatientResult) UnmarshalJSON(data []byte) error {
	var w struct {
		PatientID string          `json:"patient_id"`
		Fused     json.RawMessage `json:"fused"`
		Analysis  AnalysisResult  `json:"analysis"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	r.PatientID = w.PatientID
	r.Analysis = w.Analysis
	r.Fused = nil

	var probe map[string]json.RawMessage
	if len(w.Fused) > 0 && json.Unmarshal(w.Fused, &probe) == nil && len(probe) > 0 {
		var fv FusedVector
		if err := json.Unmarshal(w.Fused, &fv); err != nil {
			return err
		}
		r.Fused = &fv
	}
	return nil
}

// ResultRecord is a persisted patient result.
type ResultRecord struct {
	ID        string         `json:"id"`
	BatchID   string         `json:"batch_id"`
	RequestID string         `json:"request_id,omitempty"`
	PatientID string         `json:"patient_id"`
	Fused     *FusedVector   `json:"fused,omitempty"`
	Analysis  AnalysisResult `json:"analysis"`
	CreatedAt time.Time      `json:"created_at"`
}

// PatientReport is the downloadable report for one stored result.
type PatientReport struct {
	PatientID string         `json:"patient_id"`
	Analysis  AnalysisResult `json:"analysis"`
	FusedData *FusedVector   `json:"fused_data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Report builds the downloadable report for a stored record.
func (r *ResultRecord) Report() *PatientReport {
	return &PatientReport{
		PatientID: r.PatientID,
		Analysis:  r.Analysis,
		FusedData: r.Fused,
		Timestamp: r.CreatedAt,
	}
}

// ResultExport represents the JSON export format of stored results.
type ResultExport struct {
	Version    string          `json:"version"`
	ExportedAt time.Time       `json:"exported_at"`
	Count      int             `json:"count"`
	Results    []*ResultRecord `json:"results"`
}
