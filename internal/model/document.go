package model

import "time"

// DocumentStatus is the document lifecycle state machine:
// processing -> completed | failed. Terminal states never change again.
type DocumentStatus string

const (
	DocStatusProcessing DocumentStatus = "processing"
	DocStatusCompleted  DocumentStatus = "completed"
	DocStatusFailed     DocumentStatus = "failed"
)

// FileType tags the parser a document routes through.
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
	FileTypePDF  FileType = "pdf"
)

// Document is one uploaded bank-transaction file. Mutated only by the
// ingestion step, never by export.
type Document struct {
	ID                string         `json:"id"`
	DealID            string         `json:"deal_id"`
	FileName          string         `json:"file_name"`
	FileType          FileType       `json:"file_type"`
	Status            DocumentStatus `json:"status"`
	CurrencyDetection string         `json:"currency_detection,omitempty"` // "ambiguous" when a bare glyph was seen
	CurrencyMismatch  bool           `json:"currency_mismatch"`

	// Structured failure fields, set only when Status is failed.
	ErrorType    string `json:"error_type,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ErrorStage   string `json:"error_stage,omitempty"`
	NextAction   string `json:"next_action,omitempty"`

	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
