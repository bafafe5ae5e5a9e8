// Package fault defines the structured error taxonomy shared by ingestion
// and export. Every fault carries a machine-readable kind, a human message,
// the pipeline stage at which it occurred, and a recommended next action.
package fault

import (
	"errors"

	"github.com/rotisserie/eris"
)

// Kind is the machine-readable error classification.
type Kind string

const (
	KindFileUpload        Kind = "FileUploadError"
	KindSchemaValidation  Kind = "SchemaValidationError"
	KindCurrencyMismatch  Kind = "CurrencyMismatchError"
	KindDataValidation    Kind = "DataValidationError"
	KindPipelineStage     Kind = "PipelineStageError"
	KindMetrics           Kind = "MetricsComputationError"
	KindSnapshot          Kind = "SnapshotIntegrityError"
	KindDocumentsNotReady Kind = "DOCUMENTS_NOT_READY"
)

// Recommended next actions. These are contract strings surfaced to callers,
// not free text.
const (
	ActionRetryUpload    = "retry_upload"
	ActionFixCSVHeader   = "fix_csv_header"
	ActionFixCurrency    = "fix_currency"
	ActionFixData        = "fix_data"
	ActionFixAccrual     = "fix_accrual"
	ActionWaitForDocs    = "wait_for_documents"
	ActionRetryOrSupport = "retry_or_contact_support"
)

// Fault is a structured pipeline error.
type Fault struct {
	Kind       Kind   `json:"error_type"`
	Message    string `json:"error_message"`
	Stage      string `json:"stage"`
	NextAction string `json:"next_action"`
	cause      error
}

func (f *Fault) Error() string {
	return string(f.Kind) + ": " + f.Message
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (f *Fault) Unwrap() error { return f.cause }

// New creates a Fault with no underlying cause.
func New(kind Kind, stage, nextAction, message string) *Fault {
	return &Fault{Kind: kind, Message: message, Stage: stage, NextAction: nextAction}
}

// Wrap annotates err as a Fault, preserving it as the cause.
func Wrap(err error, kind Kind, stage, nextAction, message string) *Fault {
	return &Fault{
		Kind:       kind,
		Message:    message,
		Stage:      stage,
		NextAction: nextAction,
		cause:      eris.Wrap(err, message),
	}
}

// From extracts the structured Fault from an error chain. When err is not a
// Fault it is classified as a pipeline stage failure at the given stage, so
// document rows always end up with the full four-field contract attached.
func From(err error, stage string) *Fault {
	var f *Fault
	if errors.As(err, &f) {
		return f
	}
	return &Fault{
		Kind:       KindPipelineStage,
		Message:    err.Error(),
		Stage:      stage,
		NextAction: ActionRetryOrSupport,
		cause:      err,
	}
}

// IsKind reports whether err carries the given fault kind.
func IsKind(err error, kind Kind) bool {
	var f *Fault
	return errors.As(err, &f) && f.Kind == kind
}
