package checkout

import (
	"go-report-checkout/catalog"
	"go-report-checkout/images"
)

// State is the orchestrator's current step.
type State string

const (
	StateIdle             State = "idle"
	StateValidating       State = "validating"
	StateEncodingFiles    State = "encoding_files"
	StateCreatingOrder    State = "creating_order"
	StateAwaitingPayment  State = "awaiting_payment"
	StateGeneratingReport State = "generating_report"
	StateRedirecting      State = "redirecting"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
)

// Submission is the form as it was when the user pressed submit. Values and
// Files are keyed by the catalog field names; a missing file has no entry.
type Submission struct {
	Category catalog.Category
	Subtype  catalog.Subtype
	Language string
	Values   map[string]string
	Files    map[string]images.Upload
}

func (s Submission) value(field string) string {
	if s.Values == nil {
		return ""
	}
	return s.Values[field]
}

func (s Submission) file(field string) images.Upload {
	if s.Files == nil {
		return nil
	}
	return s.Files[field]
}
