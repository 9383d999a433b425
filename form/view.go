package form

import "go-report-checkout/catalog"

const DefaultLoadingMessage = "Processing your request..."

// View is everything the browser needs to render the form.
type View struct {
	Category catalog.Category `json:"category"`
	Subtype  catalog.Subtype  `json:"subtype"`

	VisibleGroup      catalog.Group `json:"visible_group"`
	HiddenGroup       catalog.Group `json:"hidden_group"`
	SubtypeVisible    bool          `json:"subtype_visible"`
	RequiredFields    []string      `json:"required_fields"`
	NotRequiredFields []string      `json:"not_required_fields"`
	PaymentAmount     int           `json:"payment_amount"`
	PaymentAmountText string        `json:"payment_amount_text"`
	SubmitEnabled     bool          `json:"submit_enabled"`
	Loading           bool          `json:"loading"`
	LoadingMessage    string        `json:"loading_message,omitempty"`
	ErrorVisible      bool          `json:"error_visible"`
	ErrorMessage      string        `json:"error_message,omitempty"`
	Notice            string        `json:"notice,omitempty"`
	RedirectURL       string        `json:"redirect_url,omitempty"`
	SubmissionState   string        `json:"submission_state"`
	ResetCount        int           `json:"reset_count"`
}

func (v View) clone() View {
	v.RequiredFields = append([]string(nil), v.RequiredFields...)
	v.NotRequiredFields = append([]string(nil), v.NotRequiredFields...)
	return v
}
