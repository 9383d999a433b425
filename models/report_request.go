package models

// PersonalDetails of one person on the report.
type PersonalDetails struct {
	Name   string `json:"name" validate:"required"`
	Dob    string `json:"dob" validate:"required,datetime=2006-01-02"`
	Gender string `json:"gender" validate:"required"`
}

// PaymentCredentials are appended once the widget reports success.
type PaymentCredentials struct {
	RazorpayPaymentID string `json:"razorpay_payment_id,omitempty"`
	RazorpayOrderID   string `json:"razorpay_order_id,omitempty"`
	RazorpaySignature string `json:"razorpay_signature,omitempty"`
}

// ReportRequest is the body of /api/generate-report. Exactly one of
// IndividualReportRequest and CoupleReportRequest is sent per submission.
type ReportRequest interface {
	ReportType() string
	DisplayName() string
	AttachPayment(PaymentCredentials)
}

type IndividualReportRequest struct {
	Type                 string          `json:"report_type"`
	Subtype              string          `json:"report_subtype,omitempty"`
	Language             string          `json:"language"`
	PersonalDetails      PersonalDetails `json:"personal_details"`
	LeftPalmImageBase64  string          `json:"left_palm_image_base64"`
	RightPalmImageBase64 string          `json:"right_palm_image_base64"`
	PaymentCredentials
}

func (r *IndividualReportRequest) ReportType() string { return r.Type }

func (r *IndividualReportRequest) DisplayName() string { return r.PersonalDetails.Name }

func (r *IndividualReportRequest) AttachPayment(p PaymentCredentials) { r.PaymentCredentials = p }

type CoupleReportRequest struct {
	Type                        string          `json:"report_type"`
	Language                    string          `json:"language"`
	Person1Details              PersonalDetails `json:"person1_details"`
	Person1LeftPalmImageBase64  string          `json:"person1_left_palm_image_base64"`
	Person1RightPalmImageBase64 string          `json:"person1_right_palm_image_base64"`
	Person2Details              PersonalDetails `json:"person2_details"`
	Person2LeftPalmImageBase64  string          `json:"person2_left_palm_image_base64"`
	Person2RightPalmImageBase64 string          `json:"person2_right_palm_image_base64"`
	PaymentCredentials
}

func (r *CoupleReportRequest) ReportType() string { return r.Type }

func (r *CoupleReportRequest) DisplayName() string {
	return r.Person1Details.Name + " & " + r.Person2Details.Name
}

func (r *CoupleReportRequest) AttachPayment(p PaymentCredentials) { r.PaymentCredentials = p }
