package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go-report-checkout/catalog"
	"go-report-checkout/images"
	"go-report-checkout/models"
	"go-report-checkout/payment"

	"github.com/go-playground/validator/v10"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	MsgPaymentSucceeded = "Payment successful! Generating your personalized report. This may take a few moments..."
	MsgReportReady      = "Report generated! Your download will start shortly."
)

// ReportService is the remote backend that creates orders and reports.
type ReportService interface {
	CreateOrder(ctx context.Context, amount int) (models.Order, error)
	GenerateReport(ctx context.Context, req models.ReportRequest) (models.GenerateReportResponse, error)
	DownloadLocation(path string) string
}

// Widget opens the hosted checkout and returns the handle its callbacks resolve.
type Widget interface {
	Open(ctx context.Context, options payment.CheckoutOptions) (*payment.Handle, error)
}

// Encoder turns an upload into its inline text form.
type Encoder interface {
	Encode(ctx context.Context, upload images.Upload) (string, error)
}

// FormUI is the part of the form the orchestrator drives. *form.Controller
// implements it.
type FormUI interface {
	BeginSubmit() (release func(), err error)
	SetState(state string)
	SetLoadingMessage(msg string)
	ShowError(msg string)
	ShowNotice(msg string)
	Navigate(url string)
	Reset()
}

type Config struct {
	MerchantName    string        `json:"merchant_name" mapstructure:"merchant_name"`
	NotesAddress    string        `json:"notes_address" mapstructure:"notes_address"`
	ThemeColor      string        `json:"theme_color" mapstructure:"theme_color"`
	DefaultLanguage string        `json:"default_language" mapstructure:"default_language"`
	PaymentWindow   time.Duration `json:"payment_window" mapstructure:"payment_window"`
}

func DefaultConfig() Config {
	return Config{
		MerchantName:    "AuraPalm.in",
		NotesAddress:    "AuraPalm.in Service",
		ThemeColor:      "#007bff",
		DefaultLanguage: "English",
		PaymentWindow:   15 * time.Minute,
	}
}

// Result describes a completed submission.
type Result struct {
	Order       models.Order
	Payment     payment.Result
	DownloadURL string
}

// Orchestrator runs the submit sequence. It holds no per-submission state and
// can serve any number of forms; each form allows one submission at a time.
type Orchestrator struct {
	catalog  *catalog.Catalog
	service  ReportService
	widget   Widget
	encoder  Encoder
	config   Config
	validate *validator.Validate
}

func NewOrchestrator(c *catalog.Catalog, service ReportService, widget Widget, encoder Encoder, config Config) *Orchestrator {
	return &Orchestrator{
		catalog:  c,
		service:  service,
		widget:   widget,
		encoder:  encoder,
		config:   config,
		validate: validator.New(),
	}
}

// Submit validates the form, encodes the uploads, creates an order, waits for
// the payment widget and requests the report. The form's submit control is
// held for the whole sequence and released on every exit path. Failures are
// shown in the form's error region and returned.
func (o *Orchestrator) Submit(ctx context.Context, ui FormUI, sub Submission) (result *Result, err error) {
	release, err := ui.BeginSubmit()
	if err != nil {
		return nil, err
	}
	defer release()

	defer func() {
		if err != nil {
			slog.Warn("Submission failed", "category", sub.Category, "error", err)
			ui.SetState(string(StateFailed))
			ui.ShowError(UserMessage(err))
		}
	}()

	ui.SetState(string(StateValidating))
	amount, err := o.validateSubmission(sub)
	if err != nil {
		return nil, err
	}

	ui.SetState(string(StateEncodingFiles))
	payload, err := o.buildPayload(ctx, sub)
	if err != nil {
		return nil, err
	}

	ui.SetState(string(StateCreatingOrder))
	slog.Info("Creating order", "category", sub.Category, "amount", amount)
	order, err := o.service.CreateOrder(ctx, amount)
	if err != nil {
		return nil, newError(KindOrder, backendMessage(err, MsgOrderFallback), err)
	}
	slog.Debug("Order created", "order_id", order.OrderID, "amount", order.Amount, "currency", order.Currency)

	ui.SetState(string(StateAwaitingPayment))
	paid, err := o.awaitPayment(ctx, sub.Category, order, payload)
	if err != nil {
		return nil, err
	}
	slog.Info("Payment succeeded", "order_id", paid.OrderID, "payment_id", paid.PaymentID)
	ui.SetLoadingMessage(MsgPaymentSucceeded)
	payload.AttachPayment(models.PaymentCredentials{
		RazorpayPaymentID: paid.PaymentID,
		RazorpayOrderID:   paid.OrderID,
		RazorpaySignature: paid.Signature,
	})

	ui.SetState(string(StateGeneratingReport))
	generated, err := o.service.GenerateReport(ctx, payload)
	if err != nil {
		return nil, newError(KindGeneration, backendMessage(err, MsgGenerationFallback), err)
	}

	ui.SetState(string(StateRedirecting))
	if generated.DownloadURL == "" {
		return nil, newError(KindMissingDownload, MsgMissingDownload, nil)
	}
	location := o.service.DownloadLocation(generated.DownloadURL)
	ui.Navigate(location)
	ui.Reset()
	ui.ShowNotice(MsgReportReady)
	// Completed is only published once the form accepts input again.
	release()
	ui.SetState(string(StateCompleted))
	slog.Info("Report ready", "order_id", order.OrderID, "download_url", location)

	return &Result{Order: order, Payment: paid, DownloadURL: location}, nil
}

// validateSubmission checks the active group's fields and returns the price.
// It never touches the network.
func (o *Orchestrator) validateSubmission(sub Submission) (int, error) {
	req := catalog.RequirementsFor(sub.Category)
	if req.Group == "" {
		return 0, newError(KindValidation, "Please choose a report type.", nil)
	}

	for i, person := range req.Persons {
		details := o.details(sub, person)
		if err := o.validate.Struct(details); err != nil {
			return 0, newError(KindValidation, fieldMessage(err, sub.Category, i), err)
		}
	}

	for _, field := range req.UploadFields() {
		if sub.file(field) == nil {
			msg := MsgMissingIndividualImages
			if sub.Category == catalog.Couple {
				msg = MsgMissingCoupleImages
			}
			return 0, newError(KindValidation, msg, fmt.Errorf("missing upload %s", field))
		}
	}

	amount, err := o.catalog.Price(sub.Category, sub.Subtype)
	if err != nil {
		return 0, newError(KindValidation, "Please choose a report type.", err)
	}
	return amount, nil
}

func (o *Orchestrator) details(sub Submission, fields catalog.PersonFields) models.PersonalDetails {
	return models.PersonalDetails{
		Name:   strings.TrimSpace(sub.value(fields.Name)),
		Dob:    strings.TrimSpace(sub.value(fields.Dob)),
		Gender: strings.TrimSpace(sub.value(fields.Gender)),
	}
}

var fieldLabels = map[string]string{
	"Name":   "full name",
	"Dob":    "date of birth",
	"Gender": "gender",
}

func fieldMessage(err error, category catalog.Category, person int) string {
	label := "details"
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if l, ok := fieldLabels[verrs[0].Field()]; ok {
			label = l
		}
	}
	if category == catalog.Couple {
		return fmt.Sprintf("Please enter a valid %s for partner %d.", label, person+1)
	}
	return fmt.Sprintf("Please enter a valid %s.", label)
}

func (o *Orchestrator) encode(ctx context.Context, sub Submission, field string) (string, error) {
	upload := sub.file(field)
	encoded, err := o.encoder.Encode(ctx, upload)
	if err != nil {
		return "", newError(KindEncoding,
			fmt.Sprintf("Could not read the file %q. Please choose it again.", upload.Filename()), err)
	}
	return encoded, nil
}

// buildPayload encodes the uploads one at a time, in form order.
func (o *Orchestrator) buildPayload(ctx context.Context, sub Submission) (models.ReportRequest, error) {
	lang := sub.Language
	if lang == "" {
		lang = o.config.DefaultLanguage
	}
	req := catalog.RequirementsFor(sub.Category)

	encoded := make(map[string]string, len(req.UploadFields()))
	for _, field := range req.UploadFields() {
		data, err := o.encode(ctx, sub, field)
		if err != nil {
			return nil, err
		}
		encoded[field] = data
	}

	p := req.Persons
	switch sub.Category {
	case catalog.Individual:
		return &models.IndividualReportRequest{
			Type:                 string(catalog.Individual),
			Subtype:              string(catalog.EffectiveSubtype(sub.Category, sub.Subtype)),
			Language:             lang,
			PersonalDetails:      o.details(sub, p[0]),
			LeftPalmImageBase64:  encoded[p[0].LeftPalm],
			RightPalmImageBase64: encoded[p[0].RightPalm],
		}, nil
	case catalog.Couple:
		return &models.CoupleReportRequest{
			Type:                        string(catalog.Couple),
			Language:                    lang,
			Person1Details:              o.details(sub, p[0]),
			Person1LeftPalmImageBase64:  encoded[p[0].LeftPalm],
			Person1RightPalmImageBase64: encoded[p[0].RightPalm],
			Person2Details:              o.details(sub, p[1]),
			Person2LeftPalmImageBase64:  encoded[p[1].LeftPalm],
			Person2RightPalmImageBase64: encoded[p[1].RightPalm],
		}, nil
	}
	return nil, newError(KindValidation, "Please choose a report type.", nil)
}

func (o *Orchestrator) checkoutOptions(category catalog.Category, order models.Order, payload models.ReportRequest) payment.CheckoutOptions {
	return payment.CheckoutOptions{
		Key:         order.KeyID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Name:        o.config.MerchantName,
		Description: cases.Title(language.English).String(string(category)) + " Report",
		OrderID:     order.OrderID,
		Prefill:     payment.Prefill{Name: payload.DisplayName()},
		Notes:       payment.Notes{Address: o.config.NotesAddress},
		Theme:       payment.Theme{Color: o.config.ThemeColor},
	}
}

// awaitPayment opens the widget and blocks until one of its callbacks fires
// or the payment window closes.
func (o *Orchestrator) awaitPayment(ctx context.Context, category catalog.Category, order models.Order, payload models.ReportRequest) (payment.Result, error) {
	options := o.checkoutOptions(category, order, payload)
	handle, err := o.widget.Open(ctx, options)
	if err != nil {
		return payment.Result{}, newError(KindPayment, "Payment failed: could not open checkout.", err)
	}
	slog.Debug("Checkout opened", "order_id", order.OrderID)

	waitCtx := ctx
	if o.config.PaymentWindow > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, o.config.PaymentWindow)
		defer cancel()
	}

	paid, err := handle.Wait(waitCtx)
	if err != nil && waitCtx.Err() != nil && errors.Is(err, waitCtx.Err()) {
		expired := errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil
		reason, msg := "checkout abandoned", "Payment failed: checkout was abandoned."
		if expired {
			reason, msg = "payment window expired", "Payment failed: the payment window expired."
		}
		// Late callbacks must not resurrect the submission.
		if handle.Fail(payment.Failure{Description: reason}) {
			return payment.Result{}, newError(KindPayment, msg, err)
		}
		// A callback resolved the handle first and the browser was told so.
		paid, err = handle.Wait(context.Background())
	}
	if err == nil {
		return paid, nil
	}

	var failed *payment.FailedError
	if errors.As(err, &failed) {
		desc := failed.Failure.Description
		if desc == "" {
			desc = MsgPaymentUnknown
		}
		return payment.Result{}, newError(KindPayment, "Payment failed: "+desc, err)
	}
	return payment.Result{}, newError(KindPayment, "Payment failed: checkout was abandoned.", err)
}
