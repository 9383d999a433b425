package form

import (
	"errors"
	"log/slog"
	"sync"

	"go-report-checkout/catalog"
)

var (
	ErrSubmissionInProgress = errors.New("a submission is already in progress")
	ErrSubtypeNotApplicable = errors.New("report subtype can only be chosen for individual reports")
)

// Controller keeps the visible form in sync with the category and subtype
// selection. All methods are safe for concurrent use.
type Controller struct {
	mu       sync.Mutex
	catalog  *catalog.Catalog
	view     View
	onUpdate func(View)
}

// NewController returns a controller in its initial state: individual, basic.
func NewController(c *catalog.Catalog) *Controller {
	ctl := &Controller{catalog: c}
	ctl.view = View{SubmitEnabled: true, SubmissionState: "idle"}
	ctl.applySelection(catalog.Individual, catalog.Basic)
	return ctl
}

// SetOnUpdate registers a callback that receives a snapshot after every change.
// The callback must not call back into the controller.
func (c *Controller) SetOnUpdate(callback func(View)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onUpdate = callback
}

// View returns a snapshot of the current form state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.view.clone()
}

// Catalog returns the price table the controller renders from.
func (c *Controller) Catalog() *catalog.Catalog { return c.catalog }

// SelectCategory shows the category's field group and hides the other one.
func (c *Controller) SelectCategory(category catalog.Category) {
	c.update(func(v *View) {
		c.applySelection(category, v.Subtype)
	})
}

// SelectIndividualSubtype changes the tier of an individual report.
func (c *Controller) SelectIndividualSubtype(subtype catalog.Subtype) error {
	var err error
	c.update(func(v *View) {
		if v.Category != catalog.Individual {
			err = ErrSubtypeNotApplicable
			return
		}
		c.applySelection(v.Category, subtype)
	})
	return err
}

// Reset restores the initial selection and clears any message.
func (c *Controller) Reset() {
	c.update(func(v *View) {
		v.ErrorVisible = false
		v.ErrorMessage = ""
		v.Notice = ""
		v.ResetCount++
		c.applySelection(catalog.Individual, catalog.Basic)
	})
}

// BeginSubmit disables the submit control, shows the loading indicator and
// clears the error region. The returned release func undoes the first two and
// must be called exactly once when the submission ends.
func (c *Controller) BeginSubmit() (release func(), err error) {
	c.update(func(v *View) {
		if !v.SubmitEnabled {
			err = ErrSubmissionInProgress
			return
		}
		v.SubmitEnabled = false
		v.Loading = true
		v.LoadingMessage = DefaultLoadingMessage
		v.ErrorVisible = false
		v.ErrorMessage = ""
		v.Notice = ""
		v.RedirectURL = ""
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.update(func(v *View) {
				v.SubmitEnabled = true
				v.Loading = false
				v.LoadingMessage = ""
			})
		})
	}, nil
}

// ShowError puts msg in the visible error region.
func (c *Controller) ShowError(msg string) {
	c.update(func(v *View) {
		v.ErrorMessage = msg
		v.ErrorVisible = true
	})
}

func (c *Controller) ShowNotice(msg string) {
	c.update(func(v *View) { v.Notice = msg })
}

func (c *Controller) SetLoadingMessage(msg string) {
	c.update(func(v *View) { v.LoadingMessage = msg })
}

// Navigate points the browser at url.
func (c *Controller) Navigate(url string) {
	c.update(func(v *View) { v.RedirectURL = url })
}

// SetState records the orchestrator's current step.
func (c *Controller) SetState(state string) {
	c.update(func(v *View) { v.SubmissionState = state })
}

// applySelection must be called with c.mu held.
func (c *Controller) applySelection(category catalog.Category, subtype catalog.Subtype) {
	v := &c.view
	if category == "" {
		category = catalog.Individual
	}
	if subtype == "" {
		subtype = catalog.Basic
	}

	req := catalog.RequirementsFor(category)
	v.Category = category
	v.Subtype = catalog.EffectiveSubtype(category, subtype)
	v.VisibleGroup = req.Group
	v.SubtypeVisible = category == catalog.Individual
	v.RequiredFields = req.All()
	v.NotRequiredFields = catalog.InactiveFields(category)
	v.HiddenGroup = ""
	for _, other := range catalog.Categories() {
		if other != category {
			v.HiddenGroup = catalog.RequirementsFor(other).Group
		}
	}

	amount, err := c.catalog.Price(v.Category, v.Subtype)
	if err != nil {
		slog.Error("price lookup failed", "category", v.Category, "subtype", v.Subtype, "error", err)
		amount = 0
	}
	v.PaymentAmount = amount
	v.PaymentAmountText = c.catalog.DisplayPrice(amount)
	slog.Debug("form selection applied", "category", v.Category, "subtype", v.Subtype, "amount", amount)
}

// update runs the callback under the lock so snapshots are delivered in order.
func (c *Controller) update(mutate func(v *View)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	mutate(&c.view)
	if c.onUpdate != nil {
		c.onUpdate(c.view.clone())
	}
}
