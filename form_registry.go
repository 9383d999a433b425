package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go-report-checkout/catalog"
	"go-report-checkout/checkout"
	"go-report-checkout/form"
	"go-report-checkout/payment"

	"github.com/google/uuid"
)

const formReaperInterval = time.Minute

var (
	ErrFormNotFound = errors.New("form not found")
	ErrFormBusy     = errors.New("form has a submission in flight")
)

// FormInstance is the server side of one open checkout form.
type FormInstance struct {
	Id         string
	Created    time.Time
	Controller *form.Controller
	Widget     *BrowserWidget

	mu  sync.Mutex
	run *submissionRun
}

type submissionRun struct {
	done   chan struct{}
	result *checkout.Result
	err    error
}

// startRun records a new submission unless one is still running.
func (f *FormInstance) startRun() (*submissionRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run != nil {
		select {
		case <-f.run.done:
		default:
			return nil, ErrFormBusy
		}
	}
	f.run = &submissionRun{done: make(chan struct{})}
	return f.run, nil
}

func (f *FormInstance) busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.run == nil {
		return false
	}
	select {
	case <-f.run.done:
		return false
	default:
		return true
	}
}

// waitRun blocks until the current submission, if any, has finished.
func (f *FormInstance) waitRun(ctx context.Context) {
	f.mu.Lock()
	run := f.run
	f.mu.Unlock()
	if run == nil {
		return
	}
	select {
	case <-run.done:
	case <-ctx.Done():
	}
}

// FormRegistry owns the live form instances. Every view change is written to
// the session storage and pushed to the form's event channel.
type FormRegistry struct {
	mu      sync.Mutex
	forms   map[string]*FormInstance
	catalog *catalog.Catalog
	storage SessionStorage
	events  *EventBroadcaster
}

func NewFormRegistry(c *catalog.Catalog, storage SessionStorage, events *EventBroadcaster) *FormRegistry {
	return &FormRegistry{
		forms:   make(map[string]*FormInstance),
		catalog: c,
		storage: storage,
		events:  events,
	}
}

func (r *FormRegistry) Create() (*FormInstance, error) {
	id := uuid.NewString()
	instance := &FormInstance{
		Id:         id,
		Created:    time.Now(),
		Controller: form.NewController(r.catalog),
		Widget:     NewBrowserWidget(),
	}

	if err := r.storage.StoreView(id, instance.Controller.View()); err != nil {
		return nil, fmt.Errorf("failed to store initial view: %w", err)
	}
	instance.Controller.SetOnUpdate(func(v form.View) {
		if err := r.storage.StoreView(id, v); err != nil {
			slog.Error("failed to store view", "form_id", id, "error", err)
		}
		if r.events != nil {
			r.events.Publish(id, v)
		}
	})

	r.mu.Lock()
	r.forms[id] = instance
	r.mu.Unlock()

	slog.Info("Form created", "form_id", id)
	return instance, nil
}

func (r *FormRegistry) Get(id string) (*FormInstance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instance, ok := r.forms[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	return instance, nil
}

// Remove closes a form that has no submission in flight.
func (r *FormRegistry) Remove(id string) error {
	r.mu.Lock()
	instance, ok := r.forms[id]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFormNotFound, id)
	}
	if instance.busy() {
		r.mu.Unlock()
		return ErrFormBusy
	}
	delete(r.forms, id)
	r.mu.Unlock()

	instance.Controller.SetOnUpdate(nil)
	if r.events != nil {
		r.events.Close(id)
	}
	if err := r.storage.RemoveView(id); err != nil {
		slog.Warn("failed to remove stored view", "form_id", id, "error", err)
	}
	slog.Info("Form removed", "form_id", id)
	return nil
}

// Sweep removes every idle form created before now minus maxAge and returns
// how many went. A form with a submission in flight is kept until it settles.
func (r *FormRegistry) Sweep(now time.Time, maxAge time.Duration) int {
	cutoff := now.Add(-maxAge)

	r.mu.Lock()
	var expired []string
	for id, instance := range r.forms {
		if instance.Created.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	removed := 0
	for _, id := range expired {
		err := r.Remove(id)
		switch {
		case err == nil:
			removed++
		case errors.Is(err, ErrFormBusy), errors.Is(err, ErrFormNotFound):
		default:
			slog.Warn("failed to remove expired form", "form_id", id, "error", err)
		}
	}
	if removed > 0 {
		slog.Info("Expired forms removed", "count", removed)
	}
	return removed
}

// RunReaper sweeps forms older than maxAge every interval until ctx ends.
func (r *FormRegistry) RunReaper(ctx context.Context, interval, maxAge time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			r.Sweep(now, maxAge)
		}
	}
}

func (r *FormRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.forms)
}

type formIdKey struct{}

func withFormId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, formIdKey{}, id)
}

// Open routes the orchestrator's checkout to the widget of the form whose id
// the context carries.
func (r *FormRegistry) Open(ctx context.Context, options payment.CheckoutOptions) (*payment.Handle, error) {
	id, _ := ctx.Value(formIdKey{}).(string)
	instance, err := r.Get(id)
	if err != nil {
		return nil, err
	}
	return instance.Widget.Open(ctx, options)
}
