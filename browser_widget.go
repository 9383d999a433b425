package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go-report-checkout/payment"
)

var (
	ErrNoPendingCheckout = errors.New("no checkout is waiting for a payment result")
	ErrOrderMismatch     = errors.New("payment result belongs to another order")
)

// BrowserWidget stands in for the hosted checkout script of one form. Open
// hands the options to the browser; the browser relays the script's success or
// failure callback back through Complete or Fail.
type BrowserWidget struct {
	mu      sync.Mutex
	options payment.CheckoutOptions
	handle  *payment.Handle
	opened  chan payment.CheckoutOptions
}

func NewBrowserWidget() *BrowserWidget {
	return &BrowserWidget{opened: make(chan payment.CheckoutOptions, 1)}
}

func (w *BrowserWidget) Open(_ context.Context, options payment.CheckoutOptions) (*payment.Handle, error) {
	if options.OrderID == "" || options.Key == "" {
		return nil, errors.New("checkout needs an order id and a key")
	}

	handle := payment.NewHandle(options.OrderID)

	w.mu.Lock()
	if w.handle != nil {
		// The previous checkout can no longer complete.
		w.handle.Fail(payment.Failure{Description: "superseded by a new checkout"})
	}
	w.options = options
	w.handle = handle
	w.mu.Unlock()

	select {
	case w.opened <- options:
	default:
		slog.Warn("Checkout opened while a previous one was not picked up", "order_id", options.OrderID)
	}
	return handle, nil
}

// Opened delivers the options of every checkout as it is opened.
func (w *BrowserWidget) Opened() <-chan payment.CheckoutOptions { return w.opened }

// Pending returns the checkout the browser should be showing, if any.
func (w *BrowserWidget) Pending() (payment.CheckoutOptions, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handle == nil {
		return payment.CheckoutOptions{}, false
	}
	select {
	case <-w.handle.Done():
		return payment.CheckoutOptions{}, false
	default:
		return w.options, true
	}
}

// Complete relays the success callback.
func (w *BrowserWidget) Complete(result payment.Result) error {
	if err := result.Validate(); err != nil {
		return err
	}

	handle, err := w.take()
	if err != nil {
		return err
	}
	if result.OrderID != handle.OrderID {
		w.restore(handle)
		return fmt.Errorf("%w: got %s, want %s", ErrOrderMismatch, result.OrderID, handle.OrderID)
	}
	if !handle.Succeed(result) {
		return payment.ErrAlreadyResolved
	}
	return nil
}

// Fail relays the payment_failed callback.
func (w *BrowserWidget) Fail(failure payment.Failure) error {
	handle, err := w.take()
	if err != nil {
		return err
	}
	if !handle.Fail(failure) {
		return payment.ErrAlreadyResolved
	}
	return nil
}

func (w *BrowserWidget) take() (*payment.Handle, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handle == nil {
		return nil, ErrNoPendingCheckout
	}
	handle := w.handle
	w.handle = nil
	return handle, nil
}

func (w *BrowserWidget) restore(handle *payment.Handle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.handle == nil {
		w.handle = handle
	}
}
