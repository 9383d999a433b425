// Package payment describes the hosted checkout widget contract and the
// single-resolution handle its callbacks complete.
package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// CheckoutOptions is what the widget is opened with.
type CheckoutOptions struct {
	Key         string  `json:"key"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	OrderID     string  `json:"order_id"`
	Prefill     Prefill `json:"prefill"`
	Notes       Notes   `json:"notes"`
	Theme       Theme   `json:"theme"`
}

type Prefill struct {
	Name string `json:"name"`
}

type Notes struct {
	Address string `json:"address"`
}

type Theme struct {
	Color string `json:"color"`
}

// Result is the proof of payment the widget hands to its success handler.
type Result struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

func (r Result) Validate() error {
	if r.PaymentID == "" || r.OrderID == "" || r.Signature == "" {
		return errors.New("payment result is missing payment id, order id or signature")
	}
	return nil
}

// Failure is the error object of a payment_failed event.
type Failure struct {
	Code        string `json:"code,omitempty"`
	Description string `json:"description,omitempty"`
	Source      string `json:"source,omitempty"`
	Step        string `json:"step,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// FailedError is returned by Handle.Wait when the widget reported a failure.
type FailedError struct {
	Failure Failure
}

func (e *FailedError) Error() string {
	if e.Failure.Description == "" {
		return "payment failed"
	}
	return fmt.Sprintf("payment failed: %s", e.Failure.Description)
}

var ErrAlreadyResolved = errors.New("payment already resolved")

// Handle is resolved exactly once, by either Succeed or Fail.
type Handle struct {
	OrderID string

	once    sync.Once
	done    chan struct{}
	result  Result
	failure *Failure
}

func NewHandle(orderID string) *Handle {
	return &Handle{OrderID: orderID, done: make(chan struct{})}
}

// Succeed resolves the handle with a payment result. It reports false if the
// handle was already resolved.
func (h *Handle) Succeed(r Result) bool {
	resolved := false
	h.once.Do(func() {
		h.result = r
		resolved = true
		close(h.done)
	})
	return resolved
}

// Fail resolves the handle with a gateway failure. It reports false if the
// handle was already resolved.
func (h *Handle) Fail(f Failure) bool {
	resolved := false
	h.once.Do(func() {
		h.failure = &f
		resolved = true
		close(h.done)
	})
	return resolved
}

// Done is closed once the handle is resolved.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the handle is resolved or ctx ends. A resolution wins
// over an ended ctx. A reported failure is returned as *FailedError.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
	case <-ctx.Done():
		select {
		case <-h.done:
		default:
			return Result{}, ctx.Err()
		}
	}
	if h.failure != nil {
		return Result{}, &FailedError{Failure: *h.failure}
	}
	return h.result, nil
}
