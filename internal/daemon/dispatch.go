package daemon

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
)

// ErrDispatchFailed is returned when the confirm keystroke could not be
// delivered. The loop logs it and moves to the next instance.
var ErrDispatchFailed = errors.New("dispatch failed")

// Sender delivers a confirm keystroke to one pane.
type Sender interface {
	SendEnter(ctx context.Context, target string) error
}

// Dispatcher sends the confirmation keystroke, rate limited so a
// misbehaving matcher can never flood keystrokes into user terminals.
// It must only be reached through the config permission check.
type Dispatcher struct {
	sender  Sender
	limiter *rate.Limiter
}

// defaultRateLimit allows a small burst then one response per second
// overall. Normal operation sends far less: one keystroke per prompt.
func defaultRateLimit() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(1), 5)
}

// NewDispatcher returns a Dispatcher with the default rate limit.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender, limiter: defaultRateLimit()}
}

// Respond sends a single Enter keystroke to the target pane. One attempt,
// no internal retry; any failure is wrapped in ErrDispatchFailed.
func (d *Dispatcher) Respond(ctx context.Context, target string) error {
	if !d.limiter.Allow() {
		return fmt.Errorf("%w: rate limit exceeded for %s", ErrDispatchFailed, target)
	}
	if err := d.sender.SendEnter(ctx, target); err != nil {
		return fmt.Errorf("%w: %v", ErrDispatchFailed, err)
	}
	return nil
}
