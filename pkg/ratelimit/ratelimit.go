// Package ratelimit bounds request rate per caller and operation class with
// a sliding window over a pluggable store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Class string

const (
	ClassMapGeneration Class = "mapGeneration"
	ClassAPI           Class = "api"
	ClassAuth          Class = "auth"
	ClassPurchase      Class = "purchase"
)

var (
	ErrUnknownClass  = errors.New("unknown rate limit class")
	ErrInvalidRule   = errors.New("invalid rate limit rule")
	ErrStoreRequired = errors.New("rate limit store is required")
)

type Rule struct {
	Limit  int
	Window time.Duration
}

type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetAt.After(now) {
		return 0
	}
	return r.ResetAt.Sub(now)
}

// WindowState is the window for one key after a hit was attempted.
// Oldest is the earliest hit still inside the window; the next slot frees
// when it leaves.
type WindowState struct {
	Allowed bool
	Count   int
	Oldest  time.Time
}

// Store records a hit for key when fewer than limit hits fall inside the
// window ending at now.
type Store interface {
	Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (WindowState, error)
}

// Checker is what request handlers depend on.
type Checker interface {
	Limit(ctx context.Context, class Class, identifier string) (*Result, error)
}

type Limiter struct {
	store Store
	rules map[Class]Rule
	now   func() time.Time
}

const keyPrefix = "ratelimit"

type Option func(*Limiter)

func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

func New(store Store, rules map[Class]Rule, opts ...Option) (*Limiter, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	for class, rule := range rules {
		if rule.Limit <= 0 || rule.Window <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidRule, class)
		}
	}

	l := &Limiter{
		store: store,
		rules: rules,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

func (l *Limiter) Limit(ctx context.Context, class Class, identifier string) (*Result, error) {
	rule, ok := l.rules[class]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}

	now := l.now()
	state, err := l.store.Hit(ctx, l.key(class, identifier), now, rule.Window, rule.Limit)
	if err != nil {
		return nil, err
	}

	resetAt := now.Add(rule.Window)
	if !state.Oldest.IsZero() {
		resetAt = state.Oldest.Add(rule.Window)
	}

	return &Result{
		Allowed:   state.Allowed,
		Limit:     rule.Limit,
		Remaining: max(0, rule.Limit-state.Count),
		ResetAt:   resetAt,
	}, nil
}

func (l *Limiter) key(class Class, identifier string) string {
	return keyPrefix + ":" + string(class) + ":" + identifier
}
