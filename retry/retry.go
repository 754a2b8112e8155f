package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Options configure Do.
type Options struct {
	MaxRetries  int
	BaseWait    time.Duration
	MaxWait     time.Duration
	BackoffRate float64
	Jitter      bool
	OnRetry     func(attempt int, err error, wait time.Duration)
}

// Option mutates Options.
type Option func(*Options)

func WithMaxRetries(n int) Option {
	return func(o *Options) { o.MaxRetries = n }
}

func WithBaseWait(d time.Duration) Option {
	return func(o *Options) { o.BaseWait = d }
}

func WithMaxWait(d time.Duration) Option {
	return func(o *Options) { o.MaxWait = d }
}

func WithBackoffRate(rate float64) Option {
	return func(o *Options) { o.BackoffRate = rate }
}

// WithJitter randomizes each wait by up to 25% in either direction.
func WithJitter(enabled bool) Option {
	return func(o *Options) { o.Jitter = enabled }
}

// WithOnRetry registers a function called before each retry.
func WithOnRetry(fn func(attempt int, err error, wait time.Duration)) Option {
	return func(o *Options) { o.OnRetry = fn }
}

// Do calls fn until it succeeds, returns an error that is not recoverable,
// or the retry budget is spent. The last error is returned as-is.
func Do(ctx context.Context, fn func() error, opts ...Option) error {
	o := Options{
		BaseWait:    time.Second,
		MaxWait:     30 * time.Second,
		BackoffRate: 2.0,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.BackoffRate < 1.0 {
		o.BackoffRate = 1.0
	}

	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt >= o.MaxRetries || !IsRecoverable(err) {
			return err
		}
		wait := o.delay(attempt + 1)
		if o.OnRetry != nil {
			o.OnRetry(attempt+1, err, wait)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (o Options) delay(attempt int) time.Duration {
	wait := float64(o.BaseWait) * math.Pow(o.BackoffRate, float64(attempt-1))
	if o.MaxWait > 0 && wait > float64(o.MaxWait) {
		wait = float64(o.MaxWait)
	}
	if o.Jitter {
		wait += (rand.Float64()*2 - 1) * wait * 0.25
	}
	if wait < 0 {
		wait = 0
	}
	return time.Duration(wait)
}
