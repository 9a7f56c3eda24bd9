// Package mock provides a scriptable Generator for tests and local runs.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/infergate"
)

// Generator is a mock generation upstream.
type Generator struct {
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	panicMsg     string
	responseFunc func(prompt, model string) (string, error)

	mu     sync.Mutex
	models []string // models seen, in call order
}

var _ infergate.Generator = (*Generator)(nil)

// Option configures a mock Generator.
type Option func(*Generator)

// New creates a mock generator with the given options.
func New(opts ...Option) *Generator {
	g := &Generator{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(g *Generator) { g.latency = d }
}

// WithFailAfter makes the generator fail after N successful calls.
func WithFailAfter(n int) Option {
	return func(g *Generator) { g.failAfter = n }
}

// WithError makes the generator always return this error.
func WithError(err error) Option {
	return func(g *Generator) { g.staticErr = err }
}

// WithPanic makes the generator panic with msg on every call.
func WithPanic(msg string) Option {
	return func(g *Generator) { g.panicMsg = msg }
}

// WithResponseFunc sets a custom response function.
func WithResponseFunc(fn func(prompt, model string) (string, error)) Option {
	return func(g *Generator) { g.responseFunc = fn }
}

// Generate returns "mock(<model>): <prompt>" unless configured otherwise.
func (g *Generator) Generate(ctx context.Context, prompt, model string) (string, error) {
	if g.latency > 0 {
		select {
		case <-time.After(g.latency):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %w", infergate.ErrUpstreamUnavailable, ctx.Err())
		}
	}

	count := g.callCount.Add(1)
	g.mu.Lock()
	g.models = append(g.models, model)
	g.mu.Unlock()

	if g.panicMsg != "" {
		panic(g.panicMsg)
	}
	if g.staticErr != nil {
		return "", g.staticErr
	}
	if g.failAfter > 0 && int(count) > g.failAfter {
		return "", infergate.ErrUpstreamUnavailable
	}
	if g.responseFunc != nil {
		return g.responseFunc(prompt, model)
	}
	return fmt.Sprintf("mock(%s): %s", model, prompt), nil
}

// CallCount returns the number of Generate calls.
func (g *Generator) CallCount() int64 {
	return g.callCount.Load()
}

// Models returns the models requested so far, in call order.
func (g *Generator) Models() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.models...)
}
