package ocr

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"ocrgate/internal/logger"
)

// Chain is the fallback orchestrator. It holds an ordered list of backends
// and is safe for concurrent use as long as its backends are.
type Chain struct {
	backends []Backend
	fallback bool
	log      zerolog.Logger
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithFallback enables or disables short-circuiting. When disabled every
// backend runs regardless of earlier results.
func WithFallback(enabled bool) ChainOption {
	return func(c *Chain) { c.fallback = enabled }
}

// WithLogger sets the logger used when no request-scoped logger is present
// in the context.
func WithLogger(log zerolog.Logger) ChainOption {
	return func(c *Chain) { c.log = log }
}

// NewChain builds a Chain over backends in priority order. Fallback is
// enabled by default.
func NewChain(backends []Backend, opts ...ChainOption) *Chain {
	c := &Chain{
		backends: append([]Backend(nil), backends...),
		fallback: true,
		log:      logger.WithComponent("chain"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Names returns the configured backend names in order.
func (c *Chain) Names() []string {
	names := make([]string, len(c.backends))
	for i, b := range c.backends {
		names[i] = b.Name()
	}
	return names
}

// Report is the ordered set of outcomes for one image.
type Report struct {
	Outcomes []Outcome
}

// Wire returns one entry per configured backend holding its text or sentinel.
func (r Report) Wire() map[string]string {
	out := make(map[string]string, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out[o.Backend] = o.Wire()
	}
	return out
}

// Text returns the first recognized text, or SentinelIllegible.
func (r Report) Text() string {
	for _, o := range r.Outcomes {
		if o.Usable() {
			return o.Text
		}
	}
	return SentinelIllegible
}

// Run executes the backends against img. The first backend always runs;
// with fallback enabled, each later backend runs only while every earlier
// one came back ILLEGIBLE.
func (c *Chain) Run(ctx context.Context, img *Image) Report {
	log := c.logger(ctx)
	report := Report{Outcomes: make([]Outcome, 0, len(c.backends))}
	satisfied := false

	for _, b := range c.backends {
		name := b.Name()

		if c.fallback && satisfied {
			o := Skipped()
			o.Backend = name
			report.Outcomes = append(report.Outcomes, o)
			log.Debug().Str("backend", name).Msg("Backend not needed")
			continue
		}

		if err := ctx.Err(); err != nil {
			o := Failed(WrapOCRError(name, "Run", err, "request ended before backend ran"))
			o.Backend = name
			report.Outcomes = append(report.Outcomes, o)
			continue
		}

		o := c.invoke(ctx, b, img)
		o.Backend = name
		report.Outcomes = append(report.Outcomes, o)

		event := log.Debug()
		if o.Status == StatusFailed {
			event = log.Warn().Err(o.Err)
		}
		event.Str("backend", name).
			Str("status", o.Status.String()).
			Dur("duration", o.Duration).
			Int("text_length", len(o.Text)).
			Msg("Backend finished")

		if o.Usable() {
			satisfied = true
		}
	}

	log.Info().
		Strs("backends", c.Names()).
		Bool("recognized", satisfied).
		Msg("OCR chain completed")

	return report
}

// invoke runs one backend, converting a panic into a failed outcome.
func (c *Chain) invoke(ctx context.Context, b Backend, img *Image) (o Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			o = Failed(NewOCRError(b.Name(), "Recognize", ErrEngineFailed, fmt.Sprintf("panic: %v", r)))
		}
		o.Duration = time.Since(start)
	}()
	return b.Recognize(ctx, img)
}

func (c *Chain) logger(ctx context.Context) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return c.log
}
