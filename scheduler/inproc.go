package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

// InProc runs scheduled units of work on goroutines inside the current
// process. Failed handlers are retried with exponential backoff, giving the
// same at-least-once delivery a production transport would. Wait drains all
// outstanding work, including work enqueued transitively by handlers.
type InProc struct {
	registry *Registry
	log      *slog.Logger

	group       errgroup.Group
	baseBackoff time.Duration
	maxRetries  uint64
}

// InProcOption configures an InProc scheduler.
type InProcOption func(*InProc)

// WithLogger sets the logger used for handler failures.
func WithLogger(log *slog.Logger) InProcOption {
	return func(s *InProc) { s.log = log }
}

// WithRetry configures the retry policy applied to failing handlers.
func WithRetry(base time.Duration, maxRetries uint64) InProcOption {
	return func(s *InProc) {
		s.baseBackoff = base
		s.maxRetries = maxRetries
	}
}

// NewInProc returns an in-process scheduler dispatching into the registry.
func NewInProc(registry *Registry, opts ...InProcOption) *InProc {
	s := &InProc{
		registry:    registry,
		log:         slog.Default(),
		baseBackoff: 10 * time.Millisecond,
		maxRetries:  5,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunAfter enqueues the named unit of work. The handler runs on its own
// goroutine after the delay, detached from the caller's context: scheduled
// work outlives the request that scheduled it.
func (s *InProc) RunAfter(ctx context.Context, delay time.Duration, name string, args []byte) error {
	fn, err := s.registry.Lookup(name)
	if err != nil {
		return err
	}
	s.group.Go(func() error {
		if delay > 0 {
			time.Sleep(delay)
		}
		backoff := retry.WithMaxRetries(s.maxRetries, retry.NewExponential(s.baseBackoff))
		err := retry.Do(context.Background(), backoff, func(ctx context.Context) error {
			if err := fn(ctx, args); err != nil {
				return retry.RetryableError(err)
			}
			return nil
		})
		if err != nil {
			s.log.Error("scheduled work failed after retries", "name", name, "err", err)
		}
		// Failures are logged, not propagated: there is no caller waiting.
		return nil
	})
	return nil
}

// Wait blocks until all scheduled work, including work scheduled by
// handlers mid-flight, has finished.
func (s *InProc) Wait() {
	s.group.Wait()
}
