package scheduler_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/get-convex/convex-ents/scheduler"
)

func TestRegistry(t *testing.T) {
	t.Parallel()

	r := scheduler.NewRegistry()
	r.Register("work", func(context.Context, []byte) error { return nil })

	fn, err := r.Lookup("work")
	require.NoError(t, err)
	assert.NotNil(t, fn)

	_, err = r.Lookup("missing")
	assert.Error(t, err)

	assert.Panics(t, func() {
		r.Register("work", func(context.Context, []byte) error { return nil })
	})
}

func TestInProcRunsHandler(t *testing.T) {
	t.Parallel()

	var got atomic.Value
	r := scheduler.NewRegistry()
	r.Register("work", func(_ context.Context, args []byte) error {
		got.Store(string(args))
		return nil
	})

	s := scheduler.NewInProc(r)
	require.NoError(t, s.RunAfter(context.Background(), 0, "work", []byte("payload")))
	s.Wait()

	assert.Equal(t, "payload", got.Load())
}

func TestInProcUnknownHandler(t *testing.T) {
	t.Parallel()

	s := scheduler.NewInProc(scheduler.NewRegistry())
	err := s.RunAfter(context.Background(), 0, "nope", nil)
	assert.Error(t, err)
}

func TestInProcChainedScheduling(t *testing.T) {
	t.Parallel()

	// A handler that re-enqueues itself three times; Wait must drain the
	// whole chain, not just the first hop.
	var runs atomic.Int64
	r := scheduler.NewRegistry()
	var s *scheduler.InProc
	r.Register("chain", func(ctx context.Context, args []byte) error {
		if runs.Add(1) < 3 {
			return s.RunAfter(ctx, 0, "chain", args)
		}
		return nil
	})
	s = scheduler.NewInProc(r)

	require.NoError(t, s.RunAfter(context.Background(), 0, "chain", nil))
	s.Wait()
	assert.Equal(t, int64(3), runs.Load())
}

func TestInProcRetries(t *testing.T) {
	t.Parallel()

	var attempts atomic.Int64
	r := scheduler.NewRegistry()
	r.Register("flaky", func(context.Context, []byte) error {
		if attempts.Add(1) < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	s := scheduler.NewInProc(r, scheduler.WithRetry(1, 5))
	require.NoError(t, s.RunAfter(context.Background(), 0, "flaky", nil))
	s.Wait()

	assert.Equal(t, int64(3), attempts.Load())
}
