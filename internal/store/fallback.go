package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"hookgate/internal/logger"
	apperrors "hookgate/pkg/errors"
	"hookgate/pkg/metrics"
	"hookgate/pkg/retry"
)

type Options struct {
	// OperationTimeout bounds every call to the durable backend.
	OperationTimeout time.Duration
	RecheckInitial   time.Duration
	RecheckMax       time.Duration
}

// FallbackStore routes every call to the durable backend while it is healthy and to the
// memory backend otherwise. Callers never see durable failures. Keys written to memory
// during an outage are not copied back when the durable backend recovers.
type FallbackStore struct {
	durable Backend
	memory  *MemoryBackend
	opts    Options
	logger  logger.Logger

	mode atomic.Int32

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFallbackStore wraps durable and memory. A nil durable backend runs on memory only.
func NewFallbackStore(durable Backend, memory *MemoryBackend, opts Options, log logger.Logger) *FallbackStore {
	ctx, cancel := context.WithCancel(context.Background())
	s := &FallbackStore{
		durable: durable,
		memory:  memory,
		opts:    opts,
		logger:  log,
		ctx:     ctx,
		cancel:  cancel,
	}

	if durable == nil {
		s.mode.Store(int32(ModeMemory))
		metrics.StoreMode.Set(1)
		log.Warnw("No durable store configured, keys are process-local", "mode", ModeMemory.String())
	} else {
		s.mode.Store(int32(ModeDurable))
		metrics.StoreMode.Set(0)
	}
	return s
}

func (s *FallbackStore) Mode() Mode {
	return Mode(s.mode.Load())
}

func (s *FallbackStore) Get(ctx context.Context, key string) (string, bool, error) {
	type result struct {
		value string
		found bool
	}
	r, err := run(s, ctx, "get", func(ctx context.Context, b Backend) (result, error) {
		v, ok, err := b.Get(ctx, key)
		return result{v, ok}, err
	})
	return r.value, r.found, err
}

func (s *FallbackStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := run(s, ctx, "set", func(ctx context.Context, b Backend) (struct{}, error) {
		return struct{}{}, b.Set(ctx, key, value, ttl)
	})
	return err
}

func (s *FallbackStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return run(s, ctx, "setnx", func(ctx context.Context, b Backend) (bool, error) {
		return b.SetNX(ctx, key, value, ttl)
	})
}

func (s *FallbackStore) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return run(s, ctx, "increment", func(ctx context.Context, b Backend) (int64, error) {
		return b.Increment(ctx, key, ttl)
	})
}

func (s *FallbackStore) Exists(ctx context.Context, key string) (bool, error) {
	return run(s, ctx, "exists", func(ctx context.Context, b Backend) (bool, error) {
		return b.Exists(ctx, key)
	})
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	_, err := run(s, ctx, "delete", func(ctx context.Context, b Backend) (struct{}, error) {
		return struct{}{}, b.Delete(ctx, key)
	})
	return err
}

// Close stops the background re-check and the memory janitor, then closes the durable backend.
func (s *FallbackStore) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.cancel()
	s.mu.Unlock()

	s.wg.Wait()
	_ = s.memory.Close()
	if s.durable != nil {
		return s.durable.Close()
	}
	return nil
}

// run executes op against the backend selected by the last known health.
func run[T any](s *FallbackStore, ctx context.Context, op string, fn func(context.Context, Backend) (T, error)) (T, error) {
	if s.Mode() == ModeDurable {
		opCtx, cancel := context.WithTimeout(ctx, s.opts.OperationTimeout)
		v, err := fn(opCtx, s.durable)
		cancel()
		metrics.IncStoreOperation(s.durable.Name(), op, err)

		if err == nil || errors.Is(err, ErrNotInteger) {
			return v, err
		}
		// Caller cancellation is not a backend failure.
		if ctx.Err() == nil {
			s.degrade(op, err)
		}
	}

	if s.durable != nil {
		metrics.FallbackUsageTotal.WithLabelValues("store", "memory", op).Inc()
	}
	v, err := fn(ctx, s.memory)
	metrics.IncStoreOperation(s.memory.Name(), op, err)
	return v, err
}

func (s *FallbackStore) degrade(op string, cause error) {
	if !s.mode.CompareAndSwap(int32(ModeDurable), int32(ModeFallback)) {
		return
	}
	metrics.StoreMode.Set(1)

	degraded := apperrors.ErrStoreDegraded.WithCause(cause)
	s.logger.Warnw("Durable store unavailable, switching to in-memory fallback",
		"error_code", degraded.Code,
		"operation", op,
		"backend", s.durable.Name(),
		"error", cause,
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.wg.Add(1)
	go s.recheck()
}

// recheck pings the durable backend with exponential backoff until it answers or the store closes.
func (s *FallbackStore) recheck() {
	defer s.wg.Done()

	b := backoff.WithContext(retry.ExponentialBackoff(s.opts.RecheckInitial, s.opts.RecheckMax, 2.0), s.ctx)
	ping := func() error {
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.OperationTimeout)
		defer cancel()
		return s.durable.Ping(ctx)
	}
	notify := func(err error, next time.Duration) {
		s.logger.Debugw("Durable store still unavailable", "error", err, "next_check", next.String())
	}

	// First probe after one interval.
	select {
	case <-s.ctx.Done():
		return
	case <-time.After(s.opts.RecheckInitial):
	}

	if err := backoff.RetryNotify(ping, b, notify); err != nil {
		return
	}

	s.mode.Store(int32(ModeDurable))
	metrics.StoreMode.Set(0)
	s.logger.Infow("Durable store recovered, leaving in-memory fallback", "backend", s.durable.Name())
}
