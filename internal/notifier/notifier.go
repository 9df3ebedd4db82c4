// Package notifier delivers notification tasks asynchronously with bounded concurrency,
// retrying transient failures on a jittered exponential schedule.
package notifier

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"hookgate/internal/constants"
	"hookgate/internal/logger"
	"hookgate/pkg/circuitbreaker"
	apperrors "hookgate/pkg/errors"
	"hookgate/pkg/logging"
	"hookgate/pkg/metrics"
	"hookgate/pkg/models"
	"hookgate/pkg/retry"
)

var (
	ErrQueueFull = apperrors.ErrNotificationQueueFull
	ErrClosed    = apperrors.ErrNotificationClosed
)

// Abandon reasons reported to the sink.
const (
	ReasonPermanent   = "permanent_failure"
	ReasonMaxAttempts = "max_attempts_exceeded"
	ReasonShutdown    = "shutdown"
)

// Channel is the outbound messaging integration. Errors wrapped with retry.NewFatalError
// are permanent; any other error is retried.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, task models.NotificationTask) error
}

type Options struct {
	Workers        int
	QueueSize      int
	MaxAttempts    int
	Backoff        retry.Backoff
	RatePerSecond  float64
	Burst          int
	AttemptTimeout time.Duration
	DrainTimeout   time.Duration
	// Breaker guards the channel when set. Permanent failures do not count against it.
	Breaker *circuitbreaker.Config
}

func DefaultOptions() Options {
	return Options{
		Workers:     constants.DefaultNotifierWorkers,
		QueueSize:   constants.DefaultNotifierQueueSize,
		MaxAttempts: constants.DefaultNotifierMaxAttempts,
		Backoff: retry.Backoff{
			Base:       constants.DefaultNotifierBaseDelay,
			Max:        constants.DefaultNotifierMaxDelay,
			Multiplier: constants.DefaultNotifierMultiplier,
			Jitter:     constants.DefaultNotifierJitter,
		},
		RatePerSecond:  constants.DefaultNotifierRatePerSecond,
		Burst:          1,
		AttemptTimeout: constants.DefaultNotifierAttemptTimeout,
		DrainTimeout:   constants.DefaultNotifierDrainTimeout,
	}
}

type Notifier struct {
	channel Channel
	sink    Sink
	opts    Options
	logger  logger.Logger
	limiter *rate.Limiter
	breaker *circuitbreaker.Wrapper

	mu         sync.Mutex
	population int
	inFlight   int
	closed     bool
	started    bool
	waiting    taskHeap
	ready      chan *models.NotificationTask
	wake       chan struct{}

	// stop ends the worker and scheduler loops; attemptCtx bounds running attempts.
	stop          chan struct{}
	attemptCtx    context.Context
	cancelAttempt context.CancelFunc
	wg            sync.WaitGroup
}

func New(channel Channel, sink Sink, opts Options, log logger.Logger) *Notifier {
	def := DefaultOptions()
	if opts.Workers <= 0 {
		opts.Workers = def.Workers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = def.MaxAttempts
	}
	if opts.Backoff.Base <= 0 {
		opts.Backoff.Base = def.Backoff.Base
	}
	if opts.Backoff.Max <= 0 {
		opts.Backoff.Max = def.Backoff.Max
	}
	if opts.Backoff.Multiplier <= 0 {
		opts.Backoff.Multiplier = def.Backoff.Multiplier
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = def.AttemptTimeout
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = def.DrainTimeout
	}
	if sink == nil {
		sink = NewLogSink(log)
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	attemptCtx, cancel := context.WithCancel(context.Background())

	n := &Notifier{
		channel:       channel,
		sink:          sink,
		opts:          opts,
		logger:        log,
		limiter:       rate.NewLimiter(limit, burst),
		ready:         make(chan *models.NotificationTask, opts.QueueSize),
		wake:          make(chan struct{}, 1),
		stop:          make(chan struct{}),
		attemptCtx:    attemptCtx,
		cancelAttempt: cancel,
	}

	if opts.Breaker != nil {
		cfg := *opts.Breaker
		cfg.IsSuccessful = func(err error) bool {
			return err == nil || retry.IsPermanent(err)
		}
		cfg.OnStateChange = func(name string, from, to gobreaker.State) {
			log.Warnw("Notification channel circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		}
		n.breaker = circuitbreaker.NewWrapper(cfg)
	}

	return n
}

// Start launches the worker pool and the retry scheduler. Calling it twice is a no-op.
func (n *Notifier) Start() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started || n.closed {
		return
	}
	n.started = true

	for i := 0; i < n.opts.Workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}
	n.wg.Add(1)
	go n.schedule()

	n.logger.Infow("Notifier started",
		"channel", n.channel.Name(),
		"workers", n.opts.Workers,
		"queue_size", n.opts.QueueSize,
		"max_attempts", n.opts.MaxAttempts,
	)
}

// Enqueue hands a copy of task to the notifier and returns without waiting for delivery.
// It returns the assigned task id.
func (n *Notifier) Enqueue(ctx context.Context, task models.NotificationTask) (string, error) {
	now := time.Now()
	t := task
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.State = models.TaskPending
	t.Attempts = 0
	t.NextAttemptAt = now
	t.CreatedAt = now
	t.UpdatedAt = now
	if task.Data != nil {
		t.Data = make(map[string]interface{}, len(task.Data))
		for k, v := range task.Data {
			t.Data[k] = v
		}
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return "", ErrClosed
	}
	if n.population >= n.opts.QueueSize {
		metrics.NotificationTasksTotal.WithLabelValues(n.channel.Name(), "rejected").Inc()
		n.logger.WarnwCtx(ctx, "Notification queue full, task rejected",
			"task_id", t.ID,
			"queue_size", n.opts.QueueSize,
		)
		return "", ErrQueueFull
	}

	// population never exceeds the ready buffer, so this send does not block.
	n.ready <- &t
	n.population++
	metrics.NotificationQueueSize.Set(float64(n.population))
	metrics.NotificationTasksTotal.WithLabelValues(n.channel.Name(), string(models.TaskPending)).Inc()

	return t.ID, nil
}

// Len is the number of tasks queued, waiting for a retry, or in flight.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.population
}

// Shutdown stops accepting tasks and lets running attempts finish within the drain timeout
// or ctx, whichever ends first. Everything not yet delivered is abandoned.
func (n *Notifier) Shutdown(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.stop)
	n.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, n.opts.DrainTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-drainCtx.Done():
		n.logger.Warnw("Notifier drain timed out, cancelling running attempts")
		n.cancelAttempt()
		<-done
	}
	n.cancelAttempt()

	abandoned := n.abandonRemaining()
	n.logger.Infow("Notifier stopped", "abandoned", abandoned)

	return ctx.Err()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for {
		select {
		case <-n.stop:
			return
		default:
		}

		select {
		case <-n.stop:
			return
		case t := <-n.ready:
			n.attempt(t)
		}
	}
}

func (n *Notifier) attempt(t *models.NotificationTask) {
	ctx := logging.WithEventID(n.attemptCtx, t.EventID)
	ctx = logging.WithRoute(ctx, t.Route)

	select {
	case <-n.stop:
		n.requeue(t)
		return
	default:
	}

	if err := n.limiter.Wait(ctx); err != nil {
		n.requeue(t)
		return
	}

	n.mu.Lock()
	n.inFlight++
	metrics.NotificationsInFlight.Set(float64(n.inFlight))
	n.mu.Unlock()

	t.State = models.TaskInFlight
	t.Attempts++
	t.UpdatedAt = time.Now()

	attemptCtx, cancel := context.WithTimeout(ctx, n.opts.AttemptTimeout)
	start := time.Now()
	err := n.deliver(attemptCtx, t)
	cancel()
	duration := time.Since(start)

	n.mu.Lock()
	n.inFlight--
	metrics.NotificationsInFlight.Set(float64(n.inFlight))
	n.mu.Unlock()

	switch {
	case err == nil:
		metrics.ObserveNotificationAttempt(n.channel.Name(), "delivered", duration)
		t.State = models.TaskDelivered
		t.LastError = ""
		t.UpdatedAt = time.Now()
		n.finish(t)
		n.logger.DebugwCtx(ctx, "Notification delivered",
			"task_id", t.ID,
			"attempts", t.Attempts,
		)

	case retry.IsPermanent(err):
		metrics.ObserveNotificationAttempt(n.channel.Name(), "permanent", duration)
		t.LastError = err.Error()
		n.abandon(ctx, t, ReasonPermanent)

	default:
		metrics.ObserveNotificationAttempt(n.channel.Name(), "transient", duration)
		t.LastError = err.Error()
		if t.Attempts >= n.opts.MaxAttempts {
			n.abandon(ctx, t, ReasonMaxAttempts)
			return
		}
		n.retryLater(ctx, t)
	}
}

func (n *Notifier) deliver(ctx context.Context, t *models.NotificationTask) error {
	snapshot := *t
	if n.breaker == nil {
		return n.channel.Deliver(ctx, snapshot)
	}
	err := n.breaker.Run(ctx, func(ctx context.Context) error {
		return n.channel.Deliver(ctx, snapshot)
	})
	if circuitbreaker.IsRejection(err) {
		return apperrors.ErrCircuitOpen.WithCause(err)
	}
	return err
}

func (n *Notifier) retryLater(ctx context.Context, t *models.NotificationTask) {
	delay := n.opts.Backoff.Delay(t.Attempts)
	now := time.Now()
	t.State = models.TaskPending
	t.NextAttemptAt = now.Add(delay)
	t.UpdatedAt = now

	// t belongs to the scheduler once pushed; only these copies may be read afterwards.
	taskID, attempts, lastErr := t.ID, t.Attempts, t.LastError

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		n.abandon(ctx, t, ReasonShutdown)
		return
	}
	heap.Push(&n.waiting, t)
	n.mu.Unlock()

	select {
	case n.wake <- struct{}{}:
	default:
	}

	n.logger.InfowCtx(ctx, "Notification delivery failed, retry scheduled",
		"task_id", taskID,
		"attempt", attempts,
		"max_attempts", n.opts.MaxAttempts,
		"next_delay", delay,
		"error", lastErr,
	)
}

// requeue parks a task that was picked up during shutdown without being attempted.
func (n *Notifier) requeue(t *models.NotificationTask) {
	n.mu.Lock()
	heap.Push(&n.waiting, t)
	n.mu.Unlock()
}

// schedule moves due tasks from the retry heap to the ready channel.
func (n *Notifier) schedule() {
	defer n.wg.Done()
	for {
		var timer *time.Timer
		var timerC <-chan time.Time

		n.mu.Lock()
		now := time.Now()
		for n.waiting.Len() > 0 && !n.closed {
			next := n.waiting[0]
			if next.NextAttemptAt.After(now) {
				timer = time.NewTimer(next.NextAttemptAt.Sub(now))
				timerC = timer.C
				break
			}
			heap.Pop(&n.waiting)
			n.ready <- next
		}
		n.mu.Unlock()

		select {
		case <-n.stop:
			if timer != nil {
				timer.Stop()
			}
			return
		case <-n.wake:
		case <-timerC:
		}
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) finish(t *models.NotificationTask) {
	n.mu.Lock()
	n.population--
	metrics.NotificationQueueSize.Set(float64(n.population))
	n.mu.Unlock()
	metrics.NotificationTasksTotal.WithLabelValues(n.channel.Name(), string(t.State)).Inc()
}

func (n *Notifier) abandon(ctx context.Context, t *models.NotificationTask, reason string) {
	t.State = models.TaskAbandoned
	t.UpdatedAt = time.Now()
	n.finish(t)

	n.logger.WarnwCtx(ctx, "Notification abandoned",
		"task_id", t.ID,
		"attempts", t.Attempts,
		"reason", reason,
		"error", t.LastError,
		"error_code", apperrors.ErrNotificationAbandoned.Code,
	)

	// The sink gets its own deadline so reports survive a cancelled attempt context.
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DefaultNotifierAttemptTimeout)
	defer cancel()
	if err := n.sink.Report(reportCtx, *t, reason); err != nil {
		n.logger.ErrorwCtx(ctx, "Failed to report abandoned notification",
			"task_id", t.ID,
			"error", err,
		)
	}
}

func (n *Notifier) abandonRemaining() int {
	var rest []*models.NotificationTask

	n.mu.Lock()
drain:
	for {
		select {
		case t := <-n.ready:
			rest = append(rest, t)
		default:
			break drain
		}
	}
	for n.waiting.Len() > 0 {
		rest = append(rest, heap.Pop(&n.waiting).(*models.NotificationTask))
	}
	n.mu.Unlock()

	ctx := context.Background()
	for _, t := range rest {
		n.abandon(ctx, t, ReasonShutdown)
	}
	return len(rest)
}

// taskHeap orders waiting tasks by NextAttemptAt.
type taskHeap []*models.NotificationTask

func (h taskHeap) Len() int           { return len(h) }
func (h taskHeap) Less(i, j int) bool { return h[i].NextAttemptAt.Before(h[j].NextAttemptAt) }
func (h taskHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(*models.NotificationTask)) }

func (h *taskHeap) Pop() any {
	old := *h
	last := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return last
}
