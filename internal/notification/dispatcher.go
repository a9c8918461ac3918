package notification

import (
	"context"
	"sync"
	"time"

	"github.com/civicwatch/alertwatch/internal/alerts"
	"github.com/civicwatch/alertwatch/internal/logger"
	"github.com/civicwatch/alertwatch/internal/observability/metrics"
)

// Default dispatcher settings.
const (
	DefaultQueueSize = 256
	DefaultTimeout   = 10 * time.Second
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// QueueSize bounds the number of pending events. Events arriving on a
	// full queue are dropped.
	QueueSize int
	// Timeout bounds one delivery to one provider.
	Timeout time.Duration
	// Breaker configures the per-provider circuit breaker.
	Breaker CircuitBreakerConfig
}

type target struct {
	provider Provider
	breaker  *CircuitBreaker
}

// Dispatcher implements alerts.Observer. It never blocks the caller:
// transitions are queued and delivered by a single background worker.
type Dispatcher struct {
	targets []target
	queue   chan Event
	timeout time.Duration
	metrics *metrics.NotificationMetrics
	log     logger.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	cancel context.CancelFunc
}

// NewDispatcher starts a dispatcher delivering to providers. m may be nil.
func NewDispatcher(cfg DispatcherConfig, m *metrics.NotificationMetrics, log logger.Logger, providers ...Provider) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Breaker.MaxFailures <= 0 {
		cfg.Breaker = DefaultCircuitBreakerConfig()
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.Module("notification")

	targets := make([]target, 0, len(providers))
	for _, p := range providers {
		targets = append(targets, target{provider: p, breaker: NewCircuitBreaker(cfg.Breaker, p.Name(), log)})
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		targets: targets,
		queue:   make(chan Event, cfg.QueueSize),
		timeout: cfg.Timeout,
		metrics: m,
		log:     log,
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go d.run(ctx)
	return d
}

// AlertTransitioned queues the transition for delivery.
func (d *Dispatcher) AlertTransitioned(_ context.Context, t alerts.Transition) {
	d.Enqueue(EventFromTransition(t))
}

// Enqueue queues e without blocking. It returns false if the event was
// dropped because the queue is full or the dispatcher is closed.
func (d *Dispatcher) Enqueue(e Event) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	select {
	case d.queue <- e:
		d.setQueueDepth()
		return true
	default:
		if d.metrics != nil {
			d.metrics.RecordDropped()
		}
		d.log.Warn("notification queue full, dropping event",
			logger.String("alert_id", e.AlertID),
			logger.String("to", e.To))
		return false
	}
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	for e := range d.queue {
		d.setQueueDepth()
		if ctx.Err() != nil {
			continue
		}
		d.deliver(ctx, e)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, e Event) {
	for _, t := range d.targets {
		start := time.Now()
		err := t.breaker.Call(ctx, func(ctx context.Context) error {
			sendCtx, cancel := context.WithTimeout(ctx, d.timeout)
			defer cancel()
			return t.provider.Send(sendCtx, e)
		})
		if d.metrics != nil {
			d.metrics.RecordDelivery(t.provider.Name(), time.Since(start), err)
		}
		if err != nil {
			d.log.Warn("notification delivery failed",
				logger.String("provider", t.provider.Name()),
				logger.String("alert_id", e.AlertID),
				logger.Error(err))
			continue
		}
		d.log.Debug("notification delivered",
			logger.String("provider", t.provider.Name()),
			logger.String("alert_id", e.AlertID),
			logger.String("to", e.To))
	}
}

func (d *Dispatcher) setQueueDepth() {
	if d.metrics != nil {
		d.metrics.SetQueueDepth(len(d.queue))
	}
}

// Close stops accepting events and waits for queued ones to be delivered.
// When ctx ends first, in-flight deliveries are cancelled and the remaining
// events are discarded.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-d.done
		return ctx.Err()
	}
}
