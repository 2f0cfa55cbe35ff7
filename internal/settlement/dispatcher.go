package settlement

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"worldevents/internal/progression"
	rtsup "worldevents/internal/runtime/supervisor"
	logx "worldevents/pkg/logx"
)

// Config controls the async grant dispatch pipeline.
type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int

	// GrantTimeout bounds one sink call; 0 uses a default.
	GrantTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 512
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.GrantTimeout <= 0 {
		c.GrantTimeout = 5 * time.Second
	}
	return c
}

// Dispatcher hands grants to the progression sink asynchronously:
// queue + worker pool + rate limit, no retry. A failed grant is logged
// and never blocks or rolls back anything else.
type Dispatcher struct {
	mu sync.Mutex

	log     logx.Logger
	sink    progression.Sink
	cfg     Config
	limiter *rate.Limiter

	queue chan Grant
	sup   *rtsup.Supervisor

	dispatched atomic.Uint64
	failed     atomic.Uint64
	dropped    atomic.Uint64
}

func NewDispatcher(cfg Config, sink progression.Sink, log logx.Logger) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Dispatcher{
		log:     log,
		sink:    sink,
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
	}
}

// Apply updates the rate limit at runtime. Worker/queue sizing changes
// take effect on the next Start.
func (d *Dispatcher) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	d.mu.Lock()
	d.cfg = cfg
	d.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	d.limiter.SetBurst(cfg.RatePerSec)
	d.mu.Unlock()
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sup != nil {
		return
	}
	d.queue = make(chan Grant, d.cfg.QueueSize)
	d.sup = rtsup.New(ctx, rtsup.WithLogger(d.log))
	for i := 0; i < d.cfg.Workers; i++ {
		d.sup.Go0("settlement-worker", d.worker)
	}
	d.log.Info("grant dispatcher started",
		logx.Int("workers", d.cfg.Workers),
		logx.Int("queue", d.cfg.QueueSize),
		logx.Int("rate_per_sec", d.cfg.RatePerSec))
}

func (d *Dispatcher) Stop(ctx context.Context) {
	d.mu.Lock()
	sup := d.sup
	d.sup = nil
	d.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil {
		d.log.Warn("grant dispatcher stop timed out", logx.Err(err))
		return
	}
	d.log.Info("grant dispatcher stopped")
}

// Enqueue queues grants for dispatch. It never blocks; when the queue is
// full the grant is dropped with a warning (delivery is at-most-once by
// design).
func (d *Dispatcher) Enqueue(grants ...Grant) {
	d.mu.Lock()
	q := d.queue
	running := d.sup != nil
	d.mu.Unlock()
	if !running || q == nil {
		d.dropped.Add(uint64(len(grants)))
		d.log.Warn("grant dispatcher not running, dropping grants", logx.Int("count", len(grants)))
		return
	}
	for _, g := range grants {
		select {
		case q <- g:
		default:
			d.dropped.Add(1)
			d.log.Warn("grant queue full, dropping grant",
				logx.String("event_id", g.EventID),
				logx.String("player_id", g.PlayerID))
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	d.mu.Lock()
	q := d.queue
	timeout := d.cfg.GrantTimeout
	d.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case g := <-q:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			gctx, cancel := context.WithTimeout(ctx, timeout)
			err := d.sink.GrantReward(gctx, g.PlayerID, g.Amounts)
			cancel()
			if err != nil {
				// Log and move on: one failed grant must not affect the others.
				d.failed.Add(1)
				d.log.Error("reward grant failed",
					logx.String("event_id", g.EventID),
					logx.String("player_id", g.PlayerID),
					logx.Err(err))
				continue
			}
			d.dispatched.Add(1)
		}
	}
}

// Stats reports lifetime dispatch counters.
type Stats struct {
	Dispatched uint64 `json:"dispatched"`
	Failed     uint64 `json:"failed"`
	Dropped    uint64 `json:"dropped"`
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched: d.dispatched.Load(),
		Failed:     d.failed.Load(),
		Dropped:    d.dropped.Load(),
	}
}
