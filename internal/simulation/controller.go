package simulation

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/compounding/growth-backend/internal/growth"
	"github.com/compounding/growth-backend/internal/insight"
	"github.com/compounding/growth-backend/internal/metrics"
	"github.com/compounding/growth-backend/pkg/logger"
	"github.com/google/uuid"
)

// Status of the current run
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

const (
	DefaultTickInterval   = 20 * time.Millisecond
	DefaultInsightTimeout = 20 * time.Second
)

// seriesPrealloc bounds the capacity reserved for a new run's series.
// Longer runs grow it on demand.
const seriesPrealloc = 731

// ErrRunning is returned when configuration is changed mid-run.
var ErrRunning = errors.New("simulation is running")

// Ticker paces the progression loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

func newStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// loop identifies one pacing goroutine. Ticks are applied only while the
// loop is the controller's active one, so a tick racing a pause or reset
// is dropped once that call has returned.
type loop struct {
	stop chan struct{}
}

// Controller owns one simulation run and advances it one day per tick.
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.RWMutex

	cfg        growth.Config
	status     Status
	day        int
	value      float64
	series     []growth.Point
	generation uint64
	runID      string

	insight          *insight.Insight
	insightPending   bool
	insightRequested bool

	active *loop
	closed bool

	subs    map[int]chan Snapshot
	nextSub int

	interval       time.Duration
	insightTimeout time.Duration
	provider       insight.Provider
	newTicker      func(time.Duration) Ticker
	logger         *logger.Logger
	metrics        *metrics.Collector

	wg sync.WaitGroup
}

// Option configures a Controller
type Option func(*Controller)

// WithTickInterval sets the minimum real time between two ticks
func WithTickInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithInsightProvider sets the collaborator asked for an insight on completion.
// Without one, completed runs get insight.FallbackNotConfigured.
func WithInsightProvider(p insight.Provider) Option {
	return func(c *Controller) {
		c.provider = p
	}
}

// WithInsightTimeout bounds each insight request
func WithInsightTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.insightTimeout = d
		}
	}
}

// WithTicker replaces the pacing ticker factory
func WithTicker(newTicker func(time.Duration) Ticker) Option {
	return func(c *Controller) {
		if newTicker != nil {
			c.newTicker = newTicker
		}
	}
}

// WithLogger sets the logger
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// NewController creates a controller holding an IDLE run for cfg.
func NewController(cfg growth.Config, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Controller{
		cfg:            cfg,
		subs:           make(map[int]chan Snapshot),
		interval:       DefaultTickInterval,
		insightTimeout: DefaultInsightTimeout,
		newTicker:      newStdTicker,
		logger:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.newRunLocked(c.cfg)
	return c, nil
}

// Start moves IDLE or PAUSED runs to RUNNING. It is a no-op while RUNNING
// or COMPLETED.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	switch c.status {
	case StatusRunning, StatusCompleted:
		return
	case StatusIdle:
		if c.day > 0 {
			// stopped mid-run: start over
			c.resetLocked(c.cfg)
		}
		c.metrics.RecordRunStarted()
		c.logger.Info("Simulation started",
			logger.F("run_id", c.runID),
			logger.F("total_days", strconv.Itoa(c.cfg.TotalDays)),
			logger.F("daily_rate", strconv.FormatFloat(c.cfg.DailyRate, 'g', -1, 64)))
	case StatusPaused:
		c.logger.Debug("Simulation resumed", logger.F("run_id", c.runID), logger.F("day", strconv.Itoa(c.day)))
	}

	c.status = StatusRunning
	c.startLoopLocked()
	c.notifyLocked()
}

// Pause freezes a RUNNING run. It is a no-op in any other state.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status != StatusRunning {
		return
	}

	c.stopLoopLocked()
	c.status = StatusPaused
	c.logger.Debug("Simulation paused", logger.F("run_id", c.runID), logger.F("day", strconv.Itoa(c.day)))
	c.notifyLocked()
}

// Reset discards the current run and starts a new IDLE one from any state.
// Pending ticks and in-flight insight responses for the old run are dropped.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.resetLocked(c.cfg)
	c.notifyLocked()
}

// Configure replaces the run length and daily rate, keeping the start value.
// It fails with ErrRunning while RUNNING and with growth.ErrInvalidConfig for
// invalid values; in both cases the current run is left untouched.
func (c *Controller) Configure(totalDays int, dailyRate float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusRunning {
		return ErrRunning
	}

	cfg := c.cfg
	cfg.TotalDays = totalDays
	cfg.DailyRate = dailyRate
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configure: %w", err)
	}

	c.resetLocked(cfg)
	c.logger.Info("Simulation reconfigured",
		logger.F("run_id", c.runID),
		logger.F("total_days", strconv.Itoa(cfg.TotalDays)),
		logger.F("daily_rate", strconv.FormatFloat(cfg.DailyRate, 'g', -1, 64)))
	c.notifyLocked()
	return nil
}

// Config returns the active configuration
func (c *Controller) Config() growth.Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Interval returns the tick pacing interval
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Snapshot returns a consistent view of the current run
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe returns a channel that always holds the most recent snapshot
// (older undelivered snapshots are replaced) and a function to unsubscribe.
// The channel is closed on unsubscribe or Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	ch <- c.snapshotLocked()
	if c.closed {
		close(ch)
		c.mu.Unlock()
		return ch, func() {}
	}
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops the pacing loop, closes subscriptions and waits for in-flight
// insight requests. The controller ignores Start afterwards.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopLoopLocked()
	if c.status == StatusRunning {
		c.status = StatusPaused
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	c.mu.Unlock()

	c.wg.Wait()
}

// newRunLocked installs a fresh IDLE run for cfg. Nothing is assigned until
// the new series is built.
func (c *Controller) newRunLocked(cfg growth.Config) {
	series := make([]growth.Point, 1, min(cfg.TotalDays, seriesPrealloc)+1)
	series[0] = growth.Origin(cfg)
	runID := uuid.New().String()

	c.generation++
	c.cfg = cfg
	c.runID = runID
	c.status = StatusIdle
	c.day = 0
	c.value = cfg.StartValue
	c.series = series
	c.insight = nil
	c.insightPending = false
	c.insightRequested = false
}

func (c *Controller) resetLocked(cfg growth.Config) {
	c.stopLoopLocked()
	c.newRunLocked(cfg)
	c.metrics.RecordReset()
	c.logger.Debug("Simulation reset",
		logger.F("run_id", c.runID),
		logger.F("generation", strconv.FormatUint(c.generation, 10)))
}

func (c *Controller) startLoopLocked() {
	l := &loop{stop: make(chan struct{})}
	c.active = l
	ticker := c.newTicker(c.interval)

	c.wg.Add(1)
	go c.run(l, ticker)
}

func (c *Controller) stopLoopLocked() {
	if c.active != nil {
		close(c.active.stop)
		c.active = nil
	}
}

func (c *Controller) run(l *loop, ticker Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C():
			if !c.tick(l) {
				return
			}
		}
	}
}

// tick applies one simulated day on behalf of loop l and reports whether
// the loop should keep going.
func (c *Controller) tick(l *loop) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != l || c.status != StatusRunning {
		return false
	}

	if c.day == c.cfg.TotalDays {
		c.stopLoopLocked()
		c.status = StatusCompleted
		c.metrics.RecordRunCompleted()
		c.logger.Info("Simulation completed",
			logger.F("run_id", c.runID),
			logger.F("final_value", strconv.FormatFloat(c.value, 'f', 6, 64)))
		c.requestInsightLocked()
		c.notifyLocked()
		return false
	}

	next := growth.Next(c.cfg, c.value)
	c.series = append(c.series, growth.Point{
		Day:      c.day + 1,
		Value:    next,
		Baseline: c.cfg.StartValue,
	})
	c.value = next
	c.day++

	c.metrics.RecordTick()
	c.notifyLocked()
	return true
}

func (c *Controller) requestInsightLocked() {
	if c.insightRequested {
		return
	}
	c.insightRequested = true
	c.insightPending = true

	gen := c.generation
	req := insight.Request{
		TotalDays:  c.cfg.TotalDays,
		DailyRate:  c.cfg.DailyRate,
		FinalValue: c.value,
	}

	c.wg.Add(1)
	go c.fetchInsight(gen, req)
}

// fetchInsight resolves the insight for generation gen and caches it unless
// the run was reset or reconfigured in the meantime.
func (c *Controller) fetchInsight(gen uint64, req insight.Request) {
	defer c.wg.Done()

	start := time.Now()
	ins, err := c.callProvider(req)
	outcome := metrics.InsightOK
	if err != nil {
		ins = insight.Fallback(err)
		outcome = metrics.InsightFailed
		if errors.Is(err, insight.ErrNotConfigured) {
			outcome = metrics.InsightNotConfigured
		}
		c.logger.Warn("Insight unavailable, using fallback",
			logger.F("generation", strconv.FormatUint(gen, 10)),
			logger.F("outcome", outcome),
			logger.F("error", err.Error()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != gen {
		c.metrics.RecordInsight(metrics.InsightStale, time.Since(start))
		c.logger.Debug("Discarding stale insight",
			logger.F("generation", strconv.FormatUint(gen, 10)),
			logger.F("current_generation", strconv.FormatUint(c.generation, 10)))
		return
	}

	c.metrics.RecordInsight(outcome, time.Since(start))
	c.insight = &ins
	c.insightPending = false
	c.notifyLocked()
}

func (c *Controller) callProvider(req insight.Request) (ins insight.Insight, err error) {
	if c.provider == nil {
		return insight.Insight{}, insight.ErrNotConfigured
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: provider panic: %v", insight.ErrUnavailable, r)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), c.insightTimeout)
	defer cancel()

	ins, err = c.provider.RequestInsight(ctx, req)
	if err == nil && !ins.Complete() {
		err = fmt.Errorf("%w: incomplete insight", insight.ErrUnavailable)
	}
	return ins, err
}

func (c *Controller) notifyLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// replace the undelivered snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
