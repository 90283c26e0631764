package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"pricewatch/internal/app/outbox"
	"pricewatch/internal/app/policies"
	"pricewatch/internal/domain/pricing"
	"pricewatch/internal/domain/searches"
	"pricewatch/internal/domain/shared/daterange"
)

const (
	defaultCallTimeout  = 45 * time.Second
	defaultWriteTimeout = 10 * time.Second
)

var (
	ErrInProgress      = errors.New("refresh: already in progress for this search")
	ErrShuttingDown    = errors.New("refresh: orchestrator is shutting down")
	ErrCancelled       = errors.New("refresh cancelled")
	ErrNotConfigured   = errors.New("refresh: orchestrator missing dependencies")
	errUnexpectedPrice = errors.New("refresh: oracle returned a negative price")
)

type Config struct {
	Store  searches.Repository
	Oracle policies.PriceOracle
	// Events receives lifecycle events. Optional.
	Events  outbox.Outbox
	Encoder outbox.EventEncoder
	Now     func() time.Time
	// Location decides which calendar day counts as today.
	Location     *time.Location
	CallTimeout  time.Duration
	WriteTimeout time.Duration
	// MinInterval spaces consecutive oracle calls across all refreshes. Zero disables it.
	MinInterval time.Duration
	Logger      *slog.Logger
}

// Orchestrator runs price refreshes in the background, at most one per search.
type Orchestrator struct {
	store        searches.Repository
	oracle       policies.PriceOracle
	events       outbox.Outbox
	encoder      outbox.EventEncoder
	now          func() time.Time
	loc          *time.Location
	callTimeout  time.Duration
	writeTimeout time.Duration
	limiter      *rate.Limiter
	logger       *slog.Logger

	base context.Context
	stop context.CancelFunc

	mu     sync.Mutex
	runs   map[searches.SearchID]*Run
	closed bool
	wg     sync.WaitGroup
}

func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil || cfg.Oracle == nil {
		return nil, ErrNotConfigured
	}
	o := &Orchestrator{
		store:        cfg.Store,
		oracle:       cfg.Oracle,
		events:       cfg.Events,
		encoder:      cfg.Encoder,
		now:          cfg.Now,
		loc:          cfg.Location,
		callTimeout:  cfg.CallTimeout,
		writeTimeout: cfg.WriteTimeout,
		logger:       cfg.Logger,
		runs:         make(map[searches.SearchID]*Run),
	}
	if o.encoder == nil {
		o.encoder = outbox.JSONEventEncoder{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.loc == nil {
		o.loc = time.Local
	}
	if o.callTimeout <= 0 {
		o.callTimeout = defaultCallTimeout
	}
	if o.writeTimeout <= 0 {
		o.writeTimeout = defaultWriteTimeout
	}
	if cfg.MinInterval > 0 {
		o.limiter = rate.NewLimiter(rate.Every(cfg.MinInterval), 1)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	o.base, o.stop = context.WithCancel(context.Background())
	return o, nil
}

// Trigger marks the search running and starts its refresh in the background.
// It returns once the running status is persisted.
func (o *Orchestrator) Trigger(ctx context.Context, id searches.SearchID) (*Run, error) {
	run, err := o.reserve(id)
	if err != nil {
		return nil, err
	}

	search, err := o.store.ByID(ctx, id)
	if err != nil {
		o.abandon(run, err)
		return nil, err
	}
	run.StartedAt = o.now().UTC()
	if err := o.store.UpdateStatus(ctx, id, search.BeginRefresh(run.StartedAt)); err != nil {
		err = fmt.Errorf("mark search running: %w", err)
		o.abandon(run, err)
		return nil, err
	}
	o.publish(ctx, search)

	o.logger.Info("refresh started", "search_id", id)
	go o.execute(run, search)
	return run, nil
}

// Running reports whether a refresh for id is in flight in this process.
func (o *Orchestrator) Running(id searches.SearchID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.runs[id]
	return ok
}

// Cancel stops the refresh for id, if any, and waits for it to wind down.
func (o *Orchestrator) Cancel(ctx context.Context, id searches.SearchID) error {
	o.mu.Lock()
	run, ok := o.runs[id]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	run.Cancel()
	select {
	case <-run.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Shutdown cancels every in-flight refresh and waits for them until ctx expires.
// Triggers after Shutdown fail with ErrShuttingDown.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closed = true
	o.mu.Unlock()
	o.stop()

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) reserve(id searches.SearchID) (*Run, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil, ErrShuttingDown
	}
	if _, busy := o.runs[id]; busy {
		return nil, ErrInProgress
	}
	run := newRun(o.base, id)
	o.runs[id] = run
	o.wg.Add(1)
	return run, nil
}

func (o *Orchestrator) release(run *Run) {
	o.mu.Lock()
	if o.runs[run.SearchID] == run {
		delete(o.runs, run.SearchID)
	}
	o.mu.Unlock()
}

func (o *Orchestrator) abandon(run *Run, err error) {
	o.release(run)
	run.finish(err)
	o.wg.Done()
}

func (o *Orchestrator) execute(run *Run, search *searches.Search) {
	var err error
	defer func() {
		o.release(run)
		run.finish(err)
		o.wg.Done()
	}()
	err = o.refresh(run.ctx, search)
}

func (o *Orchestrator) refresh(ctx context.Context, search *searches.Search) error {
	logger := o.logger.With("search_id", search.ID)

	anchor := daterange.DateOf(o.now().In(o.loc))
	snapshot := pricing.Generate(anchor)
	if err := o.store.UpdatePricing(ctx, search.ID, snapshot.Clone()); err != nil {
		if ctx.Err() != nil {
			return o.cancelled(search, logger)
		}
		return o.fail(search, fmt.Errorf("reset pricing: %w", err), logger)
	}
	search.Pricing = snapshot.Clone()

	for _, slot := range snapshot.Slots() {
		if ctx.Err() != nil {
			return o.cancelled(search, logger)
		}
		window, _ := snapshot.Window(slot)
		price, err := o.fetch(ctx, search.URL, window)
		if err != nil {
			if ctx.Err() != nil {
				return o.cancelled(search, logger)
			}
			logger.Warn("window price fetch failed", "slot", slot.String(), "checkin", window.CheckIn.String(), "error", err)
			continue
		}
		if !price.IsKnown() {
			logger.Info("no price for window", "slot", slot.String(), "checkin", window.CheckIn.String())
			continue
		}
		if err := snapshot.Set(slot, price); err != nil {
			return o.fail(search, err, logger)
		}
		if err := o.store.UpdatePricing(ctx, search.ID, snapshot.Clone()); err != nil {
			if ctx.Err() != nil {
				return o.cancelled(search, logger)
			}
			return o.fail(search, fmt.Errorf("save pricing: %w", err), logger)
		}
		search.Pricing = snapshot.Clone()
	}

	update, err := search.CompleteRefresh(o.now())
	if err != nil {
		return err
	}
	wctx, cancel := o.detached(ctx)
	defer cancel()
	if err := o.store.UpdateStatus(wctx, search.ID, update); err != nil {
		logger.Error("mark refresh completed", "error", err)
		return fmt.Errorf("mark search completed: %w", err)
	}
	o.publish(wctx, search)
	logger.Info("refresh completed", "priced", snapshot.Known(), "windows", len(snapshot.Slots()))
	return nil
}

func (o *Orchestrator) fetch(ctx context.Context, baseURL string, window pricing.Window) (pricing.Price, error) {
	target, err := searches.WithStayDates(baseURL, window.Range())
	if err != nil {
		return pricing.Unknown(), err
	}
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return pricing.Unknown(), err
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
	defer cancel()
	price, err := o.oracle.LowestPrice(callCtx, target)
	if err != nil {
		return pricing.Unknown(), err
	}
	if v, ok := price.Value(); ok && v < 0 {
		return pricing.Unknown(), errUnexpectedPrice
	}
	return price, nil
}

func (o *Orchestrator) fail(search *searches.Search, cause error, logger *slog.Logger) error {
	logger.Error("refresh failed", "error", cause)
	update, err := search.FailRefresh(cause, o.now())
	if err != nil {
		return errors.Join(cause, err)
	}
	wctx, cancel := o.detached(context.Background())
	defer cancel()
	if err := o.store.UpdateStatus(wctx, search.ID, update); err != nil {
		logger.Error("mark refresh failed", "error", err)
		return errors.Join(cause, err)
	}
	o.publish(wctx, search)
	return cause
}

// cancelled records the stop on a context that outlives the run. A search
// deleted meanwhile is not an error.
func (o *Orchestrator) cancelled(search *searches.Search, logger *slog.Logger) error {
	logger.Info("refresh cancelled")
	update, err := search.FailRefresh(ErrCancelled, o.now())
	if err != nil {
		return ErrCancelled
	}
	wctx, cancel := o.detached(context.Background())
	defer cancel()
	if err := o.store.UpdateStatus(wctx, search.ID, update); err != nil {
		if !errors.Is(err, searches.ErrNotFound) {
			logger.Error("mark refresh cancelled", "error", err)
		}
		return ErrCancelled
	}
	o.publish(wctx, search)
	return ErrCancelled
}

func (o *Orchestrator) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), o.writeTimeout)
}

func (o *Orchestrator) publish(ctx context.Context, search *searches.Search) {
	if err := outbox.Flush(ctx, o.events, o.encoder, search); err != nil {
		o.logger.Warn("publish refresh events", "search_id", search.ID, "error", err)
	}
}
