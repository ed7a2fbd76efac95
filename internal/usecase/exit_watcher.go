package usecase

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/metrics"
)

// PriceStream subscribes symbols to a live price feed.
type PriceStream interface {
	Subscribe(symbols []string) error
}

type WatcherConfig struct {
	Category     string
	PollInterval time.Duration
	ResyncEvery  time.Duration
	// MaxPriceAge bounds how old a streamed price may be before the REST
	// source is asked instead.
	MaxPriceAge time.Duration
}

// ExitWatcher polls take-profit / stop-loss for every enabled bot that tracks
// an entry price or has ladder orders waiting to fill. Each bot gets its own loop.
type ExitWatcher struct {
	service  *BotService
	prices   *PriceCache
	fallback domain.PriceSource
	stream   PriceStream
	config   WatcherConfig
	logger   *zap.Logger

	mu      sync.Mutex
	loops   map[string]*watchLoop
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

type watchLoop struct {
	bot      *BotInstance
	stopChan chan struct{}
	cancel   context.CancelFunc
}

// NewExitWatcher builds a watcher. prices and stream may be nil, in which
// case every sample comes from fallback.
func NewExitWatcher(service *BotService, prices *PriceCache, fallback domain.PriceSource, stream PriceStream, config WatcherConfig, logger *zap.Logger) *ExitWatcher {
	if config.Category == "" {
		config.Category = domain.CategorySpot
	}
	if config.PollInterval <= 0 {
		config.PollInterval = 5 * time.Second
	}
	if config.ResyncEvery <= 0 {
		config.ResyncEvery = 30 * time.Second
	}
	if config.MaxPriceAge <= 0 {
		config.MaxPriceAge = 2 * config.PollInterval
	}
	return &ExitWatcher{
		service:  service,
		prices:   prices,
		fallback: fallback,
		stream:   stream,
		config:   config,
		logger:   logger,
		loops:    make(map[string]*watchLoop),
	}
}

func (w *ExitWatcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.mu.Unlock()

	go w.resyncLoop(ctx)
	w.logger.Info("Exit watcher started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("resync_every", w.config.ResyncEvery))
}

// Stop ends the resync loop and every per-bot loop.
func (w *ExitWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	done := w.done
	for id, l := range w.loops {
		l.stop()
		delete(w.loops, id)
	}
	w.mu.Unlock()

	<-done
	metrics.WatchedBots.Set(0)
	w.logger.Info("Exit watcher stopped")
}

func (w *ExitWatcher) resyncLoop(ctx context.Context) {
	defer close(w.done)

	if err := w.Sync(ctx); err != nil {
		w.logger.Error("Exit watcher sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.config.ResyncEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := w.Sync(ctx); err != nil {
				w.logger.Error("Exit watcher sync failed", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Sync starts loops for new targets and stops loops for bots that were
// disabled, deleted or exited.
func (w *ExitWatcher) Sync(ctx context.Context) error {
	targets, err := w.service.WatchTargets(ctx)
	if err != nil {
		return err
	}

	want := make(map[string]*BotInstance, len(targets))
	for _, t := range targets {
		want[t.ID()] = t
	}

	w.mu.Lock()
	if ctx.Err() != nil {
		// stopped while loading targets
		w.mu.Unlock()
		return nil
	}
	var fresh []string
	for id, l := range w.loops {
		if want[id] != l.bot {
			l.stop()
			delete(w.loops, id)
		}
	}
	for id, bot := range want {
		if _, ok := w.loops[id]; ok {
			continue
		}
		loopCtx, cancel := context.WithCancel(ctx)
		l := &watchLoop{bot: bot, stopChan: make(chan struct{}), cancel: cancel}
		w.loops[id] = l
		fresh = append(fresh, bot.Symbol())
		go w.run(loopCtx, l)
	}
	watched := len(w.loops)
	w.mu.Unlock()

	metrics.WatchedBots.Set(float64(watched))

	if w.stream != nil && len(fresh) > 0 {
		if err := w.stream.Subscribe(fresh); err != nil {
			w.logger.Warn("Price stream subscribe failed, using REST prices", zap.Strings("symbols", fresh), zap.Error(err))
		}
	}
	return nil
}

// Watched returns the ids of bots with a running loop.
func (w *ExitWatcher) Watched() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.loops))
	for id := range w.loops {
		ids = append(ids, id)
	}
	return ids
}

func (w *ExitWatcher) run(ctx context.Context, l *watchLoop) {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	w.logger.Debug("Exit loop started", zap.String("bot_id", l.bot.ID()), zap.String("symbol", l.bot.Symbol()))

	for {
		select {
		case <-ticker.C:
			w.poll(ctx, l.bot)
		case <-l.stopChan:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (w *ExitWatcher) poll(ctx context.Context, bot *BotInstance) {
	price, err := w.currentPrice(ctx, bot.Symbol())
	if err != nil {
		w.logger.Warn("No price for exit check",
			zap.String("bot_id", bot.ID()),
			zap.String("symbol", bot.Symbol()),
			zap.Error(err))
		return
	}

	action, err := bot.CheckTrackedExit(ctx, price)
	if err != nil {
		w.logger.Error("Exit check failed",
			zap.String("bot_id", bot.ID()),
			zap.String("symbol", bot.Symbol()),
			zap.Float64("price", price),
			zap.Error(err))
		return
	}
	if action.Triggered() {
		w.logger.Info("Exit executed by watcher",
			zap.String("bot_id", bot.ID()),
			zap.String("kind", string(action.Kind)),
			zap.Float64("price", price))
	}
}

func (w *ExitWatcher) currentPrice(ctx context.Context, symbol string) (float64, error) {
	if w.prices != nil {
		if p, ok := w.prices.Get(symbol, w.config.MaxPriceAge); ok {
			return p, nil
		}
	}
	callCtx, cancel := context.WithTimeout(ctx, w.service.opts.Timeout)
	defer cancel()
	return w.fallback.GetCurrentPrice(callCtx, w.config.Category, symbol)
}

func (l *watchLoop) stop() {
	l.cancel()
	close(l.stopChan)
}
