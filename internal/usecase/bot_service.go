package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/vitos/dca_bot/internal/domain"
)

const overviewConcurrency = 8

// AddBotRequest creates a bot from a catalogue template. Nil fields keep the
// template defaults. Percent fields are given as percent (2 == 2%).
// New bots are disabled unless Enabled is set.
type AddBotRequest struct {
	Type            domain.BotType
	Name            string
	Symbol          string
	TakeProfit      *float64
	StopLoss        *float64
	BaseOrderSize   *float64
	SafetyOrderSize *float64
	DCALevels       *int
	PriceDeviation  *float64
	MaxSafetyOrders *int
	TrailingTP      bool
	Enabled         bool
}

type BotStatus struct {
	Bot           domain.BotConfig `json:"bot"`
	OpenOrders    int              `json:"open_orders"`
	OpenPositions int              `json:"open_positions"`
	EntryPrice    float64          `json:"entry_price"`
}

type Overview struct {
	TotalBots   int                    `json:"total_bots"`
	EnabledBots int                    `json:"enabled_bots"`
	ByType      map[domain.BotType]int `json:"by_type"`
	Bots        []BotStatus            `json:"bots"`
}

type BotOrders struct {
	Orders        []*domain.Order    `json:"orders"`
	OpenOrders    []domain.OpenOrder `json:"open_orders"`
	OpenPositions []domain.Position  `json:"open_positions"`
	EntryPrice    float64            `json:"entry_price"`
}

// BotService is the application facade over the per-user bot store and the
// engine. Bot instances are cached by bot id for the life of the process.
type BotService struct {
	store    domain.BotStore
	exchange domain.ExchangeClient
	opts     ExecutorOptions
	logger   *zap.Logger

	mu        sync.Mutex
	instances map[string]*BotInstance
	adhoc     map[string]*BotInstance
}

func NewBotService(store domain.BotStore, exchange domain.ExchangeClient, opts ExecutorOptions, logger *zap.Logger) *BotService {
	return &BotService{
		store:     store,
		exchange:  exchange,
		opts:      opts.withDefaults(),
		logger:    logger,
		instances: make(map[string]*BotInstance),
		adhoc:     make(map[string]*BotInstance),
	}
}

func (s *BotService) AvailableBots() []domain.BotTemplate {
	out := make([]domain.BotTemplate, len(domain.AvailableBots))
	copy(out, domain.AvailableBots)
	return out
}

func (s *BotService) ListBots(ctx context.Context, userID string) ([]domain.BotConfig, error) {
	bots, err := s.store.LoadBots(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load bots: %w", err)
	}
	if bots == nil {
		bots = []domain.BotConfig{}
	}
	return bots, nil
}

func (s *BotService) FindBot(ctx context.Context, userID, name string) (*domain.BotConfig, error) {
	bots, err := s.ListBots(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range bots {
		if bots[i].Name == name {
			return &bots[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrBotNotFound, name)
}

func (s *BotService) AddBot(ctx context.Context, userID string, req AddBotRequest) (*domain.BotConfig, error) {
	tpl, ok := domain.FindTemplate(req.Type)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownBotType, req.Type)
	}

	bot := domain.NewBotConfig(tpl)
	bot.ID = uuid.NewString()
	bot.UserID = userID
	bot.Enabled = req.Enabled
	bot.CreatedAt = time.Now().UTC()
	if name := strings.TrimSpace(req.Name); name != "" {
		bot.Name = name
	}
	if req.Symbol != "" {
		bot.Symbol = strings.ToUpper(req.Symbol)
	}
	applyOverrides(&bot, req)

	if _, err := domain.NewStrategyConfig(bot); err != nil {
		return nil, err
	}

	err := s.store.UpdateBots(ctx, userID, func(bots []domain.BotConfig) ([]domain.BotConfig, error) {
		for _, b := range bots {
			if b.Name == bot.Name {
				return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateBot, bot.Name)
			}
		}
		return append(bots, bot), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Bot added",
		zap.String("user_id", userID),
		zap.String("bot_id", bot.ID),
		zap.String("name", bot.Name),
		zap.String("symbol", bot.Symbol))
	s.publishBotsChanged(userID)
	return &bot, nil
}

func applyOverrides(bot *domain.BotConfig, req AddBotRequest) {
	if req.TakeProfit != nil {
		bot.TakeProfit = *req.TakeProfit
	}
	if req.StopLoss != nil {
		bot.StopLoss = *req.StopLoss
	}
	if req.BaseOrderSize != nil {
		bot.BaseOrderSize = *req.BaseOrderSize
	}
	if req.SafetyOrderSize != nil {
		bot.SafetyOrderSize = *req.SafetyOrderSize
	}
	if req.DCALevels != nil {
		bot.DCALevels = *req.DCALevels
	}
	if req.PriceDeviation != nil {
		bot.PriceDeviation = *req.PriceDeviation
	}
	if req.MaxSafetyOrders != nil {
		bot.MaxSafetyOrders = *req.MaxSafetyOrders
	}
	bot.TrailingTP = req.TrailingTP
}

// DeleteBot removes the bot by name and drops its cached instance.
func (s *BotService) DeleteBot(ctx context.Context, userID, name string) error {
	var removed domain.BotConfig
	err := s.store.UpdateBots(ctx, userID, func(bots []domain.BotConfig) ([]domain.BotConfig, error) {
		for i, b := range bots {
			if b.Name == name {
				removed = b
				return append(bots[:i:i], bots[i+1:]...), nil
			}
		}
		return nil, fmt.Errorf("%w: %q", domain.ErrBotNotFound, name)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.instances, removed.ID)
	s.mu.Unlock()

	s.logger.Info("Bot deleted", zap.String("user_id", userID), zap.String("bot_id", removed.ID), zap.String("name", name))
	s.publishBotsChanged(userID)
	return nil
}

func (s *BotService) SetEnabled(ctx context.Context, userID, name string, enabled bool) (*domain.BotConfig, error) {
	var updated domain.BotConfig
	err := s.store.UpdateBots(ctx, userID, func(bots []domain.BotConfig) ([]domain.BotConfig, error) {
		for i := range bots {
			if bots[i].Name == name {
				bots[i].Enabled = enabled
				updated = bots[i]
				return bots, nil
			}
		}
		return nil, fmt.Errorf("%w: %q", domain.ErrBotNotFound, name)
	})
	if err != nil {
		return nil, err
	}
	s.publishBotsChanged(userID)
	return &updated, nil
}

// Overview summarises a user's bots. Exchange reads run concurrently per bot;
// a failed read counts as zero.
func (s *BotService) Overview(ctx context.Context, userID string) (*Overview, error) {
	bots, err := s.ListBots(ctx, userID)
	if err != nil {
		return nil, err
	}

	ov := &Overview{
		TotalBots: len(bots),
		ByType:    make(map[domain.BotType]int),
		Bots:      make([]BotStatus, len(bots)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(overviewConcurrency)
	for i, bot := range bots {
		ov.ByType[bot.Type]++
		if bot.Enabled {
			ov.EnabledBots++
		}
		ov.Bots[i].Bot = bot

		i, bot := i, bot
		g.Go(func() error {
			inst, err := s.instanceFor(bot)
			if err != nil {
				// misconfigured bot, still listed
				s.logger.Warn("Bot has invalid strategy config", zap.String("bot_id", bot.ID), zap.Error(err))
				return nil
			}
			ov.Bots[i].OpenOrders = len(inst.ListOpenOrders(gctx))
			ov.Bots[i].OpenPositions = len(inst.ListOpenPositions(gctx))
			ov.Bots[i].EntryPrice = inst.EntryPrice()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ov, nil
}

// Symbols lists tradable symbols, empty when the exchange cannot be read.
func (s *BotService) Symbols(ctx context.Context) []string {
	symbols := listSymbols(ctx, s.exchange, s.opts.Category, s.opts.Timeout, s.logger)
	sort.Strings(symbols)
	return symbols
}

// PlaceOrder places an order outside any user bot, through a per-symbol
// instance with default strategy parameters.
func (s *BotService) PlaceOrder(ctx context.Context, symbol string, side domain.Side, typ domain.OrderType, qty float64, price *float64) (*domain.Order, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, &domain.ConfigError{Field: "symbol", Reason: "must not be empty"}
	}

	s.mu.Lock()
	inst, ok := s.adhoc[symbol]
	if !ok {
		cfg := domain.NewBotConfig(domain.BotTemplate{Type: domain.BotTypeSimple, Symbol: symbol})
		strategy, err := domain.NewStrategyConfig(cfg)
		if err == nil {
			opts := s.opts
			opts.BotID = "adhoc-" + symbol
			inst, err = NewBotInstance(strategy, s.exchange, opts, s.logger)
		}
		if err != nil {
			s.mu.Unlock()
			return nil, err
		}
		s.adhoc[symbol] = inst
	}
	s.mu.Unlock()

	return inst.PlaceOrder(ctx, side, typ, qty, price)
}

func (s *BotService) RunDCA(ctx context.Context, userID, name string, initialPrice float64) (*LadderResult, error) {
	inst, bot, err := s.instance(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if bot.Type != domain.BotTypeDCA {
		return nil, &domain.ConfigError{Field: "type", Reason: fmt.Sprintf("bot %q is %s, not dca", name, bot.Type)}
	}
	return inst.RunDCALadder(ctx, initialPrice)
}

// CheckExit evaluates one price sample. A zero entryPrice uses the entry
// tracked by the bot, after syncing its pending fills.
func (s *BotService) CheckExit(ctx context.Context, userID, name string, entryPrice, currentPrice float64) (*ExitAction, error) {
	inst, _, err := s.instance(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	if entryPrice == 0 {
		inst.SyncFills(ctx)
		entryPrice = inst.EntryPrice()
	}
	return inst.CheckExit(ctx, entryPrice, currentPrice)
}

func (s *BotService) SetEntryPrice(ctx context.Context, userID, name string, price float64) error {
	inst, _, err := s.instance(ctx, userID, name)
	if err != nil {
		return err
	}
	return inst.SetEntryPrice(price)
}

func (s *BotService) CancelOrder(ctx context.Context, userID, name, orderID string) (*domain.OrderAck, error) {
	inst, _, err := s.instance(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	return inst.CancelOrder(ctx, orderID)
}

func (s *BotService) Orders(ctx context.Context, userID, name string) (*BotOrders, error) {
	inst, _, err := s.instance(ctx, userID, name)
	if err != nil {
		return nil, err
	}
	inst.SyncFills(ctx)
	return &BotOrders{
		Orders:        inst.Orders(),
		OpenOrders:    inst.ListOpenOrders(ctx),
		OpenPositions: inst.ListOpenPositions(ctx),
		EntryPrice:    inst.EntryPrice(),
	}, nil
}

// WatchTargets returns the cached instances of enabled bots that track an
// entry price or pending ladder fills. It never waits on a busy bot.
func (s *BotService) WatchTargets(ctx context.Context) ([]*BotInstance, error) {
	users, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	enabled := make(map[string]bool)
	for _, u := range users {
		bots, err := s.store.LoadBots(ctx, u)
		if err != nil {
			return nil, fmt.Errorf("load bots for %s: %w", u, err)
		}
		for _, b := range bots {
			if b.Enabled {
				enabled[b.ID] = true
			}
		}
	}

	s.mu.Lock()
	candidates := make([]*BotInstance, 0, len(s.instances))
	for id, inst := range s.instances {
		if enabled[id] {
			candidates = append(candidates, inst)
		}
	}
	s.mu.Unlock()

	var targets []*BotInstance
	for _, inst := range candidates {
		if inst.Tracking() {
			targets = append(targets, inst)
		}
	}
	sort.Slice(targets, func(i, j int) bool { return targets[i].ID() < targets[j].ID() })
	return targets, nil
}

func (s *BotService) instance(ctx context.Context, userID, name string) (*BotInstance, domain.BotConfig, error) {
	bot, err := s.FindBot(ctx, userID, name)
	if err != nil {
		return nil, domain.BotConfig{}, err
	}
	inst, err := s.instanceFor(*bot)
	return inst, *bot, err
}

func (s *BotService) instanceFor(bot domain.BotConfig) (*BotInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst, ok := s.instances[bot.ID]; ok {
		return inst, nil
	}

	strategy, err := domain.NewStrategyConfig(bot)
	if err != nil {
		return nil, err
	}
	opts := s.opts
	opts.BotID = bot.ID
	opts.UserID = bot.UserID
	inst, err := NewBotInstance(strategy, s.exchange, opts, s.logger)
	if err != nil {
		return nil, err
	}
	s.instances[bot.ID] = inst
	return inst, nil
}

func (s *BotService) publishBotsChanged(userID string) {
	s.opts.Events.Publish(domain.Event{
		Type:   domain.EventBotsChanged,
		UserID: userID,
		Time:   time.Now(),
	})
}
