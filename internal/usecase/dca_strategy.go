package usecase

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/infrastructure/metrics"
)

type LevelStatus string

const (
	LevelFilled LevelStatus = "filled"
	LevelFailed LevelStatus = "failed"
)

// LadderLevel is the outcome of one DCA level.
type LadderLevel struct {
	Index  int           `json:"index"`
	Price  float64       `json:"price"`
	Size   float64       `json:"size"`
	Status LevelStatus   `json:"status"`
	Order  *domain.Order `json:"order,omitempty"`
	Error  string        `json:"error,omitempty"`

	err error
}

type LadderResult struct {
	Levels     []LadderLevel `json:"levels"`
	Attempted  int           `json:"attempted"`
	Filled     int           `json:"filled"`
	CapReached bool          `json:"cap_reached"`
}

// Err combines the errors of all failed levels, nil if none failed.
func (r *LadderResult) Err() error {
	var err error
	for _, l := range r.Levels {
		err = multierr.Append(err, l.err)
	}
	return err
}

// FilledAverage returns the size-weighted price and total size of the filled levels.
func (r *LadderResult) FilledAverage() (price, size float64) {
	var notional float64
	for _, l := range r.Levels {
		if l.Status != LevelFilled {
			continue
		}
		notional += l.Price * l.Size
		size += l.Size
	}
	if size == 0 {
		return 0, 0
	}
	return notional / size, size
}

// LevelPrice is the limit price of ladder level i (0-based). The discount
// grows linearly with the level.
func LevelPrice(initialPrice, deviation float64, i int) float64 {
	return initialPrice * (1 - deviation*float64(i+1))
}

type DCAStrategy struct {
	executor *OrderExecutor
	config   domain.StrategyConfig
	logger   *zap.Logger
}

func NewDCAStrategy(executor *OrderExecutor, config domain.StrategyConfig, logger *zap.Logger) *DCAStrategy {
	return &DCAStrategy{
		executor: executor,
		config:   config,
		logger:   logger,
	}
}

// ExecuteLadder issues Limit Buys below initialPrice. The safety-order cap is
// checked against the cumulative size of log, before the first level and
// after every submission. A failed level is recorded and the ladder goes on.
func (s *DCAStrategy) ExecuteLadder(ctx context.Context, log *domain.OrderLog, initialPrice float64) (*LadderResult, error) {
	if !positiveFinite(initialPrice) {
		return nil, &domain.ConfigError{Field: "initial_price", Reason: "must be positive and finite"}
	}

	result := &LadderResult{Levels: []LadderLevel{}}
	if s.config.DCALevels == 0 {
		return result, nil
	}
	if log.Len() >= s.config.MaxSafetyOrders {
		result.CapReached = true
		s.logger.Info("DCA cap already reached, no levels issued",
			zap.String("symbol", s.config.Symbol),
			zap.Int("orders", log.Len()),
			zap.Int("max_safety_orders", s.config.MaxSafetyOrders))
		return result, nil
	}

	for i := 0; i < s.config.DCALevels; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		price := LevelPrice(initialPrice, s.config.PriceDeviation, i)
		size := s.config.SafetyOrderSize
		if i == 0 {
			size = s.config.BaseOrderSize
		}

		level := LadderLevel{Index: i, Price: price, Size: size}
		order, err := s.executor.Place(ctx, log, domain.SideBuy, domain.OrderTypeLimit, size, &price)
		result.Attempted++
		if err != nil {
			level.Status = LevelFailed
			level.err = fmt.Errorf("level %d: %w", i, err)
			level.Error = err.Error()
			metrics.LadderLevels.WithLabelValues(s.config.Symbol, string(LevelFailed)).Inc()
			s.logger.Warn("DCA level failed",
				zap.String("symbol", s.config.Symbol),
				zap.Int("level", i),
				zap.Float64("price", price),
				zap.Error(err))
		} else {
			level.Status = LevelFilled
			level.Order = order
			result.Filled++
			metrics.LadderLevels.WithLabelValues(s.config.Symbol, string(LevelFilled)).Inc()
			s.logger.Info("DCA level placed",
				zap.String("symbol", s.config.Symbol),
				zap.Int("level", i),
				zap.Float64("price", price),
				zap.Float64("size", size))
		}
		result.Levels = append(result.Levels, level)

		if log.Len() >= s.config.MaxSafetyOrders {
			if i < s.config.DCALevels-1 {
				result.CapReached = true
			}
			break
		}
	}

	return result, nil
}
