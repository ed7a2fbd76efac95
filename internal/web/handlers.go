package web

import (
	"net/http"

	"github.com/spf13/cast"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/usecase"
)

// addBotRequest takes the bot type as "bot_type" or "type".
type addBotRequest struct {
	BotType         string      `json:"bot_type" validate:"required_without=Type"`
	Type            string      `json:"type" validate:"required_without=BotType"`
	Name            string      `json:"name" validate:"omitempty,max=64"`
	Symbol          string      `json:"symbol" validate:"omitempty,alphanum,max=32"`
	TakeProfit      interface{} `json:"take_profit"`
	StopLoss        interface{} `json:"stop_loss"`
	BaseOrderSize   interface{} `json:"base_order_size"`
	SafetyOrderSize interface{} `json:"safety_order_size"`
	DCALevels       interface{} `json:"dca_levels"`
	PriceDeviation  interface{} `json:"price_deviation"`
	MaxSafetyOrders interface{} `json:"max_safety_orders"`
	TrailingTP      interface{} `json:"trailing_tp"`
	Enabled         interface{} `json:"enabled"`
}

func (r addBotRequest) botType() domain.BotType {
	if r.BotType != "" {
		return domain.BotType(r.BotType)
	}
	return domain.BotType(r.Type)
}

type deleteBotRequest struct {
	BotName string `json:"bot_name" validate:"required_without=Name"`
	Name    string `json:"name" validate:"required_without=BotName"`
}

func (r deleteBotRequest) botName() string {
	if r.BotName != "" {
		return r.BotName
	}
	return r.Name
}

type placeOrderRequest struct {
	Symbol    string      `json:"symbol" validate:"required"`
	Side      string      `json:"side" validate:"required,oneof=Buy Sell"`
	OrderType string      `json:"order_type" validate:"required,oneof=Market Limit"`
	Quantity  interface{} `json:"quantity" validate:"required"`
	Price     interface{} `json:"price"`
}

type runDCARequest struct {
	InitialPrice interface{} `json:"initial_price" validate:"required"`
}

type checkExitRequest struct {
	EntryPrice   interface{} `json:"entry_price"`
	CurrentPrice interface{} `json:"current_price" validate:"required"`
}

type entryPriceRequest struct {
	EntryPrice interface{} `json:"entry_price" validate:"required"`
}

type cancelOrderRequest struct {
	OrderID string `json:"order_id" validate:"required"`
}

func (s *Server) handleAvailableBots(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.service.AvailableBots())
}

func (s *Server) handleUserBots(w http.ResponseWriter, r *http.Request) {
	bots, err := s.service.ListBots(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, bots)
}

func (s *Server) handleAddBot(w http.ResponseWriter, r *http.Request) {
	var req addBotRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	add := usecase.AddBotRequest{
		Type:   req.botType(),
		Name:   req.Name,
		Symbol: req.Symbol,
	}
	var err error
	if add.TakeProfit, err = optionalNumber("take_profit", req.TakeProfit); err != nil {
		s.writeError(w, r, err)
		return
	}
	if add.StopLoss, err = optionalNumber("stop_loss", req.StopLoss); err != nil {
		s.writeError(w, r, err)
		return
	}
	if add.BaseOrderSize, err = optionalNumber("base_order_size", req.BaseOrderSize); err != nil {
		s.writeError(w, r, err)
		return
	}
	if add.SafetyOrderSize, err = optionalNumber("safety_order_size", req.SafetyOrderSize); err != nil {
		s.writeError(w, r, err)
		return
	}
	if add.PriceDeviation, err = optionalNumber("price_deviation", req.PriceDeviation); err != nil {
		s.writeError(w, r, err)
		return
	}
	if add.DCALevels, err = optionalInt("dca_levels", req.DCALevels); err != nil {
		s.writeError(w, r, err)
		return
	}
	if add.MaxSafetyOrders, err = optionalInt("max_safety_orders", req.MaxSafetyOrders); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.TrailingTP != nil {
		add.TrailingTP = cast.ToBool(req.TrailingTP)
	}
	if req.Enabled != nil {
		add.Enabled = cast.ToBool(req.Enabled)
	}

	bot, err := s.service.AddBot(r.Context(), userID(r), add)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, bot)
}

func (s *Server) handleDeleteBot(w http.ResponseWriter, r *http.Request) {
	var req deleteBotRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.DeleteBot(r.Context(), userID(r), req.botName()); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSetEnabled(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bot, err := s.service.SetEnabled(r.Context(), userID(r), r.PathValue("name"), enabled)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, bot)
	}
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	qty, err := number("quantity", req.Quantity)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := optionalNumber("price", req.Price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	order, err := s.service.PlaceOrder(r.Context(), req.Symbol, domain.Side(req.Side), domain.OrderType(req.OrderType), qty, price)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, order)
}

func (s *Server) handleRunDCA(w http.ResponseWriter, r *http.Request) {
	var req runDCARequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	initial, err := number("initial_price", req.InitialPrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.service.RunDCA(r.Context(), userID(r), r.PathValue("name"), initial)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCheckExit(w http.ResponseWriter, r *http.Request) {
	var req checkExitRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	current, err := number("current_price", req.CurrentPrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := optionalNumber("entry_price", req.EntryPrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var entryPrice float64
	if entry != nil {
		entryPrice = *entry
	}

	action, err := s.service.CheckExit(r.Context(), userID(r), r.PathValue("name"), entryPrice, current)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, action)
}

func (s *Server) handleSetEntryPrice(w http.ResponseWriter, r *http.Request) {
	var req entryPriceRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	price, err := number("entry_price", req.EntryPrice)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.service.SetEntryPrice(r.Context(), userID(r), r.PathValue("name"), price); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]float64{"entry_price": price})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req cancelOrderRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ack, err := s.service.CancelOrder(r.Context(), userID(r), r.PathValue("name"), req.OrderID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ack)
}

func (s *Server) handleBotOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := s.service.Orders(r.Context(), userID(r), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleBotHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSON(w, http.StatusOK, []*domain.Order{})
		return
	}
	bot, err := s.service.FindBot(r.Context(), userID(r), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	limit := cast.ToInt(r.URL.Query().Get("limit"))

	orders, err := s.journal.ListOrders(r.Context(), bot.ID, limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	s.writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleBotReport(w http.ResponseWriter, r *http.Request) {
	bot, err := s.service.FindBot(r.Context(), userID(r), r.PathValue("name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if s.analyzer == nil {
		s.writeJSON(w, http.StatusOK, usecase.OrderReport{BotID: bot.ID, BotName: bot.Name, Symbol: bot.Symbol})
		return
	}
	rep, err := s.analyzer.Report(r.Context(), *bot, cast.ToInt(r.URL.Query().Get("limit")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := s.service.Overview(r.Context(), userID(r))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ov)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"symbols": s.service.Symbols(r.Context()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]interface{}{"status": "ok"}
	if s.hub != nil {
		body["ws_clients"] = s.hub.ClientCount()
	}
	s.writeJSON(w, http.StatusOK, body)
}
