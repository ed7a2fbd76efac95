package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vitos/dca_bot/internal/domain"
	"github.com/vitos/dca_bot/internal/usecase"
)

type Server struct {
	router   *http.ServeMux
	server   *http.Server
	service  *usecase.BotService
	journal  domain.OrderJournal
	analyzer *usecase.JournalAnalyzer
	hub      *Hub
	validate *validator.Validate
	logger   *zap.Logger
}

func NewServer(
	port int,
	service *usecase.BotService,
	journal domain.OrderJournal,
	hub *Hub,
	logger *zap.Logger,
) *Server {
	s := &Server{
		router:   http.NewServeMux(),
		service:  service,
		journal:  journal,
		hub:      hub,
		validate: validator.New(),
		logger:   logger,
	}
	if journal != nil {
		s.analyzer = usecase.NewJournalAnalyzer(journal, logger)
	}
	s.routes()
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	// Bot catalogue and user bots
	s.router.HandleFunc("GET /available_bots", s.handleAvailableBots)
	s.router.HandleFunc("GET /user_bots", s.handleUserBots)
	s.router.HandleFunc("POST /add_bot", s.handleAddBot)
	s.router.HandleFunc("POST /delete_bot", s.handleDeleteBot)
	s.router.HandleFunc("POST /bots/{name}/enable", s.handleSetEnabled(true))
	s.router.HandleFunc("POST /bots/{name}/disable", s.handleSetEnabled(false))

	// Engine
	s.router.HandleFunc("POST /place_order", s.handlePlaceOrder)
	s.router.HandleFunc("POST /bots/{name}/dca", s.handleRunDCA)
	s.router.HandleFunc("POST /bots/{name}/check_exit", s.handleCheckExit)
	s.router.HandleFunc("POST /bots/{name}/entry_price", s.handleSetEntryPrice)
	s.router.HandleFunc("POST /bots/{name}/cancel_order", s.handleCancelOrder)
	s.router.HandleFunc("GET /bots/{name}/orders", s.handleBotOrders)
	s.router.HandleFunc("GET /bots/{name}/history", s.handleBotHistory)
	s.router.HandleFunc("GET /bots/{name}/report", s.handleBotReport)

	// Status
	s.router.HandleFunc("GET /bot_overview_data", s.handleOverview)
	s.router.HandleFunc("GET /status", s.handleStatus)
	s.router.HandleFunc("GET /healthz", s.handleHealth)
	s.router.Handle("GET /metrics", promhttp.Handler())

	// Live updates
	if s.hub != nil {
		s.router.HandleFunc("GET /ws", s.hub.ServeWS)
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	s.logger.Info("Starting web server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
