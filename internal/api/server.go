// Package api 提供交易网关的 HTTP 接口。
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"trade-gateway/internal/auth"
	"trade-gateway/internal/config"
	"trade-gateway/internal/dispatch"
	"trade-gateway/internal/marketdata"
	"trade-gateway/internal/order"
)

// PathPrefix 所有接口的路径前缀。
const PathPrefix = "/qmt/trade/api"

// Deps 为 Server 依赖的组件。
type Deps struct {
	Engine     *dispatch.Engine
	Resolver   *order.Resolver
	Verifier   *auth.Verifier
	Sessions   auth.SessionValidator
	MarketData marketdata.Service
	Journal    Journal
	Notifier   Notifier
	Logger     *zap.Logger
}

// Server 交易网关 HTTP 服务。
type Server struct {
	cfg      config.ServerConfig
	engine   *dispatch.Engine
	resolver *order.Resolver
	market   marketdata.Service
	journal  Journal
	notifier Notifier
	authn    *auth.Middleware
	limiter  *rateLimiter
	logger   *zap.Logger

	router  *mux.Router
	handler http.Handler
	httpSrv *http.Server
}

// NewServer 创建服务并注册路由。
func NewServer(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		engine:   deps.Engine,
		resolver: deps.Resolver,
		market:   deps.MarketData,
		journal:  deps.Journal,
		notifier: deps.Notifier,
		limiter:  newRateLimiter(cfg.RateLimit),
		logger:   logger,
		router:   mux.NewRouter(),
	}
	if s.journal == nil {
		s.journal = nopJournal{}
	}
	if s.notifier == nil {
		s.notifier = nopNotifier{}
	}
	s.authn = auth.NewMiddleware(deps.Verifier, deps.Sessions, s.writeFailure)
	s.setupRoutes()

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", auth.HeaderClientID, auth.HeaderTimestamp, auth.HeaderSignature, headerRequestID},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: len(cfg.AllowedOrigins) > 0,
	})
	s.handler = c.Handler(s.router)
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestID, s.recoverer, limitBody(s.cfg.MaxBodyBytes))
	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, kindNotFound, "接口不存在")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, kindInvalidRequest, "不支持的请求方法")
	})

	api := s.router.PathPrefix(PathPrefix).Subrouter()

	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	// 交易
	api.Handle("/outer/trade/{operation}", s.signed(s.handleOuterTrade)).Methods(http.MethodPost)
	api.Handle("/trade/allin", s.signed(s.handleAllIn)).Methods(http.MethodPost)
	api.Handle("/trade/nhg", s.signed(s.handleReverseRepo)).Methods(http.MethodPost)

	// 账户查询
	api.Handle("/accounts", s.sessionOrSigned(s.handleAccounts)).Methods(http.MethodGet)
	api.Handle("/portfolio/{trader_index}", s.sessionOrSigned(s.handlePortfolio)).Methods(http.MethodGet)
	api.Handle("/positions/{trader_index}", s.sessionOrSigned(s.handlePositions)).Methods(http.MethodGet)

	// 委托管理
	api.Handle("/cancel_orders/buy", s.signed(s.handleCancelAll(order.Buy))).Methods(http.MethodPost)
	api.Handle("/cancel_orders/sale", s.signed(s.handleCancelAll(order.Sell))).Methods(http.MethodPost)
	api.Handle("/cancel_order", s.signed(s.handleCancelOrder)).Methods(http.MethodPost)
	api.Handle("/order", s.signed(s.handleOrder)).Methods(http.MethodPost)
	api.Handle("/orders", s.signed(s.handleOrders)).Methods(http.MethodPost)
	api.Handle("/events", s.signed(s.handleEvents)).Methods(http.MethodGet)
}

func (s *Server) signed(h http.HandlerFunc) http.Handler {
	return s.authn.Require(auth.SignatureOnly)(s.rateLimit(h))
}

func (s *Server) sessionOrSigned(h http.HandlerFunc) http.Handler {
	return s.authn.Require(auth.SessionOrSignature)(s.rateLimit(h))
}

// Handler 返回带 CORS 的根处理器。
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start 启动 HTTP 服务，ctx 结束后优雅关闭。
func (s *Server) Start(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("交易网关已启动", zap.String("addr", s.cfg.Addr()))
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warn("关闭 HTTP 服务失败", zap.Error(err))
		return err
	}
	s.logger.Info("交易网关已停止")
	return nil
}
