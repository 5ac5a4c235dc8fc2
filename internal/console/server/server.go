package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/blipee-dev/blipee-orchestrator/internal/console/handler"
	"github.com/blipee-dev/blipee-orchestrator/internal/console/service"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra"
	"github.com/blipee-dev/blipee-orchestrator/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger
	cfg    *infra.Config

	// Проверка RS256 токенов; реализуется через embedding BaseValidator
	// в ConsoleService
	validator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler     *handler.AuthHandler      // /auth/token
	agentHandler    *handler.AgentHandler     // /v1/agents
	approvalHandler *handler.ApprovalHandler  // /v1/approvals (HITL)
	dashHandler     *handler.DashboardHandler // /api/v1/dashboard
	auditHandler    *handler.AuditHandler     // /v1/audit
	messageHandler  *handler.MessageHandler   // /v1/messages
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	consoleService *service.ConsoleService,
	authH *handler.AuthHandler,
	agentH *handler.AgentHandler,
	approvalH *handler.ApprovalHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
	messageH *handler.MessageHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:          chi.NewRouter(),
		logger:          logger.Named("console-api"),
		cfg:             cfg,
		validator:       consoleService,
		authHandler:     authH,
		agentHandler:    agentH,
		approvalHandler: approvalH,
		dashHandler:     dashH,
		auditHandler:    auditH,
		messageHandler:  messageH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		// Логин доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЗАЩИЩЕННЫЙ ПЕРИМЕТР (RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.validator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.GetStats)

		// Парк агентов: снэпшот и команды start/stop.
		// Команды управления — отдельный скоуп: читать дашборд может любой
		// оператор, дергать инстансы — нет
		r.Route("/v1/agents", func(r chi.Router) {
			r.Get("/", s.agentHandler.List)
			r.Route("/{org}/{agentType}", func(r chi.Router) {
				r.Use(auth.RequireScope("agents.control", s.logger))
				r.Post("/start", s.agentHandler.Start)
				r.Post("/stop", s.agentHandler.Stop)
			})
		})

		// Human-in-the-loop (Decision Queue)
		r.Route("/v1/approvals", func(r chi.Router) {
			r.Get("/", s.approvalHandler.List)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.approvalHandler.GetDetails)
				// Резолюция — только для операторов со скоупом принятия решений
				r.With(auth.RequireScope("approvals.decide", s.logger)).
					Post("/decide", s.approvalHandler.Decide) // Approve/Deny + Redis Publish
			})
		})

		// След действий и проактивные сообщения
		r.Get("/v1/audit", s.auditHandler.GetLogs)
		r.Get("/v1/messages", s.messageHandler.List)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
