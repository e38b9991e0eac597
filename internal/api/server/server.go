package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/xela07ax/requestflow/internal/api/handler"
	"github.com/xela07ax/requestflow/internal/infra"
	"github.com/xela07ax/requestflow/internal/infra/auth"
)

type Server struct {
	router  *chi.Mux
	handler http.Handler
	logger  *zap.Logger
	cfg     *infra.Config

	// Личность: заголовки шлюза или RS256 токен
	resolver auth.IdentityResolver

	requestHandler *handler.RequestHandler // /requests
	metrics        http.Handler            // может быть nil
}

// NewServer собирает HTTP API со всеми зависимостями.
func NewServer(
	cfg *infra.Config,
	logger *zap.Logger,
	resolver auth.IdentityResolver,
	requestH *handler.RequestHandler,
	metricsHandler http.Handler,
) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		logger:         logger.Named("http-api"),
		cfg:            cfg,
		resolver:       resolver,
		requestHandler: requestH,
		metrics:        metricsHandler,
	}

	s.routes()
	s.handler = cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type", "Authorization",
			auth.HeaderUserID, auth.HeaderUserRole, auth.HeaderUserName,
		},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler(s.router)
	return s
}

func (s *Server) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware ---
	r.Use(middleware.RequestID)
	r.Use(exposeRequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	// --- 2. Публичные роуты ---
	r.Group(func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if s.cfg.Metrics.Enabled && s.metrics != nil {
			r.Handle(s.cfg.Metrics.Path, s.metrics)
		}
	})

	// --- 3. Защищённый периметр: без личности дальше не пускаем ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.resolver, s.logger))
		r.Route("/requests", s.requestHandler.Routes)
	})
}

// ServeHTTP позволяет использовать Server как стандартный http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// exposeRequestID возвращает клиенту ID запроса, чтобы его можно было найти в логах.
func exposeRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if id := middleware.GetReqID(r.Context()); id != "" {
			w.Header().Set(middleware.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogger пишет одну строку на запрос в zap вместо стандартного логгера chi.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				logger.Info("http request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())))
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
