package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"todochat/internal/chat"
	"todochat/internal/events"
	"todochat/internal/repo"
	todosdk "todochat/sdk/go"
)

// Config for the HTTP API handler.
type Config struct {
	// Repo backs the task routes when Upstream is empty.
	Repo repo.Repo
	// Upstream, when set, is the base path of another task store; task
	// routes are forwarded there instead of served locally.
	Upstream      string
	UpstreamToken string
	BasePath      string
	Auth          AuthConfig
	// Bus carries per-user change notifications to event streams. Created when nil.
	Bus      *events.Bus
	Registry *prometheus.Registry
	Logger   *zap.Logger

	ListLimit       int
	SessionTTL      time.Duration
	SessionCapacity int
}

// Server is the todochat HTTP API.
type Server struct {
	handler  http.Handler
	bus      *events.Bus
	sessions *sessionRegistry
}

type apiError struct {
	status int
	Detail string   `json:"detail"`
	Errors []string `json:"errors,omitempty"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Detail }

// New builds the API handler.
func New(cfg Config) (*Server, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/api"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	basePath = strings.TrimSuffix(basePath, "/")
	if cfg.Upstream == "" && cfg.Repo.DB == nil {
		return nil, fmt.Errorf("server needs a database or an upstream store")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}
	if cfg.Bus == nil {
		cfg.Bus = events.NewBus(cfg.Registry)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.SessionCapacity <= 0 {
		cfg.SessionCapacity = 1000
	}

	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, msg, errs...)
	}

	var store chat.Store
	var upstream *storeProxy
	if cfg.Upstream != "" {
		p, err := newStoreProxy(cfg.Upstream, cfg.UpstreamToken, basePath, cfg.Bus, cfg.Logger)
		if err != nil {
			return nil, err
		}
		upstream = p
		client := todosdk.New(cfg.Upstream)
		client.BearerToken = cfg.UpstreamToken
		store = client
	} else {
		store = repoStore{repo: cfg.Repo}
	}

	metrics := chat.NewMetrics(cfg.Registry)
	sessions, err := newSessionRegistry(cfg.SessionCapacity, cfg.SessionTTL, func(userID string) *chat.Session {
		return chat.New(chat.Config{
			UserID:    userID,
			Store:     store,
			Bus:       cfg.Bus,
			Topic:     events.UserTopic(userID),
			ListLimit: cfg.ListLimit,
			Logger:    cfg.Logger.Named("chat"),
			Metrics:   metrics,
		})
	})
	if err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(cfg.Logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	router.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))

	hcfg := huma.DefaultConfig("todochat API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	mode := "local"
	if upstream != nil {
		mode = "proxy"
		router.Handle(basePath+"/{user_id}/tasks", upstream)
		router.Handle(basePath+"/{user_id}/tasks/*", upstream)
	} else {
		registerTasks(group, cfg.Repo, cfg.Bus)
		registerHistory(group, cfg.Repo)
	}
	registerHealth(group, mode)
	registerChat(group, sessions)
	registerStream(group, cfg.Bus)

	return &Server{handler: router, bus: cfg.Bus, sessions: sessions}, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// Bus returns the bus event streams subscribe to.
func (s *Server) Bus() *events.Bus { return s.bus }

// Close releases the session cache.
func (s *Server) Close() {
	s.sessions.close()
}

func newAPIError(status int, detail string, errs ...error) huma.StatusError {
	e := &apiError{status: status, Detail: detail}
	for _, err := range errs {
		if err != nil {
			e.Errors = append(e.Errors, err.Error())
		}
	}
	return e
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var verr *repo.ValidationError
	switch {
	case errors.As(err, &verr):
		return newAPIError(http.StatusUnprocessableEntity, verr.Message)
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "Task not found")
	default:
		return newAPIError(http.StatusInternalServerError, "internal error")
	}
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)))
		})
	}
}
