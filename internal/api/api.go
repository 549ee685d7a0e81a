// Package api exposes searches over HTTP. Snapshots of a running search
// are re-broadcast to clients as a text/event-stream.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/log"
	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/session"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const (
	defaultHeartbeat = 15 * time.Second
	shutdownTimeout  = 5 * time.Second
)

// Searches is the search manager as seen by the API.
type Searches interface {
	StartSearch(ctx context.Context, kind model.SearchKind, filters model.SearchFilters) (string, error)
	Cancel(id string) error
	Snapshot(id string) (model.Snapshot, error)
	Clear(id string) error
	Subscribe(id string, fn session.Subscriber) (func(), error)
	List() []model.Snapshot
}

type Lock interface {
	Active() (model.SearchKind, bool)
	DescribeConflict() string
}

type Schedules interface {
	Schedules() []model.ScheduleStatus
	Run(ctx context.Context, name string) (string, error)
}

// History reads persisted searches.
type History interface {
	Get(ctx context.Context, id string) (model.Snapshot, error)
	List(ctx context.Context) ([]model.Snapshot, error)
	Delete(ctx context.Context, id string) error
}

type Option func(*Server)

func WithSchedules(s Schedules) Option {
	return func(srv *Server) { srv.schedules = s }
}

func WithHistory(h History) Option {
	return func(srv *Server) { srv.history = h }
}

// WithHeartbeat sets the interval of keep-alive comments on event streams.
func WithHeartbeat(d time.Duration) Option {
	return func(srv *Server) { srv.heartbeat = d }
}

type Server struct {
	echo      *echo.Echo
	searches  Searches
	lock      Lock
	schedules Schedules
	history   History
	heartbeat time.Duration
}

func New(searches Searches, lock Lock, opts ...Option) *Server {
	s := &Server{
		searches:  searches,
		lock:      lock,
		heartbeat: defaultHeartbeat,
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())

	v1 := e.Group("/v1")
	v1.GET("/health", s.health)
	v1.GET("/lock", s.getLock)

	v1.POST("/searches", s.startSearch)
	v1.GET("/searches", s.listSearches)
	v1.GET("/searches/:id", s.getSearch)
	v1.POST("/searches/:id/cancel", s.cancelSearch)
	v1.DELETE("/searches/:id", s.clearSearch)
	v1.GET("/searches/:id/events", s.searchEvents)

	if s.schedules != nil {
		v1.GET("/schedules", s.listSchedules)
		v1.POST("/schedules/:name/run", s.runSchedule)
	}
	if s.history != nil {
		v1.GET("/history", s.listHistory)
		v1.GET("/history/:id", s.getHistory)
		v1.DELETE("/history/:id", s.deleteHistory)
	}

	s.echo = e
	return s
}

func (s *Server) Handler() http.Handler {
	return s.echo
}

// Serve listens on addr until ctx is cancelled. Open event streams are
// closed on shutdown.
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errs := make(chan error, 1)
	go func() {
		errs <- srv.Serve(ln)
	}()
	slog.InfoContext(ctx, "api listening", "addr", ln.Addr().String())

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errs; !errors.Is(serveErr, http.ErrServerClosed) {
		err = errors.Join(err, serveErr)
	}
	return err
}

func requestLogger() echo.MiddlewareFunc {
	logRequest := middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			level := slog.LevelDebug
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				if v.Status >= http.StatusInternalServerError {
					level = slog.LevelError
				}
			}
			slog.LogAttrs(c.Request().Context(), level, "request", attrs...)
			return nil
		},
	})
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		withContext := func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(log.ContextAttrs(req.Context(), slog.String("request_id", id))))
			return next(c)
		}
		return logRequest(withContext)
	}
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type lockResponse struct {
	Locked  bool             `json:"locked"`
	Kind    model.SearchKind `json:"kind,omitempty"`
	Message string           `json:"message,omitempty"`
}

func (s *Server) getLock(c echo.Context) error {
	kind, ok := s.lock.Active()
	return c.JSON(http.StatusOK, lockResponse{
		Locked:  ok,
		Kind:    kind,
		Message: s.lock.DescribeConflict(),
	})
}
