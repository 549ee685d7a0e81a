package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/CZERTAINLY/leadseeker/internal/model"
	"github.com/CZERTAINLY/leadseeker/internal/searchlock"
	"github.com/CZERTAINLY/leadseeker/internal/session"
	"github.com/CZERTAINLY/leadseeker/internal/store"

	"github.com/labstack/echo/v4"
)

type startRequest struct {
	Kind    model.SearchKind    `json:"kind"`
	Filters model.SearchFilters `json:"filters"`
}

type startResponse struct {
	ID string `json:"id"`
}

type conflictResponse struct {
	Message string           `json:"message"`
	Holder  model.SearchKind `json:"holder"`
}

func (s *Server) startSearch(c echo.Context) error {
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	id, err := s.searches.StartSearch(c.Request().Context(), req.Kind, req.Filters)
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/v1/searches/"+id)
	return c.JSON(http.StatusAccepted, startResponse{ID: id})
}

func (s *Server) listSearches(c echo.Context) error {
	return c.JSON(http.StatusOK, s.searches.List())
}

func (s *Server) getSearch(c echo.Context) error {
	snap, err := s.searches.Snapshot(c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) cancelSearch(c echo.Context) error {
	id := c.Param("id")
	if err := s.searches.Cancel(id); err != nil {
		return httpError(err)
	}
	snap, err := s.searches.Snapshot(id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) clearSearch(c echo.Context) error {
	if err := s.searches.Clear(c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// searchEvents streams snapshots of a search until it reaches a terminal
// status or the client goes away. A slow client gets the latest snapshot
// only, intermediate ones are skipped.
func (s *Server) searchEvents(c echo.Context) error {
	var (
		mx      sync.Mutex
		latest  model.Snapshot
		pending = make(chan struct{}, 1)
	)
	unsubscribe, err := s.searches.Subscribe(c.Param("id"), func(snap model.Snapshot) {
		mx.Lock()
		latest = snap
		mx.Unlock()
		select {
		case pending <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return httpError(err)
	}
	defer unsubscribe()

	ctx := c.Request().Context()
	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if _, err := w.Write([]byte(": heartbeat\n\n")); err != nil {
				slog.DebugContext(ctx, "event stream client disconnected", "error", err)
				return nil
			}
			w.Flush()
		case <-pending:
			mx.Lock()
			snap := latest
			mx.Unlock()
			if err := writeSnapshot(w, snap); err != nil {
				slog.DebugContext(ctx, "event stream client disconnected", "error", err)
				return nil
			}
			w.Flush()
			if snap.Status.Terminal() {
				return nil
			}
		}
	}
}

func writeSnapshot(w *echo.Response, snap model.Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", b)
	return err
}

// httpError maps domain errors to HTTP status codes.
func httpError(err error) error {
	var conflict *searchlock.ConflictError
	switch {
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, conflictResponse{
			Message: conflict.Error(),
			Holder:  conflict.Holder,
		}).SetInternal(err)
	case errors.Is(err, model.ErrInvalidKind):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	case errors.Is(err, session.ErrNotFound),
		errors.Is(err, store.ErrNotFound),
		errors.Is(err, model.ErrUnknownSchedule):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, session.ErrNotTerminal):
		return echo.NewHTTPError(http.StatusConflict, err.Error()).SetInternal(err)
	case errors.Is(err, model.ErrUnsupportedKind):
		return echo.NewHTTPError(http.StatusNotImplemented, err.Error()).SetInternal(err)
	case errors.Is(err, session.ErrClosed):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error()).SetInternal(err)
	default:
		return err
	}
}
