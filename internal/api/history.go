package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

func (s *Server) listSchedules(c echo.Context) error {
	return c.JSON(http.StatusOK, s.schedules.Schedules())
}

// runSchedule triggers a schedule out of its time, subject to the search
// lock like any other start.
func (s *Server) runSchedule(c echo.Context) error {
	id, err := s.schedules.Run(c.Request().Context(), c.Param("name"))
	if err != nil {
		return httpError(err)
	}
	c.Response().Header().Set(echo.HeaderLocation, "/v1/searches/"+id)
	return c.JSON(http.StatusAccepted, startResponse{ID: id})
}

func (s *Server) listHistory(c echo.Context) error {
	snaps, err := s.history.List(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snaps)
}

func (s *Server) getHistory(c echo.Context) error {
	snap, err := s.history.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (s *Server) deleteHistory(c echo.Context) error {
	if err := s.history.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
