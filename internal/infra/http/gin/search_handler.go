package ginserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	gin "github.com/gin-gonic/gin"

	"pricewatch/internal/app/commands"
	"pricewatch/internal/app/dto"
	searchapp "pricewatch/internal/app/handlers/searches"
	"pricewatch/internal/app/middleware"
	"pricewatch/internal/app/queries"
	"pricewatch/internal/app/refresh"
	domainsearches "pricewatch/internal/domain/searches"
)

type SearchHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

var _ SearchHTTP = SearchHandler{}

type searchRequest struct {
	Name        string  `json:"name"`
	URL         string  `json:"url"`
	CleaningFee float64 `json:"cleaningFee"`
}

type scheduleRequest struct {
	Enabled bool `json:"enabled"`
	Times   []struct {
		Time    string `json:"time"`
		Enabled bool   `json:"enabled"`
	} `json:"times"`
}

func (h SearchHandler) List(c *gin.Context) {
	result, err := queries.Ask[searchapp.ListSearchesQuery, dto.SearchCatalog](c.Request.Context(), h.Queries, searchapp.ListSearchesQuery{})
	if err != nil {
		h.handleError(c, err)
		return
	}
	// The dashboard reads a bare array, newest first.
	c.Header("X-Total-Count", strconv.Itoa(result.Total))
	c.JSON(http.StatusOK, result.Items)
}

func (h SearchHandler) Create(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := searchapp.CreateSearchCommand{Name: req.Name, URL: req.URL, CleaningFee: req.CleaningFee}
	result, err := commands.Dispatch[searchapp.CreateSearchCommand, *dto.Search](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Header("Location", fmt.Sprintf("/api/v1/searches/%s", result.ID))
	c.JSON(http.StatusCreated, result)
}

func (h SearchHandler) Get(c *gin.Context) {
	query := searchapp.GetSearchQuery{ID: c.Param("id")}
	result, err := queries.Ask[searchapp.GetSearchQuery, *dto.Search](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SearchHandler) Update(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := searchapp.UpdateSearchCommand{ID: c.Param("id"), Name: req.Name, URL: req.URL, CleaningFee: req.CleaningFee}
	result, err := commands.Dispatch[searchapp.UpdateSearchCommand, *dto.Search](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SearchHandler) Delete(c *gin.Context) {
	cmd := searchapp.DeleteSearchCommand{ID: c.Param("id")}
	result, err := commands.Dispatch[searchapp.DeleteSearchCommand, *dto.Search](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "id": result.ID})
}

// Run acknowledges the trigger. Clients poll Get for the outcome.
func (h SearchHandler) Run(c *gin.Context) {
	cmd := searchapp.RunSearchCommand{ID: c.Param("id")}
	result, err := commands.Dispatch[searchapp.RunSearchCommand, dto.RefreshAccepted](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, result)
}

func (h SearchHandler) UpdateSchedule(c *gin.Context) {
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondWithError(c, http.StatusBadRequest, err)
		return
	}
	cmd := searchapp.UpdateScheduleCommand{ID: c.Param("id"), Enabled: req.Enabled}
	for _, t := range req.Times {
		cmd.Times = append(cmd.Times, searchapp.ScheduleTimeInput{Time: t.Time, Enabled: t.Enabled})
	}
	result, err := commands.Dispatch[searchapp.UpdateScheduleCommand, *dto.Search](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h SearchHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domainsearches.ErrNotFound):
		h.respondWithError(c, http.StatusNotFound, err)
	case errors.Is(err, refresh.ErrInProgress):
		h.respondWithError(c, http.StatusConflict, err)
	case errors.Is(err, refresh.ErrShuttingDown), errors.Is(err, searchapp.ErrRefresherUnavailable):
		h.respondWithError(c, http.StatusServiceUnavailable, err)
	case isValidationError(err):
		h.respondWithError(c, http.StatusBadRequest, err)
	default:
		h.respondWithError(c, http.StatusInternalServerError, err)
	}
}

func (h SearchHandler) respondWithError(c *gin.Context, status int, err error) {
	if h.Logger != nil {
		fields := []any{"status", status, "error", err, "path", c.FullPath()}
		if id := c.Param("id"); id != "" {
			fields = append(fields, "search_id", id)
		}
		if status >= http.StatusInternalServerError {
			h.Logger.Error("search request failed", fields...)
		} else {
			h.Logger.Warn("search request rejected", fields...)
		}
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"success": false, "error": err.Error()})
}

func isValidationError(err error) bool {
	for _, target := range []error{
		middleware.ErrValidation,
		domainsearches.ErrIDRequired,
		domainsearches.ErrNameRequired,
		domainsearches.ErrURLRequired,
		domainsearches.ErrNegativeFee,
		domainsearches.ErrTooManyScheduleTimes,
		domainsearches.ErrInvalidScheduleTime,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
