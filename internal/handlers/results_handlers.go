package handlers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/output"
	"github.com/epeers/netnet/internal/util"
)

// ResultsReader reads stored screening results.
type ResultsReader interface {
	ListByDate(ctx context.Context, date time.Time) ([]models.ScreeningResult, error)
	ListDates(ctx context.Context) ([]time.Time, error)
}

// ResultsHandler serves screening results from Postgres when available and
// from the results CSV otherwise.
type ResultsHandler struct {
	repo      ResultsReader
	outputDir string
}

// NewResultsHandler creates a new ResultsHandler. repo may be nil.
func NewResultsHandler(repo ResultsReader, outputDir string) *ResultsHandler {
	return &ResultsHandler{repo: repo, outputDir: outputDir}
}

// Dates handles GET /results
// @Summary List analysis dates with results
// @Tags results
// @Produce json
// @Success 200 {object} models.ResultDatesResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /results [get]
func (h *ResultsHandler) Dates(c *gin.Context) {
	var (
		resp  models.ResultDatesResponse
		dates []time.Time
		err   error
	)
	if h.repo != nil {
		resp.Source = "postgres"
		dates, err = h.repo.ListDates(c.Request.Context())
	} else {
		resp.Source = "csv"
		dates, err = output.ResultDates(h.outputDir)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}
	resp.Dates = make([]models.FlexibleDate, 0, len(dates))
	for _, d := range dates {
		resp.Dates = append(resp.Dates, models.FlexibleDate{Time: d})
	}
	c.JSON(http.StatusOK, resp)
}

// Get handles GET /results/:date
// @Summary Get screening results
// @Tags results
// @Produce json
// @Param date path string true "Analysis date (YYYY-MM-DD)"
// @Success 200 {object} models.ResultsResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /results/{date} [get]
func (h *ResultsHandler) Get(c *gin.Context) {
	date, err := util.ParseDate(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "date must be in YYYY-MM-DD format",
		})
		return
	}

	resp := models.ResultsResponse{AnalysisDate: models.FlexibleDate{Time: date}}
	if h.repo != nil {
		resp.Source = "postgres"
		resp.Results, err = h.repo.ListByDate(c.Request.Context(), date)
	} else {
		resp.Source = "csv"
		resp.Results, err = h.readCSV(date)
		if errors.Is(err, os.ErrNotExist) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Error:   "not_found",
				Message: "no results for " + util.FormatDate(date),
			})
			return
		}
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: err.Error(),
		})
		return
	}
	if resp.Results == nil {
		resp.Results = []models.ScreeningResult{}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *ResultsHandler) readCSV(date time.Time) ([]models.ScreeningResult, error) {
	f, err := os.Open(output.ResultsPath(h.outputDir, date))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseScreeningCSV(f)
}
