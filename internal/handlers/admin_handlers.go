package handlers

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/epeers/netnet/internal/checkpoint"
	"github.com/epeers/netnet/internal/jquants"
	"github.com/epeers/netnet/internal/models"
	"github.com/epeers/netnet/internal/services"
	"github.com/epeers/netnet/internal/util"
)

// UniverseFunc returns the default ticker universe for a collection run.
type UniverseFunc func(ctx context.Context) ([]models.Ticker, error)

// AdminHandler triggers collection and screening runs. Only one run may be
// in progress at a time.
type AdminHandler struct {
	fetchSvc  *services.FetchService
	screenSvc *services.ScreeningService
	dataset   *checkpoint.Dataset
	universe  UniverseFunc

	busy sync.Mutex
}

// NewAdminHandler creates a new AdminHandler
func NewAdminHandler(fetchSvc *services.FetchService, screenSvc *services.ScreeningService, dataset *checkpoint.Dataset, universe UniverseFunc) *AdminHandler {
	return &AdminHandler{
		fetchSvc:  fetchSvc,
		screenSvc: screenSvc,
		dataset:   dataset,
		universe:  universe,
	}
}

// Collect handles POST /admin/collect
// The universe comes from a JSON body {"tickers": [...]}, a multipart CSV
// upload in field "file", or the configured default when neither is given.
// @Summary Collect fundamentals
// @Description Fetch and checkpoint every requested ticker not yet collected
// @Tags admin
// @Accept json,mpfd
// @Produce json
// @Param request body models.CollectRequest false "Tickers to collect"
// @Param file formData file false "CSV with a ticker or code column"
// @Success 200 {object} models.CollectResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Failure 502 {object} models.ErrorResponse
// @Router /admin/collect [post]
func (h *AdminHandler) Collect(c *gin.Context) {
	if !h.busy.TryLock() {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "busy",
			Message: "another admin run is in progress",
		})
		return
	}
	defer h.busy.Unlock()

	ctx := c.Request.Context()
	tickers, err := requestTickers(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}
	if len(tickers) == 0 {
		if h.universe == nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Error:   "invalid_request",
				Message: "no tickers given and no default universe configured",
			})
			return
		}
		tickers, err = h.universe(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Error:   "internal_error",
				Message: err.Error(),
			})
			return
		}
	}

	summary, err := h.fetchSvc.Run(ctx, tickers, h.dataset)
	if err != nil {
		status := http.StatusInternalServerError
		if jquants.IsFatal(err) {
			status = http.StatusBadGateway
		}
		log.Errorf("Collection failed: %v", err)
		c.JSON(status, models.ErrorResponse{
			Error:   "collection_failed",
			Message: err.Error(),
		})
		return
	}

	failed := summary.FailedTickers()
	sort.Strings(failed)
	c.JSON(http.StatusOK, models.CollectResponse{
		Requested: summary.Requested,
		Skipped:   summary.AlreadyCollected,
		Succeeded: summary.Succeeded,
		Failed:    failed,
	})
}

// Screen handles POST /admin/screen?date=YYYY-MM-DD
// Every collected ticker is screened as of date. Pass verbose=true to
// include the individual skips in the response.
// @Summary Screen for net-nets
// @Tags admin
// @Produce json
// @Param date query string true "Analysis date (YYYY-MM-DD)"
// @Param verbose query bool false "Include skipped tickers"
// @Success 200 {object} models.ScreenResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /admin/screen [post]
func (h *AdminHandler) Screen(c *gin.Context) {
	date, err := util.ParseDate(c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "date must be in YYYY-MM-DD format",
		})
		return
	}

	if !h.busy.TryLock() {
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "busy",
			Message: "another admin run is in progress",
		})
		return
	}
	defer h.busy.Unlock()

	summary, err := h.screenSvc.ScreenDate(c.Request.Context(), "", date, h.dataset.Tickers())
	if err != nil {
		status := http.StatusInternalServerError
		if jquants.IsFatal(err) {
			status = http.StatusBadGateway
		}
		c.JSON(status, models.ErrorResponse{
			Error:   "screening_failed",
			Message: err.Error(),
		})
		return
	}

	resp := models.ScreenResponse{
		RunID:        summary.RunID,
		AnalysisDate: models.FlexibleDate{Time: summary.AnalysisDate},
		Screened:     summary.Screened,
		NetNets:      len(summary.NetNets),
		Written:      summary.Written,
		FileRows:     summary.FileRows,
		SkipCounts:   summary.SkipCounts,
	}
	if c.Query("verbose") == "true" {
		resp.Skips = summary.Skips
	}
	c.JSON(http.StatusOK, resp)
}

// requestTickers extracts an explicit universe from the request, if any.
func requestTickers(c *gin.Context) ([]models.Ticker, error) {
	if c.ContentType() == "multipart/form-data" {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, err
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return ParseTickerCSV(f)
	}

	if c.Request.Body == nil || c.Request.ContentLength == 0 {
		return nil, nil
	}
	var req models.CollectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return nil, err
	}
	tickers := make([]models.Ticker, 0, len(req.Tickers))
	for _, raw := range req.Tickers {
		t, err := models.NormalizeTicker(raw)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, t)
	}
	if len(req.Tickers) > 0 && len(tickers) == 0 {
		return nil, errors.New("no valid tickers")
	}
	return models.DedupeTickers(tickers), nil
}
