package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/MadBale/Mewsage-project/internal/errors"
)

const defaultHistoryLimit = 10

// HistoryResponse is one ledger row as returned by GET /api/history.
type HistoryResponse struct {
	ID         string  `json:"id"`
	Timestamp  string  `json:"timestamp"`
	Filename   string  `json:"filename"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
	AudioURL   string  `json:"audio_url"`
}

// DeleteRequest is the body of DELETE /api/history/delete.
type DeleteRequest struct {
	IDs []string `json:"ids"`
}

// DeleteResponse reports how many rows a delete removed.
type DeleteResponse struct {
	Success      bool   `json:"success"`
	DeletedCount int64  `json:"deleted_count"`
	Message      string `json:"message"`
}

// GetHistory returns the most recent predictions, newest first. Responses
// are cached briefly since the history view polls.
func (c *Controller) GetHistory(ctx echo.Context) error {
	limit := defaultHistoryLimit
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			return c.HandleError(ctx, err, "Invalid limit parameter", http.StatusBadRequest)
		}
		limit = parsed
	}

	cacheKey := fmt.Sprintf("history-%d", limit)
	if cached, found := c.historyCache.Get(cacheKey); found {
		return ctx.JSON(http.StatusOK, cached)
	}

	predictions, err := c.DS.GetRecent(limit)
	if c.Metrics != nil {
		c.Metrics.Datastore.RecordOperation("get_recent", err)
	}
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Failed to load history")
	}

	items := make([]HistoryResponse, 0, len(predictions))
	for i := range predictions {
		p := &predictions[i]
		items = append(items, HistoryResponse{
			ID:         p.ID,
			Timestamp:  p.Timestamp.UTC().Format(time.RFC3339),
			Filename:   p.Filename,
			Prediction: p.Prediction,
			Confidence: p.Confidence,
			AudioURL:   "/static/audio/" + p.Filename,
		})
	}

	c.historyCache.SetDefault(cacheKey, items)
	return ctx.JSON(http.StatusOK, items)
}

// DeleteHistory removes the given prediction ids from the ledger.
func (c *Controller) DeleteHistory(ctx echo.Context) error {
	var req DeleteRequest
	if err := ctx.Bind(&req); err != nil {
		return c.HandleError(ctx, err, "Invalid request body", http.StatusBadRequest)
	}
	if len(req.IDs) == 0 {
		err := errors.Newf("no ids provided").
			Component("api").
			Category(errors.CategoryValidation).
			Build()
		return c.HandleCategorizedError(ctx, err, "No ids provided")
	}

	deleted, err := c.DS.DeleteByIDs(req.IDs)
	if c.Metrics != nil {
		c.Metrics.Datastore.RecordOperation("delete", err)
	}
	if err != nil {
		return c.HandleCategorizedError(ctx, err, "Failed to delete history")
	}
	c.historyCache.Flush()

	return ctx.JSON(http.StatusOK, &DeleteResponse{
		Success:      true,
		DeletedCount: deleted,
		Message:      fmt.Sprintf("Deleted %d items", deleted),
	})
}
