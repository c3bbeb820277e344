// Package api exposes the prediction service over HTTP and WebSocket.
package api

import (
	"crypto/rand"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	cache "github.com/patrickmn/go-cache"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MadBale/Mewsage-project/internal/archive"
	"github.com/MadBale/Mewsage-project/internal/catsound"
	"github.com/MadBale/Mewsage-project/internal/conf"
	"github.com/MadBale/Mewsage-project/internal/datastore"
	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
	"github.com/MadBale/Mewsage-project/internal/melspec"
	"github.com/MadBale/Mewsage-project/internal/observability"
	"github.com/MadBale/Mewsage-project/internal/offload"
)

// Controller ties the HTTP surface to the cascade, ledger and archive.
type Controller struct {
	Echo              *echo.Echo
	DS                datastore.Interface
	Settings          *conf.Settings
	Archive           *archive.Archive
	Extractor         *melspec.Extractor
	RealtimeExtractor *melspec.Extractor
	Cascade           *catsound.Cascade
	Pool              *offload.Pool
	Metrics           *observability.Metrics

	historyCache *cache.Cache
	logger       *slog.Logger
}

// New creates the controller and registers all routes on a fresh Echo
// instance.
func New(settings *conf.Settings, ds datastore.Interface, arch *archive.Archive,
	extractor, realtimeExtractor *melspec.Extractor, cascade *catsound.Cascade,
	pool *offload.Pool, metrics *observability.Metrics) *Controller {

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
	}))
	e.Use(middleware.BodyLimit("10M"))

	c := &Controller{
		Echo:              e,
		DS:                ds,
		Settings:          settings,
		Archive:           arch,
		Extractor:         extractor,
		RealtimeExtractor: realtimeExtractor,
		Cascade:           cascade,
		Pool:              pool,
		Metrics:           metrics,
		historyCache: cache.New(30*time.Second, time.Minute),
		logger:       logging.ForService("api"),
	}
	c.initRoutes()
	return c
}

func (c *Controller) initRoutes() {
	c.Echo.POST("/predict", c.Predict)
	c.Echo.POST("/realtime_predict", c.RealtimePredict)
	c.Echo.GET("/ws/realtime_predict", c.RealtimeWebSocket)
	c.Echo.GET("/api/history", c.GetHistory)
	c.Echo.DELETE("/api/history/delete", c.DeleteHistory)
	c.Echo.GET("/static/audio/:filename", c.ServeAudioClip)
	if c.Metrics != nil && c.Settings.WebServer.Metrics {
		c.Echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(
			c.Metrics.Registry(), promhttp.HandlerOpts{})))
	}
}

// ErrorResponse is the uniform JSON error body.
type ErrorResponse struct {
	Error         string `json:"error"`
	Message       string `json:"message"`
	Code          int    `json:"code"`
	CorrelationID string `json:"correlation_id"`
}

// NewErrorResponse creates an API error response with a fresh correlation
// id for log cross-referencing. Server-fault responses carry only the
// status text; the underlying error stays in the log entry sharing the
// same correlation id.
func NewErrorResponse(err error, message string, code int) *ErrorResponse {
	errorStr := message
	switch {
	case code >= http.StatusInternalServerError:
		errorStr = strings.ToLower(http.StatusText(code))
	case err != nil:
		errorStr = err.Error()
	}
	return &ErrorResponse{
		Error:         errorStr,
		Message:       message,
		Code:          code,
		CorrelationID: generateCorrelationID(),
	}
}

const correlationIDLength = 8

func generateCorrelationID() string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	id := make([]byte, correlationIDLength)
	randomBytes := make([]byte, correlationIDLength)
	if _, err := rand.Read(randomBytes); err != nil {
		return time.Now().UTC().Format("150405.000")
	}
	for i, b := range randomBytes {
		id[i] = charset[int(b)%len(charset)]
	}
	return string(id)
}

// HandleError logs err and writes the uniform error body with the given
// status code.
func (c *Controller) HandleError(ctx echo.Context, err error, message string, code int) error {
	resp := NewErrorResponse(err, message, code)
	c.logger.Error("request failed",
		"correlation_id", resp.CorrelationID,
		"message", message,
		"code", code,
		"ip", ctx.RealIP(),
		"path", ctx.Request().URL.Path,
		"error", err)
	return ctx.JSON(code, resp)
}

// HandleCategorizedError maps the error's category to an HTTP status.
func (c *Controller) HandleCategorizedError(ctx echo.Context, err error, message string) error {
	return c.HandleError(ctx, err, message, statusForError(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, errPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.IsCategory(err, errors.CategoryInvalidAudio),
		errors.IsCategory(err, errors.CategoryValidation):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsConflict(err):
		return http.StatusConflict
	case errors.IsTimeout(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Start runs the HTTP server until it fails or is shut down.
func (c *Controller) Start(address string) error {
	return c.Echo.Start(address)
}
