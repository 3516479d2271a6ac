package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MrChuw/scrcpy-manager/models"
	"github.com/MrChuw/scrcpy-manager/service"
)

// commandTimeout bounds how long an API caller waits for the session loop.
const commandTimeout = 2 * time.Minute

var errHistoryDisabled = errors.New("history is disabled")

// Controller is the session surface the API drives.
type Controller interface {
	Snapshot() models.SessionStatus
	Submit(ctx context.Context, line string) (models.CommandResult, error)
	RestartWindow(ctx context.Context, alias string) (models.CommandResult, error)
}

// HistoryReader returns recorded session events, newest first.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]models.Event, error)
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, models.SuccessResponse(gin.H{
		"status":  "ok",
		"message": "scrcpy manager is running",
	}))
}

// GetSession returns the current session snapshot
func GetSession(c *gin.Context, ctrl Controller) {
	c.JSON(http.StatusOK, models.SuccessResponse(ctrl.Snapshot()))
}

// GetWindows returns the supervised windows
func GetWindows(c *gin.Context, ctrl Controller) {
	c.JSON(http.StatusOK, models.SuccessResponse(ctrl.Snapshot().Windows))
}

func GetHistory(c *gin.Context, history HistoryReader) {
	if history == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse(errHistoryDisabled))
		return
	}
	limit := service.DefaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse(errors.New("limit must be a positive integer")))
			return
		}
		limit = n
	}
	events, err := history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, models.SuccessResponse(events))
}

// PostCommand queues one interactive command line for the session
func PostCommand(c *gin.Context, ctrl Controller) {
	var req models.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err))
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	result, err := ctrl.Submit(ctx, req.Command)
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, models.CommandResponse(result))
}

func RestartWindow(c *gin.Context, ctrl Controller) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), commandTimeout)
	defer cancel()

	result, err := ctrl.RestartWindow(ctx, c.Param("alias"))
	if err != nil {
		c.JSON(statusFor(err), models.ErrorResponse(err))
		return
	}
	c.JSON(http.StatusOK, models.CommandResponse(result))
}

func statusFor(err error) int {
	var connErr *service.ConnectionError
	switch {
	case errors.Is(err, service.ErrUnknownCommand):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnknownWindow):
		return http.StatusNotFound
	case errors.Is(err, service.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &connErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
