package notifications

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/escrowpi/escrowpi/internal/auth"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/validation"
)

// Handler provides HTTP endpoints for the viewer's inbox.
type Handler struct {
	service *Service
}

// NewHandler creates a new notification handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up notification routes. Every route needs a
// viewer, and a viewer only ever sees their own inbox.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.List)
	r.PUT("/notifications/:id", h.Toggle)
}

func writeError(c *gin.Context, err error) {
	var verrs validation.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_error", "message": err.Error(), "details": verrs})
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	default:
		logging.L(c.Request.Context()).Error("notification request failed", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "collaborator_failure", "message": "notification store unavailable"})
	}
}

func queryInt(c *gin.Context, name string) (int, *validation.ValidationError) {
	v := c.Query(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, &validation.ValidationError{Field: name, Message: "must be a non-negative integer"}
	}
	return n, nil
}

// List handles GET /v1/notifications?status=&skip=&limit=
func (h *Handler) List(c *gin.Context) {
	status, statusErr := ParseStatus(c.Query("status"))
	skip, skipErr := queryInt(c, "skip")
	limit, limitErr := queryInt(c, "limit")
	if errs := validation.Validate(
		func() *validation.ValidationError {
			if statusErr != nil {
				return &validation.ValidationError{Field: "status", Message: "must be cleared or uncleared"}
			}
			return nil
		},
		func() *validation.ValidationError { return skipErr },
		func() *validation.ValidationError { return limitErr },
	); len(errs) > 0 {
		writeError(c, errs)
		return
	}

	page, err := h.service.List(c.Request.Context(), auth.GetUsername(c), status, skip, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": page.Notifications,
		"count":         len(page.Notifications),
		"uncleared":     page.Uncleared,
	})
}

// Toggle handles PUT /v1/notifications/:id
func (h *Handler) Toggle(c *gin.Context) {
	n, err := h.service.Toggle(c.Request.Context(), c.Param("id"), auth.GetUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notification": n})
}
