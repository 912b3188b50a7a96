package orders

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/escrowpi/escrowpi/internal/auth"
	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/logging"
	"github.com/escrowpi/escrowpi/internal/validation"
)

// Handler provides HTTP endpoints for orders.
type Handler struct {
	service *Service
}

// NewHandler creates a new order handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up order routes. Every route needs a viewer.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/orders", h.ListOrders)
	r.POST("/orders", h.CreateOrder)
	r.GET("/orders/:id", h.GetOrder)
	r.POST("/orders/:id/actions", h.Act)
	r.POST("/orders/:id/dispute/propose", h.ProposeRefund)
	r.POST("/orders/:id/dispute/accept", h.AcceptRefund)
	r.POST("/orders/:id/dispute/withdraw", h.WithdrawProposal)
	r.POST("/orders/:id/dispute/decline", h.DeclineProposal)
	r.GET("/orders/:id/comments", h.ListComments)
	r.POST("/orders/:id/comments", h.AddComment)
}

// writeError maps a service error onto a JSON error response.
func writeError(c *gin.Context, err error) {
	kind := ErrorKind(err)
	status := HTTPStatus(kind)
	body := gin.H{"error": kind, "message": err.Error()}

	var verrs validation.ValidationErrors
	if errors.As(err, &verrs) {
		body["details"] = verrs
	}
	if status >= http.StatusInternalServerError {
		logging.L(c.Request.Context()).Error("order request failed", "error", err)
		if kind == KindInternal {
			body["message"] = "internal error"
		}
	}
	c.JSON(status, body)
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return false
	}
	return true
}

// ListOrders handles GET /v1/orders?limit=&cursor=
func (h *Handler) ListOrders(c *gin.Context) {
	limit := DefaultListLimit
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.service.List(c.Request.Context(), auth.GetUsername(c), c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orders":     page.Orders,
		"count":      len(page.Orders),
		"nextCursor": page.NextCursor,
		"hasMore":    page.NextCursor != "",
	})
}

// CreateOrder handles POST /v1/orders
func (h *Handler) CreateOrder(c *gin.Context) {
	var req CreateRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.service.Create(c.Request.Context(), auth.GetUsername(c), req)
	if err != nil {
		// A send that could not be funded still exists as initiated.
		if view != nil {
			c.JSON(HTTPStatus(ErrorKind(err)), gin.H{
				"error":   ErrorKind(err),
				"message": err.Error(),
				"order":   view,
			})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": view})
}

// GetOrder handles GET /v1/orders/:id?percent=
//
// percent is the value typed into the dispute centre; it drives the
// send/accept controls and may be empty or invalid.
func (h *Handler) GetOrder(c *gin.Context) {
	var local decimal.NullDecimal
	if p := c.Query("percent"); p != "" {
		if d, err := fees.ParsePercent(p); err == nil {
			local = decimal.NullDecimal{Decimal: d, Valid: true}
		}
	}

	view, err := h.service.Detail(c.Request.Context(), c.Param("id"), auth.GetUsername(c), local)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

// Act handles POST /v1/orders/:id/actions
func (h *Handler) Act(c *gin.Context) {
	var req ActionRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.service.Act(c.Request.Context(), c.Param("id"), auth.GetUsername(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

type percentRequest struct {
	Percent string `json:"percent"`
}

// ProposeRefund handles POST /v1/orders/:id/dispute/propose
func (h *Handler) ProposeRefund(c *gin.Context) {
	var req percentRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.service.ProposeRefund(c.Request.Context(), c.Param("id"), auth.GetUsername(c), req.Percent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

// AcceptRefund handles POST /v1/orders/:id/dispute/accept
func (h *Handler) AcceptRefund(c *gin.Context) {
	var req percentRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.service.AcceptRefund(c.Request.Context(), c.Param("id"), auth.GetUsername(c), req.Percent)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

// WithdrawProposal handles POST /v1/orders/:id/dispute/withdraw
func (h *Handler) WithdrawProposal(c *gin.Context) {
	view, err := h.service.WithdrawProposal(c.Request.Context(), c.Param("id"), auth.GetUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

// DeclineProposal handles POST /v1/orders/:id/dispute/decline
func (h *Handler) DeclineProposal(c *gin.Context) {
	view, err := h.service.DeclineProposal(c.Request.Context(), c.Param("id"), auth.GetUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": view})
}

// ListComments handles GET /v1/orders/:id/comments
func (h *Handler) ListComments(c *gin.Context) {
	list, err := h.service.Comments(c.Request.Context(), c.Param("id"), auth.GetUsername(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"comments": list,
		"count":    len(list),
	})
}

type commentRequest struct {
	Text string `json:"text"`
}

// AddComment handles POST /v1/orders/:id/comments
func (h *Handler) AddComment(c *gin.Context) {
	var req commentRequest
	if !bindJSON(c, &req) {
		return
	}

	comment, err := h.service.AddComment(c.Request.Context(), c.Param("id"), auth.GetUsername(c), req.Text)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"comment": comment})
}
