package fees

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler exposes the calculators over HTTP. The routes are public and
// stateless.
type Handler struct{}

// NewHandler creates a new fee handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterRoutes sets up public fee routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/fees/breakdown", h.Breakdown)
	r.GET("/fees/solve", h.Solve)
	r.GET("/fees/dispute", h.Dispute)
	r.GET("/fees/cancel-refund", h.CancelRefund)
}

func badInput(c *gin.Context, field string, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "validation_error",
		"message": field + ": " + err.Error(),
	})
}

// Breakdown handles GET /v1/fees/breakdown?amount=
func (h *Handler) Breakdown(c *gin.Context) {
	amount, err := ParseAmount(c.Query("amount"))
	if err != nil {
		badInput(c, "amount", err)
		return
	}
	b, err := ComputeBreakdown(amount)
	if err != nil {
		badInput(c, "amount", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"breakdown": b})
}

// Solve handles GET /v1/fees/solve?total=
func (h *Handler) Solve(c *gin.Context) {
	total, err := ParseAmount(c.Query("total"))
	if err != nil {
		badInput(c, "total", err)
		return
	}
	base, err := SolveBaseFromTotal(total)
	if err != nil {
		badInput(c, "total", err)
		return
	}
	b, err := ComputeBreakdown(base)
	if err != nil {
		// A total just above the fixed fees can solve to a base that rounds
		// to zero at rail precision.
		if errors.Is(err, ErrInvalidAmount) {
			badInput(c, "total", ErrTotalTooSmall)
			return
		}
		badInput(c, "total", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"base": Format(base), "breakdown": b})
}

// Dispute handles GET /v1/fees/dispute?amount=&percent=
func (h *Handler) Dispute(c *gin.Context) {
	amount, err := ParseAmount(c.Query("amount"))
	if err != nil {
		badInput(c, "amount", err)
		return
	}
	percent, err := ParsePercent(c.Query("percent"))
	if err != nil {
		badInput(c, "percent", err)
		return
	}
	split, err := ComputeDisputeSplit(amount, percent)
	if err != nil {
		badInput(c, "percent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"split": split})
}

// CancelRefund handles GET /v1/fees/cancel-refund?amount=
func (h *Handler) CancelRefund(c *gin.Context) {
	amount, err := ParseAmount(c.Query("amount"))
	if err != nil {
		badInput(c, "amount", err)
		return
	}
	r, err := ComputeCancelRefund(amount)
	if err != nil {
		badInput(c, "amount", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": r})
}
