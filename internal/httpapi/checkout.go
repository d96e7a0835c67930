package httpapi

import (
	"net/http"

	"license-commerce/internal/checkout"

	"github.com/gin-gonic/gin"
)

type checkoutRequest struct {
	Note string `json:"note"`
}

// CheckoutCart pays for the caller's cart from their wallet.
// Insufficient funds answers 402 with the failed order; the cart is kept.
func (h Handlers) CheckoutCart(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req checkoutRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badJSON(c)
			return
		}
	}
	res, err := h.Checkout.Checkout(c.Request.Context(), who.tenantID, who.userID, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	if !res.Payment.Success {
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "insufficient funds", "order": res.Order, "payment": res.Payment})
		return
	}
	c.JSON(http.StatusCreated, res)
}

// GetOrder returns one of the caller's orders. Orders of other users read as not found.
func (h Handlers) GetOrder(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	o, err := h.Checkout.Order(c.Request.Context(), who.tenantID, c.Param("order_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	if o.UserID != who.userID {
		respondError(c, checkout.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, o)
}
