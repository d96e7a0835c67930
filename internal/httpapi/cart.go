package httpapi

import (
	"net/http"

	"license-commerce/internal/cart"

	"github.com/gin-gonic/gin"
)

type addItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity"`
}

func cartResponse(items []cart.Item) gin.H {
	if items == nil {
		items = []cart.Item{}
	}
	count := 0
	for _, it := range items {
		count += it.Quantity
	}
	return gin.H{"items": items, "item_count": count, "total": cart.Total(items).StringFixed(2)}
}

// GetCart returns the caller's cart with current catalog prices.
func (h Handlers) GetCart(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	items, err := h.Cart.GetCartItems(c.Request.Context(), who.tenantID, who.userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cartResponse(items))
}

func (h Handlers) AddCartItem(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req addItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	item, err := h.Cart.AddToCart(c.Request.Context(), who.tenantID, who.userID, req.ProductID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// UpdateCartItem sets an absolute quantity; zero or less removes the line.
func (h Handlers) UpdateCartItem(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badJSON(c)
		return
	}
	productID := c.Param("product_id")
	item, err := h.Cart.UpdateCartItem(c.Request.Context(), who.tenantID, who.userID, productID, req.Quantity)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Quantity <= 0 {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, item)
}

func (h Handlers) RemoveCartItem(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	if err := h.Cart.RemoveCartItem(c.Request.Context(), who.tenantID, who.userID, c.Param("product_id")); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) ClearCart(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	n, err := h.Cart.ClearCart(c.Request.Context(), who.tenantID, who.userID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed_items": n})
}

// --- Admin ---

// AdminCartEvents returns a customer's cart event log in sequence order.
func (h Handlers) AdminCartEvents(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	events, err := h.Cart.ListEvents(c.Request.Context(), who.tenantID, c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// AdminRebuildCart replaces a customer's cart view with the fold of its events.
func (h Handlers) AdminRebuildCart(c *gin.Context) {
	who, ok := identity(c)
	if !ok {
		return
	}
	userID := c.Param("user_id")
	n, err := h.Cart.RebuildCartFromEvents(c.Request.Context(), who.tenantID, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	if h.Audit != nil {
		h.Audit.LogCartRebuild(c.Request.Context(), who.tenantID, who.actor(c.ClientIP()), userID, n)
	}
	c.JSON(http.StatusOK, gin.H{"rows": n})
}
